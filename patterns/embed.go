// Package patterns embeds the default detector definitions. pii.yaml uses the
// Presidio recognizer layout with SafePost extensions (trim_words, min_words);
// documents.yaml lists the keyword groups of the document classifier.
package patterns

import _ "embed"

//go:embed pii.yaml
var piiYAML []byte

//go:embed documents.yaml
var documentsYAML []byte

// PIIYAML returns the embedded default PII recognizer definitions.
func PIIYAML() []byte { return piiYAML }

// DocumentsYAML returns the embedded document keyword groups.
func DocumentsYAML() []byte { return documentsYAML }
