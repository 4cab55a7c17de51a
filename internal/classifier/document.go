package classifier

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"

	"github.com/Aafreen2203/SafePostAI/internal/risk"
	"github.com/Aafreen2203/SafePostAI/patterns"
)

const (
	documentBaseConfidence = 0.6
	documentStepConfidence = 0.1
	documentMaxConfidence  = 0.95
)

// DocumentGroup is a set of phrases that together indicate one document type.
type DocumentGroup struct {
	DocumentType string   `yaml:"document_type" json:"document_type"`
	Keywords     []string `yaml:"keywords" json:"keywords"`
}

// DocumentFile is the YAML layout of documents.yaml.
type DocumentFile struct {
	Groups []DocumentGroup `yaml:"groups"`
}

// ParseDocumentFile parses keyword group YAML.
func ParseDocumentFile(data []byte) (*DocumentFile, error) {
	var df DocumentFile
	if err := yaml.Unmarshal(data, &df); err != nil {
		return nil, fmt.Errorf("parsing document YAML: %w", err)
	}
	return &df, nil
}

// DocumentClassifier recognises document types from letterhead phrasing.
type DocumentClassifier struct {
	groups []DocumentGroup
}

// DocumentOption configures a DocumentClassifier.
type DocumentOption func(*documentConfig)

type documentConfig struct {
	file   string
	groups []DocumentGroup
}

// WithDocumentFile layers keyword groups from a YAML file. Groups replace
// embedded groups of the same document_type. A missing file is skipped.
func WithDocumentFile(path string) DocumentOption {
	return func(c *documentConfig) { c.file = path }
}

// WithDocumentGroups adds groups after the embedded and file layers.
func WithDocumentGroups(groups []DocumentGroup) DocumentOption {
	return func(c *documentConfig) { c.groups = groups }
}

// NewDocumentClassifier builds a classifier from the embedded keyword groups
// plus any configured layers.
func NewDocumentClassifier(opts ...DocumentOption) (*DocumentClassifier, error) {
	var cfg documentConfig
	for _, o := range opts {
		o(&cfg)
	}

	df, err := ParseDocumentFile(patterns.DocumentsYAML())
	if err != nil {
		return nil, fmt.Errorf("loading embedded document groups: %w", err)
	}
	layers := [][]DocumentGroup{df.Groups}

	if cfg.file != "" {
		data, err := os.ReadFile(cfg.file)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("reading document file %s: %w", cfg.file, err)
		default:
			extra, err := ParseDocumentFile(data)
			if err != nil {
				return nil, err
			}
			layers = append(layers, extra.Groups)
		}
	}
	layers = append(layers, cfg.groups)

	return &DocumentClassifier{groups: mergeGroups(layers...)}, nil
}

// MustNewDocumentClassifier panics if the classifier cannot be built.
func MustNewDocumentClassifier(opts ...DocumentOption) *DocumentClassifier {
	c, err := NewDocumentClassifier(opts...)
	if err != nil {
		panic(fmt.Sprintf("classifier.NewDocumentClassifier: %v", err))
	}
	return c
}

func mergeGroups(layers ...[]DocumentGroup) []DocumentGroup {
	index := make(map[string]int)
	var merged []DocumentGroup
	for _, layer := range layers {
		for _, g := range layer {
			lowered := make([]string, 0, len(g.Keywords))
			for _, k := range g.Keywords {
				if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
					lowered = append(lowered, k)
				}
			}
			g.Keywords = lowered
			if idx, ok := index[g.DocumentType]; ok {
				merged[idx] = g
				continue
			}
			index[g.DocumentType] = len(merged)
			merged = append(merged, g)
		}
	}
	return merged
}

// Classify lower-cases text and reports one document finding per keyword
// group that has at least one phrase contained in it. More matched phrases
// raise the confidence.
func (c *DocumentClassifier) Classify(ctx context.Context, text string) []risk.Finding {
	_, span := tracer.Start(ctx, "classifier.classify_document")
	defer span.End()

	findings := []risk.Finding{}
	lowered := strings.ToLower(text)
	if strings.TrimSpace(lowered) == "" {
		return findings
	}

	for _, g := range c.groups {
		first := ""
		hits := 0
		for _, k := range g.Keywords {
			if strings.Contains(lowered, k) {
				if hits == 0 {
					first = k
				}
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		confidence := documentBaseConfidence + documentStepConfidence*float64(hits-1)
		if confidence > documentMaxConfidence {
			confidence = documentMaxConfidence
		}
		findings = append(findings, risk.NewFinding(
			risk.Cat(risk.ClassDocument, g.DocumentType), first, confidence, risk.SourceDocumentClassifier))
	}

	span.SetAttributes(attribute.Int("classifier.documents", len(findings)))
	return findings
}
