// Package classifier holds the local, network-free detectors: the regex
// pattern library and the keyword document classifier.
package classifier

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	spotel "github.com/Aafreen2203/SafePostAI/internal/otel"
	"github.com/Aafreen2203/SafePostAI/internal/risk"
)

var tracer = spotel.Tracer("github.com/Aafreen2203/SafePostAI/internal/classifier")

// Scanner is the pattern library: an ordered set of named regex detectors.
// It is stateless after construction and safe for concurrent use.
type Scanner struct {
	detectors []Detector
}

// ScannerOption configures a Scanner via the functional options pattern.
type ScannerOption func(*scannerConfig)

type scannerConfig struct {
	patternFile       string
	enabledEntities   []string
	disabledEntities  []string
	customRecognizers []RecognizerConfig
	enabledClasses    []risk.Class
}

// WithPatternFile layers recognizers from a YAML file over the embedded
// defaults. A missing file is skipped.
func WithPatternFile(path string) ScannerOption {
	return func(c *scannerConfig) { c.patternFile = path }
}

// WithEnabledEntities keeps only recognizers whose supported_entity is listed.
func WithEnabledEntities(entities []string) ScannerOption {
	return func(c *scannerConfig) { c.enabledEntities = entities }
}

// WithDisabledEntities removes recognizers whose supported_entity is listed.
func WithDisabledEntities(entities []string) ScannerOption {
	return func(c *scannerConfig) { c.disabledEntities = entities }
}

// WithCustomRecognizers adds a final layer of recognizer definitions.
func WithCustomRecognizers(recognizers []RecognizerConfig) ScannerOption {
	return func(c *scannerConfig) { c.customRecognizers = recognizers }
}

// WithEnabledClasses skips detectors whose category class is not listed.
// An empty list keeps every detector.
func WithEnabledClasses(classes []risk.Class) ScannerOption {
	return func(c *scannerConfig) { c.enabledClasses = classes }
}

// NewScanner creates a pattern library. Without options it uses the embedded
// defaults.
func NewScanner(opts ...ScannerOption) (*Scanner, error) {
	var cfg scannerConfig
	for _, o := range opts {
		o(&cfg)
	}

	defaults, err := DefaultRecognizers()
	if err != nil {
		return nil, fmt.Errorf("loading default recognizers: %w", err)
	}

	var fileRecs []*RecognizerConfig
	if cfg.patternFile != "" {
		rf, err := LoadRecognizerFile(cfg.patternFile)
		if err != nil {
			return nil, fmt.Errorf("loading pattern file: %w", err)
		}
		if rf != nil {
			fileRecs = toPtrSlice(rf.Recognizers)
		}
	}

	merged := MergeRecognizers(toPtrSlice(defaults), fileRecs, toPtrSlice(cfg.customRecognizers))
	merged = FilterByEntities(merged, cfg.enabledEntities, cfg.disabledEntities)

	compiled, err := CompileDetectors(merged)
	if err != nil {
		return nil, fmt.Errorf("compiling patterns: %w", err)
	}

	if len(cfg.enabledClasses) > 0 {
		allowed := make(map[risk.Class]bool, len(cfg.enabledClasses))
		for _, c := range cfg.enabledClasses {
			allowed[c] = true
		}
		kept := compiled[:0]
		for _, d := range compiled {
			if allowed[d.Category.Class] {
				kept = append(kept, d)
			}
		}
		compiled = kept
	}

	return &Scanner{detectors: compiled}, nil
}

// MustNewScanner is like NewScanner but panics on error. The embedded defaults
// always compile, so zero-option calls never panic.
func MustNewScanner(opts ...ScannerOption) *Scanner {
	s, err := NewScanner(opts...)
	if err != nil {
		panic(fmt.Sprintf("classifier.NewScanner: %v", err))
	}
	return s
}

// Detectors returns the names of the active detectors in evaluation order.
func (s *Scanner) Detectors() []string {
	names := make([]string, len(s.detectors))
	for i, d := range s.detectors {
		names[i] = d.Name
	}
	return names
}

// Detect runs every detector over text. Each non-overlapping match of a
// detector yields one finding with confidence 1.0. Different detectors may
// report the same substring; the aggregator resolves that.
func (s *Scanner) Detect(ctx context.Context, text string) []risk.Finding {
	_, span := tracer.Start(ctx, "classifier.detect")
	defer span.End()

	findings := []risk.Finding{}
	if strings.TrimSpace(text) == "" {
		return findings
	}

	for i := range s.detectors {
		d := &s.detectors[i]
		for _, m := range d.find(text) {
			f := risk.NewFinding(d.Category, text[m.start:m.end], 1.0, risk.SourcePatternLibrary)
			findings = append(findings, f.At(m.start, m.end))
		}
	}

	span.SetAttributes(
		attribute.Int("classifier.detectors", len(s.detectors)),
		attribute.Int("classifier.findings", len(findings)),
	)
	return findings
}
