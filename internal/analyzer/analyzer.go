// Package analyzer wraps every detection source, local or remote, behind
// one Adapter interface so the orchestrator can run and fall back between
// them uniformly.
package analyzer

import (
	"context"
	"errors"
	"fmt"

	spotel "github.com/Aafreen2203/SafePostAI/internal/otel"
	"github.com/Aafreen2203/SafePostAI/internal/risk"
)

var tracer = spotel.Tracer("github.com/Aafreen2203/SafePostAI/internal/analyzer")

// Adapter errors. ErrAnalyzerUnavailable means the adapter has no credential
// and is expected; the others trigger fallback.
var (
	ErrAnalyzerUnavailable = errors.New("analyzer unavailable")
	ErrAnalyzerFailure     = errors.New("analyzer failure")
	ErrMalformedResponse   = fmt.Errorf("malformed response: %w", ErrAnalyzerFailure)
	ErrOCRFailure          = errors.New("ocr failure")
)

// Adapter is one detection source.
type Adapter interface {
	Name() string
	Source() risk.Source
	Analyze(ctx context.Context, text string) ([]risk.Finding, error)
}

// failure wraps a collaborator error as ErrAnalyzerFailure while keeping the
// cause (e.g. context.DeadlineExceeded) reachable through errors.Is.
func failure(name string, err error) error {
	if errors.Is(err, ErrAnalyzerFailure) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrAnalyzerFailure, name, err)
}

// PatternDetector is satisfied by classifier.Scanner.
type PatternDetector interface {
	Detect(ctx context.Context, text string) []risk.Finding
}

// DocumentDetector is satisfied by classifier.DocumentClassifier.
type DocumentDetector interface {
	Classify(ctx context.Context, text string) []risk.Finding
}

// PatternAdapter exposes the pattern library as an Adapter. It never fails.
type PatternAdapter struct{ d PatternDetector }

// NewPatternAdapter wraps a pattern detector.
func NewPatternAdapter(d PatternDetector) *PatternAdapter { return &PatternAdapter{d: d} }

func (a *PatternAdapter) Name() string        { return "patterns" }
func (a *PatternAdapter) Source() risk.Source { return risk.SourcePatternLibrary }

func (a *PatternAdapter) Analyze(ctx context.Context, text string) ([]risk.Finding, error) {
	return a.d.Detect(ctx, text), nil
}

// DocumentAdapter exposes the document classifier as an Adapter.
type DocumentAdapter struct{ d DocumentDetector }

// NewDocumentAdapter wraps a document detector.
func NewDocumentAdapter(d DocumentDetector) *DocumentAdapter { return &DocumentAdapter{d: d} }

func (a *DocumentAdapter) Name() string        { return "documents" }
func (a *DocumentAdapter) Source() risk.Source { return risk.SourceDocumentClassifier }

func (a *DocumentAdapter) Analyze(ctx context.Context, text string) ([]risk.Finding, error) {
	return a.d.Classify(ctx, text), nil
}

var (
	_ Adapter = (*PatternAdapter)(nil)
	_ Adapter = (*DocumentAdapter)(nil)
)
