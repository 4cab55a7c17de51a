package analyzer

import (
	"context"
	"strings"

	spotel "github.com/Aafreen2203/SafePostAI/internal/otel"
	"github.com/Aafreen2203/SafePostAI/internal/risk"
)

// entityLabels is the allow-list of entity classes kept from the
// recognizer, keyed by every spelling providers use.
var entityLabels = map[string]string{
	"per":          "person",
	"person":       "person",
	"loc":          "location",
	"location":     "location",
	"org":          "organization",
	"organization": "organization",
}

// EntityAdapter maps named entities onto findings.
type EntityAdapter struct {
	recognizer EntityRecognizer
}

// NewEntityAdapter creates the entity adapter. A nil recognizer makes every
// call return ErrAnalyzerUnavailable.
func NewEntityAdapter(r EntityRecognizer) *EntityAdapter {
	return &EntityAdapter{recognizer: r}
}

func (a *EntityAdapter) Name() string        { return "entities" }
func (a *EntityAdapter) Source() risk.Source { return risk.SourceRemoteEntity }

func (a *EntityAdapter) Analyze(ctx context.Context, text string) ([]risk.Finding, error) {
	if a.recognizer == nil {
		return nil, ErrAnalyzerUnavailable
	}
	ctx, span := tracer.Start(ctx, "analyzer.entities")
	defer span.End()

	entities, err := a.recognizer.Recognize(ctx, text)
	if err != nil {
		span.RecordError(err)
		return nil, failure(a.Name(), err)
	}

	findings := make([]risk.Finding, 0, len(entities))
	for _, e := range entities {
		kind, ok := EntityKind(e.Label)
		if !ok || strings.TrimSpace(e.Text) == "" {
			continue
		}
		f := risk.NewFinding(risk.Cat(risk.ClassEntity, kind), strings.TrimSpace(e.Text), e.Score, risk.SourceRemoteEntity)
		if e.End > e.Start {
			f = f.At(e.Start, e.End)
		}
		findings = append(findings, f)
	}
	span.SetAttributes(spotel.AnalyzerFindings.Int(len(findings)))
	return findings, nil
}

// EntityKind normalises a recognizer label ("B-PER", "LOC", "person") to one
// of person, location, organization. Other labels are rejected.
func EntityKind(label string) (string, bool) {
	l := strings.ToLower(strings.TrimSpace(label))
	if len(l) > 2 && (l[:2] == "b-" || l[:2] == "i-") {
		l = l[2:]
	}
	kind, ok := entityLabels[l]
	return kind, ok
}

var _ Adapter = (*EntityAdapter)(nil)
