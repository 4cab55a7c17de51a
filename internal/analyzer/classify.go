package analyzer

import (
	"context"
	"strings"

	spotel "github.com/Aafreen2203/SafePostAI/internal/otel"
	"github.com/Aafreen2203/SafePostAI/internal/risk"
)

// Acceptance thresholds for classifier labels.
const (
	ToxicityThreshold = 0.5
	PolicyThreshold   = 0.7
)

// PolicyTaxonomy is the fixed zero-shot label set.
var PolicyTaxonomy = []string{
	"hate speech",
	"harassment",
	"misinformation",
	"spam",
	"violence",
	"adult content",
	"copyright violation",
	"privacy violation",
}

// ToxicityAdapter flags toxic labels from a fixed-label classifier.
type ToxicityAdapter struct {
	classifier TextClassifier
}

// NewToxicityAdapter creates the toxicity adapter. A nil classifier makes
// every call return ErrAnalyzerUnavailable.
func NewToxicityAdapter(c TextClassifier) *ToxicityAdapter {
	return &ToxicityAdapter{classifier: c}
}

func (a *ToxicityAdapter) Name() string        { return "toxicity" }
func (a *ToxicityAdapter) Source() risk.Source { return risk.SourceRemoteToxicity }

func (a *ToxicityAdapter) Analyze(ctx context.Context, text string) ([]risk.Finding, error) {
	if a.classifier == nil {
		return nil, ErrAnalyzerUnavailable
	}
	ctx, span := tracer.Start(ctx, "analyzer.toxicity")
	defer span.End()

	labels, err := a.classifier.Classify(ctx, text, nil)
	if err != nil {
		span.RecordError(err)
		return nil, failure(a.Name(), err)
	}
	findings := labelFindings(labels, ToxicityThreshold, risk.ClassToxicity, risk.SourceRemoteToxicity)
	span.SetAttributes(spotel.AnalyzerFindings.Int(len(findings)))
	return findings, nil
}

// PolicyAdapter runs zero-shot classification against PolicyTaxonomy.
type PolicyAdapter struct {
	classifier TextClassifier
	labels     []string
}

// NewPolicyAdapter creates the policy adapter. A nil classifier makes every
// call return ErrAnalyzerUnavailable.
func NewPolicyAdapter(c TextClassifier) *PolicyAdapter {
	return &PolicyAdapter{classifier: c, labels: PolicyTaxonomy}
}

func (a *PolicyAdapter) Name() string        { return "policy" }
func (a *PolicyAdapter) Source() risk.Source { return risk.SourceRemotePolicy }

func (a *PolicyAdapter) Analyze(ctx context.Context, text string) ([]risk.Finding, error) {
	if a.classifier == nil {
		return nil, ErrAnalyzerUnavailable
	}
	ctx, span := tracer.Start(ctx, "analyzer.policy")
	defer span.End()

	labels, err := a.classifier.Classify(ctx, text, a.labels)
	if err != nil {
		span.RecordError(err)
		return nil, failure(a.Name(), err)
	}
	findings := labelFindings(labels, PolicyThreshold, risk.ClassPolicyViolation, risk.SourceRemotePolicy)
	span.SetAttributes(spotel.AnalyzerFindings.Int(len(findings)))
	return findings, nil
}

// labelFindings keeps labels scoring strictly above threshold. Labels are the
// matched text so distinct labels stay distinct findings.
func labelFindings(labels []Label, threshold float64, class risk.Class, src risk.Source) []risk.Finding {
	var out []risk.Finding
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		name := strings.ToLower(strings.TrimSpace(l.Label))
		if name == "" || l.Score <= threshold || seen[name] {
			continue
		}
		seen[name] = true
		subtype := strings.NewReplacer(" ", "_", "-", "_").Replace(name)
		out = append(out, risk.NewFinding(risk.Cat(class, subtype), name, l.Score, src))
	}
	if out == nil {
		out = []risk.Finding{}
	}
	return out
}

var (
	_ Adapter = (*ToxicityAdapter)(nil)
	_ Adapter = (*PolicyAdapter)(nil)
)
