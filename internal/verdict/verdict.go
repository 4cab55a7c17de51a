// Package verdict turns a report into an allow, warn, or block decision by
// evaluating an embedded Rego policy.
package verdict

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	spotel "github.com/Aafreen2203/SafePostAI/internal/otel"
	"github.com/Aafreen2203/SafePostAI/internal/risk"
)

var tracer = spotel.Tracer("github.com/Aafreen2203/SafePostAI/internal/verdict")

//go:embed rego/*.rego
var embeddedPolicies embed.FS

const (
	policyFile = "rego/verdict.rego"
	query      = "data.safepost.verdict.result"
)

// Actions.
const (
	ActionAllow = "allow"
	ActionWarn  = "warn"
	ActionBlock = "block"
)

// Verdict is the decision for one report. Score is the additive risk score
// (PII +3, entities +2, toxicity +4, policy +3).
type Verdict struct {
	Action     string   `json:"action"`
	Reasons    []string `json:"reasons,omitempty"`
	Score      int      `json:"score"`
	ScoreLevel string   `json:"scoreLevel"`
}

// Engine evaluates the verdict policy.
type Engine struct {
	prepared rego.PreparedEvalQuery
	block    risk.Severity
	warn     risk.Severity
}

// Option configures an Engine.
type Option func(*Engine)

// WithBlockThreshold blocks reports at or above sev. Default high.
func WithBlockThreshold(sev risk.Severity) Option { return func(e *Engine) { e.block = sev } }

// WithWarnThreshold warns on reports at or above sev. Default low.
func WithWarnThreshold(sev risk.Severity) Option { return func(e *Engine) { e.warn = sev } }

// NewEngine compiles the embedded policy with the thresholds as OPA data.
func NewEngine(ctx context.Context, opts ...Option) (*Engine, error) {
	ctx, span := tracer.Start(ctx, "verdict.engine.new")
	defer span.End()

	e := &Engine{block: risk.SeverityHigh, warn: risk.SeverityLow}
	for _, o := range opts {
		o(e)
	}
	if e.block == risk.SeverityNone {
		return nil, fmt.Errorf("block threshold must be above none")
	}
	if e.warn == risk.SeverityNone || e.warn > e.block {
		e.warn = minSeverity(risk.SeverityLow, e.block)
	}

	content, err := embeddedPolicies.ReadFile(policyFile)
	if err != nil {
		return nil, fmt.Errorf("reading embedded policy %s: %w", policyFile, err)
	}
	store := inmem.NewFromObject(map[string]interface{}{
		"config": map[string]interface{}{
			"block_threshold": e.block.String(),
			"warn_threshold":  e.warn.String(),
		},
	})
	prepared, err := rego.New(
		rego.Query(query),
		rego.Module(policyFile, string(content)),
		rego.Store(store),
	).PrepareForEval(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("preparing Rego policy %s: %w", policyFile, err)
	}
	e.prepared = prepared
	return e, nil
}

func minSeverity(a, b risk.Severity) risk.Severity {
	if a < b {
		return a
	}
	return b
}

// BlockThreshold returns the configured block threshold.
func (e *Engine) BlockThreshold() risk.Severity { return e.block }

// Evaluate decides on a report.
func (e *Engine) Evaluate(ctx context.Context, r *risk.Report) (*Verdict, error) {
	ctx, span := tracer.Start(ctx, "verdict.evaluate")
	defer span.End()

	input, err := reportToInput(r)
	if err != nil {
		return nil, err
	}
	rs, err := e.prepared.Eval(ctx, rego.EvalInput(map[string]interface{}{"report": input}))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("evaluating verdict policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, fmt.Errorf("verdict policy returned no result")
	}
	out, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("verdict policy returned %T", rs[0].Expressions[0].Value)
	}

	v := &Verdict{}
	v.Action, _ = out["action"].(string)
	v.ScoreLevel, _ = out["score_level"].(string)
	v.Score = toInt(out["score"])
	if reasons, ok := out["reasons"].([]interface{}); ok {
		for _, r := range reasons {
			if s, ok := r.(string); ok {
				v.Reasons = append(v.Reasons, s)
			}
		}
		sort.Strings(v.Reasons)
	}

	span.SetAttributes(
		attribute.String("verdict.action", v.Action),
		attribute.Int("verdict.score", v.Score),
	)
	return v, nil
}

// reportToInput round-trips the report through JSON so the policy sees the
// same field names as API clients.
func reportToInput(r *risk.Report) (map[string]interface{}, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshalling report for policy: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshalling report for policy: %w", err)
	}
	return m, nil
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}
