package verdict

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aafreen2203/SafePostAI/internal/risk"
)

func reportOf(findings ...risk.Finding) *risk.Report {
	return risk.NewAggregator().Aggregate(context.Background(), "x", findings)
}

func TestEvaluate(t *testing.T) {
	ctx := context.Background()
	e, err := NewEngine(ctx)
	require.NoError(t, err)

	email := risk.NewFinding(risk.Cat(risk.ClassEmail, ""), "a@b.com", 1, risk.SourcePatternLibrary)
	pin := risk.NewFinding(risk.Cat(risk.ClassAddress, "postal_code"), "400001", 1, risk.SourcePatternLibrary)
	org := risk.NewFinding(risk.Cat(risk.ClassEntity, "organization"), "Acme", 0.9, risk.SourceRemoteEntity)
	toxic := risk.NewFinding(risk.Cat(risk.ClassToxicity, "toxic"), "toxic", 0.9, risk.SourceRemoteToxicity)

	tests := []struct {
		name       string
		report     *risk.Report
		action     string
		score      int
		scoreLevel string
	}{
		{"clean", reportOf(), ActionAllow, 0, "none"},
		{"low pii warns", reportOf(pin), ActionWarn, 3, "medium"},
		{"email blocks", reportOf(email), ActionBlock, 3, "medium"},
		{"entity only", reportOf(org), ActionWarn, 2, "low"},
		{"pii and toxicity", reportOf(email, toxic), ActionBlock, 7, "high"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := e.Evaluate(ctx, tt.report)
			require.NoError(t, err)
			assert.Equal(t, tt.action, v.Action)
			assert.Equal(t, tt.score, v.Score)
			assert.Equal(t, tt.scoreLevel, v.ScoreLevel)
		})
	}
}

func TestEvaluateReasons(t *testing.T) {
	ctx := context.Background()
	e, err := NewEngine(ctx)
	require.NoError(t, err)

	r := reportOf(risk.NewFinding(risk.Cat(risk.ClassNationalID, "aadhaar"), "1234 5678 9012", 1, risk.SourcePatternLibrary))
	v, err := e.Evaluate(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, []string{"nationalId/aadhaar (critical)"}, v.Reasons)
}

func TestCustomThresholds(t *testing.T) {
	ctx := context.Background()
	e, err := NewEngine(ctx, WithBlockThreshold(risk.SeverityCritical), WithWarnThreshold(risk.SeverityHigh))
	require.NoError(t, err)
	assert.Equal(t, risk.SeverityCritical, e.BlockThreshold())

	email := risk.NewFinding(risk.Cat(risk.ClassEmail, ""), "a@b.com", 1, risk.SourcePatternLibrary)
	v, err := e.Evaluate(ctx, reportOf(email))
	require.NoError(t, err)
	assert.Equal(t, ActionWarn, v.Action)

	ip := risk.NewFinding(risk.Cat(risk.ClassIPAddress, ""), "10.0.0.1", 1, risk.SourcePatternLibrary)
	v, err = e.Evaluate(ctx, reportOf(ip))
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, v.Action)
	assert.Empty(t, v.Reasons)
}

func TestHiddenFindingsStillBlock(t *testing.T) {
	ctx := context.Background()
	e, err := NewEngine(ctx)
	require.NoError(t, err)

	r := risk.NewAggregator(risk.WithSeverityFloor(risk.SeverityCritical)).Aggregate(ctx, "x", []risk.Finding{
		risk.NewFinding(risk.Cat(risk.ClassEmail, ""), "a@b.com", 1, risk.SourcePatternLibrary),
	})
	v, err := e.Evaluate(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, ActionBlock, v.Action)
	require.Len(t, v.Reasons, 1)
	assert.Contains(t, v.Reasons[0], "hidden")
}

func TestNewEngineRejectsNoneThreshold(t *testing.T) {
	_, err := NewEngine(context.Background(), WithBlockThreshold(risk.SeverityNone))
	assert.Error(t, err)
}
