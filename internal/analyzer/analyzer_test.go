package analyzer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aafreen2203/SafePostAI/internal/llm"
	"github.com/Aafreen2203/SafePostAI/internal/risk"
)

type stubProvider struct {
	content string
	err     error
	got     *llm.Request
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	p.got = req
	if p.err != nil {
		return nil, p.err
	}
	return &llm.Response{Content: p.content}, nil
}

type stubRecognizer struct {
	entities []Entity
	err      error
}

func (r stubRecognizer) Recognize(context.Context, string) ([]Entity, error) {
	return r.entities, r.err
}

type stubClassifier struct {
	labels    []Label
	err       error
	gotLabels []string
}

func (c *stubClassifier) Classify(_ context.Context, _ string, labels []string) ([]Label, error) {
	c.gotLabels = labels
	return c.labels, c.err
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"bare", `{"a":1}`, `{"a":1}`, true},
		{"prose around", "Sure! Here you go:\n{\"a\":1}\nHope that helps.", `{"a":1}`, true},
		{"code fence", "```json\n{\"a\":{\"b\":[1,2]}}\n```", `{"a":{"b":[1,2]}}`, true},
		{"brace inside string", `{"a":"}{"}`, `{"a":"}{"}`, true},
		{"escaped quote", `{"a":"say \"hi\" }"}`, `{"a":"say \"hi\" }"}`, true},
		{"skips invalid candidate", `{not json} then {"a":2}`, `{"a":2}`, true},
		{"unbalanced", `{"a":1`, "", false},
		{"no object", "nothing here", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSONObject(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestParsePromptResponse(t *testing.T) {
	raw := "Here is the analysis:\n" + `{
		"sensitiveItems": [
			{"type": "email", "value": "john@example.com", "confidence": 0.95, "severity": "medium"},
			{"type": "Phone Number", "value": "9876543210"},
			{"type": "blood type", "value": "O+", "confidence": 0.6, "severity": "severe"},
			{"type": "name", "value": "  "}
		],
		"riskLevel": "high"
	}`

	findings, err := ParsePromptResponse(raw)
	require.NoError(t, err)
	require.Len(t, findings, 3)

	assert.Equal(t, risk.Cat(risk.ClassEmail, ""), findings[0].Category)
	assert.Equal(t, risk.SeverityHigh, findings[0].Severity, "model rating never lowers the table severity")
	assert.Equal(t, risk.SourceLanguageModel, findings[0].Source)

	assert.Equal(t, risk.Cat(risk.ClassPhone, ""), findings[1].Category)
	assert.InDelta(t, defaultItemConfidence, findings[1].Confidence, 1e-9)

	assert.Equal(t, risk.Cat(risk.ClassEntity, "blood_type"), findings[2].Category)
	assert.Equal(t, risk.SeverityHigh, findings[2].Severity, "severe maps to high")
}

func TestParsePromptResponseMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no json", "I could not find anything."},
		{"missing items", `{"riskLevel":"none"}`},
		{"wrong item shape", `{"sensitiveItems":[{"value":"x"}]}`},
		{"items not array", `{"sensitiveItems":"none"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePromptResponse(tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedResponse)
			assert.ErrorIs(t, err, ErrAnalyzerFailure)
		})
	}
}

func TestParsePromptResponseEmptyList(t *testing.T) {
	findings, err := ParsePromptResponse(`{"sensitiveItems":[],"riskLevel":"none"}`)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestPromptCategory(t *testing.T) {
	assert.Equal(t, risk.Cat(risk.ClassNationalID, "aadhaar"), PromptCategory("Aadhaar"))
	assert.Equal(t, risk.Cat(risk.ClassIPAddress, ""), PromptCategory("ip-address"))
	assert.Equal(t, risk.Cat(risk.ClassEntity, "credential"), PromptCategory("password"))
	assert.Equal(t, risk.Cat(risk.ClassEntity, "unknown"), PromptCategory(" "))
}

func TestPromptAdapter(t *testing.T) {
	ctx := context.Background()

	t.Run("unavailable without provider", func(t *testing.T) {
		_, err := NewPromptAdapter(nil, "").Analyze(ctx, "x")
		assert.ErrorIs(t, err, ErrAnalyzerUnavailable)
	})

	t.Run("sends fixed instruction", func(t *testing.T) {
		p := &stubProvider{content: `{"sensitiveItems":[{"type":"email","value":"a@b.com","confidence":1}]}`}
		a := NewPromptAdapter(p, "gpt-3.5-turbo")
		findings, err := a.Analyze(ctx, "Email me at a@b.com")
		require.NoError(t, err)
		require.Len(t, findings, 1)

		require.NotNil(t, p.got)
		assert.Equal(t, "gpt-3.5-turbo", p.got.Model)
		assert.InDelta(t, 0.1, p.got.Temperature, 1e-9)
		assert.Equal(t, 500, p.got.MaxTokens)
		require.Len(t, p.got.Messages, 2)
		assert.Contains(t, p.got.Messages[1].Content, "Email me at a@b.com")
		assert.Equal(t, "llm:stub", a.Name())
	})

	t.Run("provider error is a failure", func(t *testing.T) {
		p := &stubProvider{err: context.DeadlineExceeded}
		_, err := NewPromptAdapter(p, "m").Analyze(ctx, "x")
		assert.ErrorIs(t, err, ErrAnalyzerFailure)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("garbage output is malformed", func(t *testing.T) {
		p := &stubProvider{content: "no idea"}
		_, err := NewPromptAdapter(p, "m").Analyze(ctx, "x")
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})
}

func TestEntityAdapter(t *testing.T) {
	ctx := context.Background()

	_, err := NewEntityAdapter(nil).Analyze(ctx, "x")
	assert.ErrorIs(t, err, ErrAnalyzerUnavailable)

	r := stubRecognizer{entities: []Entity{
		{Label: "PER", Text: "John Smith", Start: 8, End: 18, Score: 0.95},
		{Label: "B-LOC", Text: "Paris", Start: 22, End: 27, Score: 0.99},
		{Label: "ORG", Text: "Acme", Score: 0.6},
		{Label: "MISC", Text: "English", Score: 0.99},
		{Label: "PER", Text: "Jane", Score: 0.5},
	}}
	findings, err := NewEntityAdapter(r).Analyze(ctx, "Contact John Smith in Paris")
	require.NoError(t, err)
	require.Len(t, findings, 4)

	assert.Equal(t, risk.Cat(risk.ClassEntity, "person"), findings[0].Category)
	assert.Equal(t, risk.SeverityHigh, findings[0].Severity)
	require.NotNil(t, findings[0].Position)
	assert.Equal(t, 8, findings[0].Position.Start)

	assert.Equal(t, risk.Cat(risk.ClassEntity, "location"), findings[1].Category)
	assert.Equal(t, risk.SeverityMedium, findings[1].Severity)
	assert.Equal(t, risk.Cat(risk.ClassEntity, "organization"), findings[2].Category)
	assert.Equal(t, risk.SeverityMedium, findings[2].Severity)
	assert.Nil(t, findings[2].Position)
	assert.Equal(t, risk.SeverityMedium, findings[3].Severity, "low-confidence person stays medium")

	_, err = NewEntityAdapter(stubRecognizer{err: errors.New("boom")}).Analyze(ctx, "x")
	assert.ErrorIs(t, err, ErrAnalyzerFailure)
}

func TestToxicityAdapter(t *testing.T) {
	c := &stubClassifier{labels: []Label{
		{Label: "toxic", Score: 0.92},
		{Label: "insult", Score: 0.5},
		{Label: "threat", Score: 0.51},
	}}
	findings, err := NewToxicityAdapter(c).Analyze(context.Background(), "you are awful")
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, risk.Cat(risk.ClassToxicity, "toxic"), findings[0].Category)
	assert.Equal(t, risk.Cat(risk.ClassToxicity, "threat"), findings[1].Category)
	assert.Equal(t, risk.SourceRemoteToxicity, findings[0].Source)
	assert.Nil(t, c.gotLabels)
}

func TestPolicyAdapter(t *testing.T) {
	c := &stubClassifier{labels: []Label{
		{Label: "spam", Score: 0.85},
		{Label: "hate speech", Score: 0.71},
		{Label: "violence", Score: 0.7},
	}}
	findings, err := NewPolicyAdapter(c).Analyze(context.Background(), "buy now")
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, PolicyTaxonomy, c.gotLabels)

	assert.Equal(t, risk.Cat(risk.ClassPolicyViolation, "spam"), findings[0].Category)
	assert.Equal(t, risk.SeverityMedium, findings[0].Severity)
	assert.Equal(t, risk.Cat(risk.ClassPolicyViolation, "hate_speech"), findings[1].Category)
	assert.Equal(t, risk.SeverityHigh, findings[1].Severity)

	_, err = NewPolicyAdapter(nil).Analyze(context.Background(), "x")
	assert.ErrorIs(t, err, ErrAnalyzerUnavailable)
}

func TestVisionFaceDetector(t *testing.T) {
	ctx := context.Background()
	png := []byte("\x89PNG\r\n\x1a\n0000")

	p := &stubProvider{content: "```json\n{\"faces\": 2}\n```"}
	n, err := NewVisionFaceDetector(p, "gpt-4o-mini").DetectFaces(ctx, png)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, p.got.Messages[0].Images, 1)
	assert.Contains(t, p.got.Messages[0].Images[0], "data:image/png;base64,")

	_, err = NewVisionFaceDetector(&stubProvider{content: `{"count": 1}`}, "m").DetectFaces(ctx, png)
	assert.ErrorIs(t, err, ErrMalformedResponse)

	_, err = NewVisionFaceDetector(nil, "m").DetectFaces(ctx, png)
	assert.ErrorIs(t, err, ErrAnalyzerUnavailable)
}

type stubFaceDetector struct {
	n     int
	err   error
	calls int
}

func (d *stubFaceDetector) DetectFaces(context.Context, []byte) (int, error) {
	d.calls++
	return d.n, d.err
}

func TestFallbackFaces(t *testing.T) {
	assert.Nil(t, FallbackFaces())
	assert.Nil(t, FallbackFaces(nil, nil))
	only := &stubFaceDetector{n: 1}
	assert.Same(t, only, FallbackFaces(nil, only))

	tests := []struct {
		name    string
		first   *stubFaceDetector
		second  *stubFaceDetector
		want    int
		wantErr bool
		calls   int
	}{
		{"first answers", &stubFaceDetector{n: 2}, &stubFaceDetector{n: 5}, 2, false, 0},
		{"falls through on failure", &stubFaceDetector{err: errors.New("quota")}, &stubFaceDetector{n: 3}, 3, false, 1},
		{"all fail", &stubFaceDetector{err: errors.New("quota")}, &stubFaceDetector{err: ErrAnalyzerUnavailable}, 0, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := FallbackFaces(tt.first, tt.second).DetectFaces(context.Background(), []byte("img"))
			assert.Equal(t, tt.calls, tt.second.calls)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrAnalyzerUnavailable)
				assert.Contains(t, err.Error(), "quota")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

type stubDetector struct{ findings []risk.Finding }

func (d stubDetector) Detect(context.Context, string) []risk.Finding   { return d.findings }
func (d stubDetector) Classify(context.Context, string) []risk.Finding { return d.findings }

func TestLocalAdapters(t *testing.T) {
	f := risk.NewFinding(risk.Cat(risk.ClassEmail, ""), "a@b.com", 1, risk.SourcePatternLibrary)
	got, err := NewPatternAdapter(stubDetector{[]risk.Finding{f}}).Analyze(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, []risk.Finding{f}, got)

	d := NewDocumentAdapter(stubDetector{})
	assert.Equal(t, risk.SourceDocumentClassifier, d.Source())
}
