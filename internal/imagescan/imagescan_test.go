package imagescan

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aafreen2203/SafePostAI/internal/analyzer"
	"github.com/Aafreen2203/SafePostAI/internal/risk"
)

type stubOCR struct {
	text string
	conf float64
	err  error
}

func (s stubOCR) ExtractText(context.Context, []byte) (string, float64, error) {
	return s.text, s.conf, s.err
}

type stubObjects struct {
	labels []analyzer.Label
	err    error
}

func (s stubObjects) DetectObjects(context.Context, []byte) ([]analyzer.Label, error) {
	return s.labels, s.err
}

type stubFaces struct {
	n   int
	err error
}

func (s stubFaces) DetectFaces(context.Context, []byte) (int, error) { return s.n, s.err }

type textRecorder struct {
	mu    sync.Mutex
	calls []string
	sets  [][]risk.Finding
}

func (r *textRecorder) analyze(_ context.Context, text string) [][]risk.Finding {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, text)
	return r.sets
}

func stateRecorder() (*[]State, Option) {
	var states []State
	return &states, WithStateHook(func(s State) { states = append(states, s) })
}

func TestEmptyOCRSkipsTextButKeepsFaces(t *testing.T) {
	rec := &textRecorder{}
	states, hook := stateRecorder()
	p := New(
		WithOCR(stubOCR{text: ""}),
		WithFaceDetector(stubFaces{n: 2}),
		WithObjectDetector(stubObjects{}),
		WithTextAnalyzer(rec.analyze),
		hook,
	)

	report := p.AnalyzeImage(context.Background(), []byte("img"))
	assert.Empty(t, rec.calls, "text analysis must be skipped")
	require.NotNil(t, report.Image)
	assert.True(t, report.Image.TextSkipped)
	assert.Equal(t, string(StateDone), report.Image.State)

	require.Len(t, report.Findings, 1)
	assert.Equal(t, risk.ClassFaceDetected, report.Findings[0].Category.Class)
	assert.Equal(t, 2, report.Findings[0].Count)
	assert.Equal(t, risk.SeverityMedium, report.OverallSeverity)

	assert.Equal(t, []State{StateExtracting, StateObjectAndFaceAnalysis, StateAggregated, StateDone}, *states)
}

func TestShortOCRTextIsSkipped(t *testing.T) {
	rec := &textRecorder{}
	p := New(WithOCR(stubOCR{text: "  hello  ", conf: 0.9}), WithTextAnalyzer(rec.analyze))

	report := p.AnalyzeImage(context.Background(), []byte("img"))
	assert.Empty(t, rec.calls)
	assert.True(t, report.Image.TextSkipped)
	assert.InDelta(t, 0.9, report.Image.OCRConfidence, 1e-9)
}

func TestOCRTextIsAnalyzed(t *testing.T) {
	text := "Aadhaar Number: 1234 5678 9012"
	rec := &textRecorder{sets: [][]risk.Finding{{
		risk.NewFinding(risk.Cat(risk.ClassNationalID, "aadhaar"), "1234 5678 9012", 1, risk.SourcePatternLibrary),
	}}}
	states, hook := stateRecorder()
	p := New(WithOCR(stubOCR{text: text, conf: 0.8}), WithTextAnalyzer(rec.analyze), hook)

	report := p.AnalyzeImage(context.Background(), []byte("img"))
	assert.Equal(t, []string{text}, rec.calls)
	assert.Equal(t, text, report.SourceText)
	assert.False(t, report.Image.TextSkipped)
	assert.Equal(t, risk.SeverityCritical, report.OverallSeverity)
	assert.Equal(t, []State{StateExtracting, StateTextAnalysis, StateObjectAndFaceAnalysis, StateAggregated, StateDone}, *states)
}

func TestOCRFailureKeepsObjectFindings(t *testing.T) {
	p := New(
		WithOCR(stubOCR{err: errors.New("quota exceeded")}),
		WithObjectDetector(stubObjects{labels: []analyzer.Label{{Label: "Passport", Score: 0.93}}}),
		WithTextAnalyzer(func(context.Context, string) [][]risk.Finding {
			t.Fatal("text analysis must not run after OCR failure")
			return nil
		}),
	)

	report := p.AnalyzeImage(context.Background(), []byte("img"))
	assert.Equal(t, string(StateFailed), report.Image.State)
	require.Len(t, report.Image.Errors, 1)
	assert.Contains(t, report.Image.Errors[0], "ocr")
	assert.Contains(t, report.Image.Errors[0], "quota exceeded")

	require.Len(t, report.Findings, 1)
	assert.Equal(t, risk.Cat(risk.ClassDocument, "passport"), report.Findings[0].Category)
	assert.Equal(t, risk.SeverityCritical, report.OverallSeverity)
}

func TestDetectorFailuresArePartial(t *testing.T) {
	p := New(
		WithObjectDetector(stubObjects{err: errors.New("503")}),
		WithFaceDetector(stubFaces{n: 1}),
	)
	report := p.AnalyzeImage(context.Background(), []byte("img"))
	assert.Equal(t, string(StateFailed), report.Image.State)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, risk.ClassFaceDetected, report.Findings[0].Category.Class)
}

func TestUnavailableDetectorIsNotAFailure(t *testing.T) {
	p := New(WithFaceDetector(stubFaces{err: analyzer.ErrAnalyzerUnavailable}))
	report := p.AnalyzeImage(context.Background(), []byte("img"))
	assert.Equal(t, string(StateDone), report.Image.State)
	assert.Empty(t, report.Image.Errors)
}

func TestCancelledContextFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := New().AnalyzeImage(ctx, []byte("img"))
	assert.Equal(t, string(StateFailed), report.Image.State)
	assert.Equal(t, risk.SeverityNone, report.OverallSeverity)
}

func TestObjectFindings(t *testing.T) {
	findings := ObjectFindings([]analyzer.Label{
		{Label: "ID card", Score: 0.9},
		{Label: "book", Score: 0.8},
		{Label: "Book", Score: 0.95},
		{Label: "bridge", Score: 0.99},
		{Label: "paper", Score: 0.3},
		{Label: "person", Score: 0.99},
	})
	require.Len(t, findings, 2)

	assert.Equal(t, risk.Cat(risk.ClassDocument, "id"), findings[0].Category)
	assert.Equal(t, risk.SeverityCritical, findings[0].Severity)
	assert.Equal(t, risk.SourceObjectDetector, findings[0].Source)

	assert.Equal(t, risk.Cat(risk.ClassDocument, "book"), findings[1].Category)
	assert.Equal(t, risk.SeverityHigh, findings[1].Severity)
	assert.InDelta(t, 0.95, findings[1].Confidence, 1e-9, "best score per subtype wins")
}

func TestFaceFinding(t *testing.T) {
	_, ok := FaceFinding(0)
	assert.False(t, ok)

	f, ok := FaceFinding(3)
	require.True(t, ok)
	assert.Equal(t, "3 faces", f.MatchedText)
	assert.Equal(t, 3, f.Count)
	assert.Equal(t, risk.SeverityMedium, f.Severity)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateExtracting, true},
		{StateExtracting, StateObjectAndFaceAnalysis, true},
		{StateExtracting, StateTextAnalysis, true},
		{StateTextAnalysis, StateExtracting, false},
		{StateIdle, StateDone, false},
		{StateTextAnalysis, StateFailed, true},
		{StateDone, StateFailed, false},
		{StateFailed, StateDone, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
	assert.True(t, StateDone.Terminal())
	assert.False(t, StateAggregated.Terminal())
}
