package scan

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aafreen2203/SafePostAI/internal/analyzer"
	"github.com/Aafreen2203/SafePostAI/internal/content"
	"github.com/Aafreen2203/SafePostAI/internal/events"
	"github.com/Aafreen2203/SafePostAI/internal/history"
	"github.com/Aafreen2203/SafePostAI/internal/pipeline"
	"github.com/Aafreen2203/SafePostAI/internal/risk"
	"github.com/Aafreen2203/SafePostAI/internal/testutil"
	"github.com/Aafreen2203/SafePostAI/internal/verdict"
)

type countingAnalyzer struct {
	inner     Analyzer
	mu        sync.Mutex
	text      int
	image     int
	lastCreds map[string]string
}

func (c *countingAnalyzer) AnalyzeText(ctx context.Context, text string, cfg pipeline.AnalysisConfig) *risk.Report {
	c.mu.Lock()
	c.text++
	c.lastCreds = cfg.Credentials
	c.mu.Unlock()
	return c.inner.AnalyzeText(ctx, text, cfg)
}

func (c *countingAnalyzer) AnalyzeImage(ctx context.Context, img []byte, cfg pipeline.AnalysisConfig) *risk.Report {
	c.mu.Lock()
	c.image++
	c.mu.Unlock()
	return c.inner.AnalyzeImage(ctx, img, cfg)
}

type memCache struct {
	mu      sync.Mutex
	reports map[string]*risk.Report
	failGet bool
}

func newMemCache() *memCache { return &memCache{reports: map[string]*risk.Report{}} }

func (m *memCache) Get(_ context.Context, key string) (*risk.Report, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, false, errors.New("redis down")
	}
	r, ok := m.reports[key]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	return &cp, true, nil
}

func (m *memCache) Set(_ context.Context, key string, r *risk.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.reports[key] = &cp
	return nil
}

func (m *memCache) Close() error { return nil }

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.ScanEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.ScanEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() {}

type staticCreds struct {
	values map[string]string
	err    error
}

func (s staticCreds) GetMany(context.Context, []string) (map[string]string, error) {
	return s.values, s.err
}

type fixture struct {
	svc      *Service
	analyzer *countingAnalyzer
	cache    *memCache
	events   *recordingPublisher
	history  *history.Store
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()

	engine, err := verdict.NewEngine(ctx)
	require.NoError(t, err)
	store := testutil.NewTestHistoryStore(t)

	f := &fixture{
		analyzer: &countingAnalyzer{inner: pipeline.New(pipeline.WithRemotes(&pipeline.StaticRemotes{}))},
		cache:    newMemCache(),
		events:   &recordingPublisher{},
		history:  store,
	}
	base := []Option{WithHistory(store), WithCache(f.cache), WithEvents(f.events)}
	f.svc = NewService(f.analyzer, engine, pipeline.AnalysisConfig{PreferredRemoteProvider: pipeline.RemoteNone},
		append(base, opts...)...)
	return f
}

func TestScanTextRecordsAndPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.ScanText(ctx, "Email me at jane.doe@example.com")
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, risk.SeverityHigh, res.Report.OverallSeverity)
	assert.Equal(t, verdict.ActionBlock, res.Verdict.Action)

	rec, err := f.history.Get(ctx, res.Report.ID)
	require.NoError(t, err)
	assert.Equal(t, KindText, rec.Kind)
	assert.Equal(t, verdict.ActionBlock, rec.Verdict)
	assert.Contains(t, rec.Categories, "email")

	require.Len(t, f.events.events, 1)
	assert.Equal(t, res.Report.ID, f.events.events[0].ReportID)
	assert.Equal(t, verdict.ActionBlock, f.events.events[0].Verdict)
}

func TestScanTextServesRepeatsFromCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.ScanText(ctx, "call 9876543210")
	require.NoError(t, err)
	second, err := f.svc.ScanText(ctx, "call 9876543210")
	require.NoError(t, err)

	assert.Equal(t, 1, f.analyzer.text)
	assert.True(t, second.Cached)
	assert.NotEqual(t, first.Report.ID, second.Report.ID, "each scan gets its own id")
	assert.Equal(t, first.Report.Findings, second.Report.Findings)
	assert.Equal(t, first.Verdict.Action, second.Verdict.Action)

	records, err := f.history.List(ctx, history.Filter{})
	require.NoError(t, err)
	assert.Len(t, records, 2)
	require.Len(t, f.events.events, 2)
	assert.True(t, f.events.events[1].Cached)
}

func TestScanTextCacheFailureFallsBack(t *testing.T) {
	f := newFixture(t)
	f.cache.failGet = true

	res, err := f.svc.ScanText(context.Background(), "hello there")
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, 1, f.analyzer.text)
	assert.Equal(t, verdict.ActionAllow, res.Verdict.Action)
}

func TestCredentialsReachTheAnalyzer(t *testing.T) {
	f := newFixture(t, WithCredentials(staticCreds{values: map[string]string{"openai": "sk-test"}}))
	_, err := f.svc.ScanText(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"openai": "sk-test"}, f.analyzer.lastCreds)
}

func TestCredentialErrorStillScans(t *testing.T) {
	f := newFixture(t, WithCredentials(staticCreds{err: errors.New("vault locked")}))
	res, err := f.svc.ScanText(context.Background(), "mail a@b.com")
	require.NoError(t, err)
	assert.Equal(t, risk.SeverityHigh, res.Report.OverallSeverity)
	assert.Empty(t, f.analyzer.lastCreds)
}

func TestScanTextUsesLanguageModel(t *testing.T) {
	ctx := context.Background()
	engine, err := verdict.NewEngine(ctx)
	require.NoError(t, err)
	model := &testutil.MockProvider{Content: testutil.SensitiveItemsJSON("high",
		testutil.SensitiveItem{Type: "password", Value: "hunter2", Confidence: 0.95, Severity: "high"})}
	orch := pipeline.New(pipeline.WithRemotes(&pipeline.StaticRemotes{
		LanguageModel: analyzer.NewPromptAdapter(model, "test-model"),
	}))
	svc := NewService(orch, engine, pipeline.AnalysisConfig{PreferredRemoteProvider: pipeline.RemoteLanguageModel})

	res, err := svc.ScanText(ctx, "the wifi password is hunter2")
	require.NoError(t, err)
	require.Len(t, model.Requests(), 1)
	assert.Equal(t, "test-model", model.Requests()[0].Model)

	var fromModel []risk.Finding
	for _, f := range res.Report.Findings {
		if f.Source == risk.SourceLanguageModel {
			fromModel = append(fromModel, f)
		}
	}
	require.Len(t, fromModel, 1)
	assert.Equal(t, risk.Cat(risk.ClassEntity, "credential"), fromModel[0].Category)
	assert.Equal(t, "hunter2", fromModel[0].MatchedText)
	assert.Equal(t, risk.SeverityHigh, fromModel[0].Severity, "the model's rating raises the table severity")
	assert.Equal(t, risk.SeverityHigh, res.Report.OverallSeverity)
}

func TestScanTextModelFindingMergesWithPatternName(t *testing.T) {
	ctx := context.Background()
	engine, err := verdict.NewEngine(ctx)
	require.NoError(t, err)
	model := &testutil.MockProvider{Content: testutil.SensitiveItemsJSON("high",
		testutil.SensitiveItem{Type: "full_name", Value: "Priya Sharma", Confidence: 0.95, Severity: "high"})}
	orch := pipeline.New(pipeline.WithRemotes(&pipeline.StaticRemotes{
		LanguageModel: analyzer.NewPromptAdapter(model, "test-model"),
	}))
	svc := NewService(orch, engine, pipeline.AnalysisConfig{PreferredRemoteProvider: pipeline.RemoteLanguageModel})

	res, err := svc.ScanText(ctx, "Meet Priya Sharma tomorrow")
	require.NoError(t, err)

	// The pattern match is more confident and represents the merged group;
	// the model's high rating still sets the overall severity.
	require.Len(t, res.Report.Findings, 1)
	assert.Equal(t, risk.SourcePatternLibrary, res.Report.Findings[0].Source)
	assert.Equal(t, "Priya Sharma", res.Report.Findings[0].MatchedText)
	assert.Equal(t, risk.SeverityHigh, res.Report.OverallSeverity)
}

func TestScanImageRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ScanImage(context.Background(), "data:image/png;base64,@@@")
	assert.ErrorIs(t, err, content.ErrInvalidImage)
	assert.Equal(t, 0, f.analyzer.image)
}

func TestScanImageWithoutCollaborators(t *testing.T) {
	f := newFixture(t)
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

	res, err := f.svc.ScanImage(context.Background(), base64.StdEncoding.EncodeToString(png))
	require.NoError(t, err)
	assert.Equal(t, 1, f.analyzer.image)
	assert.Equal(t, risk.SeverityNone, res.Report.OverallSeverity)
	assert.Equal(t, verdict.ActionAllow, res.Verdict.Action)
	require.NotNil(t, res.Report.Image)
}

func TestCacheable(t *testing.T) {
	assert.True(t, cacheable(risk.EmptyReport("x")))
	r := risk.EmptyReport("")
	r.Image = &risk.ImageSignals{State: "done"}
	assert.True(t, cacheable(r))
	r.Image.Errors = []string{"ocr: timeout"}
	assert.False(t, cacheable(r))
}
