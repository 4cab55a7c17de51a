package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aafreen2203/SafePostAI/internal/history"
	"github.com/Aafreen2203/SafePostAI/internal/pipeline"
	"github.com/Aafreen2203/SafePostAI/internal/requestctx"
	"github.com/Aafreen2203/SafePostAI/internal/risk"
	"github.com/Aafreen2203/SafePostAI/internal/scan"
	"github.com/Aafreen2203/SafePostAI/internal/testutil"
	"github.com/Aafreen2203/SafePostAI/internal/verdict"
)

func newTestStack(t *testing.T) (*scan.Service, *history.Store) {
	t.Helper()
	engine, err := verdict.NewEngine(context.Background())
	require.NoError(t, err)
	store := testutil.NewTestHistoryStore(t)

	orch := pipeline.New(pipeline.WithRemotes(&pipeline.StaticRemotes{}))
	svc := scan.NewService(orch, engine,
		pipeline.AnalysisConfig{PreferredRemoteProvider: pipeline.RemoteNone},
		scan.WithHistory(store))
	return svc, store
}

func newTestServer(t *testing.T, opts ...Option) (*httptest.Server, *history.Store) {
	t.Helper()
	svc, store := newTestStack(t)
	srv := httptest.NewServer(NewServer(svc, store, opts...).Routes())
	t.Cleanup(srv.Close)
	return srv, store
}

func do(t *testing.T, method, url, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, WithVersion("1.2.3"))

	resp := do(t, http.MethodGet, srv.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	var body map[string]interface{}
	decode(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "1.2.3", body["version"])
	assert.NotContains(t, body, "components")
}

type stubChecker struct {
	name string
	err  error
}

func (c stubChecker) Name() string                { return c.name }
func (c stubChecker) Check(context.Context) error { return c.err }

func TestHealthDetailReportsDegradedComponents(t *testing.T) {
	srv, _ := newTestServer(t, WithCheckers(
		stubChecker{name: "history"},
		stubChecker{name: "cache", err: errors.New("connection refused")},
	))

	resp := do(t, http.MethodGet, srv.URL+"/health?detail=true", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Components["history"])
	assert.Equal(t, "error: connection refused", body.Components["cache"])
}

func TestAnalyzeTextThenHistory(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/v1/analyze/text", `{"text":"reach me at jane.doe@example.com"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res scan.Result
	decode(t, resp, &res)
	require.NotNil(t, res.Report)
	assert.Equal(t, risk.SeverityHigh, res.Report.OverallSeverity)
	assert.Equal(t, verdict.ActionBlock, res.Verdict.Action)
	id := res.Report.ID

	resp = do(t, http.MethodGet, srv.URL+"/v1/history?kind=text", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Records []history.Record `json:"records"`
		Count   int              `json:"count"`
	}
	decode(t, resp, &list)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, id, list.Records[0].ID)

	resp = do(t, http.MethodGet, srv.URL+"/v1/history/"+id, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rec history.Record
	decode(t, resp, &rec)
	assert.False(t, rec.Overridden)

	resp = do(t, http.MethodPost, srv.URL+"/v1/history/"+id+"/override", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &rec)
	assert.True(t, rec.Overridden)

	resp = do(t, http.MethodGet, srv.URL+"/v1/history/"+id+"/verify", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var verify map[string]interface{}
	decode(t, resp, &verify)
	assert.Equal(t, true, verify["valid"])

	resp = do(t, http.MethodGet, srv.URL+"/v1/analytics?days=7", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var a history.Analytics
	decode(t, resp, &a)
	assert.Equal(t, 1, a.TotalScans)
	assert.Equal(t, 1, a.RiskyPosts)
	assert.Equal(t, 1, a.Overrides)
	require.Len(t, a.DailyActivity, 1)
	assert.Equal(t, 1, a.DailyActivity[0].Risky)
}

func TestExport(t *testing.T) {
	srv, _ := newTestServer(t,
		WithVersion("1.2.3"),
		WithSettings(map[string]interface{}{"severity_floor": "low", "secrets_key": "********"}))

	resp := do(t, http.MethodPost, srv.URL+"/v1/analyze/text", `{"text":"reach me at jane.doe@example.com"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/v1/export", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "safepost-export.json")
	var e history.Export
	decode(t, resp, &e)
	assert.Equal(t, "1.2.3", e.Version)
	assert.Equal(t, "low", e.Settings["severity_floor"])
	require.Len(t, e.Records, 1)
	assert.Equal(t, risk.SeverityHigh, e.Records[0].OverallSeverity)
	require.NotNil(t, e.Analytics)
	assert.Equal(t, 1, e.Analytics.RiskyPosts)
	assert.False(t, e.ExportedAt.IsZero())
}

func TestRequestErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"malformed json", http.MethodPost, "/v1/analyze/text", `{"text":`, http.StatusBadRequest, "invalid_request"},
		{"empty image", http.MethodPost, "/v1/analyze/image", `{"image":""}`, http.StatusBadRequest, "invalid_request"},
		{"undecodable image", http.MethodPost, "/v1/analyze/image", `{"image":"@@not-base64@@"}`, http.StatusBadRequest, "invalid_image"},
		{"unknown record", http.MethodGet, "/v1/history/nope", "", http.StatusNotFound, "not_found"},
		{"unknown record verify", http.MethodGet, "/v1/history/nope/verify", "", http.StatusNotFound, "not_found"},
		{"unknown record override", http.MethodPost, "/v1/history/nope/override", "", http.StatusNotFound, "not_found"},
		{"bad limit", http.MethodGet, "/v1/history?limit=-1", "", http.StatusBadRequest, "invalid_request"},
		{"bad kind", http.MethodGet, "/v1/history?kind=video", "", http.StatusBadRequest, "invalid_request"},
		{"bad since", http.MethodGet, "/v1/history?since=yesterday", "", http.StatusBadRequest, "invalid_request"},
		{"bad days", http.MethodGet, "/v1/analytics?days=abc", "", http.StatusBadRequest, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, tt.method, srv.URL+tt.path, tt.body, nil)
			assert.Equal(t, tt.status, resp.StatusCode)
			var body map[string]string
			decode(t, resp, &body)
			assert.Equal(t, tt.code, body["error"])
		})
	}
}

func TestOversizedImageBody(t *testing.T) {
	svc, store := newTestStack(t)
	h := NewServer(svc, store, WithMaxImageMB(1)).Routes()
	huge := `{"image":"` + strings.Repeat("A", 2<<20) + `"}`

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze/image", strings.NewReader(huge))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "payload_too_large")
}

type callerScanner struct {
	caller string
}

func (c *callerScanner) ScanText(ctx context.Context, _ string) (*scan.Result, error) {
	c.caller = requestctx.Caller(ctx)
	return &scan.Result{Report: risk.EmptyReport(""), Verdict: &verdict.Verdict{Action: verdict.ActionAllow}}, nil
}

func (c *callerScanner) ScanImage(context.Context, string) (*scan.Result, error) {
	return nil, errors.New("not used")
}

func TestAuth(t *testing.T) {
	_, store := newTestStack(t)
	scanner := &callerScanner{}
	srv := httptest.NewServer(NewServer(scanner, store,
		WithAPIKeys(map[string]string{"key-abc": "extension"})).Routes())
	defer srv.Close()

	tests := []struct {
		name    string
		headers map[string]string
		status  int
	}{
		{"missing key", nil, http.StatusUnauthorized},
		{"wrong key", map[string]string{"X-SafePost-Key": "nope"}, http.StatusUnauthorized},
		{"header key", map[string]string{"X-SafePost-Key": "key-abc"}, http.StatusOK},
		{"bearer key", map[string]string{"Authorization": "Bearer key-abc"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scanner.caller = ""
			resp := do(t, http.MethodPost, srv.URL+"/v1/analyze/text", `{"text":"hi"}`, tt.headers)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.status == http.StatusOK {
				assert.Equal(t, "extension", scanner.caller)
			}
		})
	}

	// health stays open
	resp := do(t, http.MethodGet, srv.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAnonymousCallerWithoutKeys(t *testing.T) {
	_, store := newTestStack(t)
	scanner := &callerScanner{}
	srv := httptest.NewServer(NewServer(scanner, store).Routes())
	defer srv.Close()

	resp := do(t, http.MethodPost, srv.URL+"/v1/analyze/text", `{"text":"hi"}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, AnonymousCaller, scanner.caller)
}

func TestRateLimitMiddleware(t *testing.T) {
	srv, _ := newTestServer(t, WithRateLimiter(NewRateLimiter(0, 1)))

	first := do(t, http.MethodPost, srv.URL+"/v1/analyze/text", `{"text":"hi"}`, nil)
	assert.Equal(t, http.StatusOK, first.StatusCode)
	second := do(t, http.MethodPost, srv.URL+"/v1/analyze/text", `{"text":"hi"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	assert.Equal(t, "1", second.Header.Get("Retry-After"))
}

func TestRateLimiterIsPerCaller(t *testing.T) {
	rl := NewRateLimiter(0, 1)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	global := NewRateLimiter(1, 0)
	assert.True(t, global.Allow("a"))
	assert.False(t, global.Allow("b"))
}

func TestForwardedForHeader(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		wantSecond int
	}{
		{"ignored by default", false, http.StatusTooManyRequests},
		{"honoured behind proxy", true, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t,
				WithRateLimiter(NewRateLimiter(0, 1)),
				WithTrustProxy(tt.trustProxy))

			first := do(t, http.MethodPost, srv.URL+"/v1/analyze/text", `{"text":"hi"}`,
				map[string]string{"X-Forwarded-For": "203.0.113.1"})
			assert.Equal(t, http.StatusOK, first.StatusCode)
			second := do(t, http.MethodPost, srv.URL+"/v1/analyze/text", `{"text":"hi"}`,
				map[string]string{"X-Forwarded-For": "203.0.113.2"})
			assert.Equal(t, tt.wantSecond, second.StatusCode)
		})
	}
}

func TestRateLimiterThrottledCallerKeepsGlobalTokens(t *testing.T) {
	rl := NewRateLimiter(2, 1)
	assert.True(t, rl.Allow("noisy"))
	for i := 0; i < 5; i++ {
		assert.False(t, rl.Allow("noisy"))
	}
	assert.True(t, rl.Allow("quiet"))
}

func TestRateLimiterEvictsCallers(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		advance time.Duration
		want    int
	}{
		{"least recently seen dropped when full", time.Second, 3},
		{"idle buckets swept", DefaultCallerIdle + time.Second, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := clock
			rl := NewRateLimiter(0, 1)
			rl.maxCallers = 3
			rl.now = func() time.Time { return now }

			for _, c := range []string{"a", "b", "c"} {
				require.True(t, rl.Allow(c))
				now = now.Add(time.Millisecond)
			}
			now = now.Add(tt.advance)
			assert.True(t, rl.Allow("d"))
			assert.Equal(t, tt.want, rl.Callers())

			rl.mu.Lock()
			_, kept := rl.callers["a"]
			rl.mu.Unlock()
			assert.False(t, kept, "oldest caller should be evicted")
		})
	}
}

func TestRateLimiterStaysBounded(t *testing.T) {
	rl := NewRateLimiter(0, 1)
	rl.maxCallers = 10
	for i := 0; i < 100; i++ {
		rl.Allow(fmt.Sprintf("10.0.%d.%d", i/256, i%256))
	}
	assert.LessOrEqual(t, rl.Callers(), 10)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t,
		WithAPIKeys(map[string]string{"k": "ext"}),
		WithCORSOrigins([]string{"chrome-extension://abc"}))

	resp := do(t, http.MethodOptions, srv.URL+"/v1/analyze/text", "", map[string]string{
		"Origin": "chrome-extension://abc",
	})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "chrome-extension://abc", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "X-SafePost-Key")

	other := do(t, http.MethodOptions, srv.URL+"/v1/analyze/text", "", map[string]string{
		"Origin": "https://evil.example",
	})
	assert.Empty(t, other.Header.Get("Access-Control-Allow-Origin"))
}
