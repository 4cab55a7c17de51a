package otel

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup("safepost", "dev", false)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestTracerSpansWithoutSetup(t *testing.T) {
	_, span := Tracer("github.com/Aafreen2203/SafePostAI/internal/test").Start(context.Background(), "noop")
	defer span.End()
	assert.False(t, span.SpanContext().IsValid())
}

func TestTraceContextFromNoSpan(t *testing.T) {
	traceID, spanID := TraceContextFrom(context.Background())
	assert.Empty(t, traceID)
	assert.Empty(t, spanID)
}

func TestLogTraceFieldsNoPanic(t *testing.T) {
	logger := zerolog.New(io.Discard)
	logger.Info().Func(LogTraceFields(context.Background())).Msg("x")
}

func TestLLMAttributes(t *testing.T) {
	attrs := LLMRequestAttributes("openai", "gpt-3.5-turbo", 0.1, 500)
	require.Len(t, attrs, 4)
	assert.Equal(t, "openai", attrs[0].Value.AsString())
	assert.Equal(t, int64(500), attrs[3].Value.AsInt64())
	assert.Len(t, LLMUsageAttributes(10, 20), 2)
}

func TestRecordMetricsNoProvider(t *testing.T) {
	RecordAnalyzer(context.Background(), "pattern", "ok", 3*time.Millisecond)
	RecordScan(context.Background(), "text", "high")
}

func TestMiddleware(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/v1/history/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/boom", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/history/abc", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
