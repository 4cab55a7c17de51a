package otel

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// TraceContextFrom returns the trace and span ids of the span in ctx, or two
// empty strings when there is none.
func TraceContextFrom(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}

// LogTraceFields returns a zerolog hook for Event.Func that adds trace_id and
// span_id when ctx carries a valid span:
//
//	log.Warn().Str("adapter", name).Func(otel.LogTraceFields(ctx)).Msg("analyzer failed")
func LogTraceFields(ctx context.Context) func(e *zerolog.Event) {
	return func(e *zerolog.Event) {
		traceID, spanID := TraceContextFrom(ctx)
		if traceID != "" {
			e.Str("trace_id", traceID)
		}
		if spanID != "" {
			e.Str("span_id", spanID)
		}
	}
}
