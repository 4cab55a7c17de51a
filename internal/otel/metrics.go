package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/Aafreen2203/SafePostAI/internal/otel"

var (
	analyzerLatency   metric.Float64Histogram
	verdictCounter    metric.Int64Counter
	metricsOnce       sync.Once
	metricsRegistered bool
)

func initMetrics() {
	meter := otel.Meter(meterName)
	var err error
	analyzerLatency, err = meter.Float64Histogram(
		"safepost.analyzer.duration",
		metric.WithDescription("Time spent in one analyzer invocation"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return
	}
	verdictCounter, err = meter.Int64Counter(
		"safepost.scans",
		metric.WithDescription("Completed scans by kind and overall severity"),
	)
	if err != nil {
		return
	}
	metricsRegistered = true
}

// RecordAnalyzer records the latency and outcome of one analyzer call.
func RecordAnalyzer(ctx context.Context, name, outcome string, elapsed time.Duration) {
	metricsOnce.Do(initMetrics)
	if !metricsRegistered {
		return
	}
	analyzerLatency.Record(ctx, float64(elapsed.Microseconds())/1000.0, metric.WithAttributes(
		attribute.String("analyzer", name),
		attribute.String("outcome", outcome),
	))
}

// RecordScan counts a completed scan.
func RecordScan(ctx context.Context, kind, severity string) {
	metricsOnce.Do(initMetrics)
	if !metricsRegistered {
		return
	}
	verdictCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("severity", severity),
	))
}
