// Package otel wires OpenTelemetry tracing and metrics for SafePost and
// provides the span attribute keys shared by analyzers and model clients.
package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// ShutdownFunc flushes and stops the exporters installed by Setup.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Setup points the global tracer and meter providers at stdout exporters.
// Disabled, it leaves the no-op providers in place.
func Setup(serviceName, version string, enabled bool) (ShutdownFunc, error) {
	if !enabled {
		return noopShutdown, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OTel resource: %w", err)
	}

	tp, err := newTracerProvider(res)
	if err != nil {
		return nil, err
	}
	mp, err := newMeterProvider(res)
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return nil, err
	}
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

func newTracerProvider(res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exp),
	), nil
}

// newMeterProvider exports the analyzer latency histogram and scan counter.
func newMeterProvider(res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	exp, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
	), nil
}

// Tracer returns a tracer for the given package path.
func Tracer(pkg string) trace.Tracer {
	return otel.Tracer(pkg)
}
