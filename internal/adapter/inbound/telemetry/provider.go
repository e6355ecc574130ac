// Package telemetry is the optional external telemetry collaborator
// spec.md §1 describes: it implements gateway.Observer over OpenTelemetry
// spans/counters and a handful of Prometheus gauges, the way
// internal/adapter/inbound/gatewayhttp/metrics.go wires request metrics,
// but for the pipeline's own internal gates rather than the transport.
// Nothing in internal/gateway imports this package; wiring it in is
// strictly additive, matching the "telemetry is pluggable, not owned by
// the core" framing.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/Sentinel-Gate/Sentinelgate/internal/gateway"

// Provider owns the tracer and meter providers backing a Recorder. The
// stdout exporters are the right default for a core library that does not
// own telemetry policy (spec.md §1): an operator wiring this into a real
// collector swaps the exporter, not the instrumentation.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider

	Tracer trace.Tracer
	Meter  metric.Meter
}

// NewProvider builds a Provider with stdout span/metric exporters. Callers
// that want a different backend (OTLP, a vendor SDK) can swap the
// exporters here without touching Recorder.
func NewProvider(ctx context.Context) (*Provider, error) {
	traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("telemetry: create trace exporter: %w", err)
	}
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter))
	otel.SetTracerProvider(tracerProvider)

	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
	)
	otel.SetMeterProvider(meterProvider)

	return &Provider{
		tracerProvider: tracerProvider,
		meterProvider:  meterProvider,
		Tracer:         tracerProvider.Tracer(instrumentationName),
		Meter:          meterProvider.Meter(instrumentationName),
	}, nil
}

// Shutdown flushes and stops both providers. Safe to call once during
// graceful shutdown, mirroring the Stop() convention every other
// goroutine-owning component in this module follows.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutdown tracer provider: %w", err)
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutdown meter provider: %w", err)
	}
	return nil
}
