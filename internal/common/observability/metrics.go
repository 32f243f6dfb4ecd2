package observability

import (
	"context"
	"fmt"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Observability records analysis engine calls through an OpenTelemetry meter.
// A nil *Observability records nothing.
type Observability struct {
	meterProvider  *metric.MeterProvider
	meter          otelmetric.Meter
	engineCalls    otelmetric.Int64Counter
	engineDuration otelmetric.Float64Histogram
}

// New exports the meter through a Prometheus registerer, so the values show
// up on the same /metrics endpoint as the promauto collectors.
func New(serviceName string, reg promclient.Registerer) (*Observability, error) {
	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	obs := NewWithReader(serviceName, exporter)
	otel.SetMeterProvider(obs.meterProvider)
	return obs, nil
}

// NewWithReader builds the meter on an arbitrary reader.
func NewWithReader(serviceName string, reader metric.Reader) *Observability {
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	provider := metric.NewMeterProvider(metric.WithReader(reader), metric.WithResource(res))
	meter := provider.Meter(serviceName)

	engineCalls, _ := meter.Int64Counter(
		"engine.calls",
		otelmetric.WithDescription("Number of analysis engine attempts"),
	)

	engineDuration, _ := meter.Float64Histogram(
		"engine.duration",
		otelmetric.WithDescription("Analysis engine attempt duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider:  provider,
		meter:          meter,
		engineCalls:    engineCalls,
		engineDuration: engineDuration,
	}
}

// RecordEngineCall records one attempt against an engine.
func (o *Observability) RecordEngineCall(ctx context.Context, engine, kind, status string, duration time.Duration) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("engine", engine),
		attribute.String("kind", kind),
		attribute.String("status", status),
	)
	if o.engineCalls != nil {
		o.engineCalls.Add(ctx, 1, attrs)
	}
	if o.engineDuration != nil {
		o.engineDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil || o.meterProvider == nil {
		return nil
	}
	return o.meterProvider.Shutdown(ctx)
}
