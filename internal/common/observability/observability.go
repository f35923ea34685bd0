package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Observability bundles the otel meter and tracer of one process.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	unitCounter    otelmetric.Int64Counter
	unitDuration   otelmetric.Float64Histogram
	windowCounter  otelmetric.Int64Counter
}

type options struct {
	processors []sdktrace.SpanProcessor
}

type Option func(*options)

// WithSpanProcessor attaches an extra span processor, e.g. a tracetest.SpanRecorder.
func WithSpanProcessor(sp sdktrace.SpanProcessor) Option {
	return func(o *options) { o.processors = append(o.processors, sp) }
}

func New(serviceName string, opts ...Option) *Observability {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	for _, sp := range o.processors {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(sp))
	}
	tracerProvider := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tracerProvider)

	obs := &Observability{
		tracerProvider: tracerProvider,
		tracer:         tracerProvider.Tracer(serviceName),
	}

	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return obs
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter), metric.WithResource(res))
	otel.SetMeterProvider(provider)
	meter := provider.Meter(serviceName)

	obs.meterProvider = provider
	obs.unitCounter, _ = meter.Int64Counter(
		"signup.units.processed",
		otelmetric.WithDescription("Number of signup units of work processed"),
	)
	obs.unitDuration, _ = meter.Float64Histogram(
		"signup.units.duration",
		otelmetric.WithDescription("Signup unit of work duration"),
		otelmetric.WithUnit("ms"),
	)
	obs.windowCounter, _ = meter.Int64Counter(
		"signup.windows.processed",
		otelmetric.WithDescription("Number of windows processed"),
	)
	return obs
}

// StartWindow opens the span that covers one window of the run.
func (o *Observability) StartWindow(ctx context.Context, window, start, size int) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, "signup.window", trace.WithAttributes(
		attribute.Int("window", window),
		attribute.Int("start", start),
		attribute.Int("size", size),
	))
}

// StartUnit opens the span that covers one record's signup flow.
func (o *Observability) StartUnit(ctx context.Context, index int, worker string) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, "signup.unit", trace.WithAttributes(
		attribute.Int("index", index),
		attribute.String("worker", worker),
	))
}

func (o *Observability) RecordUnit(ctx context.Context, status string, duration time.Duration) {
	attrs := otelmetric.WithAttributes(attribute.String("status", status))
	if o.unitCounter != nil {
		o.unitCounter.Add(ctx, 1, attrs)
	}
	if o.unitDuration != nil {
		o.unitDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) RecordWindow(ctx context.Context, status string) {
	if o.windowCounter != nil {
		o.windowCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("status", status)))
	}
}

func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
}
