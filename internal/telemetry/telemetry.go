// Package telemetry implements corekit.Telemetry on top of the
// OpenTelemetry SDK: one long-lived provider per process, wrapping a
// tracer and a meter, safe for concurrent use. Only the stdout trace
// exporter is wired (see DESIGN.md for why no OTLP exporter is pulled
// in), so Provider writes spans to the io.Writer in Config (io.Discard
// when none is given) rather than to a collector;
// swapping in an OTLP exporter later is a one-function change behind
// the same corekit.Telemetry interface.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/answer42/agentcore/internal/corekit"
)

// Provider implements corekit.Telemetry. Construct one per process with
// New and share it across every Runtime/Orchestrator that wants spans.
type Provider struct {
	tracer trace.Tracer
	tp     *sdktrace.TracerProvider
	mp     *sdkmetric.MeterProvider
	reader *sdkmetric.ManualReader

	mu        sync.Mutex
	instSum   map[string]metricInstrument
	serviceNm string
}

type metricInstrument struct {
	name string
}

// Config controls where spans are written and how the process identifies
// itself in exported telemetry.
type Config struct {
	ServiceName  string
	SamplingRate float64 // 0..1; 1 samples everything; 0 (unset) is treated as 1
	// Writer receives one JSON line per finished span. Defaults to
	// io.Discard if nil, which still exercises the full SDK pipeline
	// (batching, resource tagging) without producing log noise in tests.
	Writer io.Writer
}

// New builds a Provider. A zero-value SamplingRate defaults to 1.0
// (sample everything) — a service this small doesn't yet need head
// sampling.
func New(cfg Config) (*Provider, error) {
	if cfg.ServiceName == "" {
		return nil, fmt.Errorf("telemetry: ServiceName is required")
	}
	if cfg.SamplingRate == 0 {
		cfg.SamplingRate = 1.0
	}
	writer := cfg.Writer
	if writer == nil {
		writer = io.Discard
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(writer))
	if err != nil {
		return nil, fmt.Errorf("telemetry: building trace exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: building resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
	)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)

	return &Provider{
		tracer:    tp.Tracer("agentcore"),
		tp:        tp,
		mp:        mp,
		reader:    reader,
		instSum:   make(map[string]metricInstrument),
		serviceNm: cfg.ServiceName,
	}, nil
}

// StartSpan satisfies corekit.Telemetry.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, corekit.Span) {
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric satisfies corekit.Telemetry, recording value against a
// Float64Counter named name. The counter is requested from the meter on
// every call and is not cached here; instSum records only which names
// have been seen.
func (p *Provider) RecordMetric(name string, value float64, labels map[string]string) {
	p.mu.Lock()
	_, exists := p.instSum[name]
	if !exists {
		p.instSum[name] = metricInstrument{name: name}
	}
	p.mu.Unlock()

	counter, err := p.mp.Meter("agentcore").Float64Counter(name)
	if err != nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	counter.Add(context.Background(), value, metric.WithAttributes(attrs...))
}

// Shutdown flushes any buffered spans/metrics and releases exporter
// resources. Call once, at process shutdown.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.tp.Shutdown(ctx); err != nil {
		return err
	}
	return p.mp.Shutdown(ctx)
}

// otelSpan adapts an OpenTelemetry trace.Span to corekit.Span.
type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	s.span.SetAttributes(toAttribute(key, value))
}

func (s *otelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
}

func toAttribute(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
