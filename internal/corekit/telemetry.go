package corekit

import "context"

// Telemetry is the optional tracing/metrics contract. A nil Telemetry is
// never passed around; callers that don't want telemetry use NoOpTelemetry.
type Telemetry interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	RecordMetric(name string, value float64, labels map[string]string)
}

// Span represents one unit of traced work.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// NoOpTelemetry discards all spans and metrics.
type NoOpTelemetry struct{}

func (NoOpTelemetry) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, NoOpSpan{}
}
func (NoOpTelemetry) RecordMetric(string, float64, map[string]string) {}

// NoOpSpan discards everything written to it.
type NoOpSpan struct{}

func (NoOpSpan) End()                            {}
func (NoOpSpan) SetAttribute(string, interface{}) {}
func (NoOpSpan) RecordError(error)               {}
