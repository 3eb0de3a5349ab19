// Package corekit provides the fundamental abstractions shared by every
// other package in the orchestration core: structured logging, telemetry,
// the AI provider contract, the error taxonomy, and the data model for
// pipelines, stages, and tasks.
package corekit

import (
	"context"
	"fmt"
	"log"
	"os"
)

// Logger is the minimal structured logging contract used throughout the
// core. Implementations are expected to be safe for concurrent use.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAwareLogger lets a caller scope a logger to a named component
// (e.g. "agent/summarizer", "orchestrator") without constructing a new
// logger from scratch. Log lines from a component-scoped logger carry a
// "component" field so they can be filtered downstream.
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// NoOpLogger discards everything. Useful as a safe zero value wherever a
// Logger is optional.
type NoOpLogger struct{}

func (NoOpLogger) Info(string, map[string]interface{})  {}
func (NoOpLogger) Error(string, map[string]interface{}) {}
func (NoOpLogger) Warn(string, map[string]interface{})  {}
func (NoOpLogger) Debug(string, map[string]interface{}) {}

func (NoOpLogger) InfoWithContext(context.Context, string, map[string]interface{})  {}
func (NoOpLogger) ErrorWithContext(context.Context, string, map[string]interface{}) {}
func (NoOpLogger) WarnWithContext(context.Context, string, map[string]interface{})  {}
func (NoOpLogger) DebugWithContext(context.Context, string, map[string]interface{}) {}

// StdLogger is a small structured logger built on the standard library's
// log package. It writes one line per call in "level msg key=value ..."
// form. It is not meant to compete with a production logging stack; it
// exists so the core has a usable default without pulling in a third
// logging dependency on top of everything else the core already wires.
type StdLogger struct {
	component string
	out       *log.Logger
}

// NewStdLogger creates a logger that writes to stderr with a timestamp
// prefix.
func NewStdLogger() *StdLogger {
	return &StdLogger{out: log.New(os.Stderr, "", log.LstdFlags)}
}

var _ ComponentAwareLogger = (*StdLogger)(nil)

func (l *StdLogger) WithComponent(component string) Logger {
	return &StdLogger{component: component, out: l.out}
}

func (l *StdLogger) log(level, msg string, fields map[string]interface{}) {
	line := fmt.Sprintf("%s %s", level, msg)
	if l.component != "" {
		line += fmt.Sprintf(" component=%s", l.component)
	}
	for k, v := range fields {
		line += fmt.Sprintf(" %s=%v", k, v)
	}
	l.out.Println(line)
}

func (l *StdLogger) Info(msg string, fields map[string]interface{})  { l.log("INFO", msg, fields) }
func (l *StdLogger) Error(msg string, fields map[string]interface{}) { l.log("ERROR", msg, fields) }
func (l *StdLogger) Warn(msg string, fields map[string]interface{})  { l.log("WARN", msg, fields) }
func (l *StdLogger) Debug(msg string, fields map[string]interface{}) { l.log("DEBUG", msg, fields) }

func (l *StdLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("INFO", msg, withTraceID(ctx, fields))
}
func (l *StdLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("ERROR", msg, withTraceID(ctx, fields))
}
func (l *StdLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("WARN", msg, withTraceID(ctx, fields))
}
func (l *StdLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("DEBUG", msg, withTraceID(ctx, fields))
}

// requestIDKey is the context key used to correlate log lines with a
// PipelineRequest across goroutines.
type requestIDKeyType struct{}

var requestIDKey = requestIDKeyType{}

// WithRequestID returns a context carrying a request id for correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the request id set by WithRequestID, if any.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}

func withTraceID(ctx context.Context, fields map[string]interface{}) map[string]interface{} {
	id, ok := RequestIDFromContext(ctx)
	if !ok {
		return fields
	}
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["request_id"] = id
	return out
}
