// Package telemetry defines the logging, tracing, and metrics interfaces
// used throughout the kernel, plus noop and OTEL/clue-backed implementations.
// The kernel facade and the executor accept these via functional options and
// default to noop, so telemetry is never required to exercise the kernel.
// The registry, audit, authz, and session packages take no telemetry.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type (
	// Logger emits structured, leveled log messages.
	Logger interface {
		Debug(ctx context.Context, msg string, keyvals ...any)
		Info(ctx context.Context, msg string, keyvals ...any)
		Warn(ctx context.Context, msg string, keyvals ...any)
		Error(ctx context.Context, msg string, keyvals ...any)
	}

	// Metrics records counters, timers, and gauges.
	Metrics interface {
		IncCounter(name string, value float64, tags ...string)
		RecordTimer(name string, duration time.Duration, tags ...string)
		RecordGauge(name string, value float64, tags ...string)
	}

	// Tracer starts spans and retrieves the current span from a context.
	Tracer interface {
		Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
		Span(ctx context.Context) Span
	}

	// Span is a single unit of tracing work.
	Span interface {
		End(opts ...trace.SpanEndOption)
		AddEvent(name string, attrs ...any)
		SetStatus(code codes.Code, description string)
		RecordError(err error, opts ...trace.EventOption)
	}
)
