// Package telemetry defines the logging, metrics and tracing contracts used by
// the conversation pipeline. Pipeline components receive these interfaces via
// constructor injection so the core stays agnostic of the observability
// backend; production wiring uses the clue/OTEL implementations in clue.go.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type (
	// Logger emits structured, context-scoped log events. Key/value pairs are
	// appended as alternating keys and values.
	Logger interface {
		Debug(ctx context.Context, msg string, keyvals ...any)
		Info(ctx context.Context, msg string, keyvals ...any)
		Warn(ctx context.Context, msg string, keyvals ...any)
		Error(ctx context.Context, msg string, keyvals ...any)
	}

	// Metrics exposes counter, timer and gauge helpers for pipeline
	// instrumentation. Tags are alternating key/value strings.
	Metrics interface {
		IncCounter(name string, value float64, tags ...string)
		RecordTimer(name string, duration time.Duration, tags ...string)
		RecordGauge(name string, value float64, tags ...string)
	}

	// Tracer abstracts span creation so pipeline code can remain agnostic of
	// the underlying OpenTelemetry provider.
	Tracer interface {
		Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
		Span(ctx context.Context) Span
	}

	// Span represents an in-flight tracing span.
	Span interface {
		End(opts ...trace.SpanEndOption)
		AddEvent(name string, attrs ...any)
		SetStatus(code codes.Code, description string)
		RecordError(err error, opts ...trace.EventOption)
	}
)

// Well-known metric names emitted by the turn pipeline. Backends may rename or
// namespace these; the constants exist so tests and dashboards agree on the
// identifiers.
const (
	MetricTurns          = "drivethru.turns"
	MetricTurnLatency    = "drivethru.turn.latency"
	MetricModelLatency   = "drivethru.model.latency"
	MetricCommandResults = "drivethru.command.results"
	MetricMenuCacheHits  = "drivethru.menu.cache.hits"
	MetricMenuCacheMiss  = "drivethru.menu.cache.misses"
	MetricTTSSyntheses   = "drivethru.tts.syntheses"
)
