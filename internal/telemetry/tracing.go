// Package telemetry sets up tracing for hass-gate.
//
// Spans go to an stdout-style exporter bound to stderr, because stdout
// carries the MCP stream and must not receive anything else.
package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerName is the instrumentation scope for every hass-gate span.
const TracerName = "github.com/hass-gate/hassgate"

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(ctx context.Context) error

// NewTracer returns the tracer used by the router and hub clients.
// When disabled it returns a no-op tracer and a no-op shutdown.
func NewTracer(enabled bool, w io.Writer) (trace.Tracer, ShutdownFunc, error) {
	if !enabled {
		return noop.NewTracerProvider().Tracer(TracerName), func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	// Synchronous export keeps span output ordered with log lines.
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	return tp.Tracer(TracerName), tp.Shutdown, nil
}
