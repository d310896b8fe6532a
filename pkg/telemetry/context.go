// Package telemetry provides the logging, metrics, and tracing plumbing
// shared by the CLI and the engine.
package telemetry

import (
	"context"

	"github.com/rs/zerolog"
)

type loggerContextKey struct{}

// WithLogger adds the logger to the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// LoggerFromContext retrieves the logger from the context. A context without
// a logger yields a disabled one.
func LoggerFromContext(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(zerolog.Logger); ok {
		return l
	}
	return zerolog.Nop()
}
