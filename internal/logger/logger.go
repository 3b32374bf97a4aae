// Package logger wraps zap with environment-aware setup and context plumbing.
package logger

import (
	"context"

	"go.uber.org/zap"
)

const productionEnvironment = "production"

var defaultLogger = zap.NewNop()

// Setup initializes the package logger for the given environment.
// Production gets JSON output, anything else the development console encoder.
func Setup(environment string) {
	if environment == productionEnvironment {
		defaultLogger, _ = zap.NewProduction()
		return
	}
	defaultLogger, _ = zap.NewDevelopment()
}

type key struct{}

// Get returns the logger attached to ctx, or the default logger.
func Get(ctx context.Context) *zap.Logger {
	if l, _ := ctx.Value(key{}).(*zap.Logger); l != nil {
		return l
	}
	return defaultLogger
}

// WithLogger attaches a logger to the context.
func WithLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, key{}, l)
}

// WithFields returns a context whose logger carries the extra fields.
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	return WithLogger(ctx, Get(ctx).With(fields...))
}

// Sync flushes buffered log entries. Safe to call on shutdown.
func Sync() {
	_ = defaultLogger.Sync()
}
