// Package logging provides structured logging for the ledger scanner,
// built on zap. A logger travels through request contexts so every
// pipeline stage logs with the same request-scoped fields.
package logging

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger for the given level ("debug", "info", "warn",
// "error") and format ("json" or "console").
func New(level, format string) (*zap.Logger, error) {
	var lvl zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = zapcore.DebugLevel
	case "", "info":
		lvl = zapcore.InfoLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder

	switch strings.ToLower(format) {
	case "", "json":
		cfg.Encoding = "json"
	case "console", "text":
		cfg.Encoding = "console"
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	return cfg.Build(zap.AddCaller())
}

type loggerKey struct{}

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext retrieves the context logger, falling back to a no-op
// logger so callers never need a nil check.
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}
