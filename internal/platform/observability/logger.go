// Package observability builds the zap logger and the HTTP logging, tracing and recovery middleware.
package observability

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/platform/requestctx"
)

const defaultLogLevel = "info"

// NewLogger builds a JSON logger at the given level, falling back to info.
func NewLogger(level string) (*zap.Logger, error) {
	atomic := zap.NewAtomicLevel()
	if err := atomic.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil || strings.TrimSpace(level) == "" {
		_ = atomic.UnmarshalText([]byte(defaultLogLevel))
	}

	cfg := zap.Config{
		Level:    atomic,
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:    "message",
			TimeKey:       "timestamp",
			LevelKey:      "severity",
			CallerKey:     "caller",
			StacktraceKey: "stacktrace",
			EncodeTime:    zapcore.RFC3339NanoTimeEncoder,
			EncodeCaller:  zapcore.ShortCallerEncoder,
			EncodeLevel: func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
				enc.AppendString(strings.ToUpper(l.String()))
			},
		},
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}
	return cfg.Build()
}

// EventLogger adapts zap to the event-style logger the services take. The
// request logger on ctx wins over base, and the quote ID is attached when set.
// Events ending in "failed", "timeout" or "unknown_family" log at warn.
func EventLogger(base *zap.Logger) func(context.Context, string, map[string]any) {
	if base == nil {
		base = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := base
		if requestctx.HasLogger(ctx) {
			logger = requestctx.Logger(ctx)
		}

		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		zf := make([]zap.Field, 0, len(keys)+2)
		zf = append(zf, zap.String("event", event))
		if id := requestctx.QuoteID(ctx); id != "" {
			zf = append(zf, zap.String("quote_id", id))
		}
		for _, k := range keys {
			zf = append(zf, zap.Any(k, fields[k]))
		}

		if isWarnEvent(event) {
			logger.Warn(event, zf...)
			return
		}
		logger.Info(event, zf...)
	}
}

func isWarnEvent(event string) bool {
	for _, suffix := range []string{"failed", "timeout", "unknown_family"} {
		if strings.HasSuffix(event, suffix) {
			return true
		}
	}
	return false
}
