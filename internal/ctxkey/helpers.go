package ctxkey

import (
	"context"
	"log/slog"
)

// Logger returns the request logger stored in ctx, or fallback.
func Logger(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// String returns the string stored under key, or "".
func String(ctx context.Context, key any) string {
	s, _ := ctx.Value(key).(string)
	return s
}
