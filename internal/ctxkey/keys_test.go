package ctxkey

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func TestLogger(t *testing.T) {
	t.Parallel()

	fallback := slog.New(slog.NewTextHandler(io.Discard, nil))
	if Logger(context.Background(), fallback) != fallback {
		t.Error("expected fallback logger")
	}

	reqLogger := fallback.With("request_id", "r1")
	ctx := context.WithValue(context.Background(), LoggerKey{}, reqLogger)
	if Logger(ctx, fallback) != reqLogger {
		t.Error("expected request logger")
	}
}

func TestString(t *testing.T) {
	t.Parallel()

	ctx := context.WithValue(context.Background(), TransportKey{}, "http")
	if String(ctx, TransportKey{}) != "http" {
		t.Error("TransportKey not found")
	}
	if String(ctx, RequestIDKey{}) != "" {
		t.Error("missing key must be empty")
	}
}
