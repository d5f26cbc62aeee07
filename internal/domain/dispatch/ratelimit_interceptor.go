package dispatch

import (
	"context"
	"log/slog"

	"github.com/Sentinel-Gate/hrgate/internal/ctxkey"
	"github.com/Sentinel-Gate/hrgate/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/hrgate/pkg/mcp"
)

// RateLimitInterceptor limits tool calls per caller. Callers are keyed by
// identity; unauthenticated HTTP callers fall back to their remote address.
// Other methods are never limited.
type RateLimitInterceptor struct {
	limiter ratelimit.Limiter
	cfg     ratelimit.Config
	next    MessageInterceptor
	logger  *slog.Logger
}

// NewRateLimitInterceptor creates a new RateLimitInterceptor.
func NewRateLimitInterceptor(limiter ratelimit.Limiter, cfg ratelimit.Config, next MessageInterceptor, logger *slog.Logger) *RateLimitInterceptor {
	return &RateLimitInterceptor{
		limiter: limiter,
		cfg:     cfg,
		next:    next,
		logger:  logger,
	}
}

// Intercept returns a *RateLimitError when the caller is over its limit.
func (r *RateLimitInterceptor) Intercept(ctx context.Context, msg *mcp.Message) (*mcp.Message, error) {
	if !msg.IsToolCall() || !r.cfg.Enabled() {
		return r.next.Intercept(ctx, msg)
	}
	logger := ctxkey.Logger(ctx, r.logger)

	key := r.key(ctx, msg)
	result, err := r.limiter.Allow(ctx, key, r.cfg)
	if err != nil {
		// Fail open: the limiter protects the directory, it is not an
		// authorization control.
		logger.Error("failed to check rate limit", "key", key, "error", err)
		return r.next.Intercept(ctx, msg)
	}
	if !result.Allowed {
		logger.Warn("tool call rate limited",
			"key", key,
			"retry_after", result.RetryAfter,
		)
		return nil, &RateLimitError{RetryAfter: result.RetryAfter}
	}

	return r.next.Intercept(ctx, msg)
}

func (r *RateLimitInterceptor) key(ctx context.Context, msg *mcp.Message) string {
	if id := msg.CallerID(); id != "" {
		return ratelimit.FormatKey(ratelimit.KeyTypeIdentity, id)
	}
	addr := ctxkey.String(ctx, ctxkey.RemoteAddrKey{})
	if addr == "" {
		addr = "unknown"
	}
	return ratelimit.FormatKey(ratelimit.KeyTypeIP, addr)
}

// Compile-time check that RateLimitInterceptor implements MessageInterceptor.
var _ MessageInterceptor = (*RateLimitInterceptor)(nil)
