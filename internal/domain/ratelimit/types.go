// Package ratelimit defines per-caller tool-call rate limiting.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Limiter decides whether one more call identified by key is allowed.
// Implementations use GCRA so calls are spread evenly over the period
// instead of bunching at window boundaries.
type Limiter interface {
	Allow(ctx context.Context, key string, cfg Config) (Result, error)
}

// Config holds the rate limiting parameters.
type Config struct {
	// Rate is the number of calls allowed per Period.
	Rate int
	// Burst is how many calls may arrive at once. Defaults to Rate.
	Burst int
	// Period is the window Rate applies to.
	Period time.Duration
}

// Enabled reports whether cfg limits anything.
func (c Config) Enabled() bool {
	return c.Rate > 0 && c.Period > 0
}

// Result contains the outcome of a check.
type Result struct {
	Allowed bool
	// Remaining is the number of calls left before limiting kicks in.
	Remaining int
	// RetryAfter is how long to wait. Only meaningful when Allowed is false.
	RetryAfter time.Duration
	// ResetAfter is the time until the full burst is available again.
	ResetAfter time.Duration
}

// KeyType identifies what a key is scoped to.
type KeyType string

const (
	// KeyTypeIdentity scopes limits to the authenticated caller.
	KeyTypeIdentity KeyType = "identity"
	// KeyTypeIP scopes limits to the remote address of an HTTP client.
	KeyTypeIP KeyType = "ip"
)

// FormatKey returns "ratelimit:{type}:{value}".
func FormatKey(keyType KeyType, value string) string {
	return fmt.Sprintf("ratelimit:%s:%s", keyType, value)
}
