package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Sentinel-Gate/hrgate/internal/domain/ratelimit"
)

// RateLimiter implements ratelimit.Limiter with GCRA over an in-process map
// of theoretical arrival times. Idle keys are dropped by a background sweep.
type RateLimiter struct {
	mu    sync.Mutex
	cells map[string]time.Time
	now   func() time.Time

	logger          *slog.Logger
	cleanupInterval time.Duration
	maxTTL          time.Duration
	stopChan        chan struct{}
	wg              sync.WaitGroup
	once            sync.Once
}

// NewRateLimiter creates a limiter that sweeps every 5 minutes and forgets
// keys idle for an hour.
func NewRateLimiter(logger *slog.Logger) *RateLimiter {
	return NewRateLimiterWithConfig(logger, 5*time.Minute, time.Hour)
}

// NewRateLimiterWithConfig creates a limiter with custom sweep settings.
func NewRateLimiterWithConfig(logger *slog.Logger, cleanupInterval, maxTTL time.Duration) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		cells:           make(map[string]time.Time),
		now:             time.Now,
		logger:          logger,
		cleanupInterval: cleanupInterval,
		maxTTL:          maxTTL,
		stopChan:        make(chan struct{}),
	}
}

// Allow applies GCRA to key.
func (r *RateLimiter) Allow(_ context.Context, key string, cfg ratelimit.Config) (ratelimit.Result, error) {
	if cfg.Rate <= 0 {
		cfg.Rate = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.Rate
	}
	emission := cfg.Period / time.Duration(cfg.Rate)
	burstOffset := time.Duration(cfg.Burst) * emission

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	tat, ok := r.cells[key]
	if !ok || tat.Before(now) {
		tat = now
	}

	allowAt := tat.Add(emission - burstOffset)
	if now.Before(allowAt) {
		return ratelimit.Result{
			Allowed:    false,
			RetryAfter: allowAt.Sub(now),
			ResetAfter: tat.Sub(now),
		}, nil
	}

	next := tat.Add(emission)
	r.cells[key] = next

	remaining := 0
	if emission > 0 {
		remaining = int((burstOffset - next.Sub(now)) / emission)
	}
	remaining = max(0, min(remaining, cfg.Burst))

	return ratelimit.Result{
		Allowed:    true,
		Remaining:  remaining,
		ResetAfter: next.Sub(now),
	}, nil
}

// StartCleanup starts the background sweep. It stops when ctx is cancelled
// or Stop is called.
func (r *RateLimiter) StartCleanup(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			case <-ticker.C:
				r.cleanup()
			}
		}
	}()
}

func (r *RateLimiter) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.maxTTL)
	cleaned := 0
	for key, tat := range r.cells {
		if tat.Before(cutoff) {
			delete(r.cells, key)
			cleaned++
		}
	}
	if cleaned > 0 {
		r.logger.Debug("rate limiter cleanup completed",
			"cleaned_keys", cleaned,
			"remaining_keys", len(r.cells))
	}
}

// Stop stops the sweep and waits for it to exit. Safe to call multiple times.
func (r *RateLimiter) Stop() {
	r.once.Do(func() {
		close(r.stopChan)
	})
	r.wg.Wait()
}

// Size returns the current number of tracked keys.
func (r *RateLimiter) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cells)
}

// Compile-time interface verification.
var _ ratelimit.Limiter = (*RateLimiter)(nil)
