package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/Sentinel-Gate/hrgate/internal/domain/ratelimit"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClockedLimiter() (*RateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewRateLimiter(nil)
	l.now = clock.Now
	return l, clock
}

func TestRateLimiter_BurstThenLimited(t *testing.T) {
	t.Parallel()

	l, _ := newClockedLimiter()
	cfg := ratelimit.Config{Rate: 10, Burst: 3, Period: time.Second}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "k", cfg)
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !res.Allowed {
			t.Fatalf("call %d limited, want allowed within burst", i+1)
		}
		if res.Remaining != 2-i {
			t.Errorf("call %d Remaining = %d, want %d", i+1, res.Remaining, 2-i)
		}
	}

	res, _ := l.Allow(ctx, "k", cfg)
	if res.Allowed {
		t.Fatal("call beyond burst allowed")
	}
	if res.RetryAfter != 100*time.Millisecond {
		t.Errorf("RetryAfter = %v, want 100ms", res.RetryAfter)
	}
}

func TestRateLimiter_Recovery(t *testing.T) {
	t.Parallel()

	l, clock := newClockedLimiter()
	cfg := ratelimit.Config{Rate: 2, Period: time.Second}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if res, _ := l.Allow(ctx, "k", cfg); !res.Allowed {
			t.Fatalf("call %d limited", i+1)
		}
	}
	if res, _ := l.Allow(ctx, "k", cfg); res.Allowed {
		t.Fatal("third call allowed")
	}

	clock.Advance(500 * time.Millisecond)
	if res, _ := l.Allow(ctx, "k", cfg); !res.Allowed {
		t.Error("call after one emission interval should be allowed")
	}
}

func TestRateLimiter_KeyIsolation(t *testing.T) {
	t.Parallel()

	l, _ := newClockedLimiter()
	cfg := ratelimit.Config{Rate: 1, Period: time.Minute}
	ctx := context.Background()

	a := ratelimit.FormatKey(ratelimit.KeyTypeIdentity, "a")
	b := ratelimit.FormatKey(ratelimit.KeyTypeIdentity, "b")
	if res, _ := l.Allow(ctx, a, cfg); !res.Allowed {
		t.Fatal("a limited")
	}
	if res, _ := l.Allow(ctx, a, cfg); res.Allowed {
		t.Fatal("a allowed twice")
	}
	if res, _ := l.Allow(ctx, b, cfg); !res.Allowed {
		t.Error("b limited by a's usage")
	}
	if l.Size() != 2 {
		t.Errorf("Size() = %d, want 2", l.Size())
	}
}

func TestRateLimiter_ZeroRateDefaults(t *testing.T) {
	t.Parallel()

	l, _ := newClockedLimiter()
	res, err := l.Allow(context.Background(), "k", ratelimit.Config{Period: time.Second})
	if err != nil || !res.Allowed {
		t.Fatalf("Allow() = %+v, %v", res, err)
	}
	if res, _ := l.Allow(context.Background(), "k", ratelimit.Config{Period: time.Second}); res.Allowed {
		t.Error("zero rate should default to one call per period")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	t.Parallel()

	l, clock := newClockedLimiter()
	l.maxTTL = time.Minute
	cfg := ratelimit.Config{Rate: 10, Period: time.Second}
	for i := 0; i < 5; i++ {
		_, _ = l.Allow(context.Background(), fmt.Sprintf("k%d", i), cfg)
	}

	clock.Advance(30 * time.Second)
	l.cleanup()
	if l.Size() != 5 {
		t.Fatalf("Size() = %d, want keys kept before TTL", l.Size())
	}

	clock.Advance(2 * time.Minute)
	l.cleanup()
	if l.Size() != 0 {
		t.Errorf("Size() = %d, want 0 after TTL", l.Size())
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	l := NewRateLimiter(nil)
	cfg := ratelimit.Config{Rate: 50, Period: time.Hour}

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, _ := l.Allow(context.Background(), "shared", cfg)
			if res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed = %d, want exactly the burst of 50", allowed)
	}
}

func TestRateLimiter_NoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewRateLimiterWithConfig(nil, 10*time.Millisecond, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	l.StartCleanup(ctx)
	_, _ = l.Allow(ctx, "k", ratelimit.Config{Rate: 1, Period: time.Second})
	time.Sleep(30 * time.Millisecond)

	cancel()
	l.Stop()
	l.Stop()
}
