package bilibili

import (
	"context"
	"sync"
	"time"
)

// RateLimiter spaces out comment submissions
type RateLimiter interface {
	Wait(ctx context.Context) error
	Interval() time.Duration
}

// intervalLimiter lets one call through per interval
type intervalLimiter struct {
	mu       sync.Mutex
	minDelay time.Duration
	next     time.Time
	now      func() time.Time
}

// NewRateLimiter creates a limiter allowing one call per interval
func NewRateLimiter(interval time.Duration) RateLimiter {
	return &intervalLimiter{minDelay: interval, now: time.Now}
}

// Wait blocks until the caller's slot. Slots are handed out in call order,
// so concurrent callers are spaced by the interval as well.
func (r *intervalLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	now := r.now()
	slot := r.next
	if slot.Before(now) {
		slot = now
	}
	r.next = slot.Add(r.minDelay)
	r.mu.Unlock()

	wait := slot.Sub(now)
	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// Interval returns the minimum gap between two calls
func (r *intervalLimiter) Interval() time.Duration {
	return r.minDelay
}
