package cache

import (
	"sync"
	"time"
)

// RateLimiter allows at most limit calls per rolling window.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	calls  []time.Time
	now    func() time.Time
}

// NewRateLimiter creates a limiter for limit calls per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 1
	}
	return &RateLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// SetNowFunc overrides the clock, for tests.
func (r *RateLimiter) SetNowFunc(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Allow records a call when capacity remains and reports whether it may
// proceed.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)
	i := 0
	for i < len(r.calls) && r.calls[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		r.calls = r.calls[i:]
	}

	if len(r.calls) >= r.limit {
		return false
	}
	r.calls = append(r.calls, now)
	return true
}

// Remaining returns how many calls are left in the current window.
func (r *RateLimiter) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.window)
	n := 0
	for _, c := range r.calls {
		if !c.Before(cutoff) {
			n++
		}
	}
	if n >= r.limit {
		return 0
	}
	return r.limit - n
}
