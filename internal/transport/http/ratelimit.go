package http

import (
	"sync"
	"time"
)

// rateLimiter caps how many messages one connection may send per window.
// allow is called from the connection's read loop; the mutex keeps the
// budget consistent if that ever changes.
type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	used    int
	resetAt time.Time
}

// newRateLimiter builds a per-minute limiter. A non-positive limit
// disables the cap.
func newRateLimiter(limit int) *rateLimiter {
	return &rateLimiter{limit: limit, window: time.Minute}
}

// allow consumes one unit of the budget, refilling it when the current
// window has elapsed.
func (r *rateLimiter) allow() bool {
	if r == nil || r.limit <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.After(r.resetAt) {
		r.used = 0
		r.resetAt = now.Add(r.window)
	}
	r.used++
	return r.used <= r.limit
}
