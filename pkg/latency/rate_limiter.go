package latency

import (
	"time"

	"github.com/Hassall/roc-toolkit/internal"
)

// RateLimiter allows an action at most once per interval, measured against a
// monotonic clock. It is used to throttle diagnostic output; it is never part
// of the control path.
type RateLimiter struct {
	interval time.Duration
	clock    internal.Clock
	lastTime time.Time
	hasLast  bool
}

// NewRateLimiter creates a rate limiter with the given minimum interval
// between allowed actions. If clock is nil, a MonotonicClock is used.
func NewRateLimiter(interval time.Duration, clock internal.Clock) *RateLimiter {
	if clock == nil {
		clock = internal.MonotonicClock{}
	}
	return &RateLimiter{
		interval: interval,
		clock:    clock,
	}
}

// Allow returns true if at least the configured interval has elapsed since
// the last allowed action. The first call always returns true.
func (r *RateLimiter) Allow() bool {
	now := r.clock.Now()
	if r.hasLast && now.Sub(r.lastTime) < r.interval {
		return false
	}
	r.lastTime = now
	r.hasLast = true
	return true
}
