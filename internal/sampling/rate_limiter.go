package sampling

import (
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// window is the length of one rate limiter window.
const window = time.Second

// RateLimiter allows up to limit items per fixed one-second window.
// A negative limit allows everything, a zero limit denies everything.
// Safe for concurrent use.
type RateLimiter struct {
	clock         clockz.Clock
	start         time.Time
	limit         float64
	allowed       int
	requested     int
	prevAllowed   int
	prevRequested int
	mu            sync.Mutex
}

// NewRateLimiter creates a limiter with the given per-second limit.
func NewRateLimiter(limit float64, clock clockz.Clock) *RateLimiter {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &RateLimiter{
		clock: clock,
		start: clock.Now(),
		limit: limit,
	}
}

// Limit returns the configured per-second limit.
func (r *RateLimiter) Limit() float64 {
	return r.limit
}

// IsAllowed consumes one token from the current window if one is left.
func (r *RateLimiter) IsAllowed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.advance()
	r.requested++

	switch {
	case r.limit < 0:
		r.allowed++
		return true
	case r.limit == 0:
		return false
	case float64(r.allowed) < r.limit:
		r.allowed++
		return true
	default:
		return false
	}
}

// EffectiveRate returns the ratio of allowed to requested items over the
// previous completed window and the current one. Blending both avoids
// under-counting right after a window boundary.
func (r *RateLimiter) EffectiveRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.advance()

	switch {
	case r.limit < 0:
		return 1
	case r.limit == 0:
		return 0
	}

	requested := r.prevRequested + r.requested
	if requested == 0 {
		return 1
	}
	return float64(r.prevAllowed+r.allowed) / float64(requested)
}

// advance rolls the window forward. Counts of the window that just ended
// become the previous window; a gap of more than one window resets both.
// Must be called with mu held.
func (r *RateLimiter) advance() {
	elapsed := r.clock.Since(r.start)
	if elapsed < window {
		return
	}

	if elapsed < 2*window {
		r.prevAllowed = r.allowed
		r.prevRequested = r.requested
	} else {
		r.prevAllowed = 0
		r.prevRequested = 0
	}

	r.allowed = 0
	r.requested = 0
	r.start = r.start.Add(elapsed.Truncate(window))
}
