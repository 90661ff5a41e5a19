package http

import "time"

// rateLimiter is a fixed-window counter for inbound frames on one
// connection. It is touched only by that connection's read loop, so no
// locking is needed; the window rolls over lazily on the next allow call.
type rateLimiter struct {
	limit   int
	counter int
	reset   *time.Ticker
}

// newRateLimiter builds a limiter allowing limit frames per minute.
// limit <= 0 disables limiting.
func newRateLimiter(limit int) *rateLimiter {
	if limit <= 0 {
		return &rateLimiter{limit: 0}
	}
	return &rateLimiter{
		limit: limit,
		reset: time.NewTicker(time.Minute),
	}
}

// allow consumes one slot from the current window.
func (r *rateLimiter) allow() bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	select {
	case <-r.reset.C:
		r.counter = 0
	default:
	}
	r.counter++
	return r.counter <= r.limit
}

func (r *rateLimiter) stop() {
	if r != nil && r.reset != nil {
		r.reset.Stop()
	}
}
