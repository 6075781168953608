package http

import "time"

const rateWindow = time.Minute

// rateLimiter admits at most limit inbound frames per fixed one-minute
// window. It is owned by a single read loop and is not safe for concurrent
// use. A zero limit disables it.
type rateLimiter struct {
	limit   int
	count   int
	started time.Time
	now     func() time.Time
}

func newRateLimiter(limit int) *rateLimiter {
	return &rateLimiter{limit: limit, now: time.Now}
}

func (r *rateLimiter) allow() bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	now := r.now()
	if now.Sub(r.started) >= rateWindow {
		r.started = now
		r.count = 0
	}
	r.count++
	return r.count <= r.limit
}
