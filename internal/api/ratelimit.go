package api

import (
	"sync"
	"time"
)

// RateLimiter is a fixed-window counter per client key. A zero limit
// disables it.
type RateLimiter struct {
	mu        sync.Mutex
	perClient map[string]*clientRate
	limit     int
	window    time.Duration
	now       func() time.Time
}

type clientRate struct {
	count       int
	windowStart time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		return &RateLimiter{limit: 0}
	}
	return &RateLimiter{
		perClient: map[string]*clientRate{},
		limit:     limit,
		window:    window,
		now:       time.Now,
	}
}

// Allow counts one request for client. When refused it returns how long
// until the window resets.
func (r *RateLimiter) Allow(client string) (bool, time.Duration) {
	if r == nil || r.limit == 0 {
		return true, 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.evict(now)
	state, ok := r.perClient[client]
	if !ok {
		state = &clientRate{windowStart: now}
		r.perClient[client] = state
	}
	if now.Sub(state.windowStart) >= r.window {
		state.windowStart = now
		state.count = 0
	}
	if state.count >= r.limit {
		return false, state.windowStart.Add(r.window).Sub(now)
	}
	state.count++
	return true, 0
}

// evict drops clients idle for two windows so the map stays bounded by the
// active client count.
func (r *RateLimiter) evict(now time.Time) {
	if len(r.perClient) < 1024 {
		return
	}
	for k, st := range r.perClient {
		if now.Sub(st.windowStart) >= 2*r.window {
			delete(r.perClient, k)
		}
	}
}
