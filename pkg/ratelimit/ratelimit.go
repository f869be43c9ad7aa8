package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a sliding-window rate limiter keyed by an arbitrary string,
// typically a client IP or user id.
type Limiter struct {
	mu      sync.Mutex
	limits  map[string][]time.Time
	window  time.Duration
	maxHits int
}

func NewLimiter(window time.Duration, maxHits int) *Limiter {
	return &Limiter{
		limits:  make(map[string][]time.Time),
		window:  window,
		maxHits: maxHits,
	}
}

// Allow records a hit for key and reports whether it is within the limit
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.prune(key, now)

	if len(l.limits[key]) >= l.maxHits {
		return false
	}

	l.limits[key] = append(l.limits[key], now)
	return true
}

// Remaining reports how many hits are left for key in the current window
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(key, time.Now())

	remaining := l.maxHits - len(l.limits[key])
	if remaining < 0 {
		return 0
	}
	return remaining
}

// prune drops hits that fell outside the window. Caller holds the lock.
func (l *Limiter) prune(key string, now time.Time) {
	windowStart := now.Add(-l.window)

	hits, exists := l.limits[key]
	if !exists {
		return
	}

	valid := hits[:0]
	for _, hit := range hits {
		if hit.After(windowStart) {
			valid = append(valid, hit)
		}
	}
	l.limits[key] = valid
}
