// Package ratelimit throttles credential-guessing attempts per origin.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter tracks attempt timestamps per origin over a continuous sliding
// window. An attempt is allowed only while fewer than the budget of
// attempts happened in the window ending now, so there is no boundary an
// attacker can straddle and no gradual refill leaking extra budget.
type Limiter struct {
	attempts int
	window   time.Duration

	mu        sync.Mutex
	origins   map[string][]time.Time
	lastPrune time.Time
}

// New builds a limiter allowing attempts per window for each origin.
func New(attempts int, window time.Duration) *Limiter {
	return &Limiter{
		attempts:  attempts,
		window:    window,
		origins:   make(map[string][]time.Time),
		lastPrune: time.Now(),
	}
}

// Allow reports whether the origin may make another attempt now. Rejected
// attempts do not spend budget.
func (l *Limiter) Allow(key string) bool {
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastPrune) >= l.window {
		l.prune(cutoff)
		l.lastPrune = now
	}

	stamps := l.origins[key]
	for len(stamps) > 0 && !stamps[0].After(cutoff) {
		stamps = stamps[1:]
	}
	if len(stamps) >= l.attempts {
		l.origins[key] = stamps
		return false
	}
	l.origins[key] = append(stamps, now)
	return true
}

// prune drops origins whose every attempt fell out of the window.
// Caller holds mu.
func (l *Limiter) prune(cutoff time.Time) {
	for key, stamps := range l.origins {
		last := len(stamps) - 1
		if last < 0 || !stamps[last].After(cutoff) {
			delete(l.origins, key)
		}
	}
}

// Len reports the number of tracked origins.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.origins)
}
