// Package rate is an in-process fixed-window limiter keyed by route and
// client address.
package rate

import (
	"sync"
	"time"

	"hotspotportal/internal/clock"
)

type bucket struct {
	count int
	start time.Time
}

type Limiter struct {
	mu      sync.Mutex
	clock   clock.Clock
	buckets map[string]bucket
	lastGC  time.Time
}

func NewLimiter() *Limiter {
	return NewLimiterWithClock(clock.Real{})
}

func NewLimiterWithClock(c clock.Clock) *Limiter {
	return &Limiter{clock: c, buckets: map[string]bucket{}, lastGC: c.Now()}
}

// Allow counts one hit for key and reports whether it fits in the window.
func (l *Limiter) Allow(key string, limit int, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	if now.Sub(l.lastGC) > time.Minute {
		l.gc(now, window)
	}
	b, ok := l.buckets[key]
	if !ok || now.Sub(b.start) >= window {
		l.buckets[key] = bucket{count: 1, start: now}
		return true
	}
	if b.count >= limit {
		return false
	}
	b.count++
	l.buckets[key] = b
	return true
}

func (l *Limiter) gc(now time.Time, window time.Duration) {
	for k, b := range l.buckets {
		if now.Sub(b.start) > 3*window {
			delete(l.buckets, k)
		}
	}
	l.lastGC = now
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
