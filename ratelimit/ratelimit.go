// Package ratelimit admits tool calls per caller identity over a sliding
// window. Unlike a token bucket, the window keeps the actual call
// timestamps, so a denied caller learns exactly how long until a slot
// frees up.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"github.com/webgrab/webgrab/models"
)

type entry struct {
	calls    []time.Time
	lastSeen time.Time
}

// Limiter is a sliding-window call counter keyed by caller identity
// (primary group or the shared anonymous bucket). Safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*entry
	maxCalls int
	window   time.Duration

	now func() time.Time
}

// New builds a limiter admitting maxCalls per window for each identity.
// Identities idle for an hour are evicted by a background janitor so the
// bucket map stays bounded by active callers.
func New(maxCalls int, window time.Duration) *Limiter {
	if maxCalls < 1 {
		maxCalls = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	l := &Limiter{
		buckets:  make(map[string]*entry),
		maxCalls: maxCalls,
		window:   window,
		now:      time.Now,
	}
	go l.janitor()
	return l
}

// Allow admits or denies one call for identity. A denial carries
// RATE_LIMIT_EXCEEDED with the seconds until the oldest counted call
// leaves the window.
func (l *Limiter) Allow(identity string) *models.ToolError {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	e, ok := l.buckets[identity]
	if !ok {
		e = &entry{}
		l.buckets[identity] = e
	}
	e.lastSeen = now

	keep := e.calls[:0]
	for _, ts := range e.calls {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	e.calls = keep

	if len(e.calls) >= l.maxCalls {
		oldest := e.calls[0]
		reset := int(math.Ceil(oldest.Add(time.Second).Sub(cutoff).Seconds()))
		if reset < 1 {
			reset = 1
		}
		return models.NewToolError(models.ErrCodeRateLimitExceeded, "rate limit exceeded", nil).
			WithDetail("reset_seconds", reset).
			WithDetail("limit", l.maxCalls).
			WithDetail("window_seconds", int(l.window.Seconds()))
	}
	e.calls = append(e.calls, now)
	return nil
}

func (l *Limiter) janitor() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		l.evictIdle(l.now().Add(-time.Hour))
	}
}

// evictIdle drops identities with no calls since cutoff.
func (l *Limiter) evictIdle(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, e := range l.buckets {
		if e.lastSeen.Before(cutoff) {
			delete(l.buckets, id)
		}
	}
}
