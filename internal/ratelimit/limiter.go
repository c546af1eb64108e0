// Package ratelimit provides a small, in-memory, fixed-window rate limiter
// keyed by (operation, actor) strings. It protects the triage, share-pass,
// and assistant paths from abuse.
//
// The algorithm is intentionally a fixed window rather than a sliding window
// or token bucket: a bucket holds a count and a reset timestamp; requests
// before the reset increment the count and are allowed while count <= max;
// the first request at or after the reset restarts the bucket. Bursts at
// window boundaries are an accepted tradeoff for a low-traffic pilot.
//
// The limiter is an injectable component, never package-level state, so tests
// can construct isolated instances per scenario. It is safe for concurrent
// use; buckets are swept opportunistically during lookups to bound memory
// against spoofed keys.
package ratelimit

import (
	"sync"
	"time"
)

// sweepEvery is the number of Check calls between opportunistic sweeps of
// expired buckets.
const sweepEvery = 5000

// Result is the outcome of a limiter check.
type Result struct {
	// Allowed reports whether the request may proceed.
	Allowed bool
	// RetryAfter is the suggested wait before retrying, at least one
	// second when the request was denied, zero otherwise.
	RetryAfter time.Duration
}

// bucket is one fixed window for a single key.
type bucket struct {
	count   int
	resetAt time.Time
}

// Limiter tracks fixed-window counters per key.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	checks  uint64

	// now is a clock seam for tests.
	now func() time.Time
}

// New returns an empty Limiter using the wall clock.
func New() *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// NewWithClock returns a Limiter whose notion of time comes from now.
// Tests use this to step through windows without sleeping.
func NewWithClock(now func() time.Time) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		now:     now,
	}
}

// Check records one request against key and reports whether it is allowed
// under maxRequests per window. A request at or after the bucket's reset
// time restarts the window with count 1.
func (l *Limiter) Check(key string, maxRequests int, window time.Duration) Result {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	// Sweep expired buckets before touching the requested one so a stale
	// entry for this key is also eligible.
	l.checks++
	if l.checks >= sweepEvery {
		for k, b := range l.buckets {
			if !now.Before(b.resetAt) {
				delete(l.buckets, k)
			}
		}
		l.checks = 0
	}

	b, ok := l.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		l.buckets[key] = &bucket{count: 1, resetAt: now.Add(window)}
		return Result{Allowed: true}
	}

	b.count++
	if b.count > maxRequests {
		retry := b.resetAt.Sub(now)
		if retry < time.Second {
			retry = time.Second
		}
		return Result{Allowed: false, RetryAfter: retry}
	}
	return Result{Allowed: true}
}

// RetryAfterSeconds converts a Result's retry hint to whole seconds, rounded
// up, for use in Retry-After headers and error payloads.
func (r Result) RetryAfterSeconds() int {
	if r.Allowed || r.RetryAfter <= 0 {
		return 0
	}
	secs := int((r.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
