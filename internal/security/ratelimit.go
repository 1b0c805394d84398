// Package security guards the chat entry point: per-session rate limiting, input sanitization
// and validation of phone numbers, emails and order ids.
package security

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Rate limiter defaults.
const (
	DefaultRequestsPerMinute = 30
	DefaultBurst             = 5
	DefaultCleanupInterval   = 5 * time.Minute
	DefaultIdleTimeout       = 10 * time.Minute
)

type bucket struct {
	lim      *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// RateLimiter is a token bucket per session. Buckets live in a sync.Map so sessions never
// contend on a shared lock.
type RateLimiter struct {
	perMinute       int
	burst           int
	cleanupInterval time.Duration
	idleTimeout     time.Duration
	now             func() time.Time

	buckets     sync.Map // session id -> *bucket
	lastCleanup atomic.Int64
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithRequestsPerMinute sets the sustained refill rate.
func WithRequestsPerMinute(n int) RateLimiterOption {
	return func(r *RateLimiter) {
		if n > 0 {
			r.perMinute = n
		}
	}
}

// WithBurst sets the bucket capacity.
func WithBurst(n int) RateLimiterOption {
	return func(r *RateLimiter) {
		if n > 0 {
			r.burst = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) RateLimiterOption {
	return func(r *RateLimiter) { r.now = now }
}

// WithIdleTimeout sets how long an unused bucket survives garbage collection.
func WithIdleTimeout(d time.Duration) RateLimiterOption {
	return func(r *RateLimiter) { r.idleTimeout = d }
}

// NewRateLimiter creates a limiter with 30 requests/minute and a burst of 5 unless overridden.
func NewRateLimiter(opts ...RateLimiterOption) *RateLimiter {
	r := &RateLimiter{
		perMinute:       DefaultRequestsPerMinute,
		burst:           DefaultBurst,
		cleanupInterval: DefaultCleanupInterval,
		idleTimeout:     DefaultIdleTimeout,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.lastCleanup.Store(r.now().UnixNano())
	return r
}

func (r *RateLimiter) bucketFor(sessionID string, now time.Time) *bucket {
	if v, ok := r.buckets.Load(sessionID); ok {
		return v.(*bucket)
	}
	b := &bucket{lim: rate.NewLimiter(rate.Limit(float64(r.perMinute)/60.0), r.burst)}
	b.lastSeen.Store(now.UnixNano())
	v, _ := r.buckets.LoadOrStore(sessionID, b)
	return v.(*bucket)
}

// Check consumes one token for sessionID. When the bucket is empty it returns false and the
// number of whole seconds to wait before a token is available.
func (r *RateLimiter) Check(sessionID string) (allowed bool, waitSeconds int) {
	now := r.now()
	r.maybeCleanup(now)

	b := r.bucketFor(sessionID, now)
	b.lastSeen.Store(now.UnixNano())

	res := b.lim.ReserveN(now, 1)
	if !res.OK() {
		return false, int(time.Minute.Seconds())
	}
	delay := res.DelayFrom(now)
	if delay <= 0 {
		return true, 0
	}
	res.CancelAt(now)
	wait := int(delay.Seconds()) + 1
	slog.Debug("RateLimiter.Check: request throttled", "session_id", sessionID, "wait_seconds", wait)
	return false, wait
}

// Remaining returns the whole tokens currently available to sessionID.
func (r *RateLimiter) Remaining(sessionID string) int {
	now := r.now()
	b := r.bucketFor(sessionID, now)
	return int(b.lim.TokensAt(now))
}

func (r *RateLimiter) maybeCleanup(now time.Time) {
	last := r.lastCleanup.Load()
	if now.UnixNano()-last < r.cleanupInterval.Nanoseconds() {
		return
	}
	if !r.lastCleanup.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	r.Cleanup(now)
}

// Cleanup drops buckets that have not been used within the idle timeout and returns how many
// were removed.
func (r *RateLimiter) Cleanup(now time.Time) int {
	cutoff := now.Add(-r.idleTimeout).UnixNano()
	removed := 0
	r.buckets.Range(func(key, value any) bool {
		if value.(*bucket).lastSeen.Load() < cutoff {
			r.buckets.Delete(key)
			removed++
		}
		return true
	})
	if removed > 0 {
		slog.Debug("RateLimiter.Cleanup: removed idle buckets", "count", removed)
	}
	return removed
}

// Len returns the number of tracked sessions.
func (r *RateLimiter) Len() int {
	n := 0
	r.buckets.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}
