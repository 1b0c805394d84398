package security

import (
	"fmt"
	"log/slog"
)

// Middleware combines rate limiting and sanitization in front of the chat entry point.
type Middleware struct {
	limiter *RateLimiter
}

// NewMiddleware wraps limiter. A nil limiter gets the defaults.
func NewMiddleware(limiter *RateLimiter) *Middleware {
	if limiter == nil {
		limiter = NewRateLimiter()
	}
	return &Middleware{limiter: limiter}
}

// Limiter exposes the underlying rate limiter.
func (m *Middleware) Limiter() *RateLimiter { return m.limiter }

// Process rate-limits sessionID, then sanitizes raw. When the request is rejected, errMsg is a
// message suitable for the user and waitSeconds is set for throttled requests.
func (m *Middleware) Process(sessionID, raw string) (ok bool, sanitized string, errMsg string, waitSeconds int) {
	allowed, wait := m.limiter.Check(sessionID)
	if !allowed {
		slog.Info("Middleware.Process: rate limited", "session_id", sessionID, "wait_seconds", wait)
		return false, "", fmt.Sprintf("Please slow down! Try again in %d seconds.", wait), wait
	}
	sanitized = Sanitize(raw)
	if sanitized == "" {
		return false, "", "Please enter a valid message.", 0
	}
	return true, sanitized, "", 0
}
