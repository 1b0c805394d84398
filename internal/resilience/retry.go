// Package resilience wraps calls to external services with retries, exponential backoff and
// circuit breakers, so a failing dependency degrades a conversation turn instead of stalling it.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/BTreeMap/ovnchat/internal/models"
)

// RetryOpts configures a Retry.
type RetryOpts struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	Jitter          bool
	// Rand returns a float in [0, 1); it drives jitter.
	Rand func() float64
}

// RetryOption mutates RetryOpts.
type RetryOption func(*RetryOpts)

// WithMaxRetries sets how many retries follow the first attempt.
func WithMaxRetries(n int) RetryOption {
	return func(o *RetryOpts) { o.MaxRetries = n }
}

// WithBaseDelay sets the delay before the first retry.
func WithBaseDelay(d time.Duration) RetryOption {
	return func(o *RetryOpts) { o.BaseDelay = d }
}

// WithMaxDelay caps any single delay.
func WithMaxDelay(d time.Duration) RetryOption {
	return func(o *RetryOpts) { o.MaxDelay = d }
}

// WithExponentialBase sets the backoff multiplier.
func WithExponentialBase(b float64) RetryOption {
	return func(o *RetryOpts) { o.ExponentialBase = b }
}

// WithJitter toggles multiplying each delay by a uniform factor in [0.5, 1.5).
func WithJitter(on bool) RetryOption {
	return func(o *RetryOpts) { o.Jitter = on }
}

// WithRand injects the jitter source.
func WithRand(f func() float64) RetryOption {
	return func(o *RetryOpts) { o.Rand = f }
}

// Retry runs a function until it succeeds or the retry budget is spent.
type Retry struct {
	opts RetryOpts
}

// NewRetry returns a Retry with defaults of 3 retries, 1s base delay doubling up to 30s, with
// jitter.
func NewRetry(opts ...RetryOption) *Retry {
	o := RetryOpts{
		MaxRetries:      3,
		BaseDelay:       time.Second,
		MaxDelay:        30 * time.Second,
		ExponentialBase: 2,
		Jitter:          true,
		Rand:            rand.Float64,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	return &Retry{opts: o}
}

// Delay returns the wait before retry number attempt+1, where attempt counts from zero.
func (r *Retry) Delay(attempt int) time.Duration {
	d := float64(r.opts.BaseDelay) * math.Pow(r.opts.ExponentialBase, float64(attempt))
	if r.opts.MaxDelay > 0 {
		d = math.Min(d, float64(r.opts.MaxDelay))
	}
	if r.opts.Jitter {
		d *= 0.5 + r.opts.Rand()
	}
	return time.Duration(d)
}

// Outcome is the result of a retried call.
type Outcome[T any] struct {
	Success  bool
	Value    T
	Err      error
	Attempts int
}

// retryable reports whether err is worth another attempt. Caller cancellation and input or
// lookup failures are final.
func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrNotFound):
		return false
	}
	return true
}

// Call runs fn with retries under r and reports the last error when every attempt fails.
func Call[T any](ctx context.Context, r *Retry, fn func(context.Context) (T, error)) Outcome[T] {
	var out Outcome[T]
	err := retry.Do(
		func() error {
			out.Attempts++
			v, err := fn(ctx)
			if err != nil {
				return err
			}
			out.Value = v
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(r.opts.MaxRetries+1)),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return r.Delay(int(n))
		}),
		retry.RetryIf(retryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.Debug("Retry.Call: attempt failed", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		out.Err = err
		return out
	}
	out.Success = true
	return out
}

// Do runs fn with retries and reports whether it eventually succeeded.
func (r *Retry) Do(ctx context.Context, fn func(context.Context) error) Outcome[struct{}] {
	return Call(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
}
