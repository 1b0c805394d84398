package resilience

import (
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/ovnchat/internal/models"
)

// State is a circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// BreakerOpts configures a CircuitBreaker.
type BreakerOpts struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	HalfOpenMaxCalls int
	Now              func() time.Time
}

// BreakerOption mutates BreakerOpts.
type BreakerOption func(*BreakerOpts)

// WithFailureThreshold sets how many failures open the circuit.
func WithFailureThreshold(n int) BreakerOption {
	return func(o *BreakerOpts) { o.FailureThreshold = n }
}

// WithRecoveryTimeout sets how long the circuit stays open before probing.
func WithRecoveryTimeout(d time.Duration) BreakerOption {
	return func(o *BreakerOpts) { o.RecoveryTimeout = d }
}

// WithHalfOpenMaxCalls sets how many probe successes close the circuit.
func WithHalfOpenMaxCalls(n int) BreakerOption {
	return func(o *BreakerOpts) { o.HalfOpenMaxCalls = n }
}

// WithBreakerClock injects the time source.
func WithBreakerClock(now func() time.Time) BreakerOption {
	return func(o *BreakerOpts) { o.Now = now }
}

// Stats is a snapshot of a breaker.
type Stats struct {
	Name             string        `json:"name"`
	State            State         `json:"state"`
	FailureCount     int           `json:"failure_count"`
	LastFailure      *time.Time    `json:"last_failure,omitempty"`
	FailureThreshold int           `json:"failure_threshold"`
	RecoveryTimeout  time.Duration `json:"recovery_timeout"`
}

// CircuitBreaker fails fast while a dependency is unhealthy.
//
// CLOSED opens after FailureThreshold failures; a success in CLOSED forgives one failure.
// OPEN rejects every call until RecoveryTimeout has passed since the last failure, then turns
// HALF_OPEN. HALF_OPEN admits up to HalfOpenMaxCalls probes; that many successes close the
// circuit and any failure reopens it.
type CircuitBreaker struct {
	name string
	opts BreakerOpts

	mu            sync.Mutex
	state         State
	failures      int
	lastFailure   time.Time
	halfOpenCalls int
	halfOpenOK    int
}

// NewCircuitBreaker returns a closed breaker. Defaults: threshold 5, recovery 30s, 3 probes.
func NewCircuitBreaker(name string, opts ...BreakerOption) *CircuitBreaker {
	o := BreakerOpts{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		HalfOpenMaxCalls: 3,
		Now:              time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &CircuitBreaker{name: name, opts: o, state: StateClosed}
}

// refresh moves OPEN to HALF_OPEN once the recovery timeout has elapsed. Callers hold mu.
func (b *CircuitBreaker) refresh() {
	if b.state == StateOpen && !b.lastFailure.IsZero() &&
		b.opts.Now().Sub(b.lastFailure) >= b.opts.RecoveryTimeout {
		b.state = StateHalfOpen
		b.halfOpenCalls = 0
		b.halfOpenOK = 0
		slog.Info("CircuitBreaker: half-open", "breaker", b.name)
	}
}

// State returns the current state.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()
	return b.state
}

// Allow reports whether a call may proceed, reserving a probe slot in HALF_OPEN.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()
	switch b.state {
	case StateOpen:
		return false
	case StateHalfOpen:
		if b.halfOpenCalls >= b.opts.HalfOpenMaxCalls {
			return false
		}
		b.halfOpenCalls++
		return true
	default:
		return true
	}
}

// RecordSuccess notes a successful call.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateHalfOpen:
		b.halfOpenOK++
		if b.halfOpenOK >= b.opts.HalfOpenMaxCalls {
			b.state = StateClosed
			b.failures = 0
			slog.Info("CircuitBreaker: closed", "breaker", b.name)
		}
	case StateClosed:
		if b.failures > 0 {
			b.failures--
		}
	}
}

// RecordFailure notes a failed call.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = b.opts.Now()
	switch b.state {
	case StateHalfOpen:
		b.state = StateOpen
		slog.Warn("CircuitBreaker: probe failed, reopening", "breaker", b.name)
	case StateClosed:
		if b.failures >= b.opts.FailureThreshold {
			b.state = StateOpen
			slog.Warn("CircuitBreaker: opened", "breaker", b.name, "failures", b.failures)
		}
	}
}

// Execute calls fn unless the circuit is open. On rejection or failure it returns fallback's
// result when fallback is non-nil. A rejected call without fallback returns ErrCircuitOpen.
func (b *CircuitBreaker) Execute(fn func() (any, error), fallback func() (any, error)) (any, error) {
	if !b.Allow() {
		if fallback != nil {
			return fallback()
		}
		return nil, models.ErrCircuitOpen
	}
	v, err := fn()
	if err != nil {
		b.RecordFailure()
		if fallback != nil {
			return fallback()
		}
		return nil, err
	}
	b.RecordSuccess()
	return v, nil
}

// Reset closes the circuit and clears its counters.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.lastFailure = time.Time{}
	b.halfOpenCalls = 0
	b.halfOpenOK = 0
}

// Stats returns a snapshot of the breaker.
func (b *CircuitBreaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()
	s := Stats{
		Name:             b.name,
		State:            b.state,
		FailureCount:     b.failures,
		FailureThreshold: b.opts.FailureThreshold,
		RecoveryTimeout:  b.opts.RecoveryTimeout,
	}
	if !b.lastFailure.IsZero() {
		t := b.lastFailure
		s.LastFailure = &t
	}
	return s
}
