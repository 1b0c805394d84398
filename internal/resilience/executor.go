package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/ovnchat/internal/models"
)

// Executor names used by the chatbot.
const (
	NameLLM     = "llm"
	NameBackend = "backend"
	NameStore   = "store"
)

// defaultTimeouts bound a whole call, retries included.
var defaultTimeouts = map[string]time.Duration{
	NameLLM:     8 * time.Second,
	NameBackend: 10 * time.Second,
	NameStore:   5 * time.Second,
}

// ExecutorOpts configures an Executor.
type ExecutorOpts struct {
	Retry   *Retry
	Breaker *CircuitBreaker
	Timeout time.Duration
}

// ExecutorOption mutates ExecutorOpts.
type ExecutorOption func(*ExecutorOpts)

// WithRetry sets the retry policy.
func WithRetry(r *Retry) ExecutorOption {
	return func(o *ExecutorOpts) { o.Retry = r }
}

// WithBreaker sets the circuit breaker.
func WithBreaker(b *CircuitBreaker) ExecutorOption {
	return func(o *ExecutorOpts) { o.Breaker = b }
}

// WithTimeout bounds each Execute call. Zero disables the bound.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(o *ExecutorOpts) { o.Timeout = d }
}

// Executor gates calls through a circuit breaker and retries them inside the gate. The breaker
// sees one success or failure per Execute, not one per attempt.
type Executor struct {
	name    string
	retry   *Retry
	breaker *CircuitBreaker
	timeout time.Duration
}

// NewExecutor returns an executor with default retry and breaker settings.
func NewExecutor(name string, opts ...ExecutorOption) *Executor {
	o := ExecutorOpts{Timeout: defaultTimeouts[name]}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Retry == nil {
		o.Retry = NewRetry()
	}
	if o.Breaker == nil {
		o.Breaker = NewCircuitBreaker(name)
	}
	return &Executor{name: name, retry: o.Retry, breaker: o.Breaker, timeout: o.Timeout}
}

// Name returns the executor name.
func (e *Executor) Name() string { return e.name }

// Breaker returns the executor's circuit breaker.
func (e *Executor) Breaker() *CircuitBreaker { return e.breaker }

// Result is the outcome of an Execute call. Fallback is set when Value came from the fallback;
// Err then records why the primary path was not used.
type Result[T any] struct {
	Success  bool
	Value    T
	Err      error
	Fallback bool
}

// Execute runs fn through e. When the circuit is open or every attempt fails, a non-nil
// fallback supplies the value.
func Execute[T any](ctx context.Context, e *Executor, fn func(context.Context) (T, error), fallback func() T) Result[T] {
	if !e.breaker.Allow() {
		err := fmt.Errorf("%s: %w", e.name, models.ErrCircuitOpen)
		slog.Debug("Executor.Execute: circuit open", "executor", e.name)
		if fallback != nil {
			return Result[T]{Success: true, Value: fallback(), Err: err, Fallback: true}
		}
		return Result[T]{Err: err}
	}

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	out := Call(callCtx, e.retry, fn)
	if out.Success {
		e.breaker.RecordSuccess()
		return Result[T]{Success: true, Value: out.Value}
	}

	// A caller that gave up says nothing about the dependency's health.
	if !errors.Is(ctx.Err(), context.Canceled) {
		e.breaker.RecordFailure()
	}
	err := fmt.Errorf("%s: %w", e.name, out.Err)
	slog.Warn("Executor.Execute: call failed", "executor", e.name, "attempts", out.Attempts, "error", out.Err)
	if fallback != nil {
		return Result[T]{Success: true, Value: fallback(), Err: err, Fallback: true}
	}
	return Result[T]{Err: err}
}

// Registry hands out one executor per name.
type Registry struct {
	mu        sync.Mutex
	opts      []ExecutorOption
	executors map[string]*Executor
}

// NewRegistry returns a registry whose executors are built with opts.
func NewRegistry(opts ...ExecutorOption) *Registry {
	return &Registry{opts: opts, executors: make(map[string]*Executor)}
}

// Get returns the executor for name, creating it on first use.
func (r *Registry) Get(name string) *Executor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.executors[name]; ok {
		return e
	}
	e := NewExecutor(name, r.opts...)
	r.executors[name] = e
	return e
}

// Stats returns a breaker snapshot per executor, sorted by name.
func (r *Registry) Stats() []Stats {
	r.mu.Lock()
	execs := make([]*Executor, 0, len(r.executors))
	for _, e := range r.executors {
		execs = append(execs, e)
	}
	r.mu.Unlock()

	out := make([]Stats, 0, len(execs))
	for _, e := range execs {
		out = append(out, e.breaker.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
