package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/BTreeMap/ovnchat/internal/models"
)

var errBoom = errors.New("boom")

func fastRetry(n int) *Retry {
	return NewRetry(WithMaxRetries(n), WithBaseDelay(0), WithJitter(false))
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestRetryDelaySchedule(t *testing.T) {
	r := NewRetry(WithJitter(false))
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second}
	for i, w := range want {
		if got := r.Delay(i); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i, got, w)
		}
	}

	low := NewRetry(WithRand(func() float64 { return 0 }))
	if got := low.Delay(0); got != 500*time.Millisecond {
		t.Errorf("jitter floor = %v, want 500ms", got)
	}
	high := NewRetry(WithRand(func() float64 { return 0.999 }))
	if got := high.Delay(0); got >= 1500*time.Millisecond || got < 1400*time.Millisecond {
		t.Errorf("jitter ceiling = %v, want just under 1.5s", got)
	}
}

func TestRetryEventuallySucceeds(t *testing.T) {
	calls := 0
	out := Call(context.Background(), fastRetry(3), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errBoom
		}
		return "ok", nil
	})
	if !out.Success || out.Value != "ok" || out.Attempts != 3 {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestRetryGivesUpAfterBudget(t *testing.T) {
	calls := 0
	out := fastRetry(3).Do(context.Background(), func(context.Context) error {
		calls++
		return fmt.Errorf("attempt %d: %w", calls, errBoom)
	})
	if out.Success {
		t.Fatal("expected failure")
	}
	if calls != 4 {
		t.Errorf("expected 4 attempts (1 + 3 retries), got %d", calls)
	}
	if !errors.Is(out.Err, errBoom) {
		t.Errorf("expected last error to wrap errBoom, got %v", out.Err)
	}
}

func TestRetrySkipsFinalErrors(t *testing.T) {
	calls := 0
	out := fastRetry(3).Do(context.Background(), func(context.Context) error {
		calls++
		return fmt.Errorf("bad phone: %w", models.ErrValidation)
	})
	if out.Success || calls != 1 {
		t.Fatalf("validation errors must not be retried: calls=%d outcome=%+v", calls, out)
	}
}

func TestCircuitBreakerCycle(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := NewCircuitBreaker("test", WithBreakerClock(clock.Now))

	fail := func() (any, error) { return nil, errBoom }
	ok := func() (any, error) { return "ok", nil }

	for i := 0; i < 5; i++ {
		if b.State() != StateClosed {
			t.Fatalf("opened early after %d failures", i)
		}
		b.Execute(fail, nil)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open after 5 failures, got %s", b.State())
	}

	called := false
	_, err := b.Execute(func() (any, error) { called = true; return nil, nil }, nil)
	if called || !errors.Is(err, models.ErrCircuitOpen) {
		t.Fatalf("open breaker must fail fast: called=%v err=%v", called, err)
	}
	v, err := b.Execute(ok, func() (any, error) { return "cached", nil })
	if err != nil || v != "cached" {
		t.Fatalf("expected fallback while open, got %v, %v", v, err)
	}

	clock.Advance(30 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open after recovery timeout, got %s", b.State())
	}
	for i := 0; i < 3; i++ {
		if _, err := b.Execute(ok, nil); err != nil {
			t.Fatalf("probe %d rejected: %v", i, err)
		}
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after 3 probe successes, got %s", b.State())
	}

	for i := 0; i < 5; i++ {
		b.Execute(fail, nil)
	}
	clock.Advance(31 * time.Second)
	b.Execute(fail, nil)
	if b.State() != StateOpen {
		t.Fatalf("a half-open failure must reopen, got %s", b.State())
	}
}

func TestCircuitBreakerSuccessDecrements(t *testing.T) {
	b := NewCircuitBreaker("test", WithFailureThreshold(3))
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	if got := b.Stats().FailureCount; got != 1 {
		t.Fatalf("expected failure count 1 after a success, got %d", got)
	}
	b.RecordFailure()
	if b.State() != StateClosed {
		t.Fatal("two net failures must not open a threshold-3 breaker")
	}
	b.Reset()
	if s := b.Stats(); s.FailureCount != 0 || s.LastFailure != nil {
		t.Errorf("Reset left %+v", s)
	}
}

func TestExecutorRecordsOncePerCall(t *testing.T) {
	b := NewCircuitBreaker("backend", WithFailureThreshold(2))
	e := NewExecutor("backend", WithRetry(fastRetry(3)), WithBreaker(b))

	calls := 0
	res := Execute(context.Background(), e, func(context.Context) (int, error) {
		calls++
		return 0, errBoom
	}, nil)
	if res.Success || calls != 4 {
		t.Fatalf("expected 4 failed attempts, got calls=%d res=%+v", calls, res)
	}
	if got := b.Stats().FailureCount; got != 1 {
		t.Fatalf("expected one recorded failure for four attempts, got %d", got)
	}

	res = Execute(context.Background(), e, func(context.Context) (int, error) { return 0, errBoom }, func() int { return 7 })
	if !res.Success || !res.Fallback || res.Value != 7 {
		t.Fatalf("expected fallback value, got %+v", res)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open after two failed calls, got %s", b.State())
	}

	calls = 0
	res = Execute(context.Background(), e, func(context.Context) (int, error) { calls++; return 1, nil }, nil)
	if calls != 0 || !errors.Is(res.Err, models.ErrCircuitOpen) {
		t.Fatalf("expected fail-fast, got calls=%d res=%+v", calls, res)
	}
}

func TestExecutorTimeout(t *testing.T) {
	e := NewExecutor("llm", WithRetry(fastRetry(0)), WithTimeout(20*time.Millisecond))
	res := Execute(context.Background(), e, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}, func() string { return "fallback" })
	if res.Value != "fallback" || !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Fatalf("expected timeout fallback, got %+v", res)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(WithRetry(fastRetry(0)))
	if r.Get(NameLLM) != r.Get(NameLLM) {
		t.Fatal("expected the same executor per name")
	}
	r.Get(NameBackend)
	stats := r.Stats()
	if len(stats) != 2 || stats[0].Name != NameBackend || stats[1].Name != NameLLM {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
