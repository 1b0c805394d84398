package maintenance

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/ovnchat/internal/security"
	"github.com/BTreeMap/ovnchat/internal/session"
	"github.com/BTreeMap/ovnchat/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)}
}

func TestSweepRunsEveryTask(t *testing.T) {
	j := NewJanitor()
	var order []string
	j.Register("first", func(ctx context.Context, now time.Time) (int, error) {
		order = append(order, "first")
		return 0, errors.New("boom")
	})
	j.Register("second", func(ctx context.Context, now time.Time) (int, error) {
		order = append(order, "second")
		return 3, nil
	})

	err := j.Sweep(context.Background())
	if err == nil || !strings.Contains(err.Error(), "first: boom") {
		t.Errorf("expected the failing task in the error, got %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("unexpected task order %v", order)
	}
}

func TestSweepStopsOnCancelledContext(t *testing.T) {
	j := NewJanitor()
	ran := false
	j.Register("task", func(ctx context.Context, now time.Time) (int, error) {
		ran = true
		return 0, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := j.Sweep(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if ran {
		t.Error("task ran after cancellation")
	}
}

func TestRunTicks(t *testing.T) {
	j := NewJanitor(WithInterval(5 * time.Millisecond))
	swept := make(chan struct{}, 1)
	j.Register("signal", func(ctx context.Context, now time.Time) (int, error) {
		select {
		case swept <- struct{}{}:
		default:
		}
		return 0, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()
	select {
	case <-swept:
	case <-time.After(2 * time.Second):
		t.Fatal("no sweep happened")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestSessionsTask(t *testing.T) {
	clock := newClock()
	st := store.NewInMemoryStore(store.WithClock(clock.Now))
	m := session.NewManager(session.WithStore(st), session.WithClock(clock.Now), session.WithTimeout(30*time.Minute))
	ctx := context.Background()
	m.GetOrCreate(ctx, "idle", "")

	j := NewJanitor(WithClock(clock.Now))
	j.Register("sessions", SessionsTask(m))

	if err := j.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if m.Get("idle") == nil {
		t.Fatal("fresh session evicted")
	}

	clock.Advance(31 * time.Minute)
	if err := j.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if m.Get("idle") != nil {
		t.Error("idle session still cached")
	}
	if rec, _ := st.LoadSession(ctx, "idle"); rec == nil {
		t.Error("evicted session was not persisted")
	}
}

func TestLimiterTask(t *testing.T) {
	clock := newClock()
	l := security.NewRateLimiter(security.WithClock(clock.Now), security.WithIdleTimeout(10*time.Minute))
	l.Check("a")
	l.Check("b")

	task := LimiterTask(l)
	if n, _ := task(context.Background(), clock.Now()); n != 0 {
		t.Errorf("expected no buckets removed, got %d", n)
	}
	clock.Advance(11 * time.Minute)
	if n, _ := task(context.Background(), clock.Now()); n != 2 || l.Len() != 0 {
		t.Errorf("expected both buckets removed, got %d (left %d)", n, l.Len())
	}
}

func TestDedupAndRetentionTasks(t *testing.T) {
	clock := newClock()
	st := store.NewInMemoryStore(store.WithClock(clock.Now))
	ctx := context.Background()

	if _, err := st.RecordInbound(ctx, "wamid-1", "wa:9812345678"); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveSession(ctx, store.SessionRecord{SessionID: "old", State: "idle", LastActivity: clock.Now(), CreatedAt: clock.Now()}); err != nil {
		t.Fatal(err)
	}

	clock.Advance(48 * time.Hour)
	if n, err := DedupTask(st, 24*time.Hour)(ctx, clock.Now()); err != nil || n != 1 {
		t.Errorf("DedupTask = %d, %v; want 1", n, err)
	}
	if fresh, _ := st.RecordInbound(ctx, "wamid-1", "wa:9812345678"); !fresh {
		t.Error("expected a pruned id to be accepted again")
	}

	if n, err := RetentionTask(st, 72*time.Hour)(ctx, clock.Now()); err != nil || n != 0 {
		t.Errorf("RetentionTask = %d, %v; want 0", n, err)
	}
	clock.Advance(48 * time.Hour)
	if n, err := RetentionTask(st, 72*time.Hour)(ctx, clock.Now()); err != nil || n != 1 {
		t.Errorf("RetentionTask = %d, %v; want 1", n, err)
	}
}
