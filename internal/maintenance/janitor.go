// Package maintenance runs the periodic housekeeping of a running assistant: evicting idle
// sessions, forgetting idle rate-limit buckets and pruning old records.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/ovnchat/internal/security"
	"github.com/BTreeMap/ovnchat/internal/session"
	"github.com/BTreeMap/ovnchat/internal/store"
	"github.com/hashicorp/go-multierror"
)

// DefaultInterval is the time between sweeps.
const DefaultInterval = time.Minute

// Task does one kind of cleanup at now and reports how many items it removed.
type Task func(ctx context.Context, now time.Time) (int, error)

type namedTask struct {
	name string
	run  Task
}

// Opts configures a Janitor.
type Opts struct {
	Interval time.Duration
	Now      func() time.Time
}

// Option configures a Janitor.
type Option func(*Opts)

// WithInterval sets the time between sweeps.
func WithInterval(d time.Duration) Option {
	return func(o *Opts) { o.Interval = d }
}

// WithClock sets the clock passed to tasks.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// Janitor runs registered tasks on a ticker.
type Janitor struct {
	opts  Opts
	mu    sync.RWMutex
	tasks []namedTask
}

// NewJanitor creates a Janitor with no tasks.
func NewJanitor(opts ...Option) *Janitor {
	o := Opts{Interval: DefaultInterval, Now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return &Janitor{opts: o}
}

// Register adds a task. Tasks run in registration order.
func (j *Janitor) Register(name string, task Task) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.tasks = append(j.tasks, namedTask{name: name, run: task})
	slog.Debug("Janitor.Register", "task", name)
}

// Sweep runs every task once. A failing task does not stop the others.
func (j *Janitor) Sweep(ctx context.Context) error {
	j.mu.RLock()
	tasks := append([]namedTask(nil), j.tasks...)
	j.mu.RUnlock()

	now := j.opts.Now()
	var result *multierror.Error
	for _, t := range tasks {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := t.run(ctx, now)
		if err != nil {
			slog.Error("Janitor.Sweep: task failed", "task", t.name, "error", err)
			result = multierror.Append(result, fmt.Errorf("%s: %w", t.name, err))
			continue
		}
		if n > 0 {
			slog.Info("Janitor.Sweep: cleaned up", "task", t.name, "count", n)
		}
	}
	return result.ErrorOrNil()
}

// Run sweeps on every tick until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	slog.Info("Janitor.Run: starting", "interval", j.opts.Interval)
	ticker := time.NewTicker(j.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Janitor.Run: stopping")
			return
		case <-ticker.C:
			_ = j.Sweep(ctx)
		}
	}
}

// SessionsTask persists and evicts sessions idle past the manager's timeout.
func SessionsTask(m *session.Manager) Task {
	return func(ctx context.Context, _ time.Time) (int, error) {
		return m.CleanupExpired(ctx)
	}
}

// LimiterTask drops rate-limit buckets of sessions that went quiet.
func LimiterTask(l *security.RateLimiter) Task {
	return func(_ context.Context, now time.Time) (int, error) {
		return l.Cleanup(now), nil
	}
}

// DedupTask forgets inbound message ids older than retention.
func DedupTask(repo store.DedupRepo, retention time.Duration) Task {
	return func(ctx context.Context, now time.Time) (int, error) {
		return repo.PruneDedup(ctx, now.Add(-retention))
	}
}

// RetentionTask deletes stored sessions idle for longer than retention.
func RetentionTask(s store.SessionStore, retention time.Duration) Task {
	return func(ctx context.Context, now time.Time) (int, error) {
		return s.DeleteSessionsBefore(ctx, now.Add(-retention))
	}
}
