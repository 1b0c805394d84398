// Package scheduler runs jobs on cron expressions, such as the nightly pruning of old sessions
// and inbound message ids.
package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultPruneSchedule runs pruning at 03:00 every day.
const DefaultPruneSchedule = "0 3 * * *"

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler using the standard 5-field syntax.
func NewScheduler() *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules task on expr. It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// Sweeper is a batch of cleanup work, e.g. a maintenance.Janitor.
type Sweeper interface {
	Sweep(ctx context.Context) error
}

// AddSweep schedules sw on expr. Each run is bound to ctx, so runs after ctx ends do nothing.
func (s *Scheduler) AddSweep(ctx context.Context, name, expr string, sw Sweeper) error {
	if err := s.AddJob(expr, func() {
		if ctx.Err() != nil {
			return
		}
		slog.Debug("Scheduler: sweep starting", "job", name)
		if err := sw.Sweep(ctx); err != nil {
			slog.Error("Scheduler: sweep failed", "job", name, "error", err)
		}
	}); err != nil {
		return err
	}
	slog.Info("Scheduler: sweep scheduled", "job", name, "schedule", expr)
	return nil
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
