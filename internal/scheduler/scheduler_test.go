package scheduler

import (
	"context"
	"testing"
)

type countingSweeper struct{ runs int }

func (c *countingSweeper) Sweep(ctx context.Context) error {
	c.runs++
	return nil
}

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"* * * * *", false},
		{DefaultPruneSchedule, false},
		{"not a schedule", true},
		{"0 0 3 * * *", true},
	}
	for _, tt := range tests {
		err := s.AddJob(tt.expr, func() {})
		if (err != nil) != tt.wantErr {
			t.Errorf("AddJob(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
		}
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 scheduled jobs, got %d", s.Len())
	}
}

func TestAddSweep(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	sw := &countingSweeper{}
	if err := s.AddSweep(context.Background(), "prune", DefaultPruneSchedule, sw); err != nil {
		t.Fatalf("AddSweep: %v", err)
	}
	if err := s.AddSweep(context.Background(), "bad", "bogus", sw); err == nil {
		t.Error("expected an invalid schedule to fail")
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 scheduled job, got %d", s.Len())
	}
}
