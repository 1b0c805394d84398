package store

import (
	"context"
	"testing"
	"time"
)

func TestRedisSessionStore(t *testing.T) {
	url := getenvOrSkip(t, "OVNCHAT_TEST_REDIS_URL")
	ctx := context.Background()
	client, err := NewRedisClient(ctx, url)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	durable := NewInMemoryStore()
	s := NewRedisSessionStore(client, durable, time.Minute)
	t.Cleanup(func() { s.Close() })

	id := "redis-test-" + time.Now().Format("150405.000000")
	if err := s.SaveSession(ctx, SessionRecord{SessionID: id, State: "support_awaiting_details", IsActive: true}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	// A cached read survives the durable copy changing underneath it.
	durable.SaveSession(ctx, SessionRecord{SessionID: id, State: "idle", IsActive: true})
	got, err := s.LoadSession(ctx, id)
	if err != nil || got == nil || got.State != "support_awaiting_details" {
		t.Fatalf("cached LoadSession = %+v, %v", got, err)
	}

	if err := s.MarkInactive(ctx, id); err != nil {
		t.Fatalf("MarkInactive: %v", err)
	}
	got, err = s.LoadSession(ctx, id)
	if err != nil || got == nil || got.IsActive || got.State != "idle" {
		t.Fatalf("LoadSession after evict = %+v, %v", got, err)
	}

	if err := s.UpdateUserMemory(ctx, "9841234567", MemoryUpdate{Name: "Ram"}); err != nil {
		t.Fatalf("UpdateUserMemory: %v", err)
	}
	if m, _ := durable.UserMemory(ctx, "9841234567"); m == nil || m.Name != "Ram" {
		t.Errorf("memory should reach the durable store, got %+v", m)
	}
	client.Del(ctx, s.key(id))
}
