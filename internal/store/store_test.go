package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *testClock {
	return &testClock{t: time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)}
}

func newTestSQLiteStore(t *testing.T, clock *testClock) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "chat.db")
	s, err := NewSQLiteStore(WithSQLiteDSN(dbPath), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// storeFactories lists every ChatStore that can run without external services.
func storeFactories() map[string]func(t *testing.T, clock *testClock) ChatStore {
	return map[string]func(t *testing.T, clock *testClock) ChatStore{
		"memory": func(t *testing.T, clock *testClock) ChatStore { return NewInMemoryStore(WithClock(clock.Now)) },
		"sqlite": func(t *testing.T, clock *testClock) ChatStore { return newTestSQLiteStore(t, clock) },
		"postgres": func(t *testing.T, clock *testClock) ChatStore {
			dsn := getenvOrSkip(t, "OVNCHAT_TEST_POSTGRES_DSN")
			s, err := NewPostgresStore(WithPostgresDSN(dsn), WithClock(clock.Now))
			if err != nil {
				t.Skipf("Postgres not available: %v", err)
			}
			for _, table := range []string{"chat_sessions", "user_memory", "chat_analytics", "inbound_dedup"} {
				s.db.Exec("DELETE FROM " + table)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestSessionRoundTrip(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newClock()
			s := factory(t, clock)

			rec := SessionRecord{
				SessionID:    "web-1",
				Phone:        "9841234567",
				State:        "order_placement_awaiting_name",
				IsActive:     true,
				Data:         []byte(`{"session_id":"web-1"}`),
				LastActivity: clock.Now(),
			}
			if err := s.SaveSession(ctx, rec); err != nil {
				t.Fatalf("SaveSession: %v", err)
			}
			created := clock.Now()

			clock.Advance(time.Minute)
			rec.State = "idle"
			rec.LastActivity = clock.Now()
			if err := s.SaveSession(ctx, rec); err != nil {
				t.Fatalf("SaveSession update: %v", err)
			}

			got, err := s.LoadSession(ctx, "web-1")
			if err != nil || got == nil {
				t.Fatalf("LoadSession = %v, %v", got, err)
			}
			if got.State != "idle" || got.Phone != "9841234567" || !got.IsActive {
				t.Errorf("unexpected record %+v", got)
			}
			if !got.CreatedAt.Equal(created) {
				t.Errorf("CreatedAt changed on update: %v != %v", got.CreatedAt, created)
			}
			if string(got.Data) != `{"session_id":"web-1"}` {
				t.Errorf("Data = %s", got.Data)
			}

			missing, err := s.LoadSession(ctx, "nope")
			if err != nil || missing != nil {
				t.Errorf("missing session = %v, %v; want nil, nil", missing, err)
			}
		})
	}
}

func TestSessionQueries(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newClock()
			s := factory(t, clock)

			for i, id := range []string{"a", "b", "c"} {
				phone := "9841234567"
				if id == "c" {
					phone = "9801111111"
				}
				err := s.SaveSession(ctx, SessionRecord{
					SessionID: id, Phone: phone, State: "idle", IsActive: true,
					LastActivity: clock.Now().Add(time.Duration(i) * time.Minute),
				})
				if err != nil {
					t.Fatalf("SaveSession(%s): %v", id, err)
				}
			}

			byPhone, err := s.SessionsByPhone(ctx, "9841234567", 10)
			if err != nil {
				t.Fatalf("SessionsByPhone: %v", err)
			}
			if len(byPhone) != 2 || byPhone[0].SessionID != "b" {
				t.Fatalf("SessionsByPhone = %+v, want b then a", byPhone)
			}

			if err := s.SetAdminHandling(ctx, "a", "admin-7", true); err != nil {
				t.Fatalf("SetAdminHandling: %v", err)
			}
			handling := true
			list, err := s.ListSessions(ctx, SessionFilter{AdminHandling: &handling})
			if err != nil || len(list) != 1 || list[0].AdminID != "admin-7" {
				t.Fatalf("ListSessions(admin) = %+v, %v", list, err)
			}
			if err := s.SetAdminHandling(ctx, "a", "admin-7", false); err != nil {
				t.Fatalf("SetAdminHandling release: %v", err)
			}
			got, _ := s.LoadSession(ctx, "a")
			if got.AdminHandling || got.AdminID != "" {
				t.Errorf("release left %+v", got)
			}

			if err := s.MarkInactive(ctx, "c"); err != nil {
				t.Fatalf("MarkInactive: %v", err)
			}
			active, err := s.ListSessions(ctx, SessionFilter{ActiveSince: clock.Now().Add(-time.Hour)})
			if err != nil || len(active) != 2 {
				t.Fatalf("active sessions = %+v, %v", active, err)
			}

			n, err := s.DeleteSessionsBefore(ctx, clock.Now().Add(90*time.Second))
			if err != nil {
				t.Fatalf("DeleteSessionsBefore: %v", err)
			}
			// "a" was touched by SetAdminHandling at clock.Now(); "b" sits at +1m.
			if n != 2 {
				t.Errorf("deleted %d sessions, want 2", n)
			}
		})
	}
}

func TestUserMemory(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newClock()
			s := factory(t, clock)
			phone := "9841234567"

			if m, err := s.UserMemory(ctx, phone); err != nil || m != nil {
				t.Fatalf("empty memory = %v, %v", m, err)
			}
			if err := s.UpdateUserMemory(ctx, phone, MemoryUpdate{Name: "Sita", Location: "Pokhara"}); err != nil {
				t.Fatalf("UpdateUserMemory: %v", err)
			}
			if err := s.UpdateUserMemory(ctx, phone, MemoryUpdate{Email: "sita@example.com"}); err != nil {
				t.Fatalf("UpdateUserMemory: %v", err)
			}
			for _, cat := range []string{"Kitchen", "Kitchen", "Home"} {
				if err := s.RecordOrder(ctx, phone, "ord-"+cat, 1250, cat); err != nil {
					t.Fatalf("RecordOrder: %v", err)
				}
			}

			m, err := s.UserMemory(ctx, phone)
			if err != nil || m == nil {
				t.Fatalf("UserMemory = %v, %v", m, err)
			}
			if m.Name != "Sita" || m.Email != "sita@example.com" || m.PreferredLocation != "Pokhara" {
				t.Errorf("fields not merged: %+v", m)
			}
			if m.TotalOrders != 3 || m.TotalSpent != 3750 {
				t.Errorf("counters = %d, %v", m.TotalOrders, m.TotalSpent)
			}
			if len(m.CategoriesInterested) != 2 || m.CategoriesInterested[0] != "Kitchen" {
				t.Errorf("categories = %v", m.CategoriesInterested)
			}
			if m.LastOrderID != "ord-Home" || m.LastOrderDate == nil {
				t.Errorf("last order = %q, %v", m.LastOrderID, m.LastOrderDate)
			}
		})
	}
}

func TestAnalyticsAggregates(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newClock()
			s := factory(t, clock)

			for _, id := range []string{"s1", "s2", "s3", "s4"} {
				s.SaveSession(ctx, SessionRecord{SessionID: id, State: "idle", IsActive: true, LastActivity: clock.Now()})
			}
			record := func(typ, intent string, at time.Time) {
				t.Helper()
				if err := s.RecordEvent(ctx, NewEvent(typ, "s1", intent, map[string]any{"k": "v"}, at)); err != nil {
					t.Fatalf("RecordEvent: %v", err)
				}
			}
			now := clock.Now()
			record(EventMessage, "greeting", now)
			record(EventMessage, "product_search", now.Add(time.Minute))
			record(EventMessage, "product_search", now.Add(2*time.Hour))
			record(EventOrderPlaced, "order_placement", now.Add(3*time.Hour))
			record(EventSupportTicket, "support", now.Add(-48*time.Hour))

			clock.Advance(4 * time.Hour)
			a := NewAnalytics(s, clock.Now)

			day, err := a.DailySummary(ctx, now)
			if err != nil {
				t.Fatalf("DailySummary: %v", err)
			}
			if day.TotalSessions != 4 || day.TotalEvents != 4 || day.OrdersFromChat != 1 {
				t.Errorf("daily summary = %+v", day)
			}
			if day.Intents["product_search"] != 2 || day.Hourly[10] != 2 {
				t.Errorf("daily distributions = %v, %v", day.Intents, day.Hourly)
			}
			if day.ConversionRate != 25 {
				t.Errorf("conversion rate = %v, want 25", day.ConversionRate)
			}

			top, err := a.TopIntents(ctx, 7, 2)
			if err != nil || len(top) != 2 || top[0].Intent != "product_search" || top[0].Count != 2 {
				t.Fatalf("TopIntents = %+v, %v", top, err)
			}

			hours, err := a.PeakHours(ctx, 1)
			if err != nil || len(hours) != 3 || hours[0].Hour != 10 || hours[0].Count != 2 {
				t.Fatalf("PeakHours = %+v, %v", hours, err)
			}

			conv, err := a.ConversionStats(ctx, 7)
			if err != nil {
				t.Fatalf("ConversionStats: %v", err)
			}
			if conv.SupportTickets != 1 || conv.OrdersFromChat != 1 || conv.PeriodDays != 7 {
				t.Errorf("conversion stats = %+v", conv)
			}
		})
	}
}

func TestInboundDedup(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newClock()
			s := factory(t, clock)

			first, err := s.RecordInbound(ctx, "wamid-1", "wa:9841234567")
			if err != nil || !first {
				t.Fatalf("first RecordInbound = %v, %v", first, err)
			}
			again, err := s.RecordInbound(ctx, "wamid-1", "wa:9841234567")
			if err != nil || again {
				t.Fatalf("duplicate RecordInbound = %v, %v", again, err)
			}
			if err := s.MarkProcessed(ctx, "wamid-1"); err != nil {
				t.Fatalf("MarkProcessed: %v", err)
			}
			n, err := s.PruneDedup(ctx, clock.Now().Add(time.Second))
			if err != nil || n != 1 {
				t.Fatalf("PruneDedup = %d, %v", n, err)
			}
			fresh, _ := s.RecordInbound(ctx, "wamid-1", "wa:9841234567")
			if !fresh {
				t.Error("pruned message id should be accepted again")
			}
		})
	}
}

func TestNewEventStamps(t *testing.T) {
	at := time.Date(2025, 1, 2, 17, 4, 0, 0, time.UTC)
	e := NewEvent(EventMessage, "s", "greeting", nil, at)
	if len(e.ID) != 26 || e.Hour != 17 || e.Date != "2025-01-02" {
		t.Errorf("unexpected event %+v", e)
	}
	if NewEvent(EventMessage, "s", "", nil, at).ID == e.ID {
		t.Error("event ids must be unique")
	}
}

func TestSQLiteStoreRequiresDSN(t *testing.T) {
	if _, err := NewSQLiteStore(); err == nil {
		t.Fatal("expected an error without a DSN")
	}
}

func getenvOrSkip(t *testing.T, key string) string {
	t.Helper()
	v := os.Getenv(key)
	if v == "" {
		t.Skipf("env %s not set", key)
	}
	return v
}

func TestDetectDSNType(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"postgres://u:p@localhost/db", "postgres"},
		{"postgresql://localhost/db?sslmode=disable", "postgres"},
		{"host=localhost dbname=ovn sslmode=disable", "postgres"},
		{"/var/lib/ovnchat/state.db", "sqlite3"},
		{"file:state.db?_foreign_keys=on", "sqlite3"},
	}
	for _, tt := range tests {
		if got := DetectDSNType(tt.dsn); got != tt.want {
			t.Errorf("DetectDSNType(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
	s, err := Open()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*InMemoryStore); !ok {
		t.Errorf("Open without DSN returned %T", s)
	}
}
