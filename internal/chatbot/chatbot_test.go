package chatbot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BTreeMap/ovnchat/internal/catalog"
	"github.com/BTreeMap/ovnchat/internal/intent"
	"github.com/BTreeMap/ovnchat/internal/models"
	"github.com/BTreeMap/ovnchat/internal/session"
	"github.com/BTreeMap/ovnchat/internal/store"
)

type mockBackend struct {
	orders models.OrdersResult
}

func (m *mockBackend) CreateOrder(ctx context.Context, req models.OrderRequest) models.OrderResult {
	return models.OrderResult{Success: true, OrderID: "a1b2c3d4", OrderNumber: "ORD-1"}
}

func (m *mockBackend) OrdersByPhone(ctx context.Context, phone string) models.OrdersResult {
	return m.orders
}

func (m *mockBackend) OrderDetail(ctx context.Context, orderID, contact string) models.OrderDetailResult {
	return models.OrderDetailResult{Error: "not found"}
}

func (m *mockBackend) ProductReviews(ctx context.Context, productID int) models.ReviewsResult {
	return models.ReviewsResult{}
}

func (m *mockBackend) CanReview(ctx context.Context, productID int) models.ReviewEligibility {
	return models.ReviewEligibility{}
}

func (m *mockBackend) SubmitReview(ctx context.Context, productID int, req models.ReviewRequest) models.SubmitResult {
	return models.SubmitResult{Success: true}
}

func (m *mockBackend) SubmitContact(ctx context.Context, req models.ContactRequest) models.SubmitResult {
	return models.SubmitResult{Success: true, ID: "T-1"}
}

type mockAnalytics struct {
	events []store.Event
}

func (m *mockAnalytics) RecordEvent(ctx context.Context, e store.Event) error {
	m.events = append(m.events, e)
	return nil
}

type mockRelay struct {
	sent []string
	err  error
}

func (m *mockRelay) Relay(ctx context.Context, sessionID, text string) error {
	m.sent = append(m.sent, sessionID+"|"+text)
	return m.err
}

var testProducts = []models.Product{
	{ID: 1, Name: "Vacuum Cup 500ml", Price: 1250, Category: "Kitchen", Stock: 10, IsFeatured: true},
	{ID: 2, Name: "Steel Water Bottle", Price: 800, Category: "Kitchen", Stock: 5},
}

type fixture struct {
	bot       *Bot
	sessions  *session.Manager
	backend   *mockBackend
	analytics *mockAnalytics
	relay     *mockRelay
}

func newFixture() *fixture {
	now := func() time.Time { return time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC) }
	f := &fixture{
		sessions:  session.NewManager(session.WithClock(now)),
		backend:   &mockBackend{},
		analytics: &mockAnalytics{},
		relay:     &mockRelay{},
	}
	f.bot = New(Deps{
		Sessions:  f.sessions,
		Backend:   f.backend,
		Catalog:   catalog.NewStatic(testProducts, []models.Category{{ID: 1, Name: "Kitchen"}}),
		Analytics: f.analytics,
		Relay:     f.relay,
		Now:       now,
	})
	return f
}

func (f *fixture) state(t *testing.T, id string) session.State {
	t.Helper()
	s := f.sessions.Get(id)
	if s == nil {
		t.Fatalf("session %s not cached", id)
	}
	return s.State
}

func TestChatPlacementScenario(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	reply := f.bot.Chat(ctx, "I want to buy vacuum cup", "s1", "")
	if !reply.Success || reply.SessionID != "s1" {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if got := f.state(t, "s1"); got != session.StatePlacementConfirmingProduct {
		t.Fatalf("expected confirming product, got %s (%q)", got, reply.Response)
	}

	f.bot.Chat(ctx, "yes", "s1", "")
	if got := f.state(t, "s1"); got != session.StatePlacementAskingAction {
		t.Fatalf("expected asking action, got %s", got)
	}
}

func TestChatCancelInFlow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.bot.Chat(ctx, "I want to buy vacuum cup", "s1", "")
	reply := f.bot.Chat(ctx, "cancel", "s1", "")
	if reply.Response != "Cancelled. How else can I help you?" {
		t.Errorf("unexpected cancel reply %q", reply.Response)
	}
	if got := f.state(t, "s1"); got != session.StateIdle {
		t.Errorf("expected idle after cancel, got %s", got)
	}
	if len(reply.QuickReplies) == 0 {
		t.Error("expected quick replies after cancel")
	}
}

func TestChatPhoneOnlyStartsTracking(t *testing.T) {
	f := newFixture()
	f.backend.orders = models.OrdersResult{Success: true}

	reply := f.bot.Chat(context.Background(), "9812345678", "s1", "")
	if reply.Intent != intent.OrderTracking {
		t.Fatalf("expected order tracking, got %s (%q)", reply.Intent, reply.Response)
	}
}

func TestChatGreeting(t *testing.T) {
	f := newFixture()
	reply := f.bot.Chat(context.Background(), "hello", "", "")
	if reply.SessionID != DefaultSessionID {
		t.Errorf("expected default session id, got %q", reply.SessionID)
	}
	if reply.Intent != intent.Greeting || !strings.Contains(reply.Response, "Welcome to OVN Store") {
		t.Errorf("unexpected greeting reply %+v", reply)
	}
	if len(f.analytics.events) != 1 || f.analytics.events[0].Type != store.EventMessage {
		t.Errorf("expected one message event, got %+v", f.analytics.events)
	}
}

func TestChatFallbackWithoutAI(t *testing.T) {
	f := newFixture()
	reply := f.bot.Chat(context.Background(), "qwerty zxcv", "s1", "")
	if !strings.Contains(reply.Response, "I'm not sure how to help with that") {
		t.Errorf("unexpected fallback %q", reply.Response)
	}
}

func TestCannedAnswer(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{"where is your store?", "online store"},
		{"What payment method do you take", "Cash on Delivery"},
		{"are you a bot", "AI shopping assistant"},
		{"show me bottles", ""},
	}
	for _, tt := range tests {
		got := CannedAnswer(tt.msg)
		if tt.want == "" {
			if got != "" {
				t.Errorf("CannedAnswer(%q) = %q, want none", tt.msg, got)
			}
			continue
		}
		if !strings.Contains(got, tt.want) {
			t.Errorf("CannedAnswer(%q) = %q, want it to contain %q", tt.msg, got, tt.want)
		}
	}
}

func TestAdminTakeoverSilencesBot(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.bot.Chat(ctx, "hello", "s1", "")
	if err := f.bot.Takeover(ctx, "s1", "admin-1"); err != nil {
		t.Fatalf("Takeover: %v", err)
	}
	reply := f.bot.Chat(ctx, "is anyone there?", "s1", "")
	if reply.Response != "" || reply.Metadata["admin_handling"] != true {
		t.Fatalf("expected a silent reply, got %+v", reply)
	}

	id, err := f.bot.AdminMessage(ctx, "s1", "admin-1", "Hi, this is Sita from OVN Store.")
	if err != nil {
		t.Fatalf("AdminMessage: %v", err)
	}
	if !strings.HasPrefix(id, "am_") {
		t.Errorf("unexpected message id %q", id)
	}
	if len(f.relay.sent) != 1 || f.relay.sent[0] != "s1|Hi, this is Sita from OVN Store." {
		t.Errorf("unexpected relay calls %v", f.relay.sent)
	}
	info, ok := f.bot.SessionInfo("s1")
	if !ok {
		t.Fatal("expected session info")
	}
	last := info.History[len(info.History)-1]
	if last.Role != session.RoleAdmin {
		t.Errorf("expected admin turn last, got %+v", last)
	}

	if err := f.bot.Release(ctx, "s1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if reply := f.bot.Chat(ctx, "thanks", "s1", ""); reply.Response == "" {
		t.Error("expected the bot to answer after release")
	}
}

func TestAdminMessageErrors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.bot.AdminMessage(ctx, "missing", "a", "hi"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	f.bot.Chat(ctx, "hello", "s1", "")
	if _, err := f.bot.AdminMessage(ctx, "s1", "a", "   "); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	if _, err := f.bot.AdminMessage(ctx, "s1", "a", "hello there"); !errors.Is(err, ErrNotTakenOver) {
		t.Errorf("expected ErrNotTakenOver, got %v", err)
	}
	if err := f.bot.Takeover(ctx, "missing", "a"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound on takeover, got %v", err)
	}
}

func TestClearSession(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.bot.Chat(ctx, "hello", "s1", "")
	if n := f.bot.ActiveSessions(ctx); n != 1 {
		t.Fatalf("expected 1 active session, got %d", n)
	}
	if err := f.bot.ClearSession(ctx, "s1"); err != nil {
		t.Fatalf("ClearSession: %v", err)
	}
	if _, ok := f.bot.SessionInfo("s1"); ok {
		t.Error("expected the session to be gone")
	}
}

func TestChatConcurrentWithCleanup(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	var ticks atomic.Int64
	now := func() time.Time { return base.Add(time.Duration(ticks.Add(1)) * time.Second) }

	sessions := session.NewManager(
		session.WithStore(store.NewInMemoryStore()),
		session.WithClock(now),
		session.WithTimeout(time.Minute),
	)
	bot := New(Deps{
		Sessions: sessions,
		Backend:  &mockBackend{},
		Catalog:  catalog.NewStatic(testProducts, []models.Category{{ID: 1, Name: "Kitchen"}}),
		Now:      now,
	})

	messages := []string{"hi", "I want to buy vacuum cup", "yes", "cancel", "track my order", "thanks"}
	var wg sync.WaitGroup
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			id := fmt.Sprintf("web-%d", w)
			for i := 0; i < 30; i++ {
				reply := bot.Chat(ctx, messages[(w+i)%len(messages)], id, "")
				if !reply.Success || reply.SessionID != id {
					t.Errorf("session %s: unexpected reply %+v", id, reply)
					return
				}
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 60; i++ {
			if _, err := sessions.CleanupExpired(ctx); err != nil {
				t.Errorf("CleanupExpired: %v", err)
			}
			bot.Sessions(ctx)
		}
	}()
	wg.Wait()

	if n := bot.ActiveSessions(ctx); n > 6 {
		t.Errorf("ActiveSessions = %d, want at most 6", n)
	}
}
