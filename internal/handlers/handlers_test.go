package handlers

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/ovnchat/internal/catalog"
	"github.com/BTreeMap/ovnchat/internal/entity"
	"github.com/BTreeMap/ovnchat/internal/intent"
	"github.com/BTreeMap/ovnchat/internal/models"
	"github.com/BTreeMap/ovnchat/internal/session"
	"github.com/BTreeMap/ovnchat/internal/store"
)

// mockBackend records every call and answers from canned results.
type mockBackend struct {
	orders       models.OrdersResult
	orderDetail  func(orderID, contact string) models.OrderDetailResult
	detailCalls  []string
	createResult models.OrderResult
	created      []models.OrderRequest
	reviews      models.ReviewsResult
	eligibility  models.ReviewEligibility
	submitResult models.SubmitResult
	reviewReqs   []models.ReviewRequest
	contacts     []models.ContactRequest
}

func (m *mockBackend) CreateOrder(ctx context.Context, req models.OrderRequest) models.OrderResult {
	m.created = append(m.created, req)
	return m.createResult
}

func (m *mockBackend) OrdersByPhone(ctx context.Context, phone string) models.OrdersResult {
	return m.orders
}

func (m *mockBackend) OrderDetail(ctx context.Context, orderID, contact string) models.OrderDetailResult {
	m.detailCalls = append(m.detailCalls, orderID+"|"+contact)
	if m.orderDetail == nil {
		return models.OrderDetailResult{Error: "not found"}
	}
	return m.orderDetail(orderID, contact)
}

func (m *mockBackend) ProductReviews(ctx context.Context, productID int) models.ReviewsResult {
	return m.reviews
}

func (m *mockBackend) CanReview(ctx context.Context, productID int) models.ReviewEligibility {
	return m.eligibility
}

func (m *mockBackend) SubmitReview(ctx context.Context, productID int, req models.ReviewRequest) models.SubmitResult {
	m.reviewReqs = append(m.reviewReqs, req)
	return m.submitResult
}

func (m *mockBackend) SubmitContact(ctx context.Context, req models.ContactRequest) models.SubmitResult {
	m.contacts = append(m.contacts, req)
	return m.submitResult
}

type mockAnalytics struct {
	events []store.Event
}

func (m *mockAnalytics) RecordEvent(ctx context.Context, e store.Event) error {
	m.events = append(m.events, e)
	return nil
}

type orderRecord struct {
	phone, orderID string
	total          float64
}

type mockMemory struct {
	updates map[string]store.MemoryUpdate
	orders  []orderRecord
}

func (m *mockMemory) UpdateUserMemory(ctx context.Context, phone string, u store.MemoryUpdate) error {
	if m.updates == nil {
		m.updates = map[string]store.MemoryUpdate{}
	}
	m.updates[phone] = u
	return nil
}

func (m *mockMemory) RecordOrder(ctx context.Context, phone, orderID string, total float64, category string) error {
	m.orders = append(m.orders, orderRecord{phone, orderID, total})
	return nil
}

var testProducts = []models.Product{
	{ID: 1, Name: "Vacuum Cup 500ml", Price: 1250, Category: "Kitchen", Stock: 10, Rating: 4.5, ReviewCount: 12, IsFeatured: true, Description: "Keeps drinks hot for hours."},
	{ID: 2, Name: "Steel Water Bottle", Price: 800, Category: "Kitchen", Stock: 5, Description: "Leak proof."},
	{ID: 3, Name: "Cotton T-Shirt", Price: 650, ComparePrice: 900, Category: "Clothing", Stock: 0},
}

type fixture struct {
	backend   *mockBackend
	analytics *mockAnalytics
	memory    *mockMemory
	deps      Deps
}

func newFixture() *fixture {
	f := &fixture{backend: &mockBackend{}, analytics: &mockAnalytics{}, memory: &mockMemory{}}
	f.deps = Deps{
		Backend:   f.backend,
		Catalog:   catalog.NewStatic(testProducts, []models.Category{{ID: 1, Name: "Kitchen"}, {ID: 2, Name: "Clothing"}}),
		Analytics: f.analytics,
		Memory:    f.memory,
	}
	return f
}

func newSession() *session.Session {
	return session.New("test-session", time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC))
}

// send runs one turn through h the way the chatbot does and applies the resulting state.
func send(t *testing.T, h Handler, sess *session.Session, in intent.Intent, msg string) Response {
	t.Helper()
	if !h.CanHandle(in, sess.State) {
		t.Fatalf("handler cannot take %q in state %s", msg, sess.State)
	}
	resp := h.Handle(context.Background(), msg, sess, Entities{Bundle: entity.Extract(msg), Intent: in})
	resp.Apply(sess)
	return resp
}

func TestPlacementFullFlow(t *testing.T) {
	f := newFixture()
	f.backend.createResult = models.OrderResult{Success: true, OrderID: "a1b2c3d4", OrderNumber: "ORD-1001"}
	h := NewPlacement(f.deps)
	sess := newSession()

	resp := send(t, h, sess, intent.OrderPlacement, "I want to buy vacuum cup")
	if sess.State != session.StatePlacementConfirmingProduct {
		t.Fatalf("expected confirming product, got %s (%q)", sess.State, resp.Message)
	}
	if len(resp.Products) != 1 || resp.Products[0].ID != 1 {
		t.Fatalf("expected the vacuum cup, got %+v", resp.Products)
	}

	send(t, h, sess, intent.General, "yes")
	if sess.State != session.StatePlacementAskingAction {
		t.Fatalf("expected asking action, got %s", sess.State)
	}

	send(t, h, sess, intent.General, "2")
	if sess.State != session.StatePlacementAwaitingQuantity {
		t.Fatalf("expected awaiting quantity, got %s", sess.State)
	}

	resp = send(t, h, sess, intent.General, "15")
	if sess.State != session.StatePlacementAwaitingQuantity {
		t.Fatalf("over-limit quantity must keep the state, got %s", sess.State)
	}
	if !strings.Contains(resp.Message, "Maximum quantity is 10") {
		t.Errorf("unexpected over-limit message %q", resp.Message)
	}

	send(t, h, sess, intent.General, "2")
	if sess.State != session.StatePlacementAwaitingName {
		t.Fatalf("expected awaiting name, got %s", sess.State)
	}

	send(t, h, sess, intent.General, "Ram Sharma")
	if sess.UserName != "Ram Sharma" {
		t.Errorf("expected name remembered, got %q", sess.UserName)
	}

	send(t, h, sess, intent.General, "9812345678")
	if sess.State != session.StatePlacementSelectingDistrict {
		t.Fatalf("expected selecting district, got %s", sess.State)
	}

	send(t, h, sess, intent.General, "I live in Hetauda")
	if sess.State != session.StatePlacementAwaitingLandmark {
		t.Fatalf("expected awaiting landmark, got %s", sess.State)
	}
	if pc := sess.Placement(); pc.DeliveryCharge != 150 || pc.District != "Makwanpur" {
		t.Fatalf("unexpected delivery %+v", pc)
	}

	resp = send(t, h, sess, intent.General, "skip")
	if sess.State != session.StatePlacementConfirming {
		t.Fatalf("expected confirming, got %s", sess.State)
	}
	if !strings.Contains(resp.Message, "Total: Rs. 2,650") {
		t.Errorf("summary missing total: %q", resp.Message)
	}

	resp = send(t, h, sess, intent.General, "yes")
	if sess.State != session.StateIdle {
		t.Fatalf("expected idle after order, got %s", sess.State)
	}
	if !strings.Contains(resp.Message, "#ORD-1001") {
		t.Errorf("confirmation missing order number: %q", resp.Message)
	}

	if len(f.backend.created) != 1 {
		t.Fatalf("expected one order, got %d", len(f.backend.created))
	}
	req := f.backend.created[0]
	if req.Location != "Hetauda, Makwanpur" || req.PaymentMethod != "cod" || req.DeliveryCharge != 150 {
		t.Errorf("unexpected order request %+v", req)
	}
	if len(req.Items) != 1 || req.Items[0].ProductID != 1 || req.Items[0].Quantity != 2 {
		t.Errorf("unexpected items %+v", req.Items)
	}
	if len(f.memory.orders) != 1 || f.memory.orders[0].phone != "9812345678" || f.memory.orders[0].total != 2650 {
		t.Errorf("unexpected order memory %+v", f.memory.orders)
	}
	if len(f.analytics.events) != 1 || f.analytics.events[0].Type != store.EventOrderPlaced {
		t.Errorf("expected an order_placed event, got %+v", f.analytics.events)
	}
}

func TestPlacementQuantityParsing(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"3", 3},
		{"I need 4 please", 4},
		{"two", 2},
		{"hmm", 1},
		{"0", 0},
	}
	for _, tt := range tests {
		if got := parseQuantity(tt.in); got != tt.want {
			t.Errorf("parseQuantity(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestPlacementReusesRememberedDetails(t *testing.T) {
	f := newFixture()
	h := NewPlacement(f.deps)
	sess := newSession()
	sess.Remember(session.Memory{Name: "Sita", Phone: "9801234567", Location: "Pokhara, Kaski"})
	sess.LastViewedProducts = []models.Product{testProducts[1]}

	send(t, h, sess, intent.OrderPlacement, "ok buy it")
	if p := sess.Placement().Product; p == nil || p.ID != 2 {
		t.Fatalf("expected last viewed product, got %+v", p)
	}
	send(t, h, sess, intent.General, "yes")
	send(t, h, sess, intent.General, "buy")
	resp := send(t, h, sess, intent.General, "1")
	if !strings.Contains(resp.Message, "Sita") {
		t.Errorf("expected saved name offer, got %q", resp.Message)
	}
	resp = send(t, h, sess, intent.General, "yes")
	if !strings.Contains(resp.Message, "9801234567") {
		t.Errorf("expected saved phone offer, got %q", resp.Message)
	}
	resp = send(t, h, sess, intent.General, "yes")
	if sess.State != session.StatePlacementSelectingDistrict {
		t.Fatalf("expected district selection, got %s", sess.State)
	}
	if len(resp.QuickReplies) != 1 || resp.QuickReplies[0] != "Pokhara" {
		t.Errorf("expected saved location reply, got %v", resp.QuickReplies)
	}
	if pc := sess.Placement(); pc.CustomerName != "Sita" || pc.ContactNumber != "9801234567" {
		t.Errorf("unexpected contact %+v", pc)
	}
}

func TestPlacementDistrictRestartsOnNewRequest(t *testing.T) {
	f := newFixture()
	h := NewPlacement(f.deps)
	sess := newSession()
	pc := sess.Placement()
	pc.Product = &testProducts[0]
	sess.SetState(session.StatePlacementSelectingDistrict, nil)

	resp := send(t, h, sess, intent.General, "show me steel bottle")
	if sess.State != session.StatePlacementConfirmingProduct {
		t.Fatalf("expected a fresh product confirmation, got %s (%q)", sess.State, resp.Message)
	}
	if p := sess.Placement().Product; p == nil || p.ID != 2 {
		t.Errorf("expected the bottle, got %+v", p)
	}
}

func TestPlacementDistrictRestartClearsOrder(t *testing.T) {
	f := newFixture()
	h := NewPlacement(f.deps)
	sess := newSession()
	pc := sess.Placement()
	pc.Product = &testProducts[0]
	pc.Quantity = 3
	pc.CustomerName = "Sita"
	sess.SetState(session.StatePlacementSelectingDistrict, nil)

	resp := h.Handle(context.Background(), "I want to buy steel bottle", sess, Entities{Intent: intent.OrderPlacement})
	if !resp.ResetState || resp.Context == nil {
		t.Fatalf("restart should reset into a fresh context, got %+v", resp)
	}
	if sess.State != session.StatePlacementSelectingDistrict || sess.Placement().Quantity != 3 {
		t.Fatal("Handle must leave the session to Apply")
	}

	resp.Apply(sess)
	got := sess.Placement()
	if got.Quantity != 0 || got.CustomerName != "" {
		t.Errorf("old order details survived the restart: %+v", got)
	}
	if got.Product == nil || got.Product.ID != 2 {
		t.Errorf("expected the bottle, got %+v", got.Product)
	}
}

func TestPlacementDistrictIgnoresEmbeddedRestartWords(t *testing.T) {
	for _, msg := range []string{"near the border", "showroom road", "backyard lane", "stopover chowk"} {
		t.Run(msg, func(t *testing.T) {
			f := newFixture()
			h := NewPlacement(f.deps)
			sess := newSession()
			sess.Placement().Product = &testProducts[0]
			sess.SetState(session.StatePlacementSelectingDistrict, nil)

			resp := send(t, h, sess, intent.General, msg)
			if resp.ResetState {
				t.Fatalf("%q restarted the order", msg)
			}
			if p := sess.Placement().Product; p == nil || p.ID != 1 {
				t.Errorf("%q lost the product: %+v", msg, p)
			}
		})
	}
}

func TestPlacementUnknownDistrictKeepsState(t *testing.T) {
	f := newFixture()
	h := NewPlacement(f.deps)
	sess := newSession()
	sess.SetState(session.StatePlacementSelectingDistrict, nil)

	resp := send(t, h, sess, intent.General, "Atlantis")
	if sess.State != session.StatePlacementSelectingDistrict {
		t.Fatalf("expected state kept, got %s", sess.State)
	}
	if !strings.Contains(resp.Message, "'Atlantis' not found") {
		t.Errorf("unexpected message %q", resp.Message)
	}
}

func TestPlacementDistrictWithManyLocations(t *testing.T) {
	f := newFixture()
	h := NewPlacement(f.deps)
	sess := newSession()
	sess.SetState(session.StatePlacementSelectingDistrict, nil)

	send(t, h, sess, intent.General, "Chitwan")
	if sess.State != session.StatePlacementSelectingLocation {
		t.Fatalf("expected location selection, got %s", sess.State)
	}
	send(t, h, sess, intent.General, "sauraha")
	if pc := sess.Placement(); pc.Location != "Sauraha" || pc.DeliveryCharge != 180 {
		t.Errorf("unexpected location %+v", pc)
	}
}

func TestPlacementOrderFailureResets(t *testing.T) {
	f := newFixture()
	f.backend.createResult = models.OrderResult{Error: "Product out of stock"}
	h := NewPlacement(f.deps)
	sess := newSession()
	pc := sess.Placement()
	pc.Product = &testProducts[0]
	pc.Quantity = 1
	sess.SetState(session.StatePlacementConfirming, nil)

	resp := send(t, h, sess, intent.General, "confirm")
	if sess.State != session.StateIdle {
		t.Fatalf("expected idle, got %s", sess.State)
	}
	if !strings.Contains(resp.Message, "Product out of stock") {
		t.Errorf("expected backend error shown, got %q", resp.Message)
	}
	if len(f.analytics.events) != 0 {
		t.Errorf("failed orders must not be recorded")
	}
}

func trackingOrders() []models.Order {
	return []models.Order{
		{OrderID: "o-1", OrderNumber: "ORD-1", Status: "shipped", TotalAmount: 1350, CreatedAt: "2026-09-01T10:00:00Z",
			Items: []models.OrderItem{{ProductName: "Vacuum Cup 500ml", Quantity: 1, UnitPrice: 1250}}, ShippingCost: 100},
		{OrderID: "o-2", OrderNumber: "ORD-2", Status: "delivered", TotalAmount: 900, CreatedAt: "2026-08-01T10:00:00Z",
			Items: []models.OrderItem{{ProductName: "Steel Water Bottle", Quantity: 1, UnitPrice: 800}}, ShippingCost: 100},
	}
}

func TestTrackingAsksThenListsOrders(t *testing.T) {
	f := newFixture()
	f.backend.orders = models.OrdersResult{Success: true, Orders: trackingOrders()}
	h := NewTracking(f.deps)
	sess := newSession()

	send(t, h, sess, intent.OrderTracking, "track my order")
	if sess.State != session.StateTrackingAwaitingIdentifier {
		t.Fatalf("expected awaiting identifier, got %s", sess.State)
	}

	resp := send(t, h, sess, intent.General, "9812345678")
	if sess.State != session.StateTrackingSelectingOrder {
		t.Fatalf("expected order selection, got %s", sess.State)
	}
	if !strings.Contains(resp.Message, "Found **2** orders") {
		t.Errorf("unexpected list %q", resp.Message)
	}
	if sess.UserPhone != "9812345678" {
		t.Errorf("expected phone remembered, got %q", sess.UserPhone)
	}

	resp = send(t, h, sess, intent.General, "2")
	if sess.State != session.StateIdle {
		t.Fatalf("expected idle after detail, got %s", sess.State)
	}
	if resp.Metadata["order_number"] != "ORD-2" {
		t.Errorf("expected ORD-2 detail, got %v", resp.Metadata)
	}
}

func TestTrackingSingleOrderShowsDetail(t *testing.T) {
	f := newFixture()
	f.backend.orders = models.OrdersResult{Success: true, Orders: trackingOrders()[:1]}
	h := NewTracking(f.deps)
	sess := newSession()

	resp := send(t, h, sess, intent.OrderTracking, "where is my order 9812345678")
	if sess.State != session.StateIdle {
		t.Fatalf("expected idle, got %s", sess.State)
	}
	if resp.Metadata["order_number"] != "ORD-1" {
		t.Errorf("unexpected metadata %v", resp.Metadata)
	}
	if len(resp.Products) != 1 || !resp.Products[0].IsOrderItem {
		t.Errorf("expected one order item card, got %+v", resp.Products)
	}
}

func TestTrackingGuestOrderAsksForPhone(t *testing.T) {
	f := newFixture()
	order := trackingOrders()[0]
	f.backend.orderDetail = func(orderID, contact string) models.OrderDetailResult {
		if contact == "" {
			return models.OrderDetailResult{Error: "Contact number required for guest orders"}
		}
		return models.OrderDetailResult{Success: true, Order: &order}
	}
	h := NewTracking(f.deps)
	sess := newSession()

	send(t, h, sess, intent.OrderTracking, "track my order")
	resp := send(t, h, sess, intent.General, "ABCDEF12")
	if sess.State != session.StateTrackingAwaitingIdentifier {
		t.Fatalf("expected to wait for a phone, got %s", sess.State)
	}
	if !strings.Contains(resp.Message, "guest order") {
		t.Errorf("unexpected prompt %q", resp.Message)
	}

	resp = send(t, h, sess, intent.General, "9812345678")
	if sess.State != session.StateIdle {
		t.Fatalf("expected idle, got %s", sess.State)
	}
	if resp.Metadata["order_number"] != "ORD-1" {
		t.Errorf("unexpected metadata %v", resp.Metadata)
	}
	last := f.backend.detailCalls[len(f.backend.detailCalls)-1]
	if last != "ABCDEF12|9812345678" {
		t.Errorf("expected retry with contact, got %q", last)
	}
}

func TestTrackingNoOrders(t *testing.T) {
	f := newFixture()
	f.backend.orders = models.OrdersResult{Success: true}
	h := NewTracking(f.deps)
	sess := newSession()

	resp := send(t, h, sess, intent.OrderTracking, "9812345678")
	if sess.State != session.StateIdle || !strings.Contains(resp.Message, "No orders found") {
		t.Errorf("unexpected reply in %s: %q", sess.State, resp.Message)
	}
}

func TestOrderDetailBreakdown(t *testing.T) {
	o := models.Order{
		OrderNumber: "ORD-9", Status: "processing", ShippingCost: 100, DiscountAmount: 50,
		Items: []models.OrderItem{{ProductName: "Vacuum Cup 500ml", Quantity: 2, UnitPrice: 1250}},
	}
	resp := OrderDetail(o)
	if !resp.ResetState {
		t.Error("order detail must end the flow")
	}
	for _, want := range []string{"Rs. 2,500.00", "Rs. 2,550.00"} {
		if !strings.Contains(resp.Message, want) {
			t.Errorf("expected %q in %q", want, resp.Message)
		}
	}
}

func TestDetectCategory(t *testing.T) {
	tests := map[string]string{
		"I want to return a damaged item": CategoryReturn,
		"my delivery is late":             CategoryOrder,
		"worst service, very disappointed": CategoryComplaint,
		"I have an idea to improve":       CategoryFeedback,
		"hello there":                     "",
	}
	for in, want := range tests {
		if got := DetectCategory(in); got != want {
			t.Errorf("DetectCategory(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSupportTicketFlow(t *testing.T) {
	f := newFixture()
	f.backend.submitResult = models.SubmitResult{Success: true, ID: "T-42"}
	h := NewSupport(f.deps)
	sess := newSession()

	send(t, h, sess, intent.Support, "I want to return a damaged item")
	if sess.State != session.StateSupportAwaitingDetails {
		t.Fatalf("expected awaiting details, got %s", sess.State)
	}

	send(t, h, sess, intent.General, "too short")
	if sess.State != session.StateSupportAwaitingDetails {
		t.Fatalf("short details must be refused, got %s", sess.State)
	}

	send(t, h, sess, intent.General, "The cup arrived with a broken lid")
	if sess.State != session.StateSupportAwaitingEmail {
		t.Fatalf("expected awaiting email, got %s", sess.State)
	}

	send(t, h, sess, intent.General, "not an email")
	if sess.State != session.StateSupportAwaitingEmail {
		t.Fatalf("invalid email must be refused, got %s", sess.State)
	}

	resp := send(t, h, sess, intent.General, "Ram@Example.com")
	if sess.State != session.StateSupportConfirming {
		t.Fatalf("expected confirming, got %s", sess.State)
	}
	if !strings.Contains(resp.Message, "Return/Refund Request") {
		t.Errorf("summary missing category: %q", resp.Message)
	}

	resp = send(t, h, sess, intent.General, "submit")
	if sess.State != session.StateIdle {
		t.Fatalf("expected idle, got %s", sess.State)
	}
	if resp.Metadata["ticket_id"] != "T-42" {
		t.Errorf("unexpected metadata %v", resp.Metadata)
	}
	if len(f.backend.contacts) != 1 {
		t.Fatalf("expected one contact request, got %d", len(f.backend.contacts))
	}
	c := f.backend.contacts[0]
	if c.Name != "Chat User" || c.Email != "ram@example.com" || c.Subject != CategoryReturn {
		t.Errorf("unexpected contact request %+v", c)
	}
	if len(f.analytics.events) != 1 || f.analytics.events[0].Type != store.EventSupportTicket {
		t.Errorf("expected a support_ticket event, got %+v", f.analytics.events)
	}
}

func TestSupportMenuAndCancel(t *testing.T) {
	f := newFixture()
	h := NewSupport(f.deps)
	sess := newSession()

	resp := send(t, h, sess, intent.Support, "hello")
	if sess.State != session.StateSupportAwaitingCategory || len(resp.QuickReplies) != 4 {
		t.Fatalf("expected the category menu, got %s %v", sess.State, resp.QuickReplies)
	}
	resp = send(t, h, sess, intent.General, "5")
	if !strings.Contains(resp.Message, "Feedback") {
		t.Errorf("unexpected category prompt %q", resp.Message)
	}
	sess.Remember(session.Memory{Email: "sita@example.com"})
	resp = send(t, h, sess, intent.General, "Please add more colours to the shop")
	if !strings.Contains(resp.Message, "sita@example.com") {
		t.Errorf("expected saved email offer, got %q", resp.Message)
	}
	send(t, h, sess, intent.General, "yes")
	send(t, h, sess, intent.General, "cancel")
	if sess.State != session.StateIdle || len(f.backend.contacts) != 0 {
		t.Errorf("cancel must not submit (state %s, %d submitted)", sess.State, len(f.backend.contacts))
	}
}

func TestReviewSubmitFlow(t *testing.T) {
	f := newFixture()
	f.backend.eligibility = models.ReviewEligibility{Success: true, CanReview: true, OrderID: "o-1"}
	f.backend.submitResult = models.SubmitResult{Success: true}
	h := NewReview(f.deps)
	sess := newSession()
	sess.LastViewedProducts = []models.Product{testProducts[0]}

	send(t, h, sess, intent.ReviewSubmit, "write a review")
	if sess.State != session.StateReviewAwaitingRating {
		t.Fatalf("expected awaiting rating, got %s", sess.State)
	}
	send(t, h, sess, intent.General, "great")
	if sess.State != session.StateReviewAwaitingRating {
		t.Fatalf("missing rating must be refused, got %s", sess.State)
	}
	send(t, h, sess, intent.General, "⭐⭐⭐⭐")
	if sess.Review().Rating != 4 {
		t.Fatalf("expected rating 4, got %d", sess.Review().Rating)
	}
	send(t, h, sess, intent.General, "skip")
	send(t, h, sess, intent.General, "meh")
	if sess.State != session.StateReviewAwaitingComment {
		t.Fatalf("short comment must be refused, got %s", sess.State)
	}
	send(t, h, sess, intent.General, "Keeps my tea hot all day long")
	if sess.State != session.StateReviewConfirming {
		t.Fatalf("expected confirming, got %s", sess.State)
	}
	resp := send(t, h, sess, intent.General, "submit")
	if sess.State != session.StateIdle || !strings.Contains(resp.Message, "Review Submitted") {
		t.Fatalf("unexpected result in %s: %q", sess.State, resp.Message)
	}
	if len(f.backend.reviewReqs) != 1 {
		t.Fatalf("expected one review, got %d", len(f.backend.reviewReqs))
	}
	if r := f.backend.reviewReqs[0]; r.Rating != 4 || r.Title != "" || r.OrderID != "o-1" {
		t.Errorf("unexpected review request %+v", r)
	}
	if len(f.analytics.events) != 1 || f.analytics.events[0].Type != store.EventReviewSubmitted {
		t.Errorf("expected a review event, got %+v", f.analytics.events)
	}
}

func TestReviewIneligible(t *testing.T) {
	f := newFixture()
	f.backend.eligibility = models.ReviewEligibility{Success: true, Reason: models.ReasonAlreadyReviewed}
	h := NewReview(f.deps)
	sess := newSession()

	resp := send(t, h, sess, intent.ReviewSubmit, "review the vacuum cup")
	if sess.State != session.StateIdle {
		t.Fatalf("expected idle, got %s", sess.State)
	}
	if !strings.Contains(resp.Message, "already reviewed") {
		t.Errorf("unexpected message %q", resp.Message)
	}
}

func TestReviewViewShowsListing(t *testing.T) {
	f := newFixture()
	f.backend.reviews = models.ReviewsResult{
		Success:            true,
		AverageRating:      4.5,
		TotalReviews:       2,
		RatingDistribution: map[int]int{5: 1, 4: 1},
		Reviews: []models.Review{
			{User: "Hari", Rating: 5, Title: "Love it", Comment: "Best cup I have owned.", IsVerifiedPurchase: true},
			{User: "", Rating: 4, Comment: "Good value."},
		},
	}
	h := NewReview(f.deps)
	sess := newSession()

	resp := send(t, h, sess, intent.ReviewView, "show reviews")
	if sess.State != session.StateReviewSelectingProduct {
		t.Fatalf("expected product selection, got %s", sess.State)
	}
	resp = send(t, h, sess, intent.General, "1")
	if sess.State != session.StateIdle {
		t.Fatalf("expected idle, got %s", sess.State)
	}
	for _, want := range []string{"Rating Distribution", "**Hari** ★★★★★ ✓", "**Anonymous**", "*Love it*"} {
		if !strings.Contains(resp.Message, want) {
			t.Errorf("expected %q in %q", want, resp.Message)
		}
	}
}

func TestProductSearchAndDetail(t *testing.T) {
	f := newFixture()
	h := NewProduct(f.deps)
	sess := newSession()

	resp := send(t, h, sess, intent.ProductSearch, "show me kitchen items")
	if len(resp.Products) != 2 {
		t.Fatalf("expected two kitchen products, got %d", len(resp.Products))
	}
	if len(sess.LastViewedProducts) != 2 {
		t.Errorf("expected last viewed products set, got %d", len(sess.LastViewedProducts))
	}

	resp = send(t, h, sess, intent.Categories, "what categories do you have")
	if len(resp.Categories) != 2 || resp.QuickReplies[0] != "Kitchen" {
		t.Errorf("unexpected categories %v %v", resp.Categories, resp.QuickReplies)
	}

	text := DetailText(testProducts[2])
	for _, want := range []string{"~~Rs. 900~~", "Out of Stock", "**Category:** Clothing"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in %q", want, text)
		}
	}
}

func TestProductFlashSale(t *testing.T) {
	f := newFixture()
	h := NewProduct(f.deps)
	resp := send(t, h, newSession(), intent.FlashSale, "any deals?")
	if len(resp.Products) != 1 || !strings.Contains(resp.Message, "1 amazing deals") {
		t.Errorf("unexpected flash sale reply %q %d", resp.Message, len(resp.Products))
	}
}

func TestConfirmationFallbacks(t *testing.T) {
	b := newBase(Deps{})
	ctx := context.Background()
	for _, in := range []string{"yes", "Yeah", "yup", "ya"} {
		if !b.isConfirmation(ctx, in) {
			t.Errorf("expected %q to confirm", in)
		}
	}
	for _, in := range []string{"you", "your order", "no"} {
		if b.isConfirmation(ctx, in) {
			t.Errorf("expected %q not to confirm", in)
		}
	}
	for _, in := range []string{"no", "nah", "nop"} {
		if !b.isRejection(ctx, in) {
			t.Errorf("expected %q to reject", in)
		}
	}
	if b.isRejection(ctx, "now") {
		t.Error("now is not a rejection")
	}
}
