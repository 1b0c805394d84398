// Package testutil provides common test fixtures and HTTP helpers for ovnchat tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/ovnchat/internal/catalog"
	"github.com/BTreeMap/ovnchat/internal/chatbot"
	"github.com/BTreeMap/ovnchat/internal/models"
	"github.com/BTreeMap/ovnchat/internal/session"
	"github.com/BTreeMap/ovnchat/internal/store"
)

// FixedNow is the clock of every fixture.
var FixedNow = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

// Products is the catalog of every fixture.
var Products = []models.Product{
	{ID: 1, Name: "Vacuum Cup 500ml", Price: 1250, Category: "Kitchen", Stock: 10, IsFeatured: true},
	{ID: 2, Name: "Steel Water Bottle", Price: 800, Category: "Kitchen", Stock: 5},
	{ID: 3, Name: "Cotton Kurta", Price: 2200, Category: "Clothing", Stock: 3},
}

// Categories is the category list of every fixture.
var Categories = []models.Category{{ID: 1, Name: "Kitchen"}, {ID: 2, Name: "Clothing"}}

// Backend is a canned shop backend. Zero values answer with empty successes.
type Backend struct {
	mu       sync.Mutex
	Orders   models.OrdersResult
	Detail   models.OrderDetailResult
	Created  []models.OrderRequest
	Contacts []models.ContactRequest
}

func (b *Backend) CreateOrder(ctx context.Context, req models.OrderRequest) models.OrderResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Created = append(b.Created, req)
	return models.OrderResult{Success: true, OrderID: "a1b2c3d4", OrderNumber: "ORD-1"}
}

func (b *Backend) OrdersByPhone(ctx context.Context, phone string) models.OrdersResult {
	return b.Orders
}

func (b *Backend) OrderDetail(ctx context.Context, orderID, contact string) models.OrderDetailResult {
	if b.Detail.Order == nil && b.Detail.Error == "" {
		return models.OrderDetailResult{Error: "Order not found"}
	}
	return b.Detail
}

func (b *Backend) ProductReviews(ctx context.Context, productID int) models.ReviewsResult {
	return models.ReviewsResult{}
}

func (b *Backend) CanReview(ctx context.Context, productID int) models.ReviewEligibility {
	return models.ReviewEligibility{}
}

func (b *Backend) SubmitReview(ctx context.Context, productID int, req models.ReviewRequest) models.SubmitResult {
	return models.SubmitResult{Success: true}
}

func (b *Backend) SubmitContact(ctx context.Context, req models.ContactRequest) models.SubmitResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Contacts = append(b.Contacts, req)
	return models.SubmitResult{Success: true, ID: "T-1"}
}

// Env is a chatbot wired to in-memory dependencies.
type Env struct {
	Bot      *chatbot.Bot
	Sessions *session.Manager
	Store    *store.InMemoryStore
	Backend  *Backend
}

// NewEnv creates a chatbot over an in-memory store and the fixture catalog. relay may be nil.
func NewEnv(relay chatbot.Relay) *Env {
	now := func() time.Time { return FixedNow }
	st := store.NewInMemoryStore(store.WithClock(now))
	sessions := session.NewManager(session.WithStore(st), session.WithClock(now))
	backend := &Backend{}
	bot := chatbot.New(chatbot.Deps{
		Sessions:  sessions,
		Backend:   backend,
		Catalog:   catalog.NewStatic(Products, Categories),
		Analytics: st,
		Relay:     relay,
		Now:       now,
	})
	return &Env{Bot: bot, Sessions: sessions, Store: st, Backend: backend}
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	response := DecodeJSON(t, rr)
	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}
	return response
}

// DecodeJSON decodes a JSON object response body.
func DecodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// MustMarshalJSON marshals v or fails the test.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals data into target or fails the test.
func MustUnmarshalJSON(t *testing.T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
