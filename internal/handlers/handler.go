// Package handlers implements the conversation flows of the shop assistant. Each handler owns
// the states of one flow and turns a customer message into a Response; handlers never return
// errors, failures become apologetic messages with safe quick replies.
package handlers

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/BTreeMap/ovnchat/internal/catalog"
	"github.com/BTreeMap/ovnchat/internal/delivery"
	"github.com/BTreeMap/ovnchat/internal/entity"
	"github.com/BTreeMap/ovnchat/internal/genai"
	"github.com/BTreeMap/ovnchat/internal/intent"
	"github.com/BTreeMap/ovnchat/internal/models"
	"github.com/BTreeMap/ovnchat/internal/search"
	"github.com/BTreeMap/ovnchat/internal/session"
	"github.com/BTreeMap/ovnchat/internal/store"
)

// Backend is the part of the shop API the flows call. *backend.Client satisfies it.
type Backend interface {
	CreateOrder(ctx context.Context, req models.OrderRequest) models.OrderResult
	OrdersByPhone(ctx context.Context, phone string) models.OrdersResult
	OrderDetail(ctx context.Context, orderID, contact string) models.OrderDetailResult
	ProductReviews(ctx context.Context, productID int) models.ReviewsResult
	CanReview(ctx context.Context, productID int) models.ReviewEligibility
	SubmitReview(ctx context.Context, productID int, req models.ReviewRequest) models.SubmitResult
	SubmitContact(ctx context.Context, req models.ContactRequest) models.SubmitResult
}

// EventRecorder stores analytics events.
type EventRecorder interface {
	RecordEvent(ctx context.Context, e store.Event) error
}

// MemoryRecorder remembers customers across sessions. *session.Manager satisfies it.
type MemoryRecorder interface {
	UpdateUserMemory(ctx context.Context, phone string, u store.MemoryUpdate) error
	RecordOrder(ctx context.Context, phone, orderID string, total float64, category string) error
}

// Deps are the services the handlers share. Only Backend and Catalog are required.
type Deps struct {
	Backend   Backend
	Catalog   catalog.Catalog
	Search    *search.Engine
	AI        *genai.Engine
	Delivery  *delivery.Table
	Analytics EventRecorder
	Memory    MemoryRecorder
	Now       func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Search == nil && d.Catalog != nil {
		d.Search = search.NewEngine(d.Catalog)
	}
	if d.AI == nil {
		d.AI = genai.NewEngine(nil, nil)
	}
	if d.Delivery == nil {
		d.Delivery = delivery.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Entities is what the orchestrator learned about a message before dispatch.
type Entities struct {
	entity.Bundle
	Intent     intent.Intent
	Confidence float64
}

// Response is a handler's answer. NextState moves the session within the handler's flow;
// ResetState returns it to idle first, so both together restart the flow. Context, when set,
// replaces the flow context on entering NextState.
type Response struct {
	Message      string              `json:"message"`
	Products     []models.Product    `json:"products"`
	Categories   []string            `json:"categories"`
	QuickReplies []string            `json:"quick_replies"`
	NextState    session.State       `json:"-"`
	ResetState   bool                `json:"-"`
	Context      session.FlowContext `json:"-"`
	Metadata     map[string]any      `json:"metadata"`
}

// Apply moves sess to the state r asks for.
func (r Response) Apply(sess *session.Session) {
	if r.ResetState {
		sess.Reset()
	}
	switch {
	case r.NextState != "":
		sess.SetState(r.NextState, r.Context)
	case !r.ResetState:
		sess.Settle()
	}
}

// Handler owns one conversation flow.
type Handler interface {
	// CanHandle reports whether the handler starts a flow for in from state, or owns state.
	CanHandle(in intent.Intent, state session.State) bool
	Handle(ctx context.Context, msg string, sess *session.Session, e Entities) Response
}

// Quick reply sets shared by several flows.
var (
	GreetingReplies     = []string{"Browse Products", "Track Order", "Flash Sales", "Get Help"}
	afterSupportReplies = []string{"Browse Products", "Track Order"}
	confirmReplies      = []string{"Submit", "Cancel"}
)

var (
	quickConfirmations = []string{"yes", "y", "yeah", "yep", "yup", "ok", "okay", "sure", "ha", "ho"}
	quickRejections    = []string{"no", "n", "nope", "nah", "cancel", "hoina"}
	skipWords          = []string{"skip", "none", "no", "n/a", "na", "-", "nothing"}
)

// base carries the helpers every handler uses.
type base struct {
	Deps
}

func newBase(d Deps) base {
	return base{Deps: d.withDefaults()}
}

// isConfirmation checks the common short answers, then asks the model, then accepts a short
// word starting with "y".
func (b base) isConfirmation(ctx context.Context, msg string) bool {
	m := strings.ToLower(strings.TrimSpace(msg))
	if slices.Contains(quickConfirmations, m) {
		return true
	}
	if b.AI.Available() && b.AI.IsConfirmation(ctx, msg) {
		return true
	}
	return len(m) <= 4 && strings.HasPrefix(m, "y") && m != "you" && m != "your"
}

// isRejection mirrors isConfirmation for "no".
func (b base) isRejection(ctx context.Context, msg string) bool {
	m := strings.ToLower(strings.TrimSpace(msg))
	if slices.Contains(quickRejections, m) {
		return true
	}
	if b.AI.Available() && b.AI.IsRejection(ctx, msg) {
		return true
	}
	return len(m) <= 3 && strings.HasPrefix(m, "n") && m != "new" && m != "now"
}

func isSkip(msg string) bool {
	return slices.Contains(skipWords, strings.ToLower(strings.TrimSpace(msg)))
}

// products returns the catalog, or nil when it cannot be read.
func (b base) products(ctx context.Context) []models.Product {
	ps, err := b.Catalog.Products(ctx)
	if err != nil {
		slog.Warn("handlers.products: catalog unavailable", "error", err)
		return nil
	}
	return ps
}

// featured returns up to limit featured products, or nil.
func (b base) featured(ctx context.Context, limit int) []models.Product {
	ps, err := b.Catalog.Featured(ctx, limit)
	if err != nil {
		slog.Warn("handlers.featured: catalog unavailable", "error", err)
		return nil
	}
	return ps
}

// findByName resolves a product the customer named.
func (b base) findByName(ctx context.Context, name string) (models.Product, bool) {
	return search.FindByName(b.products(ctx), name)
}

// record stores an analytics event. Failures are logged and ignored.
func (b base) record(ctx context.Context, eventType string, sess *session.Session, in intent.Intent, meta map[string]any) {
	if b.Analytics == nil {
		return
	}
	ev := store.NewEvent(eventType, sess.SessionID, string(in), meta, b.Now())
	if err := b.Analytics.RecordEvent(ctx, ev); err != nil {
		slog.Warn("handlers.record: analytics write failed", "event", eventType, "session_id", sess.SessionID, "error", err)
	}
}

// remember stores m on the session and, when the customer's phone is known, in user memory.
func (b base) remember(ctx context.Context, sess *session.Session, m session.Memory) {
	sess.Remember(m)
	if b.Memory == nil || sess.UserPhone == "" {
		return
	}
	u := store.MemoryUpdate{Name: m.Name, Email: m.Email, Location: m.Location, Landmark: m.Landmark}
	if u.Empty() {
		return
	}
	if err := b.Memory.UpdateUserMemory(ctx, sess.UserPhone, u); err != nil {
		slog.Warn("handlers.remember: memory write failed", "session_id", sess.SessionID, "error", err)
	}
}

// productName is the display name of p cut to n runes.
func productName(p *models.Product, n int) string {
	if p == nil || p.Name == "" {
		return "Product"
	}
	return models.TruncateRunes(p.Name, n)
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
