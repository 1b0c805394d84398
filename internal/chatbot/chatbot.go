// Package chatbot is the conversation orchestrator. Bot.Chat takes one customer message
// through session lookup, cancellation, entity and intent detection, dispatch to a flow
// handler and persistence, and always returns a Reply.
package chatbot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/BTreeMap/ovnchat/internal/catalog"
	"github.com/BTreeMap/ovnchat/internal/delivery"
	"github.com/BTreeMap/ovnchat/internal/entity"
	"github.com/BTreeMap/ovnchat/internal/genai"
	"github.com/BTreeMap/ovnchat/internal/handlers"
	"github.com/BTreeMap/ovnchat/internal/intent"
	"github.com/BTreeMap/ovnchat/internal/models"
	"github.com/BTreeMap/ovnchat/internal/nepali"
	"github.com/BTreeMap/ovnchat/internal/search"
	"github.com/BTreeMap/ovnchat/internal/session"
	"github.com/BTreeMap/ovnchat/internal/store"
	"github.com/BTreeMap/ovnchat/internal/util"
)

// DefaultSessionID is used when a caller sends no session id.
const DefaultSessionID = "default"

const (
	lowConfidence     = 0.3
	productConfidence = 0.7
	nepaliMinimum     = 0.3
	historyForIntent  = 5
	historyForAI      = 6
	phoneMessageRunes = 15
	phoneHistoryLimit = 5
)

// Relay delivers an operator's message to the customer's channel, e.g. WhatsApp.
type Relay interface {
	Relay(ctx context.Context, sessionID, text string) error
}

// Deps are the collaborators of a Bot. Sessions, Backend and Catalog are required.
type Deps struct {
	Sessions  *session.Manager
	Backend   handlers.Backend
	Catalog   catalog.Catalog
	AI        *genai.Engine
	Delivery  *delivery.Table
	Analytics handlers.EventRecorder
	Responder *nepali.Responder
	Relay     Relay
	Now       func() time.Time
}

// Reply is the answer to one customer message.
type Reply struct {
	Success      bool             `json:"success"`
	Response     string           `json:"response"`
	Products     []models.Product `json:"products"`
	Categories   []string         `json:"categories"`
	QuickReplies []string         `json:"quick_replies"`
	Intent       intent.Intent    `json:"intent"`
	Metadata     map[string]any   `json:"metadata"`
	SessionID    string           `json:"session_id"`
}

// Bot routes messages to the flow handlers.
type Bot struct {
	deps      Deps
	tracking  *handlers.Tracking
	placement *handlers.Placement
	support   *handlers.Support
	review    *handlers.Review
	product   *handlers.Product
	byGroup   map[session.Group]handlers.Handler
	byIntent  map[intent.Intent]handlers.Handler
}

// New wires a Bot and its handlers.
func New(d Deps) *Bot {
	if d.AI == nil {
		d.AI = genai.NewEngine(nil, nil)
	}
	if d.Delivery == nil {
		d.Delivery = delivery.Default()
	}
	if d.Responder == nil {
		d.Responder = nepali.NewResponder()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	hd := handlers.Deps{
		Backend:   d.Backend,
		Catalog:   d.Catalog,
		Search:    search.NewEngine(d.Catalog),
		AI:        d.AI,
		Delivery:  d.Delivery,
		Analytics: d.Analytics,
		Now:       d.Now,
	}
	if d.Sessions != nil {
		hd.Memory = d.Sessions
	}

	b := &Bot{
		deps:      d,
		tracking:  handlers.NewTracking(hd),
		placement: handlers.NewPlacement(hd),
		support:   handlers.NewSupport(hd),
		review:    handlers.NewReview(hd),
		product:   handlers.NewProduct(hd),
	}
	b.byGroup = map[session.Group]handlers.Handler{
		session.GroupOrderTracking:  b.tracking,
		session.GroupOrderPlacement: b.placement,
		session.GroupSupport:        b.support,
		session.GroupReview:         b.review,
	}
	b.byIntent = map[intent.Intent]handlers.Handler{
		intent.OrderTracking:  b.tracking,
		intent.OrderPlacement: b.placement,
		intent.Support:        b.support,
		intent.ReviewView:     b.review,
		intent.ReviewSubmit:   b.review,
		intent.ProductSearch:  b.product,
		intent.FlashSale:      b.product,
		intent.Categories:     b.product,
		intent.ProductDetail:  b.product,
	}
	return b
}

// Chat answers message for sessionID. phone, when known to the transport, pre-fills a
// returning customer's details. Chat never fails; problems become a friendly error reply.
func (b *Bot) Chat(ctx context.Context, message, sessionID, phone string) (reply Reply) {
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Bot.Chat: recovered from panic", "session_id", sessionID, "panic", r, "stack", string(debug.Stack()))
			reply = errorReply(sessionID)
		}
	}()

	sess := b.deps.Sessions.GetOrCreate(ctx, sessionID, phone)
	sess.Lock()
	reply = b.turn(ctx, strings.TrimSpace(message), sess, phone)
	sess.Unlock()

	if err := b.deps.Sessions.Save(ctx, sess); err != nil {
		slog.Warn("Bot.Chat: session not saved", "session_id", sessionID, "error", err)
	}
	reply.SessionID = sessionID
	return reply
}

func errorReply(sessionID string) Reply {
	return Reply{
		Response:     models.FriendlyError(models.ErrorKindServer, false),
		QuickReplies: models.ErrorQuickReplies(models.ErrorKindServer),
		Intent:       intent.General,
		SessionID:    sessionID,
	}
}

// turn runs with sess locked.
func (b *Bot) turn(ctx context.Context, message string, sess *session.Session, phone string) Reply {
	if phone != "" && sess.UserPhone == "" {
		sess.Remember(session.Memory{Phone: phone})
	}
	sess.AddMessage(session.RoleUser, message)

	if sess.AdminHandling {
		slog.Debug("Bot.turn: admin is handling session", "session_id", sess.SessionID, "admin_id", sess.AdminID)
		return Reply{Success: true, Intent: intent.General, Metadata: map[string]any{"admin_handling": true}}
	}

	if session.ShouldCancel(message) && session.IsInFlow(sess) {
		slog.Debug("Bot.turn: flow cancelled", "session_id", sess.SessionID, "state", sess.State)
		sess.Reset()
		return b.say(sess, intent.General, "Cancelled. How else can I help you?", handlers.GreetingReplies)
	}

	bundle := entity.Extract(message)
	detected := intent.Detect(message, intentHistory(sess.RecentHistory(historyForIntent)))
	nep := nepali.Detect(message)
	ents := handlers.Entities{Bundle: bundle, Intent: detected.Intent, Confidence: detected.Confidence}
	if sess.State == session.StateIdle {
		ents = b.override(message, sess, ents, nep)
	}
	slog.Debug("Bot.turn: routed", "session_id", sess.SessionID, "state", sess.State, "intent", ents.Intent, "confidence", ents.Confidence)

	var reply Reply
	if h := b.handlerFor(ents.Intent, sess.State); h != nil {
		resp := h.Handle(ctx, message, sess, ents)
		resp.Apply(sess)
		sess.AddMessage(session.RoleAssistant, resp.Message)
		reply = Reply{
			Success:      true,
			Response:     resp.Message,
			Products:     resp.Products,
			Categories:   resp.Categories,
			QuickReplies: resp.QuickReplies,
			Intent:       ents.Intent,
			Metadata:     resp.Metadata,
		}
	} else {
		reply = b.general(ctx, message, ents.Intent, sess, nep.IsNepali)
	}

	b.recordMessage(ctx, sess, ents, nep.IsNepali)
	return reply
}

func intentHistory(turns []session.Turn) []intent.Turn {
	out := make([]intent.Turn, len(turns))
	for i, t := range turns {
		out[i] = intent.Turn{Role: t.Role, Content: t.Content}
	}
	return out
}

var detailPhrases = []string{"tell me more", "more about", "details", "detail of", "describe", "what is the"}

// nepaliIntents maps Nepali phrase intents onto routable intents.
var nepaliIntents = map[string]intent.Intent{
	"greeting":        intent.Greeting,
	"order_tracking":  intent.OrderTracking,
	"order_placement": intent.OrderPlacement,
	"product_search":  intent.ProductSearch,
	"flash_sale":      intent.FlashSale,
	"support":         intent.Support,
	"thanks":          intent.Thanks,
	"bye":             intent.Bye,
	"policy":          intent.Policy,
	"price":           intent.ProductSearch,
}

// override adjusts the detected intent of a message sent while idle.
func (b *Bot) override(message string, sess *session.Session, ents handlers.Entities, nep nepali.Detection) handlers.Entities {
	digits := digitsOf(message)
	if ents.Phone() != "" || (len(digits) == 10 && len([]rune(message)) <= phoneMessageRunes) {
		ents.Intent = intent.OrderTracking
		if ents.Phone() == "" {
			ents.Phones = []string{digits}
		}
		return ents
	}

	if ents.Intent == intent.General && ents.Confidence < lowConfidence && intent.LooksLikeProduct(message) {
		ents.Intent, ents.Confidence = intent.ProductSearch, productConfidence
	}

	if ents.Intent == intent.General && nep.IsNepali {
		if name, conf := nepali.DetectIntent(message); conf >= nepaliMinimum {
			if in, ok := nepaliIntents[name]; ok {
				ents.Intent, ents.Confidence = in, conf
			}
		}
	}

	if (ents.Intent == intent.General || ents.Intent == intent.ProductSearch) && len(sess.LastViewedProducts) > 0 {
		lower := strings.ToLower(message)
		for _, p := range detailPhrases {
			if !strings.Contains(lower, p) {
				continue
			}
			if _, ok := search.FindForDetail(sess.LastViewedProducts, message); ok {
				ents.Intent = intent.ProductDetail
			}
			break
		}
	}
	return ents
}

// handlerFor dispatches by state first, then by intent.
func (b *Bot) handlerFor(in intent.Intent, state session.State) handlers.Handler {
	if state != session.StateIdle {
		if h, ok := b.byGroup[session.HandlerGroup(state)]; ok {
			return h
		}
	}
	if h, ok := b.byIntent[in]; ok && h.CanHandle(in, state) {
		return h
	}
	return nil
}

func (b *Bot) say(sess *session.Session, in intent.Intent, text string, quickReplies []string) Reply {
	sess.AddMessage(session.RoleAssistant, text)
	return Reply{Success: true, Response: text, QuickReplies: quickReplies, Intent: in}
}

const (
	greetingText = "👋 Hello! Welcome to OVN Store! 🛍️\n\nHow can I help you today? You can:\n" +
		"• 🔍 Browse products\n• 📦 Track orders\n• 🛒 Place orders\n• ❓ Ask me anything!\n\nJust type what you need! 😊"
	thanksText = "😊 You're welcome! Is there anything else I can help you with? 💜"
	byeText    = "👋 Thank you for visiting OVN Store! Have a great day! 🌟"
	policyText = "📋 **OVN Store Policies:**\n\n" +
		"• 🚚 **Free Shipping:** On orders above Rs. 1,000\n" +
		"• ↩️ **Return Policy:** 7-day return for unused items\n" +
		"• 💰 **Payment:** Cash on Delivery available\n" +
		"• 📅 **Delivery:** 3-5 business days in Nepal\n\nHow else can I help you?"
	fallbackText = "🤔 I'm not sure how to help with that. I can help you browse products, track orders, " +
		"or place new orders. What would you like to do?"
)

var cannedAnswers = []struct {
	phrases []string
	answer  string
}{
	{
		[]string{"where is your store", "your shop location", "physical store", "visit your shop"},
		"📍 OVN Store is an online store! We deliver across Nepal within 3-5 business days. You can browse products and order directly through this chat.",
	},
	{
		[]string{"payment method", "how to pay", "accept card", "online payment"},
		"💰 We accept Cash on Delivery (COD) only. You pay when your order arrives - no advance payment needed!",
	},
	{
		[]string{"who are you", "what are you", "are you a bot", "are you human", "what is ovn"},
		"🤖 I'm OVN Store's AI shopping assistant! I can help you find products, place orders, track deliveries, and answer questions. What would you like to do?",
	},
}

// CannedAnswer returns the fixed answer for a few store questions, or "".
func CannedAnswer(message string) string {
	lower := strings.ToLower(message)
	for _, c := range cannedAnswers {
		for _, p := range c.phrases {
			if strings.Contains(lower, p) {
				return c.answer
			}
		}
	}
	return ""
}

// general answers intents that have no flow.
func (b *Bot) general(ctx context.Context, message string, in intent.Intent, sess *session.Session, useNepali bool) Reply {
	switch in {
	case intent.Greeting:
		text := greetingText
		if useNepali {
			text = b.deps.Responder.Response(nepali.KindGreeting, true, nil)
		}
		return b.say(sess, in, text, handlers.GreetingReplies)
	case intent.Thanks:
		text := thanksText
		if useNepali {
			text = b.deps.Responder.Response(nepali.KindThanks, true, nil)
		}
		return b.say(sess, in, text, nil)
	case intent.Bye:
		text := byeText
		if useNepali {
			text = b.deps.Responder.Response(nepali.KindBye, true, nil)
		}
		return b.say(sess, in, text, nil)
	case intent.Policy:
		return b.say(sess, in, policyText, []string{"Browse Products", "Track Order"})
	}

	if answer := CannedAnswer(message); answer != "" {
		return b.say(sess, in, answer, nil)
	}
	if b.deps.AI.Available() {
		text := b.deps.AI.GenerateResponse(ctx, message, genai.Options{
			Intent:  string(in),
			Context: sess.Context,
			History: sess.RecentHistory(historyForAI),
			Fast:    true,
		})
		return b.say(sess, in, text, nil)
	}
	return b.say(sess, in, fallbackText, handlers.GreetingReplies)
}

func (b *Bot) recordMessage(ctx context.Context, sess *session.Session, ents handlers.Entities, useNepali bool) {
	if b.deps.Analytics == nil {
		return
	}
	ev := store.NewEvent(store.EventMessage, sess.SessionID, string(ents.Intent), map[string]any{
		"state":      string(sess.State),
		"confidence": ents.Confidence,
		"nepali":     useNepali,
	}, b.deps.Now())
	if err := b.deps.Analytics.RecordEvent(ctx, ev); err != nil {
		slog.Warn("Bot.recordMessage: analytics write failed", "session_id", sess.SessionID, "error", err)
	}
}

func digitsOf(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// SessionInfo is the admin view of a session.
type SessionInfo struct {
	session.Summary
	CreatedAt     time.Time      `json:"created_at"`
	LastActivity  time.Time      `json:"last_activity"`
	AdminHandling bool           `json:"admin_handling"`
	AdminID       string         `json:"admin_id,omitempty"`
	History       []session.Turn `json:"conversation_history"`
}

func infoOf(s *session.Session) SessionInfo {
	s.Lock()
	defer s.Unlock()
	return SessionInfo{
		Summary:       s.Summary(),
		CreatedAt:     s.CreatedAt,
		LastActivity:  s.LastActivity,
		AdminHandling: s.AdminHandling,
		AdminID:       s.AdminID,
		History:       append([]session.Turn(nil), s.History...),
	}
}

// SessionInfo returns the cached session id, or false when it is not live.
func (b *Bot) SessionInfo(id string) (SessionInfo, bool) {
	s := b.deps.Sessions.Get(id)
	if s == nil {
		return SessionInfo{}, false
	}
	return infoOf(s), true
}

// Sessions lists live sessions, most recently active first.
func (b *Bot) Sessions(ctx context.Context) []SessionInfo {
	all := b.deps.Sessions.All(ctx)
	out := make([]SessionInfo, len(all))
	for i, s := range all {
		out[i] = infoOf(s)
	}
	return out
}

// ClearSession ends a conversation. Its stored history is kept.
func (b *Bot) ClearSession(ctx context.Context, id string) error {
	if err := b.deps.Sessions.Delete(ctx, id); err != nil {
		return fmt.Errorf("clear session %s: %w", id, err)
	}
	slog.Debug("Bot.ClearSession: cleared", "session_id", id)
	return nil
}

// ActiveSessions counts live sessions.
func (b *Bot) ActiveSessions(ctx context.Context) int {
	return b.deps.Sessions.ActiveCount(ctx)
}

// History returns up to limit stored sessions of a customer, newest first. A non-positive
// limit returns the five most recent.
func (b *Bot) History(ctx context.Context, phone string, limit int) ([]store.SessionRecord, error) {
	if limit <= 0 {
		limit = phoneHistoryLimit
	}
	return b.deps.Sessions.SessionsByPhone(ctx, phone, limit)
}

// Takeover hands a session to a human operator; the bot stays silent until Release.
func (b *Bot) Takeover(ctx context.Context, id, adminID string) error {
	if err := b.deps.Sessions.SetAdminHandling(ctx, id, adminID, true); err != nil {
		return err
	}
	b.note(ctx, id, "An admin has joined this conversation.")
	slog.Info("Bot.Takeover: admin took over", "session_id", id, "admin_id", adminID)
	return nil
}

// Release gives a session back to the bot.
func (b *Bot) Release(ctx context.Context, id string) error {
	if err := b.deps.Sessions.SetAdminHandling(ctx, id, "", false); err != nil {
		return err
	}
	b.note(ctx, id, "Admin has left the conversation. Bot is now assisting you.")
	slog.Info("Bot.Release: session released", "session_id", id)
	return nil
}

// note adds a system line to the history of a cached session.
func (b *Bot) note(ctx context.Context, id, text string) {
	s := b.deps.Sessions.Get(id)
	if s == nil {
		return
	}
	s.Lock()
	s.AddMessage(session.RoleSystem, text)
	s.Unlock()
	if err := b.deps.Sessions.Save(ctx, s); err != nil {
		slog.Warn("Bot.note: session not saved", "session_id", id, "error", err)
	}
}

// ErrNotTakenOver is returned by AdminMessage for a session the bot is still handling.
var ErrNotTakenOver = fmt.Errorf("admin must take over the session first: %w", models.ErrValidation)

// AdminMessage adds an operator's message to a session's history and relays it to the
// customer's channel. It returns the message id.
func (b *Bot) AdminMessage(ctx context.Context, id, adminID, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty admin message: %w", models.ErrValidation)
	}
	s := b.deps.Sessions.Get(id)
	if s == nil {
		return "", fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	s.Lock()
	if !s.AdminHandling {
		s.Unlock()
		return "", ErrNotTakenOver
	}
	s.AddMessage(session.RoleAdmin, text)
	s.Unlock()
	msgID := util.GenerateAdminMessageID()
	if err := b.deps.Sessions.Save(ctx, s); err != nil {
		slog.Warn("Bot.AdminMessage: session not saved", "session_id", id, "error", err)
	}
	if b.deps.Relay != nil {
		if err := b.deps.Relay.Relay(ctx, id, text); err != nil {
			return msgID, fmt.Errorf("relay admin message: %w", err)
		}
	}
	slog.Info("Bot.AdminMessage: sent", "session_id", id, "admin_id", adminID, "message_id", msgID)
	return msgID, nil
}
