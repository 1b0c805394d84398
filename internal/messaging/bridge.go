package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/ovnchat/internal/chatbot"
	"github.com/BTreeMap/ovnchat/internal/models"
	"github.com/BTreeMap/ovnchat/internal/security"
	"github.com/BTreeMap/ovnchat/internal/store"
	"golang.org/x/sync/semaphore"
)

// SessionPrefix starts the session id of every chat-channel conversation.
const SessionPrefix = "wa:"

const (
	// DefaultConcurrency caps the inbound messages answered at once.
	DefaultConcurrency = 16
	// DefaultTurnTimeout bounds one answered message.
	DefaultTurnTimeout = 30 * time.Second
	nepalCountryCode   = "977"
)

// Chatter answers a customer message. *chatbot.Bot satisfies it.
type Chatter interface {
	Chat(ctx context.Context, message, sessionID, phone string) chatbot.Reply
}

// BridgeOpts configures a Bridge.
type BridgeOpts struct {
	Concurrency int64
	TurnTimeout time.Duration
	Dedup       store.DedupRepo
	Middleware  *security.Middleware
}

// BridgeOption configures a Bridge.
type BridgeOption func(*BridgeOpts)

// WithConcurrency caps concurrent turns.
func WithConcurrency(n int64) BridgeOption {
	return func(o *BridgeOpts) { o.Concurrency = n }
}

// WithTurnTimeout bounds one turn.
func WithTurnTimeout(d time.Duration) BridgeOption {
	return func(o *BridgeOpts) { o.TurnTimeout = d }
}

// WithMiddleware rate-limits and sanitizes inbound text with m. Without it the bridge uses a
// middleware with default limits.
func WithMiddleware(m *security.Middleware) BridgeOption {
	return func(o *BridgeOpts) { o.Middleware = m }
}

// WithDedup drops inbound messages whose id was already recorded.
func WithDedup(repo store.DedupRepo) BridgeOption {
	return func(o *BridgeOpts) { o.Dedup = repo }
}

// Bridge answers inbound channel messages with the chatbot and relays operator messages to
// customers.
type Bridge struct {
	svc  Service
	bot  Chatter
	opts BridgeOpts
	sem  *semaphore.Weighted

	mu        sync.Mutex
	addresses map[string]string
	choices   map[string][]string
}

// NewBridge connects svc to bot.
func NewBridge(svc Service, bot Chatter, opts ...BridgeOption) *Bridge {
	o := BridgeOpts{Concurrency: DefaultConcurrency, TurnTimeout: DefaultTurnTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.Middleware == nil {
		o.Middleware = security.NewMiddleware(nil)
	}
	return &Bridge{
		svc:       svc,
		bot:       bot,
		opts:      o,
		sem:       semaphore.NewWeighted(o.Concurrency),
		addresses: make(map[string]string),
		choices:   make(map[string][]string),
	}
}

// SessionID is the chatbot session of the customer at the E.164 number from. Nepal numbers
// use their local 10-digit form.
func SessionID(from string) string {
	if local := security.NormalizePhone(from); local != "" {
		return SessionPrefix + local
	}
	return SessionPrefix + strings.TrimPrefix(from, "+")
}

// Run answers inbound messages until ctx ends or the service closes its channel, then waits
// for turns in flight.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.sem.Acquire(context.Background(), b.opts.Concurrency)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-b.svc.Responses():
			if !ok {
				slog.Info("Bridge.Run: responses channel closed")
				return nil
			}
			if err := b.sem.Acquire(ctx, 1); err != nil {
				return err
			}
			go func(msg models.Inbound) {
				defer b.sem.Release(1)
				tctx, cancel := context.WithTimeout(ctx, b.opts.TurnTimeout)
				defer cancel()
				if err := b.Handle(tctx, msg); err != nil {
					slog.Error("Bridge.Run: message not answered", "from", msg.From, "error", err)
				}
			}(msg)
		}
	}
}

// Handle answers one inbound message.
func (b *Bridge) Handle(ctx context.Context, msg models.Inbound) error {
	sessionID := SessionID(msg.From)
	if b.opts.Dedup != nil && msg.ID != "" {
		fresh, err := b.opts.Dedup.RecordInbound(ctx, msg.ID, sessionID)
		if err != nil {
			slog.Warn("Bridge.Handle: dedup unavailable", "message_id", msg.ID, "error", err)
		} else if !fresh {
			slog.Debug("Bridge.Handle: duplicate message dropped", "message_id", msg.ID, "session_id", sessionID)
			return nil
		}
	}

	b.mu.Lock()
	b.addresses[sessionID] = msg.From
	text := b.expandChoice(sessionID, msg.Body)
	b.mu.Unlock()

	ok, clean, errMsg, wait := b.opts.Middleware.Process(sessionID, text)
	if !ok {
		slog.Info("Bridge.Handle: message rejected", "session_id", sessionID, "wait_seconds", wait)
		if err := b.svc.SendMessage(ctx, msg.From, errMsg); err != nil {
			return fmt.Errorf("send rejection to %s: %w", sessionID, err)
		}
		b.markProcessed(ctx, msg.ID)
		return nil
	}

	reply := b.bot.Chat(ctx, clean, sessionID, security.NormalizePhone(msg.From))

	b.mu.Lock()
	if pickable(reply) {
		b.choices[sessionID] = reply.QuickReplies
	} else {
		delete(b.choices, sessionID)
	}
	b.mu.Unlock()

	if reply.Response == "" {
		return nil
	}
	if err := b.svc.SendMessage(ctx, msg.From, FormatReply(reply)); err != nil {
		return fmt.Errorf("send reply to %s: %w", sessionID, err)
	}
	b.markProcessed(ctx, msg.ID)
	return nil
}

func (b *Bridge) markProcessed(ctx context.Context, id string) {
	if b.opts.Dedup == nil || id == "" {
		return
	}
	if err := b.opts.Dedup.MarkProcessed(ctx, id); err != nil {
		slog.Warn("Bridge.Handle: mark processed failed", "message_id", id, "error", err)
	}
}

// Relay sends an operator's text to the customer of sessionID. It implements chatbot.Relay.
// Sessions that did not come from this channel are ignored.
func (b *Bridge) Relay(ctx context.Context, sessionID, text string) error {
	if !strings.HasPrefix(sessionID, SessionPrefix) {
		return nil
	}
	b.mu.Lock()
	to, ok := b.addresses[sessionID]
	delete(b.choices, sessionID)
	b.mu.Unlock()
	if !ok {
		to = addressFor(strings.TrimPrefix(sessionID, SessionPrefix))
	}
	return b.svc.SendMessage(ctx, to, text)
}

// addressFor turns a session phone back into an E.164 number.
func addressFor(phone string) string {
	if len(phone) == 10 {
		return "+" + nepalCountryCode + phone
	}
	return "+" + phone
}

var numberedLine = regexp.MustCompile(`(?m)^\s*1[.)]\s`)

// pickable reports whether a customer may answer reply's quick replies by number. Replies that
// already carry a numbered list keep numbers for that list.
func pickable(r chatbot.Reply) bool {
	return len(r.QuickReplies) > 0 && len(r.Products) == 0 && !numberedLine.MatchString(r.Response)
}

// expandChoice replaces a bare number with the quick reply it picks. Callers hold b.mu.
func (b *Bridge) expandChoice(sessionID, body string) string {
	choices := b.choices[sessionID]
	n, err := strconv.Atoi(strings.TrimSpace(body))
	if err != nil || n < 1 || n > len(choices) {
		return body
	}
	return choices[n-1]
}

// FormatReply renders a reply as plain chat text. Quick replies become a numbered list, or a
// bulleted one when the reply already numbers something else.
func FormatReply(r chatbot.Reply) string {
	text := strings.ReplaceAll(r.Response, "**", "*")
	if len(r.QuickReplies) == 0 {
		return text
	}
	numbered := pickable(r)
	var sb strings.Builder
	sb.WriteString(text)
	sb.WriteString("\n")
	for i, q := range r.QuickReplies {
		sb.WriteByte('\n')
		if numbered {
			fmt.Fprintf(&sb, "%d. %s", i+1, q)
		} else {
			fmt.Fprintf(&sb, "• %s", q)
		}
	}
	return sb.String()
}
