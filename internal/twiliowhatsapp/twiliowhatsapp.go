// Package twiliowhatsapp delivers chatbot replies to WhatsApp customers through a Twilio
// sender, for deployments without a linked WhatsApp device.
package twiliowhatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// AddressPrefix marks a WhatsApp address in Twilio's From and To fields.
const AddressPrefix = "whatsapp:"

// MaxBodyLength is the longest body Twilio accepts in one message, in characters.
const MaxBodyLength = 1600

// Sender delivers a reply to a customer's number.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Config is the Twilio account the bot sends from.
type Config struct {
	AccountSID string
	AuthToken  string
	// Sender is the store's WhatsApp number, with or without the whatsapp: prefix.
	Sender string
}

// Option adjusts a Config.
type Option func(*Config)

func WithAccountSID(sid string) Option {
	return func(c *Config) { c.AccountSID = sid }
}

func WithAuthToken(token string) Option {
	return func(c *Config) { c.AuthToken = token }
}

// WithSender sets the store's WhatsApp number, e.g. "+14155238886".
func WithSender(number string) Option {
	return func(c *Config) { c.Sender = number }
}

// Client posts replies to Twilio's Messages resource.
type Client struct {
	rest   *twilio.RestClient
	sender string
}

// Address normalises a customer or store number to "whatsapp:+<digits>".
func Address(number string) string {
	number = strings.TrimPrefix(strings.TrimSpace(number), AddressPrefix)
	if !strings.HasPrefix(number, "+") {
		number = "+" + number
	}
	return AddressPrefix + number
}

// NewClient returns a Client for the account in opts. The SID, token and sender are required.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	switch {
	case cfg.AccountSID == "" || cfg.AuthToken == "":
		return nil, fmt.Errorf("twilio: account SID and auth token are required")
	case cfg.Sender == "":
		return nil, fmt.Errorf("twilio: store WhatsApp number is required")
	}
	slog.Debug("twiliowhatsapp.NewClient: sending as", "sender", cfg.Sender)

	return &Client{
		rest:   twilio.NewRestClientWithParams(twilio.ClientParams{Username: cfg.AccountSID, Password: cfg.AuthToken}),
		sender: Address(cfg.Sender),
	}, nil
}

// SendMessage delivers body to the customer at to. Replies longer than MaxBodyLength go out as
// several messages, in order.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	parts := Split(body, MaxBodyLength)
	for i, part := range parts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("reply to %s interrupted after %d of %d parts: %w", to, i, len(parts), err)
		}
		params := &twilioApi.CreateMessageParams{}
		params.SetTo(Address(to))
		params.SetFrom(c.sender)
		params.SetBody(part)
		msg, err := c.rest.Api.CreateMessage(params)
		if err != nil {
			return fmt.Errorf("reply to %s via twilio: %w", to, err)
		}
		if msg != nil && msg.Sid != nil {
			slog.Debug("Client.SendMessage: queued", "to", to, "sid", *msg.Sid, "part", i+1, "parts", len(parts))
		}
	}
	return nil
}

// Split breaks body into chunks of at most limit characters, cutting at the last line break
// (or space) before the limit when there is one.
func Split(body string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(body) <= limit {
		return []string{body}
	}
	var parts []string
	runes := []rune(body)
	for len(runes) > limit {
		cut := limit
		head := string(runes[:limit])
		if i := strings.LastIndex(head, "\n"); i > 0 {
			cut = utf8.RuneCountInString(head[:i])
		} else if i := strings.LastIndex(head, " "); i > 0 {
			cut = utf8.RuneCountInString(head[:i])
		}
		parts = append(parts, strings.TrimRight(string(runes[:cut]), " \n"))
		runes = []rune(strings.TrimLeft(string(runes[cut:]), " \n"))
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

// SentMessage is one reply captured by a Recorder.
type SentMessage struct {
	To   string
	Body string
}

// Recorder is a Sender for tests and dry runs; it keeps replies in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []SentMessage
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// SendMessage implements Sender.
func (r *Recorder) SendMessage(ctx context.Context, to string, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, SentMessage{To: to, Body: body})
	return nil
}

// Messages returns a copy of what has been sent so far.
func (r *Recorder) Messages() []SentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SentMessage(nil), r.sent...)
}
