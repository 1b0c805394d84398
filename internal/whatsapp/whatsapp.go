// Package whatsapp connects the shop assistant to WhatsApp through whatsmeow. The device
// session lives in a SQLite or PostgreSQL database; first start prints a login QR code.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/BTreeMap/ovnchat/internal/store"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
)

const (
	// DefaultSQLitePath is where the whatsmeow device store lives when no DSN is given.
	DefaultSQLitePath = "/var/lib/ovnchat/whatsmeow.db"
	// JIDSuffix is the server part of a personal WhatsApp JID.
	JIDSuffix = "s.whatsapp.net"
)

// Sender sends a text message to a phone number given as digits with country code.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Opts configures the device store and login.
type Opts struct {
	DBDSN       string
	QRPath      string
	NumericCode bool
}

// Option configures a Client.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow database DSN.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) {
		o.DBDSN = dsn
	}
}

// WithQRCodeOutput writes the login QR code to path instead of stdout.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) {
		o.QRPath = path
	}
}

// WithNumericCode prints the raw pairing code instead of a QR code.
func WithNumericCode() Option {
	return func(o *Opts) {
		o.NumericCode = true
	}
}

// Client is a connected whatsmeow client.
type Client struct {
	waClient *whatsmeow.Client
}

// driverFor picks the database/sql driver for dsn.
func driverFor(dsn string) string {
	if store.DetectDSNType(dsn) == "postgres" {
		return "postgres"
	}
	return "sqlite3"
}

// NewClient opens the device store and connects, running the QR login when the device is new.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	dsn := cfg.DBDSN
	if dsn == "" {
		dsn = DefaultSQLitePath
	}
	driver := driverFor(dsn)
	if driver == "sqlite3" && !strings.Contains(dsn, "foreign_keys") {
		slog.Warn("whatsapp.NewClient: SQLite device store without foreign keys", "hint", "file:"+dsn+"?_foreign_keys=on")
	}
	slog.Debug("whatsapp.NewClient: opening device store", "driver", driver, "qr_path_set", cfg.QRPath != "", "numeric_code", cfg.NumericCode)

	container, err := sqlstore.New(ctx, driver, dsn, waLog.Stdout("Database", "INFO", true))
	if err != nil {
		return nil, fmt.Errorf("open whatsapp device store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load whatsapp device: %w", err)
	}
	wa := whatsmeow.NewClient(device, waLog.Stdout("Client", "INFO", true))

	if wa.Store.ID == nil {
		if err := login(ctx, wa, cfg); err != nil {
			return nil, err
		}
	} else if err := wa.Connect(); err != nil {
		return nil, fmt.Errorf("connect to whatsapp: %w", err)
	}
	slog.Info("whatsapp.NewClient: connected")
	return &Client{waClient: wa}, nil
}

// login connects a new device and prints pairing codes until the QR channel closes.
func login(ctx context.Context, wa *whatsmeow.Client, cfg Opts) error {
	slog.Info("whatsapp.login: device not paired, starting QR login")
	qrChan, err := wa.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("whatsapp qr channel: %w", err)
	}
	if err := wa.Connect(); err != nil {
		return fmt.Errorf("connect to whatsapp for login: %w", err)
	}

	out := io.Writer(os.Stdout)
	if cfg.QRPath != "" {
		f, err := os.Create(cfg.QRPath)
		if err != nil {
			return fmt.Errorf("create qr file: %w", err)
		}
		defer f.Close()
		out = f
	}
	for evt := range qrChan {
		if evt.Event != "code" {
			slog.Info("whatsapp.login: login event", "event", evt.Event)
			continue
		}
		if cfg.NumericCode {
			fmt.Fprintln(out, evt.Code)
		} else {
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, out)
		}
	}
	return nil
}

// SendMessage sends body as a plain conversation message.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	if c.waClient == nil || c.waClient.Store == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	to = strings.TrimPrefix(to, "+")
	if to == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	if body == "" {
		return fmt.Errorf("message body cannot be empty")
	}
	msg := &waE2E.Message{Conversation: &body}
	if _, err := c.waClient.SendMessage(ctx, types.NewJID(to, JIDSuffix), msg); err != nil {
		return fmt.Errorf("send whatsapp message to %s: %w", to, err)
	}
	slog.Debug("Client.SendMessage: sent", "to", to, "body_length", len(body))
	return nil
}

// WA exposes the whatsmeow client for event handlers.
func (c *Client) WA() *whatsmeow.Client {
	return c.waClient
}

// Disconnect closes the websocket to WhatsApp.
func (c *Client) Disconnect() {
	if c.waClient != nil {
		c.waClient.Disconnect()
	}
}

// SentMessage is a message recorded by MockClient.
type SentMessage struct {
	To   string
	Body string
}

// MockClient records messages instead of sending them.
type MockClient struct {
	Sent []SentMessage
	Err  error
}

// NewMockClient returns an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// SendMessage records the message and returns m.Err.
func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, SentMessage{To: to, Body: body})
	return nil
}
