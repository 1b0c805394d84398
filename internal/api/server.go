// Package api serves the shop assistant over HTTP and WebSocket.
//
// Customers use /api/chat and /ws/chat. Operators use the /api/admin endpoints to watch
// conversations, take them over and read analytics. Channel webhooks such as Twilio's are
// mounted alongside.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/ovnchat/internal/chatbot"
	"github.com/BTreeMap/ovnchat/internal/security"
	"github.com/BTreeMap/ovnchat/internal/store"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-multierror"
)

const (
	// DefaultAddr is the listen address when none is configured.
	DefaultAddr = ":5000"
	// DefaultAnalyticsDays is the analytics window when the request names none.
	DefaultAnalyticsDays = 7
	// DefaultSessionsLimit is the page size of the admin session list.
	DefaultSessionsLimit = 50
	// DefaultShutdownTimeout bounds a graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second

	readHeaderTimeout = 10 * time.Second
	historyLimit      = 5
)

// Bot is the chatbot surface the server needs. *chatbot.Bot satisfies it.
type Bot interface {
	Chat(ctx context.Context, message, sessionID, phone string) chatbot.Reply
	SessionInfo(id string) (chatbot.SessionInfo, bool)
	Sessions(ctx context.Context) []chatbot.SessionInfo
	ClearSession(ctx context.Context, id string) error
	ActiveSessions(ctx context.Context) int
	History(ctx context.Context, phone string, limit int) ([]store.SessionRecord, error)
	Takeover(ctx context.Context, id, adminID string) error
	Release(ctx context.Context, id string) error
	AdminMessage(ctx context.Context, id, adminID, text string) (string, error)
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr           string
	AdminToken     string
	JWTSecret      string
	AllowedOrigins []string
	Middleware     *security.Middleware
	Analytics      *store.Analytics
	Sessions       store.SessionStore
	Webhooks       map[string]http.Handler
	Now            func() time.Time
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithAdminToken enables admin access with a shared X-Admin-Token value.
func WithAdminToken(token string) Option {
	return func(o *Opts) { o.AdminToken = token }
}

// WithJWTSecret enables admin access with HS256 bearer tokens signed by secret.
func WithJWTSecret(secret string) Option {
	return func(o *Opts) { o.JWTSecret = secret }
}

// WithAllowedOrigins restricts CORS and WebSocket origins. Empty allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(o *Opts) { o.AllowedOrigins = origins }
}

// WithMiddleware sets the rate limiter and sanitizer in front of chat.
func WithMiddleware(m *security.Middleware) Option {
	return func(o *Opts) { o.Middleware = m }
}

// WithAnalytics enables GET /api/admin/analytics.
func WithAnalytics(a *store.Analytics) Option {
	return func(o *Opts) { o.Analytics = a }
}

// WithSessionStore lets the admin endpoints read stored sessions, not only live ones.
func WithSessionStore(s store.SessionStore) Option {
	return func(o *Opts) { o.Sessions = s }
}

// WithWebhook mounts a channel webhook at path.
func WithWebhook(path string, h http.Handler) Option {
	return func(o *Opts) {
		if o.Webhooks == nil {
			o.Webhooks = make(map[string]http.Handler)
		}
		o.Webhooks[path] = h
	}
}

// WithClock sets the server clock.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// Server is the HTTP front of the shop assistant.
type Server struct {
	bot      Bot
	opts     Opts
	handler  http.Handler
	upgrader websocket.Upgrader

	mu      sync.Mutex
	srv     *http.Server
	clients map[*wsClient]struct{}
}

// NewServer creates a Server answering with bot.
func NewServer(bot Bot, opts ...Option) *Server {
	o := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Addr == "" {
		o.Addr = DefaultAddr
	}
	if o.Middleware == nil {
		o.Middleware = security.NewMiddleware(nil)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	s := &Server{
		bot:     bot,
		opts:    o,
		clients: make(map[*wsClient]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return s.originAllowed(r.Header.Get("Origin")) },
	}
	if o.AdminToken == "" && o.JWTSecret == "" {
		slog.Warn("NewServer: no admin credentials configured, admin endpoints will reject every request")
	}
	s.handler = s.withCORS(s.routes())
	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", s.chatHandler)
	mux.HandleFunc("/api/clear", s.clearHandler)
	mux.HandleFunc("/api/session", s.sessionHandler)
	mux.HandleFunc("/api/session/history", s.historyHandler)
	mux.HandleFunc("/api/health", s.healthHandler)
	mux.HandleFunc("/ws/chat", s.wsHandler)

	mux.Handle("/api/admin/sessions", s.requireAdmin(s.adminSessionsHandler))
	mux.Handle("/api/admin/session/{id}", s.requireAdmin(s.adminSessionHandler))
	mux.Handle("/api/admin/takeover/{id}", s.requireAdmin(s.adminTakeoverHandler))
	mux.Handle("/api/admin/release/{id}", s.requireAdmin(s.adminReleaseHandler))
	mux.Handle("/api/admin/message", s.requireAdmin(s.adminMessageHandler))
	mux.Handle("/api/admin/analytics", s.requireAdmin(s.adminAnalyticsHandler))
	mux.Handle("/api/admin/active", s.requireAdmin(s.adminActiveHandler))

	for path, h := range s.opts.Webhooks {
		mux.Handle(path, h)
		slog.Debug("Server.routes: webhook mounted", "path", path)
	}
	return mux
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// Run listens on the configured address until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops accepting requests and closes open WebSocket connections.
func (s *Server) Shutdown(ctx context.Context) error {
	var result error

	s.mu.Lock()
	srv := s.srv
	clients := make([]*wsClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("http shutdown: %w", err))
		}
	}
	for _, c := range clients {
		if err := c.close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close websocket %s: %w", c.sessionID, err))
		}
	}
	slog.Info("Server.Shutdown: stopped", "websockets_closed", len(clients))
	return result
}

func (s *Server) originAllowed(origin string) bool {
	if origin == "" || len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range s.opts.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// withCORS answers preflight requests and marks responses readable by browser clients.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			if len(s.opts.AllowedOrigins) == 0 {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Token")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
