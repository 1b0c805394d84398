package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/BTreeMap/ovnchat/internal/chatbot"
	"github.com/BTreeMap/ovnchat/internal/intent"
	"github.com/BTreeMap/ovnchat/internal/models"
	"github.com/BTreeMap/ovnchat/internal/util"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = wsPongWait * 9 / 10
	wsMaxMessageSize = 8 << 10
	wsSendBuffer     = 16
)

// wsClient is one connected chat widget.
type wsClient struct {
	conn      *websocket.Conn
	sessionID string
	send      chan []byte
	closeOnce sync.Once
	closeErr  error
}

func (c *wsClient) close() error {
	c.closeOnce.Do(func() { c.closeErr = c.conn.Close() })
	return c.closeErr
}

func (s *Server) register(c *wsClient) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	slog.Debug("Server.register: websocket connected", "session_id", c.sessionID, "clients", n)
}

func (s *Server) unregister(c *wsClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	slog.Debug("Server.unregister: websocket disconnected", "session_id", c.sessionID)
}

// wsHandler handles GET /ws/chat. Each text frame is a chat request and is answered with one
// reply frame. Frames without a session id use the connection's, taken from the session_id
// query parameter or generated.
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Server.wsHandler: upgrade failed", "error", err)
		return
	}
	c := &wsClient{
		conn:      conn,
		sessionID: r.URL.Query().Get("session_id"),
		send:      make(chan []byte, wsSendBuffer),
	}
	if c.sessionID == "" {
		c.sessionID = util.GenerateSessionID()
	}
	s.register(c)
	defer s.unregister(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump()
	}()
	s.readPump(ctx, c, done)
	close(c.send)
	<-done
}

// readPump answers frames until the connection fails or the writer stops.
func (s *Server) readPump(ctx context.Context, c *wsClient, writerDone <-chan struct{}) {
	c.conn.SetReadLimit(wsMaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) &&
				!errors.Is(err, net.ErrClosed) {
				slog.Warn("Server.readPump: read failed", "session_id", c.sessionID, "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))

		var req chatRequest
		var reply chatbot.Reply
		if err := json.Unmarshal(data, &req); err != nil {
			reply = chatbot.Reply{
				Response:  models.FriendlyError(models.ErrorKindEmptyMessage, false),
				Intent:    intent.General,
				SessionID: c.sessionID,
			}
		} else {
			if req.SessionID == "" {
				req.SessionID = c.sessionID
			}
			reply, _ = s.answer(ctx, req)
		}

		out, err := json.Marshal(reply)
		if err != nil {
			slog.Error("Server.readPump: failed to marshal reply", "session_id", c.sessionID, "error", err)
			out = fallbackErrorResponse
		}
		select {
		case c.send <- out:
		case <-writerDone:
			return
		}
	}
}

// writePump writes queued replies and keeps the connection alive with pings. It closes the
// connection when the send channel closes or a write fails.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.Warn("wsClient.writePump: write failed", "session_id", c.sessionID, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
