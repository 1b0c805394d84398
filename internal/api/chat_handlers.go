package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/ovnchat/internal/chatbot"
	"github.com/BTreeMap/ovnchat/internal/intent"
	"github.com/BTreeMap/ovnchat/internal/models"
)

// chatRequest is the body of POST /api/chat and of a /ws/chat frame.
type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	Phone     string `json:"phone"`
}

// answer runs one customer message through the middleware and the bot. It returns the HTTP
// status that matches the outcome.
func (s *Server) answer(ctx context.Context, req chatRequest) (chatbot.Reply, int) {
	if req.SessionID == "" {
		req.SessionID = chatbot.DefaultSessionID
	}
	ok, message, errMsg, wait := s.opts.Middleware.Process(req.SessionID, req.Message)
	if !ok {
		reply := chatbot.Reply{
			Response:  errMsg,
			Intent:    intent.General,
			SessionID: req.SessionID,
		}
		if wait > 0 {
			reply.Metadata = map[string]any{"wait_seconds": wait}
			return reply, http.StatusTooManyRequests
		}
		reply.QuickReplies = models.ErrorQuickReplies(models.ErrorKindEmptyMessage)
		return reply, http.StatusBadRequest
	}
	return s.bot.Chat(ctx, message, req.SessionID, req.Phone), http.StatusOK
}

// chatHandler handles POST /api/chat.
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		slog.Warn("Server.chatHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, chatbot.Reply{
			Response:  models.FriendlyError(models.ErrorKindEmptyMessage, false),
			Intent:    intent.General,
			SessionID: chatbot.DefaultSessionID,
		})
		return
	}
	reply, status := s.answer(r.Context(), req)
	if status != http.StatusOK {
		slog.Debug("Server.chatHandler: message rejected", "session_id", reply.SessionID, "status", status)
	}
	writeJSONResponse(w, status, reply)
}

// clearHandler handles POST /api/clear.
func (s *Server) clearHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.SessionID == "" {
		req.SessionID = chatbot.DefaultSessionID
	}
	if err := s.bot.ClearSession(r.Context(), req.SessionID); err != nil {
		slog.Error("Server.clearHandler: clear failed", "session_id", req.SessionID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to clear session"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session cleared", nil))
}

// sessionHandler handles GET /api/session?session_id=.
func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	id := r.URL.Query().Get("session_id")
	if id == "" {
		id = chatbot.DefaultSessionID
	}
	info, ok := s.bot.SessionInfo(id)
	if !ok {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(info.Summary))
}

// historyHandler handles GET /api/session/history?phone=.
func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	phone := r.URL.Query().Get("phone")
	if len(phone) != 10 {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Valid 10-digit phone required"))
		return
	}
	records, err := s.bot.History(r.Context(), phone, historyLimit)
	if err != nil {
		slog.Error("Server.historyHandler: history lookup failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session history"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(viewRecords(records)))
}

// healthHandler handles GET /api/health.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":          "healthy",
		"timestamp":       s.opts.Now().UTC().Format(time.RFC3339),
		"active_sessions": s.bot.ActiveSessions(r.Context()),
	})
}
