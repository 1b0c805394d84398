package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BTreeMap/ovnchat/internal/chatbot"
	"github.com/BTreeMap/ovnchat/internal/models"
	"github.com/BTreeMap/ovnchat/internal/session"
	"github.com/BTreeMap/ovnchat/internal/store"
)

// storedSession renders a SessionRecord with its document inline rather than base64.
type storedSession struct {
	store.SessionRecord
	Data json.RawMessage `json:"data,omitempty"`
}

func viewRecord(rec store.SessionRecord) storedSession {
	v := storedSession{SessionRecord: rec}
	if json.Valid(rec.Data) {
		v.Data = rec.Data
	}
	return v
}

func viewRecords(recs []store.SessionRecord) []storedSession {
	out := make([]storedSession, len(recs))
	for i, rec := range recs {
		out[i] = viewRecord(rec)
	}
	return out
}

// activeSession is a row of GET /api/admin/active.
type activeSession struct {
	SessionID     string        `json:"session_id"`
	UserPhone     string        `json:"user_phone"`
	UserName      string        `json:"user_name"`
	State         session.State `json:"state"`
	AdminHandling bool          `json:"admin_handling"`
	AdminID       string        `json:"admin_id,omitempty"`
	LastActivity  time.Time     `json:"last_activity"`
	MessageCount  int           `json:"message_count"`
}

type adminRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	AdminID   string `json:"admin_id"`
}

// adminID picks the operator named in the body, then the one in the credentials.
func (req adminRequest) adminID(r *http.Request) string {
	if req.AdminID != "" {
		return req.AdminID
	}
	if id := adminIDFrom(r.Context()); id != "" {
		return id
	}
	return "admin"
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}

// adminSessionsHandler handles GET /api/admin/sessions?phone=&admin_handling=&limit=&offset=.
func (s *Server) adminSessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	limit, err := queryInt(r, "limit", DefaultSessionsLimit)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	activeInMemory := s.bot.ActiveSessions(r.Context())

	result := map[string]interface{}{
		"active_in_memory": activeInMemory,
		"limit":            limit,
		"offset":           offset,
	}
	if s.opts.Sessions == nil {
		live := s.bot.Sessions(r.Context())
		result["sessions"] = live
		result["count"] = len(live)
		writeJSONResponse(w, http.StatusOK, models.Success(result))
		return
	}

	filter := store.SessionFilter{Phone: r.URL.Query().Get("phone"), Limit: limit, Offset: offset}
	if raw := r.URL.Query().Get("admin_handling"); raw != "" {
		handling := raw == "true"
		filter.AdminHandling = &handling
	}
	page, err := s.opts.Sessions.ListSessions(r.Context(), filter)
	if err != nil {
		slog.Error("Server.adminSessionsHandler: list failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list sessions"))
		return
	}
	result["sessions"] = viewRecords(page)
	result["count"] = len(page)
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// adminSessionHandler handles GET /api/admin/session/{id}. Live sessions are preferred over
// stored ones.
func (s *Server) adminSessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	id := r.PathValue("id")
	if info, ok := s.bot.SessionInfo(id); ok {
		writeJSONResponse(w, http.StatusOK, models.Success(info))
		return
	}
	if s.opts.Sessions != nil {
		rec, err := s.opts.Sessions.LoadSession(r.Context(), id)
		if err != nil {
			slog.Error("Server.adminSessionHandler: load failed", "session_id", id, "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
			return
		}
		if rec != nil {
			writeJSONResponse(w, http.StatusOK, models.Success(viewRecord(*rec)))
			return
		}
	}
	writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
}

// adminTakeoverHandler handles POST /api/admin/takeover/{id}.
func (s *Server) adminTakeoverHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req adminRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	id := r.PathValue("id")
	if err := s.bot.Takeover(r.Context(), id, req.adminID(r)); err != nil {
		s.writeAdminError(w, "Server.adminTakeoverHandler", id, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Admin takeover successful", nil))
}

// adminReleaseHandler handles POST /api/admin/release/{id}.
func (s *Server) adminReleaseHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	id := r.PathValue("id")
	if err := s.bot.Release(r.Context(), id); err != nil {
		s.writeAdminError(w, "Server.adminReleaseHandler", id, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session released to bot", nil))
}

// adminMessageHandler handles POST /api/admin/message.
func (s *Server) adminMessageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req adminRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.SessionID == "" || req.Message == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("session_id and message are required"))
		return
	}
	msgID, err := s.bot.AdminMessage(r.Context(), req.SessionID, req.adminID(r), req.Message)
	if err != nil && msgID == "" {
		s.writeAdminError(w, "Server.adminMessageHandler", req.SessionID, err)
		return
	}
	result := map[string]interface{}{"message_id": msgID, "delivered": err == nil}
	if err != nil {
		slog.Warn("Server.adminMessageHandler: message stored but not delivered", "session_id", req.SessionID, "error", err)
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Message sent", result))
}

// writeAdminError maps a bot error onto an HTTP status.
func (s *Server) writeAdminError(w http.ResponseWriter, where, sessionID string, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
	case errors.Is(err, chatbot.ErrNotTakenOver):
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Admin must take over the session first"))
	case errors.Is(err, models.ErrValidation):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
	default:
		slog.Error(where+": failed", "session_id", sessionID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
	}
}

// adminAnalyticsHandler handles GET /api/admin/analytics?days=.
func (s *Server) adminAnalyticsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.opts.Analytics == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Analytics not configured"))
		return
	}
	days, err := queryInt(r, "days", DefaultAnalyticsDays)
	if err != nil || days == 0 {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid days"))
		return
	}
	ctx := r.Context()
	today, err := s.opts.Analytics.DailySummary(ctx, s.opts.Now())
	if err != nil {
		s.writeAnalyticsError(w, err)
		return
	}
	top, err := s.opts.Analytics.TopIntents(ctx, days, 10)
	if err != nil {
		s.writeAnalyticsError(w, err)
		return
	}
	peak, err := s.opts.Analytics.PeakHours(ctx, days)
	if err != nil {
		s.writeAnalyticsError(w, err)
		return
	}
	conversion, err := s.opts.Analytics.ConversionStats(ctx, days)
	if err != nil {
		s.writeAnalyticsError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"today":       today,
		"top_intents": top,
		"peak_hours":  peak,
		"conversion":  conversion,
	}))
}

func (s *Server) writeAnalyticsError(w http.ResponseWriter, err error) {
	slog.Error("Server.adminAnalyticsHandler: aggregation failed", "error", err)
	writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to compute analytics"))
}

// adminActiveHandler handles GET /api/admin/active.
func (s *Server) adminActiveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	live := s.bot.Sessions(r.Context())
	rows := make([]activeSession, len(live))
	for i, info := range live {
		rows[i] = activeSession{
			SessionID:     info.SessionID,
			UserPhone:     info.UserPhone,
			UserName:      info.UserName,
			State:         info.State,
			AdminHandling: info.AdminHandling,
			AdminID:       info.AdminID,
			LastActivity:  info.LastActivity,
			MessageCount:  len(info.History),
		}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"sessions": rows,
		"count":    len(rows),
	}))
}
