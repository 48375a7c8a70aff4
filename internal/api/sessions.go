package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/tessera-ai/tessera/internal/session"
)

// sessionStore is the slice of session.Store the handler needs.
type sessionStore interface {
	Create(ctx context.Context, ownerID, title string) (*session.Session, error)
	Get(ctx context.Context, id uuid.UUID) (*session.Session, error)
	List(ctx context.Context, ownerID string, limit, offset int) ([]*session.Session, error)
	UpdateTitle(ctx context.Context, id uuid.UUID, title string) error
	Delete(ctx context.Context, id uuid.UUID) error
	Messages(ctx context.Context, sessionID uuid.UUID, limit int) ([]*session.Message, error)
}

type sessionHandler struct {
	store  sessionStore
	logger *slog.Logger
}

const (
	defaultSessionPageSize = 20
	maxSessionPageSize     = 100
)

type createSessionRequest struct {
	Title string `json:"title"`
}

// create handles POST /api/v1/sessions.
func (h *sessionHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Title == "" {
		req.Title = "New conversation"
	}

	sess, err := h.store.Create(r.Context(), ownerID(r), req.Title)
	if err != nil {
		h.logger.Error("session creation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "store_error", "session creation failed")
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

type sessionListResponse struct {
	Sessions []*session.Session `json:"sessions"`
	Count    int                `json:"count"`
}

// list handles GET /api/v1/sessions with limit/offset paging.
func (h *sessionHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultSessionPageSize)
	if limit < 1 || limit > maxSessionPageSize {
		limit = defaultSessionPageSize
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	sessions, err := h.store.List(r.Context(), ownerID(r), limit, offset)
	if err != nil {
		h.logger.Error("session listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "store_error", "session listing failed")
		return
	}
	if sessions == nil {
		sessions = []*session.Session{}
	}
	writeJSON(w, http.StatusOK, sessionListResponse{Sessions: sessions, Count: len(sessions)})
}

// get handles GET /api/v1/sessions/{id}.
func (h *sessionHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	sess, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.writeSessionError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type renameSessionRequest struct {
	Title string `json:"title"`
}

// rename handles POST /api/v1/sessions/{id}/title.
func (h *sessionHandler) rename(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	var req renameSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "missing_title", "title is required")
		return
	}

	if err := h.store.UpdateTitle(r.Context(), id, req.Title); err != nil {
		h.writeSessionError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// delete handles DELETE /api/v1/sessions/{id}.
func (h *sessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		h.writeSessionError(w, id, err)
		return
	}
	h.logger.Info("session deleted", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

type messageListResponse struct {
	Messages []*session.Message `json:"messages"`
	Count    int                `json:"count"`
}

// messages handles GET /api/v1/sessions/{id}/messages.
func (h *sessionHandler) messages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", session.DefaultHistoryLimit)
	msgs, err := h.store.Messages(r.Context(), id, limit)
	if err != nil {
		h.writeSessionError(w, id, err)
		return
	}
	if msgs == nil {
		msgs = []*session.Message{}
	}
	writeJSON(w, http.StatusOK, messageListResponse{Messages: msgs, Count: len(msgs)})
}

func (h *sessionHandler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_session", "session id is not a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *sessionHandler) writeSessionError(w http.ResponseWriter, id uuid.UUID, err error) {
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "session not found")
		return
	}
	h.logger.Error("session store error", "session_id", id, "error", err)
	writeError(w, http.StatusInternalServerError, "store_error", "session store error")
}

// queryInt parses an integer query parameter, returning def when
// absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
