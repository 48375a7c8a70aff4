package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/tessera-ai/tessera/internal/chat"
	"github.com/tessera-ai/tessera/internal/fusion"
	"github.com/tessera-ai/tessera/internal/session"
)

// chatRunner is the subset of chat.Service the chat handler needs.
type chatRunner interface {
	Execute(ctx context.Context, sessionID uuid.UUID, input string) (*chat.Response, error)
	ExecuteStream(ctx context.Context, sessionID uuid.UUID, input string, cb chat.StreamCallback) (*chat.Response, error)
	GenerateTitle(ctx context.Context, userMessage string) string
}

// sessionCreator creates sessions for first-message chats.
type sessionCreator interface {
	Create(ctx context.Context, ownerID, title string) (*session.Session, error)
}

type chatHandler struct {
	svc      chatRunner
	sessions sessionCreator
	logger   *slog.Logger
}

type chatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type contextItemJSON struct {
	ID      string   `json:"id"`
	Sources []string `json:"sources"`
	Score   float64  `json:"score"`
}

type chatResponse struct {
	Response    string            `json:"response"`
	SessionID   string            `json:"sessionId"`
	ContextUsed []contextItemJSON `json:"contextUsed"`
}

// resolveSession parses the session ID or creates a new session when
// none was supplied.
func (h *chatHandler) resolveSession(ctx context.Context, req chatRequest, owner string) (uuid.UUID, error) {
	if req.SessionID != "" {
		id, err := uuid.Parse(req.SessionID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("%w: %q", chat.ErrInvalidSession, req.SessionID)
		}
		return id, nil
	}

	title := h.svc.GenerateTitle(ctx, req.Message)
	if title == "" {
		title = truncateTitle(req.Message)
	}
	sess, err := h.sessions.Create(ctx, owner, title)
	if err != nil {
		return uuid.Nil, fmt.Errorf("creating session: %w", err)
	}
	return sess.ID, nil
}

// send handles POST /api/v1/chat.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "missing_message", "message is required")
		return
	}

	sessionID, err := h.resolveSession(r.Context(), req, ownerID(r))
	if err != nil {
		h.writeChatError(w, err)
		return
	}

	resp, err := h.svc.Execute(r.Context(), sessionID, req.Message)
	if err != nil {
		h.writeChatError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Response:    resp.FinalText,
		SessionID:   sessionID.String(),
		ContextUsed: toContextJSON(resp.ContextUsed),
	})
}

// writeChatError maps chat service errors to HTTP error responses.
func (h *chatHandler) writeChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrInvalidSession), errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusBadRequest, "invalid_session", err.Error())
	case errors.Is(err, chat.ErrCircuitOpen):
		writeError(w, http.StatusServiceUnavailable, "model_unavailable", "model temporarily unavailable")
	default:
		h.logger.Error("chat execution failed", "error", err)
		writeError(w, http.StatusInternalServerError, "execution_failed", "chat execution failed")
	}
}

// SSE event types for chat streaming.
const (
	eventChunk = "chunk"
	eventDone  = "done"
	eventError = "error"
)

type chunkPayload struct {
	Text string `json:"text"`
}

type donePayload struct {
	Response    string            `json:"response"`
	SessionID   string            `json:"sessionId"`
	ContextUsed []contextItemJSON `json:"contextUsed"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// stream handles POST /api/v1/chat/stream with Server-Sent Events.
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	var req chatRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = writeEvent(w, flusher, eventError, errorPayload{Code: "invalid_request", Message: "invalid request body"})
		return
	}
	if req.Message == "" {
		_ = writeEvent(w, flusher, eventError, errorPayload{Code: "missing_message", Message: "message is required"})
		return
	}

	ctx := r.Context()
	sessionID, err := h.resolveSession(ctx, req, ownerID(r))
	if err != nil {
		h.streamError(w, flusher, err)
		return
	}

	h.logger.Debug("SSE stream started", "session_id", sessionID)

	callback := func(cbCtx context.Context, chunk *ai.ModelResponseChunk) error {
		select {
		case <-cbCtx.Done():
			return cbCtx.Err()
		default:
		}
		for _, part := range chunk.Content {
			if !part.IsText() || part.Text == "" {
				continue
			}
			if err := writeEvent(w, flusher, eventChunk, chunkPayload{Text: part.Text}); err != nil {
				// Write failure usually means the connection closed.
				return err
			}
		}
		return nil
	}

	resp, err := h.svc.ExecuteStream(ctx, sessionID, req.Message, callback)
	if err != nil {
		if ctx.Err() != nil {
			h.logger.Info("client disconnected", "session_id", sessionID)
			return
		}
		h.streamError(w, flusher, err)
		return
	}

	_ = writeEvent(w, flusher, eventDone, donePayload{
		Response:    resp.FinalText,
		SessionID:   sessionID.String(),
		ContextUsed: toContextJSON(resp.ContextUsed),
	})
	h.logger.Debug("SSE stream completed", "session_id", sessionID)
}

// streamError maps chat errors to SSE error events.
func (h *chatHandler) streamError(w io.Writer, f http.Flusher, err error) {
	code := "stream_error"
	switch {
	case errors.Is(err, chat.ErrInvalidSession), errors.Is(err, session.ErrNotFound):
		code = "invalid_session"
	case errors.Is(err, chat.ErrCircuitOpen):
		code = "model_unavailable"
	case errors.Is(err, chat.ErrExecutionFailed):
		code = "execution_failed"
	}
	_ = writeEvent(w, f, eventError, errorPayload{Code: code, Message: err.Error()})
}

// writeEvent writes one SSE event: "event: <type>\ndata: <json>\n\n".
func writeEvent[T any](w io.Writer, flusher http.Flusher, event string, data T) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	flusher.Flush()
	return nil
}

func toContextJSON(items []fusion.Item) []contextItemJSON {
	out := make([]contextItemJSON, len(items))
	for i, item := range items {
		sources := make([]string, len(item.Sources))
		for j, s := range item.Sources {
			sources[j] = string(s)
		}
		out[i] = contextItemJSON{ID: item.ID, Sources: sources, Score: item.Score}
	}
	return out
}

// truncateTitle derives a fallback session title from the first message.
func truncateTitle(message string) string {
	const maxRunes = 50
	runes := []rune(message)
	if len(runes) <= maxRunes {
		return message
	}
	return string(runes[:maxRunes]) + "..."
}
