package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/tessera-ai/tessera/internal/chat"
	"github.com/tessera-ai/tessera/internal/fusion"
	"github.com/tessera-ai/tessera/internal/session"
)

type stubChatRunner struct {
	resp      *chat.Response
	err       error
	chunks    []string
	title     string
	gotInput  string
	gotTarget uuid.UUID
}

func (s *stubChatRunner) Execute(ctx context.Context, sessionID uuid.UUID, input string) (*chat.Response, error) {
	return s.ExecuteStream(ctx, sessionID, input, nil)
}

func (s *stubChatRunner) ExecuteStream(ctx context.Context, sessionID uuid.UUID, input string, cb chat.StreamCallback) (*chat.Response, error) {
	s.gotInput = input
	s.gotTarget = sessionID
	if s.err != nil {
		return nil, s.err
	}
	if cb != nil {
		for _, text := range s.chunks {
			chunk := &ai.ModelResponseChunk{Content: []*ai.Part{ai.NewTextPart(text)}}
			if err := cb(ctx, chunk); err != nil {
				return nil, err
			}
		}
	}
	return s.resp, nil
}

func (s *stubChatRunner) GenerateTitle(_ context.Context, _ string) string {
	return s.title
}

type stubSessionCreator struct {
	created *session.Session
	err     error
	title   string
}

func (s *stubSessionCreator) Create(_ context.Context, ownerID, title string) (*session.Session, error) {
	s.title = title
	if s.err != nil {
		return nil, s.err
	}
	s.created = &session.Session{ID: uuid.New(), OwnerID: ownerID, Title: title, CreatedAt: time.Now()}
	return s.created, nil
}

func TestChatHandler_Send(t *testing.T) {
	sessionID := uuid.New()
	runner := &stubChatRunner{
		resp: &chat.Response{
			FinalText: "The answer is 42.",
			ContextUsed: []fusion.Item{
				{ID: "doc-1", Score: 0.9, Sources: []fusion.Source{fusion.SourceVector}},
			},
		},
	}
	h := &chatHandler{svc: runner, sessions: &stubSessionCreator{}, logger: discardLogger()}

	body := `{"sessionId":"` + sessionID.String() + `","message":"what is the answer?"}`
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	h.send(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp chatResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Response != "The answer is 42." {
		t.Errorf("response = %q, want %q", resp.Response, "The answer is 42.")
	}
	if resp.SessionID != sessionID.String() {
		t.Errorf("sessionId = %q, want %q", resp.SessionID, sessionID)
	}
	if len(resp.ContextUsed) != 1 || resp.ContextUsed[0].ID != "doc-1" {
		t.Errorf("contextUsed = %+v, want one item doc-1", resp.ContextUsed)
	}
	if resp.ContextUsed[0].Sources[0] != string(fusion.SourceVector) {
		t.Errorf("sources = %v, want [%s]", resp.ContextUsed[0].Sources, fusion.SourceVector)
	}
	if runner.gotTarget != sessionID {
		t.Errorf("executed session = %s, want %s", runner.gotTarget, sessionID)
	}
}

func TestChatHandler_Send_CreatesSession(t *testing.T) {
	runner := &stubChatRunner{
		resp:  &chat.Response{FinalText: "hello"},
		title: "Greeting",
	}
	creator := &stubSessionCreator{}
	h := &chatHandler{svc: runner, sessions: creator, logger: discardLogger()}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"message":"hi"}`))
	h.send(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if creator.created == nil {
		t.Fatal("session was not created")
	}
	if creator.title != "Greeting" {
		t.Errorf("session title = %q, want %q", creator.title, "Greeting")
	}
	if runner.gotTarget != creator.created.ID {
		t.Errorf("executed session = %s, want created session %s", runner.gotTarget, creator.created.ID)
	}
}

func TestChatHandler_Send_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		execErr    error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing message",
			body:       `{"sessionId":"not-used"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "missing_message",
		},
		{
			name:       "malformed session id",
			body:       `{"sessionId":"nope","message":"hi"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_session",
		},
		{
			name:       "unknown session",
			body:       `{"sessionId":"` + uuid.NewString() + `","message":"hi"}`,
			execErr:    session.ErrNotFound,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_session",
		},
		{
			name:       "circuit open",
			body:       `{"sessionId":"` + uuid.NewString() + `","message":"hi"}`,
			execErr:    chat.ErrCircuitOpen,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "model_unavailable",
		},
		{
			name:       "internal failure",
			body:       `{"sessionId":"` + uuid.NewString() + `","message":"hi"}`,
			execErr:    errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "execution_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &stubChatRunner{err: tt.execErr}
			h := &chatHandler{svc: runner, sessions: &stubSessionCreator{}, logger: discardLogger()}

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(tt.body))
			h.send(w, r)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if body := decodeErrorEnvelope(t, w); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestChatHandler_Stream(t *testing.T) {
	sessionID := uuid.New()
	runner := &stubChatRunner{
		resp: &chat.Response{
			FinalText:   "Hello there",
			ContextUsed: []fusion.Item{{ID: "mem-1", Sources: []fusion.Source{fusion.SourceMemory}}},
		},
		chunks: []string{"Hello ", "there"},
	}
	h := &chatHandler{svc: runner, sessions: &stubSessionCreator{}, logger: discardLogger()}

	body := `{"sessionId":"` + sessionID.String() + `","message":"hi"}`
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", strings.NewReader(body))
	h.stream(w, r)

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want %q", ct, "text/event-stream")
	}

	out := w.Body.String()
	if !strings.Contains(out, "event: chunk\ndata: {\"text\":\"Hello \"}") {
		t.Errorf("missing first chunk event:\n%s", out)
	}
	if !strings.Contains(out, "event: chunk\ndata: {\"text\":\"there\"}") {
		t.Errorf("missing second chunk event:\n%s", out)
	}
	if !strings.Contains(out, "event: done\n") {
		t.Errorf("missing done event:\n%s", out)
	}
	if !strings.Contains(out, `"response":"Hello there"`) {
		t.Errorf("done event missing final response:\n%s", out)
	}
}

func TestChatHandler_Stream_Error(t *testing.T) {
	runner := &stubChatRunner{err: chat.ErrCircuitOpen}
	h := &chatHandler{svc: runner, sessions: &stubSessionCreator{}, logger: discardLogger()}

	body := `{"sessionId":"` + uuid.NewString() + `","message":"hi"}`
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", strings.NewReader(body))
	h.stream(w, r)

	out := w.Body.String()
	if !strings.Contains(out, "event: error\n") {
		t.Fatalf("missing error event:\n%s", out)
	}
	if !strings.Contains(out, `"code":"model_unavailable"`) {
		t.Errorf("error event code mismatch:\n%s", out)
	}
}

func TestTruncateTitle(t *testing.T) {
	if got := truncateTitle("short"); got != "short" {
		t.Errorf("truncateTitle(short) = %q", got)
	}

	long := strings.Repeat("a", 80)
	got := truncateTitle(long)
	if len([]rune(got)) != 53 {
		t.Errorf("truncated length = %d runes, want 53", len([]rune(got)))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated title missing ellipsis: %q", got)
	}
}
