package chat

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"

	"github.com/tessera-ai/tessera/internal/fusion"
	"github.com/tessera-ai/tessera/internal/session"
	"github.com/tessera-ai/tessera/internal/source"
)

type captureConnector struct {
	got        source.Query
	candidates []fusion.Candidate
}

func (c *captureConnector) Name() fusion.Source { return fusion.SourceMemory }

func (c *captureConnector) Search(_ context.Context, q source.Query) ([]fusion.Candidate, error) {
	c.got = q
	return c.candidates, nil
}

type stubSessions struct {
	sess      *session.Session
	getErr    error
	getCalled bool
}

func (s *stubSessions) Get(_ context.Context, _ uuid.UUID) (*session.Session, error) {
	s.getCalled = true
	return s.sess, s.getErr
}

func (s *stubSessions) LoadHistory(_ context.Context, _ uuid.UUID, _ int) (*session.History, error) {
	return &session.History{}, nil
}

func (s *stubSessions) AddMessages(_ context.Context, _ uuid.UUID, _ []*session.Message) error {
	return nil
}

func newContextService(t *testing.T, conn *captureConnector, sessions *stubSessions, cfg Config) *Service {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	cfg.Genkit = &genkit.Genkit{}
	cfg.Gatherer = source.NewGatherer([]source.Connector{conn}, 0, logger)
	cfg.SessionStore = sessions
	cfg.Logger = logger

	svc, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return svc
}

func TestBuildContext_UsesConfiguredLimitAndBudget(t *testing.T) {
	// Disjoint contents so the default fuzzy dedup keeps both candidates.
	conn := &captureConnector{candidates: []fusion.Candidate{
		{ID: "m1", Source: fusion.SourceMemory, Score: 0.9, Content: strings.TrimSpace(strings.Repeat("alpha ", 33))},
		{ID: "m2", Source: fusion.SourceMemory, Score: 0.5, Content: strings.TrimSpace(strings.Repeat("omega ", 33))},
	}}
	sessionID := uuid.New()
	sessions := &stubSessions{sess: &session.Session{ID: sessionID, OwnerID: "alice"}}

	// Each rendered entry costs roughly 55 tokens, so a budget of 60
	// admits exactly one of the two candidates.
	svc := newContextService(t, conn, sessions, Config{
		SourceLimit: 25,
		TokenBudget: TokenBudget{MaxContextTokens: 60},
	})

	fragment := svc.BuildContext(t.Context(), "query", sessionID)

	if conn.got.Limit != 25 {
		t.Errorf("gatherer query limit = %d, want 25", conn.got.Limit)
	}
	if conn.got.SessionID != sessionID {
		t.Errorf("gatherer query session = %v, want %v", conn.got.SessionID, sessionID)
	}
	if len(fragment.Items) != 1 {
		t.Fatalf("fragment has %d items, want 1 (budget must cut the second)", len(fragment.Items))
	}
	if fragment.Items[0].ID != "m1" {
		t.Errorf("fragment kept %q, want the top-ranked m1", fragment.Items[0].ID)
	}
}

func TestBuildContext_ScopesOwnerFromSession(t *testing.T) {
	conn := &captureConnector{}
	sessionID := uuid.New()
	sessions := &stubSessions{sess: &session.Session{ID: sessionID, OwnerID: "alice"}}
	svc := newContextService(t, conn, sessions, Config{})

	svc.BuildContext(t.Context(), "query", sessionID)

	if !sessions.getCalled {
		t.Fatal("BuildContext did not resolve the session owner")
	}
	if conn.got.OwnerID != "alice" {
		t.Errorf("gatherer query owner = %q, want %q", conn.got.OwnerID, "alice")
	}
}

func TestBuildContext_OwnerLookupFailureDegradesToDefaultScope(t *testing.T) {
	conn := &captureConnector{}
	sessions := &stubSessions{getErr: session.ErrNotFound}
	svc := newContextService(t, conn, sessions, Config{})

	svc.BuildContext(t.Context(), "query", uuid.New())

	if conn.got.OwnerID != "" {
		t.Errorf("gatherer query owner = %q, want empty fallback", conn.got.OwnerID)
	}
}

func TestBuildContext_NilSessionSkipsOwnerLookup(t *testing.T) {
	conn := &captureConnector{}
	sessions := &stubSessions{}
	svc := newContextService(t, conn, sessions, Config{})

	svc.BuildContext(t.Context(), "query", uuid.Nil)

	if sessions.getCalled {
		t.Error("owner lookup ran for a nil session")
	}
	if conn.got.OwnerID != "" {
		t.Errorf("gatherer query owner = %q, want empty", conn.got.OwnerID)
	}
}

func TestNew_SourceLimitDefaultsToMaxItems(t *testing.T) {
	conn := &captureConnector{}
	svc := newContextService(t, conn, &stubSessions{}, Config{})

	svc.BuildContext(t.Context(), "query", uuid.Nil)

	want := fusion.DefaultConfig().MaxItems
	if conn.got.Limit != want {
		t.Errorf("gatherer query limit = %d, want default MaxItems %d", conn.got.Limit, want)
	}
}
