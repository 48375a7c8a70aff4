package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tessera-ai/tessera/internal/chat"
	"github.com/tessera-ai/tessera/internal/config"
	"github.com/tessera-ai/tessera/internal/graph"
	"github.com/tessera-ai/tessera/internal/ingest"
	"github.com/tessera-ai/tessera/internal/knowledge"
	"github.com/tessera-ai/tessera/internal/memory"
	"github.com/tessera-ai/tessera/internal/session"
)

// ServerConfig contains everything needed to assemble the API server.
type ServerConfig struct {
	Logger         *slog.Logger
	Config         *config.Config      // Required: exposed (masked) via /api/v1/config
	ChatService    *chat.Service       // Required
	SessionStore   *session.Store      // Required
	MemoryStore    *memory.Store       // Required
	KnowledgeStore *knowledge.Store    // Required
	GraphStore     *graph.Store        // Required
	Seeder         *knowledge.Seeder   // Required for /context/initialize
	Pipeline       *ingest.Pipeline    // Required
	Registry       ingest.Registry     // Required
	ReadyChecks    map[string]ReadyCheck
	UploadDir      string   // Directory for multipart uploads
	Version        string   // Reported by /health and /api/v1/stats
	CORSOrigins    []string // Allowed origins for CORS
	TrustProxy     bool     // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst      int      // Rate limiter burst size per IP (0 = default 60)
}

func (cfg ServerConfig) validate() error {
	switch {
	case cfg.Config == nil:
		return errors.New("config is required")
	case cfg.ChatService == nil:
		return errors.New("chat service is required")
	case cfg.SessionStore == nil:
		return errors.New("session store is required")
	case cfg.MemoryStore == nil:
		return errors.New("memory store is required")
	case cfg.KnowledgeStore == nil:
		return errors.New("knowledge store is required")
	case cfg.GraphStore == nil:
		return errors.New("graph store is required")
	case cfg.Seeder == nil:
		return errors.New("knowledge seeder is required")
	case cfg.Pipeline == nil:
		return errors.New("ingest pipeline is required")
	case cfg.Registry == nil:
		return errors.New("task registry is required")
	case cfg.UploadDir == "":
		return errors.New("upload dir is required")
	}
	return nil
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer assembles routes, handlers and the middleware stack.
func NewServer(cfg ServerConfig) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ch := &chatHandler{svc: cfg.ChatService, sessions: cfg.SessionStore, logger: logger}
	cx := &contextHandler{
		svc:       cfg.ChatService,
		knowledge: cfg.KnowledgeStore,
		graph:     cfg.GraphStore,
		memories:  cfg.MemoryStore,
		seeder:    cfg.Seeder,
		graphSeed: cfg.GraphStore,
		logger:    logger,
	}
	mh := &memoryHandler{store: cfg.MemoryStore, logger: logger}
	cp := &capabilityHandler{graph: cfg.GraphStore, logger: logger}
	ih := &ingestHandler{
		pipeline:  cfg.Pipeline,
		registry:  cfg.Registry,
		uploadDir: cfg.UploadDir,
		logger:    logger,
	}
	sh := &sessionHandler{store: cfg.SessionStore, logger: logger}
	hh := &healthHandler{
		cfg:       cfg.Config,
		checks:    cfg.ReadyChecks,
		stats:     newStatsCollector(cfg.SessionStore, cfg.MemoryStore, cfg.KnowledgeStore, cfg.GraphStore),
		startedAt: time.Now(),
		version:   cfg.Version,
		logger:    logger,
	}

	mux := http.NewServeMux()

	// Chat
	mux.HandleFunc("POST /api/v1/chat", ch.send)
	mux.HandleFunc("POST /api/v1/chat/stream", ch.stream)

	// Context assembly
	mux.HandleFunc("POST /api/v1/context/preview", cx.preview)
	mux.HandleFunc("GET /api/v1/context/summary", cx.summary)
	mux.HandleFunc("POST /api/v1/context/initialize", cx.initialize)

	// Memory
	mux.HandleFunc("POST /api/v1/memory/search", mh.search)
	mux.HandleFunc("GET /api/v1/memory/stats", mh.stats)
	mux.HandleFunc("GET /api/v1/memory/export", mh.export)
	mux.HandleFunc("DELETE /api/v1/memory", mh.deleteAll)

	// Capabilities
	mux.HandleFunc("GET /api/v1/capabilities/{name}", cp.get)

	// Ingestion
	mux.HandleFunc("POST /api/v1/ingest/files", ih.uploadFiles)
	mux.HandleFunc("POST /api/v1/ingest/url", ih.ingestURL)
	mux.HandleFunc("POST /api/v1/ingest/github", ih.ingestGitHub)
	mux.HandleFunc("GET /api/v1/ingest/tasks", ih.listTasks)
	mux.HandleFunc("GET /api/v1/ingest/tasks/{id}", ih.getTask)

	// Session CRUD
	mux.HandleFunc("POST /api/v1/sessions", sh.create)
	mux.HandleFunc("GET /api/v1/sessions", sh.list)
	mux.HandleFunc("GET /api/v1/sessions/{id}", sh.get)
	mux.HandleFunc("POST /api/v1/sessions/{id}/title", sh.rename)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", sh.delete)
	mux.HandleFunc("GET /api/v1/sessions/{id}/messages", sh.messages)

	// Introspection
	mux.HandleFunc("GET /api/v1/config", hh.configView)
	mux.HandleFunc("GET /api/v1/stats", hh.statsView)

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID must be before Logging so request_id is available in log
	// attributes. CORS must be before RateLimit so preflight OPTIONS gets
	// proper CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w)
		handler.ServeHTTP(w, r)
	})

	// A top-level mux keeps health probes out of the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", hh.health)
	topMux.HandleFunc("GET /ready", hh.ready)
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// setSecurityHeaders applies common security headers for API responses.
func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("Content-Security-Policy", "default-src 'none'")
}

// newStatsCollector aggregates per-store counts for /api/v1/stats.
func newStatsCollector(sessions *session.Store, memories *memory.Store,
	knowledgeStore *knowledge.Store, graphStore *graph.Store,
) func(ctx context.Context, owner string) (map[string]any, error) {
	return func(ctx context.Context, owner string) (map[string]any, error) {
		sessionCount, messageCount, err := sessions.Counts(ctx, owner)
		if err != nil {
			return nil, err
		}
		memStats, err := memories.Stats(ctx, owner)
		if err != nil {
			return nil, err
		}
		documents, chunks, err := knowledgeStore.Counts(ctx)
		if err != nil {
			return nil, err
		}
		concepts, capabilities, err := graphStore.Counts(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"sessions":     sessionCount,
			"messages":     messageCount,
			"memories":     memStats.Total,
			"documents":    documents,
			"chunks":       chunks,
			"concepts":     concepts,
			"capabilities": capabilities,
		}, nil
	}
}
