package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tessera-ai/tessera/internal/fusion"
	"github.com/tessera-ai/tessera/internal/memory"
)

// contextService exposes context assembly without running the model.
type contextService interface {
	BuildContext(ctx context.Context, query string, sessionID uuid.UUID) fusion.Fragment
	FusionConfig() fusion.Config
}

type knowledgeCounter interface {
	Counts(ctx context.Context) (documents, chunks int, err error)
}

type graphCounter interface {
	Counts(ctx context.Context) (concepts, capabilities int, err error)
}

type memoryStatser interface {
	Stats(ctx context.Context, ownerID string) (memory.Stats, error)
}

// seeder populates the knowledge and graph stores with baseline content.
type seeder interface {
	IndexAll(ctx context.Context) (int, error)
}

type graphSeeder interface {
	Seed(ctx context.Context) error
}

type contextHandler struct {
	svc       contextService
	knowledge knowledgeCounter
	graph     graphCounter
	memories  memoryStatser
	seeder    seeder
	graphSeed graphSeeder
	logger    *slog.Logger
}

type previewRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId"`
}

type previewResponse struct {
	Text   string            `json:"text"`
	Items  []contextItemJSON `json:"items"`
	Tokens int               `json:"tokens"`
}

// preview handles POST /api/v1/context/preview. It runs the gather,
// fuse and assemble stages without invoking the model.
func (h *contextHandler) preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "query is required")
		return
	}

	var sessionID uuid.UUID
	if req.SessionID != "" {
		id, err := uuid.Parse(req.SessionID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_session", "sessionId is not a valid UUID")
			return
		}
		sessionID = id
	}

	fragment := h.svc.BuildContext(r.Context(), req.Query, sessionID)
	writeJSON(w, http.StatusOK, previewResponse{
		Text:   fragment.Text,
		Items:  toContextJSON(fragment.Items),
		Tokens: fragment.Tokens,
	})
}

type summaryResponse struct {
	Documents    int           `json:"documents"`
	Chunks       int           `json:"chunks"`
	Concepts     int           `json:"concepts"`
	Capabilities int           `json:"capabilities"`
	Memories     int           `json:"memories"`
	Fusion       fusion.Config `json:"fusion"`
}

// summary handles GET /api/v1/context/summary.
func (h *contextHandler) summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := summaryResponse{Fusion: h.svc.FusionConfig()}

	var err error
	if resp.Documents, resp.Chunks, err = h.knowledge.Counts(ctx); err != nil {
		h.logger.Error("knowledge counts failed", "error", err)
		writeError(w, http.StatusInternalServerError, "store_error", "counting knowledge store failed")
		return
	}
	if resp.Concepts, resp.Capabilities, err = h.graph.Counts(ctx); err != nil {
		h.logger.Error("graph counts failed", "error", err)
		writeError(w, http.StatusInternalServerError, "store_error", "counting concept graph failed")
		return
	}
	stats, err := h.memories.Stats(ctx, ownerID(r))
	if err != nil {
		h.logger.Error("memory stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "store_error", "counting memories failed")
		return
	}
	resp.Memories = stats.Total

	writeJSON(w, http.StatusOK, resp)
}

type initializeResponse struct {
	DocumentsIndexed int  `json:"documentsIndexed"`
	GraphSeeded      bool `json:"graphSeeded"`
}

// initialize handles POST /api/v1/context/initialize. It seeds the
// knowledge store and the concept graph with baseline content.
func (h *contextHandler) initialize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	indexed, err := h.seeder.IndexAll(ctx)
	if err != nil {
		h.logger.Error("knowledge seeding failed", "error", err)
		writeError(w, http.StatusInternalServerError, "seed_failed", "indexing baseline documents failed")
		return
	}
	if err := h.graphSeed.Seed(ctx); err != nil {
		h.logger.Error("graph seeding failed", "error", err)
		writeError(w, http.StatusInternalServerError, "seed_failed", "seeding concept graph failed")
		return
	}

	h.logger.Info("context initialized", "documents_indexed", indexed)
	writeJSON(w, http.StatusOK, initializeResponse{DocumentsIndexed: indexed, GraphSeeded: true})
}
