package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tessera-ai/tessera/internal/memory"
)

// memoryAccessor is the slice of memory.Store the memory handler needs.
type memoryAccessor interface {
	HybridSearch(ctx context.Context, query, ownerID string, topK int) ([]*memory.Memory, error)
	All(ctx context.Context, ownerID string, category memory.Category) ([]*memory.Memory, error)
	Stats(ctx context.Context, ownerID string) (memory.Stats, error)
	DeleteAll(ctx context.Context, ownerID string) error
}

type memoryHandler struct {
	store  memoryAccessor
	logger *slog.Logger
}

type memorySearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"topK"`
}

type memoryListResponse struct {
	Memories []*memory.Memory `json:"memories"`
	Count    int              `json:"count"`
}

// search handles POST /api/v1/memory/search.
func (h *memoryHandler) search(w http.ResponseWriter, r *http.Request) {
	var req memorySearchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "query is required")
		return
	}

	results, err := h.store.HybridSearch(r.Context(), req.Query, ownerID(r), req.TopK)
	if err != nil {
		h.logger.Error("memory search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "store_error", "memory search failed")
		return
	}
	if results == nil {
		results = []*memory.Memory{}
	}
	writeJSON(w, http.StatusOK, memoryListResponse{Memories: results, Count: len(results)})
}

// stats handles GET /api/v1/memory/stats.
func (h *memoryHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context(), ownerID(r))
	if err != nil {
		h.logger.Error("memory stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "store_error", "memory stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// export handles GET /api/v1/memory/export. Category filtering is
// optional via the "category" query parameter.
func (h *memoryHandler) export(w http.ResponseWriter, r *http.Request) {
	category := memory.Category(r.URL.Query().Get("category"))
	if category != "" && !category.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_category", "unknown memory category")
		return
	}

	memories, err := h.store.All(r.Context(), ownerID(r), category)
	if err != nil {
		h.logger.Error("memory export failed", "error", err)
		writeError(w, http.StatusInternalServerError, "store_error", "memory export failed")
		return
	}
	if memories == nil {
		memories = []*memory.Memory{}
	}
	writeJSON(w, http.StatusOK, memoryListResponse{Memories: memories, Count: len(memories)})
}

// deleteAll handles DELETE /api/v1/memory.
func (h *memoryHandler) deleteAll(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if err := h.store.DeleteAll(r.Context(), owner); err != nil {
		h.logger.Error("memory wipe failed", "error", err)
		writeError(w, http.StatusInternalServerError, "store_error", "deleting memories failed")
		return
	}
	h.logger.Info("memories deleted", "owner_id", owner)
	w.WriteHeader(http.StatusNoContent)
}
