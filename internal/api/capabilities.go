package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tessera-ai/tessera/internal/graph"
)

type capabilityFinder interface {
	FindCapability(ctx context.Context, name string) (graph.Capability, error)
}

type capabilityHandler struct {
	graph  capabilityFinder
	logger *slog.Logger
}

// get handles GET /api/v1/capabilities/{name}.
func (h *capabilityHandler) get(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing_name", "capability name is required")
		return
	}

	capability, err := h.graph.FindCapability(r.Context(), name)
	if err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "capability not found")
			return
		}
		h.logger.Error("capability lookup failed", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "store_error", "capability lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, capability)
}
