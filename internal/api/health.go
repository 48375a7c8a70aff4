package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/tessera-ai/tessera/internal/config"
)

const readyCheckTimeout = 5 * time.Second

// ReadyCheck probes one backing dependency.
type ReadyCheck func(ctx context.Context) error

type healthHandler struct {
	cfg       *config.Config
	checks    map[string]ReadyCheck
	stats     func(ctx context.Context, owner string) (map[string]any, error)
	startedAt time.Time
	version   string
	logger    *slog.Logger
}

// health handles GET /health. Liveness only, no dependency probes.
func (h *healthHandler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ready handles GET /ready. It pings every registered dependency and
// reports 503 when any of them is down.
func (h *healthHandler) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
	defer cancel()

	resp := readyResponse{Status: "ready", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("readiness check failed", "check", name, "error", err)
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	writeJSON(w, status, resp)
}

// configView handles GET /api/v1/config. Sensitive fields are masked
// by the config type's JSON marshaling.
func (h *healthHandler) configView(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.cfg)
}

// statsView handles GET /api/v1/stats.
func (h *healthHandler) statsView(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats(r.Context(), ownerID(r))
	if err != nil {
		h.logger.Error("stats collection failed", "error", err)
		writeError(w, http.StatusInternalServerError, "store_error", "stats collection failed")
		return
	}
	stats["uptime"] = time.Since(h.startedAt).Round(time.Second).String()
	stats["version"] = h.version
	writeJSON(w, http.StatusOK, stats)
}
