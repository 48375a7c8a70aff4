// Package app assembles the application: configuration, stores,
// retrieval connectors, the chat service and the ingestion pipeline.
// Setup builds everything once; Close releases it in reverse order.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/tessera-ai/tessera/internal/chat"
	"github.com/tessera-ai/tessera/internal/config"
	"github.com/tessera-ai/tessera/internal/graph"
	"github.com/tessera-ai/tessera/internal/ingest"
	"github.com/tessera-ai/tessera/internal/knowledge"
	"github.com/tessera-ai/tessera/internal/memory"
	"github.com/tessera-ai/tessera/internal/session"
	"github.com/tessera-ai/tessera/internal/source"
)

// DefaultOwner scopes memories and sessions in single-tenant
// deployments. The HTTP API overrides it per request via X-Owner-ID.
const DefaultOwner = "default"

// App is the assembled application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder

	Pool  *pgxpool.Pool
	Redis *redis.Client // nil when no Redis address is configured

	Memories  *memory.Store
	Knowledge *knowledge.Store
	Graph     *graph.Store
	Sessions  *session.Store
	Seeder    *knowledge.Seeder

	Gatherer *source.Gatherer
	Chat     *chat.Service

	Pipeline  *ingest.Pipeline
	Registry  ingest.Registry
	UploadDir string

	tracingShutdown func(context.Context) error
	cancel          context.CancelFunc
}

// Close releases all resources. Safe to call on a partially built App;
// Setup uses it for cleanup on failure.
func (a *App) Close() error {
	a.Logger.Info("shutting down")

	if a.cancel != nil {
		a.cancel()
	}

	// Let in-flight ingestion tasks finish before their stores go away.
	if a.Pipeline != nil {
		a.Pipeline.Wait()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.tracingShutdown != nil {
		if err := a.tracingShutdown(ctx); err != nil {
			a.Logger.Warn("tracer shutdown", "error", err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("closing redis client", "error", err)
		}
	}
	if a.Graph != nil {
		if err := a.Graph.Close(ctx); err != nil {
			a.Logger.Warn("closing neo4j driver", "error", err)
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}

	return nil
}

// ReadyChecks returns named dependency probes for the /ready endpoint.
func (a *App) ReadyChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{
		"postgres": a.Pool.Ping,
		"neo4j":    a.Graph.Ping,
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		}
	}
	return checks
}
