package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"

	"github.com/tessera-ai/tessera/db"
	"github.com/tessera-ai/tessera/internal/chat"
	"github.com/tessera-ai/tessera/internal/config"
	"github.com/tessera-ai/tessera/internal/graph"
	"github.com/tessera-ai/tessera/internal/ingest"
	"github.com/tessera-ai/tessera/internal/knowledge"
	"github.com/tessera-ai/tessera/internal/memory"
	"github.com/tessera-ai/tessera/internal/observability"
	"github.com/tessera-ai/tessera/internal/session"
	"github.com/tessera-ai/tessera/internal/source"
)

// Setup builds the full application. On error everything already
// initialized is released; on success the caller owns Close.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing first so Genkit's TracerProvider is wired before any
	// flows are defined.
	shutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.OTLP.Endpoint,
		ServiceName: cfg.OTLP.ServiceName,
		Environment: cfg.OTLP.Environment,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	a.tracingShutdown = shutdown

	pool, err := providePool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	if a.Memories, err = memory.NewStore(pool, embedder, logger); err != nil {
		return nil, fmt.Errorf("creating memory store: %w", err)
	}
	if a.Knowledge, err = knowledge.NewStore(pool, embedder, logger); err != nil {
		return nil, fmt.Errorf("creating knowledge store: %w", err)
	}
	a.Seeder = knowledge.NewSeeder(a.Knowledge, logger)

	if a.Graph, err = provideGraphStore(ctx, cfg, logger); err != nil {
		return nil, err
	}

	if a.Sessions, err = session.NewStore(pool, logger); err != nil {
		return nil, fmt.Errorf("creating session store: %w", err)
	}

	a.Gatherer = provideGatherer(a, cfg, logger)

	a.Chat, err = chat.New(chat.Config{
		Genkit:       g,
		Gatherer:     a.Gatherer,
		SessionStore: a.Sessions,
		Logger:       logger,
		FusionConfig: cfg.Fusion.Engine(),
		SourceLimit:  cfg.Fusion.SourceLimit,
		ModelName:    cfg.FullModelName(),
		TokenBudget:  chat.TokenBudget{MaxContextTokens: cfg.Fusion.ContextTokenBudget},
	})
	if err != nil {
		return nil, fmt.Errorf("creating chat service: %w", err)
	}

	appCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel

	if err := provideIngestion(appCtx, a, cfg, logger); err != nil {
		return nil, err
	}

	return a, nil
}

// providePool runs migrations and opens the pgx connection pool.
func providePool(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// provideGenkit initializes Genkit with the configured model provider.
func provideGenkit(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*genkit.Genkit, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g := genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama has no auto-discovery; models and embedders are
		// registered explicitly.
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized genkit", "provider", cfg.Provider,
			"model", cfg.ModelName, "host", cfg.OllamaHost)
		return g, nil

	default: // gemini / googleai
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized genkit", "provider", cfg.Provider, "model", cfg.ModelName)
		return g, nil
	}
}

// provideEmbedder looks up the embedder registered by the provider plugin.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		return ollama.Embedder(g, cfg.OllamaHost)
	default:
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

func provideGraphStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*graph.Store, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	store, err := graph.NewStore(driver, logger)
	if err != nil {
		return nil, fmt.Errorf("creating graph store: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("pinging neo4j: %w", err)
	}
	return store, nil
}

// provideGatherer wires all four retrieval connectors into the fan-out.
// Queries carry their own owner scope; the memory connector falls back
// to the default owner for ownerless callers.
func provideGatherer(a *App, cfg *config.Config, logger *slog.Logger) *source.Gatherer {
	connectors := []source.Connector{
		memory.NewConnector(a.Memories, DefaultOwner),
		knowledge.NewConnector(a.Knowledge),
		graph.NewConnector(a.Graph),
		session.NewConnector(a.Sessions),
	}
	return source.NewGatherer(connectors, cfg.Fusion.SourceTimeout(), logger)
}

// provideIngestion builds the task registry, extractors and pipeline.
func provideIngestion(bgCtx context.Context, a *App, cfg *config.Config, logger *slog.Logger) error {
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(bgCtx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return fmt.Errorf("pinging redis: %w", err)
		}
		a.Redis = client
		a.Registry = ingest.NewRedisRegistry(client)
	} else {
		a.Registry = ingest.NewMemoryRegistry()
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolving home dir: %w", err)
	}
	a.UploadDir = filepath.Join(home, ".tessera", "uploads")
	if err := os.MkdirAll(a.UploadDir, 0o750); err != nil {
		return fmt.Errorf("creating upload dir: %w", err)
	}

	// Uploads land in UploadDir; the CLI also ingests files straight
	// from the working directory and home.
	allowed := []string{a.UploadDir, home}
	if cwd, cwdErr := os.Getwd(); cwdErr == nil {
		allowed = append(allowed, cwd)
	}
	files, err := ingest.NewFileExtractor(allowed)
	if err != nil {
		return fmt.Errorf("creating file extractor: %w", err)
	}

	a.Pipeline, err = ingest.NewPipeline(ingest.PipelineConfig{
		Knowledge:     a.Knowledge,
		Memories:      a.Memories,
		Graph:         a.Graph,
		Registry:      a.Registry,
		Logger:        logger,
		Files:         files,
		URLs:          ingest.NewURLExtractor(),
		GitHub:        ingest.NewGitHubExtractor(cfg.GitHubToken),
		BackgroundCtx: bgCtx,
	})
	if err != nil {
		return fmt.Errorf("creating ingest pipeline: %w", err)
	}
	return nil
}
