package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// seedDoc is one built-in baseline document.
type seedDoc struct {
	ref    string
	title  string
	chunks []string
}

// Seeder indexes the built-in baseline knowledge set. Seeding is idempotent:
// documents use fixed source refs and re-seeding replaces their chunks.
//
// Safe for concurrent use (IndexAll is serialized by mu).
type Seeder struct {
	store  *Store
	logger *slog.Logger
	mu     sync.Mutex
}

// NewSeeder creates a Seeder.
func NewSeeder(store *Store, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{store: store, logger: logger}
}

// IndexAll upserts every seed document. Individual failures are logged and
// skipped; an error is returned only when all documents fail.
func (s *Seeder) IndexAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := seedDocs()
	indexed := 0
	for _, d := range docs {
		id, err := s.store.UpsertDocument(ctx, d.title, SourceTypeSeed, d.ref)
		if err != nil {
			s.logger.Error("seeding document failed", "ref", d.ref, "error", err)
			continue
		}
		if err := s.store.ReplaceChunks(ctx, id, d.chunks); err != nil {
			s.logger.Error("seeding chunks failed", "ref", d.ref, "error", err)
			continue
		}
		indexed++
	}

	if indexed == 0 && len(docs) > 0 {
		return 0, fmt.Errorf("all %d seed documents failed to index", len(docs))
	}
	s.logger.Info("seeded baseline knowledge", "indexed", indexed, "total", len(docs))
	return indexed, nil
}

// ClearAll deletes every seed document and its chunks.
func (s *Seeder) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.store.pool.Query(ctx,
		`SELECT id FROM documents WHERE source_type = $1`, SourceTypeSeed)
	if err != nil {
		return fmt.Errorf("listing seed documents: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scanning seed document id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating seed documents: %w", err)
	}

	for _, id := range ids {
		if err := s.store.DeleteDocument(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// seedDocs returns the baseline documents indexed at context initialization.
func seedDocs() []seedDoc {
	return []seedDoc{
		{
			ref:   "seed:assistant-overview",
			title: "Assistant overview",
			chunks: []string{
				"Tessera is a retrieval-augmented assistant. Answers are grounded in " +
					"fused context drawn from semantic memory, ingested documents, a " +
					"concept graph, and the current conversation.",
				"When no relevant context exists, the assistant answers from the model " +
					"alone and says so. Context items shown with an answer carry the " +
					"sources and relevance score that ranked them.",
			},
		},
		{
			ref:   "seed:ingestion",
			title: "Ingesting content",
			chunks: []string{
				"Documents enter the knowledge base through file upload, URL fetch, or " +
					"GitHub repository indexing. Content is chunked with overlap, " +
					"embedded, and stored for vector search.",
				"Ingestion runs asynchronously. Each task reports its phase: pending, " +
					"extracting, vectorizing, storing, then completed or failed.",
			},
		},
		{
			ref:   "seed:memory",
			title: "Long-term memory",
			chunks: []string{
				"Facts and preferences worth keeping across conversations are stored " +
					"as memories. Memories are owner-scoped, deduplicated by semantic " +
					"similarity, and retrieved by hybrid vector plus full-text search.",
			},
		},
	}
}
