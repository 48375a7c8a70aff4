package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"
)

// VectorDimension is the embedding dimensionality stored in pgvector.
const VectorDimension int32 = 768

// Store manages documents and embedded chunks with vector similarity search.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool     *pgxpool.Pool
	embedder ai.Embedder
	logger   *slog.Logger
}

// NewStore creates a knowledge Store.
func NewStore(pool *pgxpool.Pool, embedder ai.Embedder, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, embedder: embedder, logger: logger}, nil
}

// embed generates a vector embedding for the given text.
func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	dim := VectorDimension
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, fmt.Errorf("empty embedding response")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

// UpsertDocument inserts a document or, when a document with the same
// source_ref exists, updates its title and source type. Returns the
// document ID either way.
func (s *Store) UpsertDocument(ctx context.Context, title, sourceType, sourceRef string) (uuid.UUID, error) {
	if title == "" {
		return uuid.Nil, fmt.Errorf("title is required")
	}
	if !ValidSourceType(sourceType) {
		return uuid.Nil, fmt.Errorf("invalid source type: %q", sourceType)
	}
	if sourceRef == "" {
		return uuid.Nil, fmt.Errorf("source ref is required")
	}

	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`INSERT INTO documents (title, source_type, source_ref)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (source_ref) DO UPDATE
		   SET title = EXCLUDED.title, source_type = EXCLUDED.source_type
		 RETURNING id`,
		title, sourceType, sourceRef,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upserting document %q: %w", sourceRef, err)
	}
	return id, nil
}

// ReplaceChunks embeds the given chunk texts and replaces the document's
// chunks atomically. Re-ingesting a document never leaves a mix of old and
// new chunks behind.
func (s *Store) ReplaceChunks(ctx context.Context, docID uuid.UUID, chunks []string) error {
	if docID == uuid.Nil {
		return fmt.Errorf("document ID is required")
	}

	// Embed everything before touching the database.
	vectors := make([]pgvector.Vector, len(chunks))
	for i, text := range chunks {
		vec, err := s.embed(ctx, text)
		if err != nil {
			return fmt.Errorf("embedding chunk %d: %w", i, err)
		}
		vectors[i] = vec
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, docID); err != nil {
		return fmt.Errorf("clearing chunks for %s: %w", docID, err)
	}

	batch := &pgx.Batch{}
	for i, text := range chunks {
		batch.Queue(
			`INSERT INTO chunks (document_id, seq, content, embedding) VALUES ($1, $2, $3, $4)`,
			docID, i, text, vectors[i],
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting %d chunks for %s: %w", len(chunks), docID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing chunk replacement: %w", err)
	}

	s.logger.Debug("replaced document chunks", "document_id", docID, "chunks", len(chunks))
	return nil
}

// Search returns the chunks most similar to the query, ordered by cosine
// similarity descending. Similarity is clamped to [0, 1].
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	if query == "" {
		return []Result{}, nil
	}
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	vec, err := s.embed(queryCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding query timeout: %w", err)
		}
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	var rows pgx.Rows
	if cfg.sourceType != "" {
		if !ValidSourceType(cfg.sourceType) {
			return nil, fmt.Errorf("invalid source type: %q", cfg.sourceType)
		}
		rows, err = s.pool.Query(queryCtx,
			`SELECT c.id, c.document_id, d.title, d.source_type, c.seq, c.content,
			        1 - (c.embedding <=> $1) AS similarity
			 FROM chunks c
			 JOIN documents d ON d.id = c.document_id
			 WHERE d.source_type = $2
			 ORDER BY c.embedding <=> $1
			 LIMIT $3`,
			vec, cfg.sourceType, cfg.topK,
		)
	} else {
		rows, err = s.pool.Query(queryCtx,
			`SELECT c.id, c.document_id, d.title, d.source_type, c.seq, c.content,
			        1 - (c.embedding <=> $1) AS similarity
			 FROM chunks c
			 JOIN documents d ON d.id = c.document_id
			 ORDER BY c.embedding <=> $1
			 LIMIT $2`,
			vec, cfg.topK,
		)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("vector search timeout: %w", err)
		}
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(
			&r.ChunkID, &r.DocumentID, &r.Title, &r.SourceType,
			&r.Seq, &r.Content, &r.Similarity,
		); err != nil {
			return nil, fmt.Errorf("scanning chunk result: %w", err)
		}
		r.Similarity = clampSimilarity(r.Similarity)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk results: %w", err)
	}
	return results, nil
}

// clampSimilarity clamps 1 - cosine distance into [0, 1]. Distance can
// exceed 1 for vectors pointing in opposite directions.
func clampSimilarity(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ListDocuments returns documents ordered by creation time, newest first.
func (s *Store) ListDocuments(ctx context.Context, limit int) ([]Document, error) {
	const maxListLimit = 1000
	if limit <= 0 || limit > maxListLimit {
		return nil, fmt.Errorf("limit must be between 1 and %d, got %d", maxListLimit, limit)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, title, source_type, source_ref, created_at
		 FROM documents
		 ORDER BY created_at DESC, id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Title, &d.SourceType, &d.SourceRef, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// Counts returns the total number of documents and chunks.
func (s *Store) Counts(ctx context.Context) (documents, chunks int, err error) {
	err = s.pool.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM documents), (SELECT COUNT(*) FROM chunks)`,
	).Scan(&documents, &chunks)
	if err != nil {
		return 0, 0, fmt.Errorf("counting documents and chunks: %w", err)
	}
	return documents, chunks, nil
}

// DeleteDocument removes a document and its chunks (ON DELETE CASCADE).
func (s *Store) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s not found", id)
	}
	s.logger.Debug("deleted document", "document_id", id)
	return nil
}
