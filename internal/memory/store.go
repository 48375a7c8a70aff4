package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// memoryCols is the standard SELECT column list for scanMemories.
const memoryCols = `id, owner_id, content, category, source_session_id,
	active, importance, access_count, last_accessed_at, created_at, updated_at`

// insertMemorySQL uses ON CONFLICT to make exact content duplicates idempotent.
const insertMemorySQL = `INSERT INTO memories (owner_id, content, embedding, category, source_session_id, importance)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (owner_id, md5(content)) WHERE active = true DO NOTHING`

// Store manages persistent memory backed by PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool     *pgxpool.Pool
	embedder ai.Embedder
	logger   *slog.Logger
}

// NewStore creates a memory Store.
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

// AddOpts carries optional Add parameters.
type AddOpts struct {
	// Importance in 1-10; values outside the range fall back to 5.
	Importance int
}

// Add inserts a new memory or merges it into an existing near-duplicate.
//
// Dedup algorithm:
//  1. Validate inputs, embed content (outside the transaction)
//  2. Begin a transaction with a per-owner advisory lock
//  3. Find the nearest neighbor among the owner's memories
//  4. Similarity >= AutoMergeThreshold: UPDATE the existing row in place
//  5. Otherwise: INSERT a new row
//  6. Commit, then evict over-cap memories (best-effort)
//
// The transaction + advisory lock prevents TOCTOU races where concurrent
// Add() calls for the same owner find the same nearest neighbor and
// produce a lost update.
func (s *Store) Add(ctx context.Context, content string, category Category,
	ownerID string, sessionID uuid.UUID, opts AddOpts) error {
	if err := validateAddInput(content, category, ownerID); err != nil {
		return err
	}

	importance := resolveImportance(opts.Importance)

	// Embed with timeout, before any DB connection is held.
	embedCtx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()

	vec, err := s.embed(embedCtx, content)
	if err != nil {
		return fmt.Errorf("embedding: %w", err)
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

	// Serialize concurrent Add() calls for the same owner.
	// pg_advisory_xact_lock releases automatically at commit/rollback.
	if _, lockErr := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ownerID); lockErr != nil {
		return fmt.Errorf("acquiring advisory lock: %w", lockErr)
	}

	nearestID, similarity, found, err := s.findNearest(ctx, tx, vec, ownerID)
	if err != nil {
		return err
	}

	if found && similarity >= AutoMergeThreshold {
		_, err = tx.Exec(ctx,
			`UPDATE memories
			 SET content = $1, embedding = $2, updated_at = now(), active = true,
			     category = $3, source_session_id = $4, importance = $5
			 WHERE id = $6`,
			content, vec, category, sessionID, importance, nearestID,
		)
		if err != nil {
			return fmt.Errorf("merging duplicate memory: %w", err)
		}
		s.logger.Debug("merged near-duplicate memory", "id", nearestID, "similarity", similarity)
	} else {
		_, err = tx.Exec(ctx, insertMemorySQL,
			ownerID, content, vec, category, sessionID, importance,
		)
		if err != nil {
			return fmt.Errorf("inserting memory: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing memory transaction: %w", err)
	}

	// Evict outside the transaction; failure only loses the cap, not the write.
	if evictErr := s.evictIfNeeded(ctx, ownerID); evictErr != nil {
		s.logger.Warn("eviction failed", "error", evictErr)
	}

	return nil
}

// validateAddInput checks required fields for Add().
func validateAddInput(content string, category Category, ownerID string) error {
	if !category.Valid() {
		return fmt.Errorf("invalid category: %q", category)
	}
	if content == "" {
		return fmt.Errorf("content is required")
	}
	if len(content) > MaxContentLength {
		return fmt.Errorf("content length %d exceeds maximum %d", len(content), MaxContentLength)
	}
	if ownerID == "" {
		return fmt.Errorf("owner ID is required")
	}
	if ContainsSecrets(content) {
		return fmt.Errorf("content contains potential secrets")
	}
	return nil
}

// resolveImportance clamps importance to 1-10 (default 5).
func resolveImportance(v int) int {
	if v >= 1 && v <= 10 {
		return v
	}
	return 5
}

// findNearest finds the nearest neighbor for dedup. Returns found=false when
// the owner has no memories at all.
func (*Store) findNearest(ctx context.Context, q querier, vec pgvector.Vector, ownerID string) (id uuid.UUID, similarity float64, found bool, err error) {
	queryErr := q.QueryRow(ctx,
		`SELECT id, 1 - (embedding <=> $1) AS similarity
		 FROM memories
		 WHERE owner_id = $2
		 ORDER BY embedding <=> $1
		 LIMIT 1`,
		vec, ownerID,
	).Scan(&id, &similarity)

	switch {
	case errors.Is(queryErr, pgx.ErrNoRows):
		return uuid.Nil, 0, false, nil
	case queryErr != nil:
		return uuid.Nil, 0, false, fmt.Errorf("querying nearest neighbor: %w", queryErr)
	default:
		return id, similarity, true, nil
	}
}

// evictIfNeeded removes oldest memories when an owner exceeds MaxPerOwner.
// Evicts inactive memories first, then oldest active by created_at.
func (s *Store) evictIfNeeded(ctx context.Context, ownerID string) error {
	var count int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM memories WHERE owner_id = $1 AND active = true`,
		ownerID,
	).Scan(&count); err != nil {
		return fmt.Errorf("counting memories: %w", err)
	}

	if count <= MaxPerOwner {
		return nil
	}

	excess := count - MaxPerOwner

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM memories
		 WHERE id IN (
		   SELECT id FROM memories
		   WHERE owner_id = $1 AND active = false
		   ORDER BY updated_at ASC, id ASC
		   LIMIT $2
		 )`,
		ownerID, excess,
	)
	if err != nil {
		return fmt.Errorf("evicting inactive: %w", err)
	}

	remaining := excess - int(tag.RowsAffected())
	if remaining <= 0 {
		return nil
	}

	_, err = s.pool.Exec(ctx,
		`DELETE FROM memories
		 WHERE id IN (
		   SELECT id FROM memories
		   WHERE owner_id = $1 AND active = true
		   ORDER BY created_at ASC, id ASC
		   LIMIT $2
		 )`,
		ownerID, remaining,
	)
	if err != nil {
		return fmt.Errorf("evicting oldest active: %w", err)
	}

	return nil
}

// Search finds memories similar to the query, filtered by owner.
// Returns up to topK results ordered by cosine similarity descending.
func (s *Store) Search(ctx context.Context, query, ownerID string, topK int) ([]*Memory, error) {
	query, topK, ok := normalizeSearchInput(query, ownerID, topK)
	if !ok {
		return []*Memory{}, nil
	}

	embedCtx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()

	vec, err := s.embed(embedCtx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+memoryCols+`
		 FROM memories
		 WHERE owner_id = $1 AND active = true
		 ORDER BY embedding <=> $2
		 LIMIT $3`,
		ownerID, vec, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("searching memories: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

// HybridSearch combines vector similarity and full-text rank into a composite
// relevance in [0, 1], populated into Memory.Score. Access tracking is updated
// for returned results with log-and-continue on error.
func (s *Store) HybridSearch(ctx context.Context, query, ownerID string, topK int) ([]*Memory, error) {
	query, topK, ok := normalizeSearchInput(query, ownerID, topK)
	if !ok {
		return []*Memory{}, nil
	}

	embedCtx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()

	vec, err := s.embed(embedCtx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+memoryCols+`,
		        ($4 * (1 - (embedding <=> $1))
		         + $5 * LEAST(1.0, COALESCE(ts_rank_cd(search_text, plainto_tsquery('english', $3), 1), 0))
		        ) AS relevance
		 FROM memories
		 WHERE owner_id = $2 AND active = true
		 ORDER BY relevance DESC
		 LIMIT $6`,
		vec, ownerID, query,
		searchWeightVector, searchWeightText,
		topK,
	)
	if err != nil {
		return nil, fmt.Errorf("hybrid searching memories: %w", err)
	}
	defer rows.Close()

	memories, err := scanMemoriesWithScore(rows)
	if err != nil {
		return nil, err
	}

	if len(memories) > 0 {
		ids := make([]uuid.UUID, len(memories))
		for i, m := range memories {
			ids[i] = m.ID
		}
		if accessErr := s.UpdateAccess(ctx, ids); accessErr != nil {
			s.logger.Warn("updating access tracking", "error", accessErr)
		}
	}

	return memories, nil
}

// normalizeSearchInput applies the shared guards for Search and HybridSearch.
func normalizeSearchInput(query, ownerID string, topK int) (string, int, bool) {
	if query == "" || ownerID == "" {
		return "", 0, false
	}
	if topK <= 0 {
		topK = 5
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	if len(query) > MaxSearchQueryLen {
		query = query[:MaxSearchQueryLen]
	}
	if strings.ContainsRune(query, 0) {
		return "", 0, false
	}
	return query, topK, true
}

// UpdateAccess increments access_count and sets last_accessed_at for the
// given IDs.
//
// Best-effort: runs outside a transaction. A partial update is acceptable
// since access tracking is advisory, not authoritative.
func (s *Store) UpdateAccess(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := s.pool.Exec(ctx,
		`UPDATE memories
		 SET access_count = access_count + 1,
		     last_accessed_at = now()
		 WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("updating access for %d memories: %w", len(ids), err)
	}
	return nil
}

// All returns all active memories for an owner, optionally filtered by
// category. An empty category returns every category.
func (s *Store) All(ctx context.Context, ownerID string, category Category) ([]*Memory, error) {
	if ownerID == "" {
		return []*Memory{}, nil
	}

	var rows pgx.Rows
	var err error

	if category != "" {
		if !category.Valid() {
			return nil, fmt.Errorf("invalid category: %q", category)
		}
		rows, err = s.pool.Query(ctx,
			`SELECT `+memoryCols+`
			 FROM memories
			 WHERE owner_id = $1 AND active = true AND category = $2
			 ORDER BY updated_at DESC`,
			ownerID, category,
		)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+memoryCols+`
			 FROM memories
			 WHERE owner_id = $1 AND active = true
			 ORDER BY updated_at DESC`,
			ownerID,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

// Stats returns active memory counts for an owner, grouped by category.
func (s *Store) Stats(ctx context.Context, ownerID string) (Stats, error) {
	stats := Stats{ByCategory: make(map[Category]int)}
	if ownerID == "" {
		return stats, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT category, COUNT(*)
		 FROM memories
		 WHERE owner_id = $1 AND active = true
		 GROUP BY category`,
		ownerID,
	)
	if err != nil {
		return stats, fmt.Errorf("counting memories by category: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cat Category
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return stats, fmt.Errorf("scanning memory stats: %w", err)
		}
		stats.ByCategory[cat] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("iterating memory stats: %w", err)
	}

	return stats, nil
}

// Delete soft-deletes a memory by setting active = false.
// Returns ErrNotFound if the memory doesn't exist and ErrForbidden if it
// belongs to a different owner.
func (s *Store) Delete(ctx context.Context, id uuid.UUID, ownerID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE memories SET active = false, updated_at = now()
		 WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("soft-deleting memory %s: %w", id, err)
	}

	if tag.RowsAffected() == 0 {
		var memOwner string
		lookupErr := s.pool.QueryRow(ctx,
			`SELECT owner_id FROM memories WHERE id = $1`,
			id,
		).Scan(&memOwner)
		if errors.Is(lookupErr, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if lookupErr != nil {
			return fmt.Errorf("looking up memory %s: %w", id, lookupErr)
		}
		return ErrForbidden
	}

	return nil
}

// DeleteAll soft-deletes all active memories for an owner.
func (s *Store) DeleteAll(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		return fmt.Errorf("owner ID is required")
	}

	_, err := s.pool.Exec(ctx,
		`UPDATE memories SET active = false, updated_at = now()
		 WHERE owner_id = $1 AND active = true`,
		ownerID,
	)
	if err != nil {
		return fmt.Errorf("soft-deleting all memories: %w", err)
	}

	return nil
}

// scanMemories reads Memory structs from pgx.Rows (standard column set).
func scanMemories(rows pgx.Rows) ([]*Memory, error) {
	var memories []*Memory
	for rows.Next() {
		m := &Memory{}
		var sessionID *uuid.UUID
		if err := rows.Scan(
			&m.ID, &m.OwnerID, &m.Content, &m.Category,
			&sessionID, &m.Active, &m.Importance,
			&m.AccessCount, &m.LastAccessedAt,
			&m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning memory: %w", err)
		}
		if sessionID != nil {
			m.SourceSessionID = *sessionID
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating memories: %w", err)
	}
	return memories, nil
}

// scanMemoriesWithScore reads Memory structs plus a trailing relevance column.
func scanMemoriesWithScore(rows pgx.Rows) ([]*Memory, error) {
	var memories []*Memory
	for rows.Next() {
		m := &Memory{}
		var sessionID *uuid.UUID
		if err := rows.Scan(
			&m.ID, &m.OwnerID, &m.Content, &m.Category,
			&sessionID, &m.Active, &m.Importance,
			&m.AccessCount, &m.LastAccessedAt,
			&m.CreatedAt, &m.UpdatedAt,
			&m.Score,
		); err != nil {
			return nil, fmt.Errorf("scanning memory with score: %w", err)
		}
		if sessionID != nil {
			m.SourceSessionID = *sessionID
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating memories: %w", err)
	}
	return memories, nil
}
