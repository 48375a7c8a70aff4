package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultHistoryLimit is the default number of messages loaded per session.
const DefaultHistoryLimit = 100

// MaxHistoryLimit is the absolute maximum to keep loads bounded.
const MaxHistoryLimit = 10000

// Store manages session persistence with a PostgreSQL backend.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a session Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Create creates a new conversation session.
func (s *Store) Create(ctx context.Context, ownerID, title string) (*Session, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner ID is required")
	}

	sess := &Session{OwnerID: ownerID, Title: title}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sessions (owner_id, title)
		 VALUES ($1, $2)
		 RETURNING id, created_at, updated_at`,
		ownerID, title,
	).Scan(&sess.ID, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	s.logger.Debug("created session", "id", sess.ID, "title", title)
	return sess, nil
}

// Get retrieves a session by ID. Returns ErrNotFound if it does not exist.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	sess := &Session{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, title, created_at, updated_at
		 FROM sessions WHERE id = $1`,
		id,
	).Scan(&sess.ID, &sess.OwnerID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting session %s: %w", id, err)
	}
	return sess, nil
}

// List returns sessions ordered by updated_at descending, with pagination.
func (s *Store) List(ctx context.Context, ownerID string, limit, offset int) ([]*Session, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, title, created_at, updated_at
		 FROM sessions
		 WHERE owner_id = $1
		 ORDER BY updated_at DESC, id
		 LIMIT $2 OFFSET $3`,
		ownerID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess := &Session{}
		if err := rows.Scan(&sess.ID, &sess.OwnerID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// UpdateTitle sets a session's title. Returns ErrNotFound for unknown IDs.
func (s *Store) UpdateTitle(ctx context.Context, id uuid.UUID, title string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET title = $2, updated_at = now() WHERE id = $1`,
		id, title,
	)
	if err != nil {
		return fmt.Errorf("updating session title %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// Delete removes a session and its messages (ON DELETE CASCADE).
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	s.logger.Debug("deleted session", "id", id)
	return nil
}

// AddMessages appends messages to a session atomically, assigning
// consecutive sequence numbers. The row lock on the session serializes
// concurrent appenders so sequence numbers never collide.
func (s *Store) AddMessages(ctx context.Context, sessionID uuid.UUID, messages []*Message) error {
	if len(messages) == 0 {
		return nil
	}
	for i, m := range messages {
		if !ValidRole(m.Role) {
			return fmt.Errorf("message %d: invalid role %q", i, m.Role)
		}
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

	var locked uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM sessions WHERE id = $1 FOR UPDATE`, sessionID,
	).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("locking session %s: %w", sessionID, err)
	}

	var maxSeq int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM messages WHERE session_id = $1`,
		sessionID,
	).Scan(&maxSeq); err != nil {
		return fmt.Errorf("reading max sequence: %w", err)
	}

	batch := &pgx.Batch{}
	for i, m := range messages {
		content, err := json.Marshal(m.Content)
		if err != nil {
			return fmt.Errorf("marshaling message %d content: %w", i, err)
		}
		batch.Queue(
			`INSERT INTO messages (session_id, role, content, sequence_number)
			 VALUES ($1, $2, $3, $4)`,
			sessionID, m.Role, content, maxSeq+i+1,
		)
	}
	batch.Queue(`UPDATE sessions SET updated_at = now() WHERE id = $1`, sessionID)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting %d messages: %w", len(messages), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing messages: %w", err)
	}
	return nil
}

// Messages returns a session's messages in chronological order, up to limit.
func (s *Store) Messages(ctx context.Context, sessionID uuid.UUID, limit int) ([]*Message, error) {
	limit = normalizeHistoryLimit(limit)

	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, role, content, sequence_number, created_at
		 FROM messages
		 WHERE session_id = $1
		 ORDER BY sequence_number
		 LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// Recent returns the most recent n messages in chronological order.
func (s *Store) Recent(ctx context.Context, sessionID uuid.UUID, n int) ([]*Message, error) {
	n = normalizeHistoryLimit(n)

	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, role, content, sequence_number, created_at
		 FROM (
		   SELECT id, session_id, role, content, sequence_number, created_at
		   FROM messages
		   WHERE session_id = $1
		   ORDER BY sequence_number DESC
		   LIMIT $2
		 ) recent
		 ORDER BY sequence_number`,
		sessionID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("loading recent messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// LoadHistory loads a session's messages as Genkit history.
func (s *Store) LoadHistory(ctx context.Context, sessionID uuid.UUID, limit int) (*History, error) {
	messages, err := s.Messages(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}

	h := NewHistory()
	aiMessages := make([]*ai.Message, 0, len(messages))
	for _, m := range messages {
		aiMessages = append(aiMessages, &ai.Message{
			Role:    toGenkitRole(m.Role),
			Content: m.Content,
		})
	}
	h.SetMessages(aiMessages)
	return h, nil
}

// Counts returns the total number of sessions and messages for an owner.
func (s *Store) Counts(ctx context.Context, ownerID string) (sessions, messages int, err error) {
	err = s.pool.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM sessions WHERE owner_id = $1),
		        (SELECT COUNT(*) FROM messages m
		         JOIN sessions s ON s.id = m.session_id
		         WHERE s.owner_id = $1)`,
		ownerID,
	).Scan(&sessions, &messages)
	if err != nil {
		return 0, 0, fmt.Errorf("counting sessions and messages: %w", err)
	}
	return sessions, messages, nil
}

func normalizeHistoryLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

// toGenkitRole maps stored roles onto Genkit's role set. Assistant maps to
// model; anything unknown degrades to user to keep history loadable.
func toGenkitRole(role string) ai.Role {
	switch role {
	case RoleAssistant:
		return ai.RoleModel
	case RoleSystem:
		return ai.RoleSystem
	case RoleTool:
		return ai.RoleTool
	default:
		return ai.RoleUser
	}
}

func scanMessages(rows pgx.Rows) ([]*Message, error) {
	var messages []*Message
	for rows.Next() {
		m := &Message{}
		var content []byte
		if err := rows.Scan(
			&m.ID, &m.SessionID, &m.Role, &content,
			&m.SequenceNumber, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if err := json.Unmarshal(content, &m.Content); err != nil {
			return nil, fmt.Errorf("unmarshaling message %s content: %w", m.ID, err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return messages, nil
}
