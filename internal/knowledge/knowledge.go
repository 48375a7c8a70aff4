// Package knowledge stores ingested documents and their embedded chunks in
// PostgreSQL + pgvector. Documents come from file uploads, fetched URLs,
// GitHub repositories, or the built-in seed set; chunk similarity search
// feeds the vector retrieval source.
package knowledge

import (
	"time"

	"github.com/google/uuid"
)

// Source types for knowledge documents.
const (
	// SourceTypeFile is an uploaded file.
	SourceTypeFile = "file"

	// SourceTypeURL is a fetched web page.
	SourceTypeURL = "url"

	// SourceTypeGitHub is a file from an indexed GitHub repository.
	SourceTypeGitHub = "github"

	// SourceTypeSeed is built-in baseline knowledge.
	SourceTypeSeed = "seed"
)

// ValidSourceType reports whether t is a known source type.
func ValidSourceType(t string) bool {
	switch t {
	case SourceTypeFile, SourceTypeURL, SourceTypeGitHub, SourceTypeSeed:
		return true
	}
	return false
}

// Document is an ingested source of chunks.
type Document struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	SourceType string    `json:"sourceType"`
	SourceRef  string    `json:"sourceRef"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Result is a chunk returned from similarity search.
type Result struct {
	ChunkID    uuid.UUID `json:"chunkId"`
	DocumentID uuid.UUID `json:"documentId"`
	Title      string    `json:"title"`
	SourceType string    `json:"sourceType"`
	Seq        int       `json:"seq"`
	Content    string    `json:"content"`

	// Similarity is 1 - cosine distance, clamped to [0, 1].
	Similarity float64 `json:"similarity"`
}

const (
	defaultTopK = 5

	// MaxTopK bounds search result sizes.
	MaxTopK = 50

	// searchTimeout bounds a single embed + vector search round trip.
	searchTimeout = 10 * time.Second
)

// SearchOption configures Search behavior.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK       int
	sourceType string
}

// WithTopK sets the maximum number of results (default 5, capped at MaxTopK).
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		c.topK = k
	}
}

// WithSourceType restricts results to chunks of documents with the given
// source type.
func WithSourceType(sourceType string) SearchOption {
	return func(c *searchConfig) {
		c.sourceType = sourceType
	}
}

func buildSearchConfig(opts []SearchOption) searchConfig {
	cfg := searchConfig{topK: defaultTopK}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.topK <= 0 {
		cfg.topK = defaultTopK
	}
	if cfg.topK > MaxTopK {
		cfg.topK = MaxTopK
	}
	return cfg
}
