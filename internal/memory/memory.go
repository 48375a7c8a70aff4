// Package memory implements long-lived semantic memory backed by
// PostgreSQL + pgvector. Memories are owner-scoped free-text facts with a
// category, retrieved by hybrid search (vector cosine similarity combined
// with full-text rank) and exposed to the fusion engine through Connector.
package memory

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Category classifies a memory for listing and export.
type Category string

const (
	// CategoryFact is a standalone fact worth recalling later.
	CategoryFact Category = "fact"
	// CategoryPreference is a stated user preference.
	CategoryPreference Category = "preference"
	// CategoryProject is context about ongoing work.
	CategoryProject Category = "project"
	// CategoryContext is conversational context with limited shelf life.
	CategoryContext Category = "context"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryFact, CategoryPreference, CategoryProject, CategoryContext:
		return true
	}
	return false
}

// AllCategories returns every valid category in canonical order.
func AllCategories() []Category {
	return []Category{CategoryFact, CategoryPreference, CategoryProject, CategoryContext}
}

const (
	// VectorDimension is the embedding dimensionality stored in pgvector.
	VectorDimension int32 = 768

	// MaxContentLength bounds a single memory's content in bytes.
	MaxContentLength = 4096

	// MaxPerOwner caps active memories per owner; Add evicts beyond it.
	MaxPerOwner = 2000

	// MaxTopK bounds search result sizes.
	MaxTopK = 50

	// MaxSearchQueryLen bounds query text passed to search.
	MaxSearchQueryLen = 2048

	// EmbedTimeout bounds a single embedding call.
	EmbedTimeout = 15 * time.Second

	// AutoMergeThreshold is the cosine similarity at or above which Add
	// updates the nearest existing memory in place instead of inserting.
	AutoMergeThreshold = 0.95
)

// Hybrid search composite weights. Relevance is
// searchWeightVector*(1 - cosine distance) + searchWeightText*ts_rank,
// with the text rank clamped to 1.0 so relevance stays in [0, 1].
const (
	searchWeightVector = 0.6
	searchWeightText   = 0.4
)

var (
	// ErrNotFound indicates the memory does not exist.
	ErrNotFound = errors.New("memory not found")
	// ErrForbidden indicates the memory belongs to a different owner.
	ErrForbidden = errors.New("memory belongs to another owner")
)

// Memory is a single stored memory row.
type Memory struct {
	ID              uuid.UUID  `json:"id"`
	OwnerID         string     `json:"ownerId"`
	Content         string     `json:"content"`
	Category        Category   `json:"category"`
	SourceSessionID uuid.UUID  `json:"sourceSessionId,omitzero"`
	Active          bool       `json:"active"`
	Importance      int        `json:"importance"`
	AccessCount     int        `json:"accessCount"`
	LastAccessedAt  *time.Time `json:"lastAccessedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`

	// Score is the composite relevance populated by HybridSearch.
	// Zero outside of search results.
	Score float64 `json:"score,omitempty"`
}

// Stats summarizes an owner's active memories.
type Stats struct {
	Total      int              `json:"total"`
	ByCategory map[Category]int `json:"byCategory"`
}
