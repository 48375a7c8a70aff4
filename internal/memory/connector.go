package memory

import (
	"context"
	"fmt"

	"github.com/tessera-ai/tessera/internal/fusion"
	"github.com/tessera-ai/tessera/internal/source"
)

// hybridSearcher is the subset of Store the connector needs.
type hybridSearcher interface {
	HybridSearch(ctx context.Context, query, ownerID string, topK int) ([]*Memory, error)
}

// Connector adapts the memory store to the retrieval fan-out.
type Connector struct {
	store   hybridSearcher
	ownerID string
}

// NewConnector creates a memory connector. ownerID is the fallback scope
// for queries that carry no owner of their own.
func NewConnector(store hybridSearcher, ownerID string) *Connector {
	return &Connector{store: store, ownerID: ownerID}
}

// Name implements source.Connector.
func (*Connector) Name() fusion.Source { return fusion.SourceMemory }

// Search implements source.Connector. The query's owner scopes the search;
// the connector's fallback owner covers ownerless callers. The hybrid
// relevance already lives in [0, 1]; clamping guards against floating
// point drift at the boundaries.
func (c *Connector) Search(ctx context.Context, q source.Query) ([]fusion.Candidate, error) {
	owner := q.OwnerID
	if owner == "" {
		owner = c.ownerID
	}
	memories, err := c.store.HybridSearch(ctx, q.Text, owner, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("memory search: %w", err)
	}

	candidates := make([]fusion.Candidate, 0, len(memories))
	for _, m := range memories {
		score := m.Score
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		candidates = append(candidates, fusion.Candidate{
			ID:      "memory:" + m.ID.String(),
			Source:  fusion.SourceMemory,
			Score:   score,
			Content: m.Content,
			Metadata: map[string]any{
				"category":   string(m.Category),
				"importance": m.Importance,
			},
		})
	}
	return candidates, nil
}
