package knowledge

import (
	"context"
	"fmt"

	"github.com/tessera-ai/tessera/internal/fusion"
	"github.com/tessera-ai/tessera/internal/source"
)

// chunkSearcher is the subset of Store the connector needs.
type chunkSearcher interface {
	Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error)
}

// Connector adapts chunk similarity search to the retrieval fan-out.
type Connector struct {
	store chunkSearcher
}

// NewConnector creates a vector connector.
func NewConnector(store chunkSearcher) *Connector {
	return &Connector{store: store}
}

// Name implements source.Connector.
func (*Connector) Name() fusion.Source { return fusion.SourceVector }

// Search implements source.Connector.
func (c *Connector) Search(ctx context.Context, q source.Query) ([]fusion.Candidate, error) {
	results, err := c.store.Search(ctx, q.Text, WithTopK(q.Limit))
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	candidates := make([]fusion.Candidate, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, fusion.Candidate{
			ID:      "chunk:" + r.ChunkID.String(),
			Source:  fusion.SourceVector,
			Score:   r.Similarity,
			Content: r.Content,
			Metadata: map[string]any{
				"documentId": r.DocumentID.String(),
				"title":      r.Title,
				"sourceType": r.SourceType,
				"seq":        r.Seq,
			},
		})
	}
	return candidates, nil
}
