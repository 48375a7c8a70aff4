package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/tessera-ai/tessera/internal/fusion"
	"github.com/tessera-ai/tessera/internal/source"
)

// conceptMatcher is the subset of Store the connector needs.
type conceptMatcher interface {
	MatchConcepts(ctx context.Context, terms []string, limit int) ([]Match, error)
}

// Connector adapts concept graph traversal to the retrieval fan-out.
type Connector struct {
	store conceptMatcher
}

// NewConnector creates a graph connector.
func NewConnector(store conceptMatcher) *Connector {
	return &Connector{store: store}
}

// Name implements source.Connector.
func (*Connector) Name() fusion.Source { return fusion.SourceGraph }

// Search implements source.Connector. Matching concepts are scored in Go
// from the term ratio, relationship strengths, and capability links the
// store returns.
func (c *Connector) Search(ctx context.Context, q source.Query) ([]fusion.Candidate, error) {
	terms := queryTerms(q.Text)
	if len(terms) == 0 {
		return []fusion.Candidate{}, nil
	}

	matches, err := c.store.MatchConcepts(ctx, terms, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("graph search: %w", err)
	}

	candidates := make([]fusion.Candidate, 0, len(matches))
	for _, m := range matches {
		content := m.Concept.Name
		if m.Concept.Description != "" {
			content += ": " + m.Concept.Description
		}
		md := map[string]any{
			"concept": m.Concept.Name,
		}
		if m.Concept.Category != "" {
			md["category"] = m.Concept.Category
		}
		if len(m.Capabilities) > 0 {
			md["capabilities"] = strings.Join(m.Capabilities, ",")
		}
		candidates = append(candidates, fusion.Candidate{
			ID:       "concept:" + m.Concept.Name,
			Source:   fusion.SourceGraph,
			Score:    scoreMatch(terms, q.Text, m),
			Content:  content,
			Metadata: md,
		})
	}
	return candidates, nil
}
