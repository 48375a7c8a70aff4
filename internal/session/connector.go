package session

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/tessera-ai/tessera/internal/fusion"
	"github.com/tessera-ai/tessera/internal/source"
)

// conversationWindow is how many recent messages the connector considers.
const conversationWindow = 20

// messageLoader is the subset of Store the connector needs.
type messageLoader interface {
	Recent(ctx context.Context, sessionID uuid.UUID, n int) ([]*Message, error)
}

// Connector surfaces the current session's recent messages as a retrieval
// source. Relevance is the fraction of query terms a message contains;
// messages with no overlap are dropped.
type Connector struct {
	store messageLoader
}

// NewConnector creates a conversation connector.
func NewConnector(store messageLoader) *Connector {
	return &Connector{store: store}
}

// Name implements source.Connector.
func (*Connector) Name() fusion.Source { return fusion.SourceConversation }

// Search implements source.Connector. Every overlapping message in the
// window is scored before the limit applies, so a high-overlap older
// message outranks a marginal newer one. Position metadata counts back
// from the newest message and breaks score ties toward recency.
func (c *Connector) Search(ctx context.Context, q source.Query) ([]fusion.Candidate, error) {
	if q.SessionID == uuid.Nil {
		return []fusion.Candidate{}, nil
	}
	terms := overlapTerms(q.Text)
	if len(terms) == 0 {
		return []fusion.Candidate{}, nil
	}

	messages, err := c.store.Recent(ctx, q.SessionID, conversationWindow)
	if err != nil {
		return nil, fmt.Errorf("conversation search: %w", err)
	}

	type hit struct {
		candidate fusion.Candidate
		position  int
	}
	var hits []hit
	for i, m := range messages {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			continue
		}
		text := m.Text()
		score := overlapRatio(terms, text)
		if score == 0 {
			continue
		}
		position := len(messages) - i - 1
		hits = append(hits, hit{
			candidate: fusion.Candidate{
				ID:      "msg:" + m.ID.String(),
				Source:  fusion.SourceConversation,
				Score:   score,
				Content: text,
				Metadata: map[string]any{
					"role":     m.Role,
					"position": position,
				},
			},
			position: position,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].candidate.Score != hits[j].candidate.Score {
			return hits[i].candidate.Score > hits[j].candidate.Score
		}
		return hits[i].position < hits[j].position
	})
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}

	candidates := make([]fusion.Candidate, len(hits))
	for i, h := range hits {
		candidates[i] = h.candidate
	}
	return candidates, nil
}

// overlapTerms tokenizes the query into a deduplicated set of lowercase
// terms.
func overlapTerms(query string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(query))
	terms := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()")
		if f != "" {
			terms[f] = struct{}{}
		}
	}
	return terms
}

// overlapRatio is the fraction of query terms present in the text.
func overlapRatio(terms map[string]struct{}, text string) float64 {
	if len(terms) == 0 || text == "" {
		return 0
	}
	words := overlapTerms(text)
	matched := 0
	for term := range terms {
		if _, ok := words[term]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}
