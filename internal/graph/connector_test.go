package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-ai/tessera/internal/fusion"
	"github.com/tessera-ai/tessera/internal/source"
)

type stubMatcher struct {
	matches []Match
	err     error

	gotTerms []string
	gotLimit int
}

func (s *stubMatcher) MatchConcepts(_ context.Context, terms []string, limit int) ([]Match, error) {
	s.gotTerms = terms
	s.gotLimit = limit
	return s.matches, s.err
}

func TestConnectorName(t *testing.T) {
	assert.Equal(t, fusion.SourceGraph, NewConnector(&stubMatcher{}).Name())
}

func TestConnectorSearch(t *testing.T) {
	stub := &stubMatcher{
		matches: []Match{
			{
				Concept:      Concept{Name: "ingestion", Description: "chunking and embedding content", Category: "pipeline"},
				Strengths:    []float64{0.9},
				Capabilities: []string{"ingest documents"},
			},
		},
	}
	c := NewConnector(stub)

	got, err := c.Search(t.Context(), source.Query{Text: "how does ingestion work", Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, "concept:ingestion", got[0].ID)
	assert.Equal(t, fusion.SourceGraph, got[0].Source)
	assert.Equal(t, "ingestion: chunking and embedding content", got[0].Content)
	assert.Equal(t, "ingestion", got[0].Metadata["concept"])
	assert.Equal(t, "pipeline", got[0].Metadata["category"])
	assert.Equal(t, "ingest documents", got[0].Metadata["capabilities"])
	assert.Greater(t, got[0].Score, 0.0)
	assert.LessOrEqual(t, got[0].Score, 1.0)

	assert.Equal(t, []string{"how", "does", "ingestion", "work"}, stub.gotTerms)
	assert.Equal(t, 10, stub.gotLimit)
}

func TestConnectorSearchNoUsableTerms(t *testing.T) {
	stub := &stubMatcher{}
	c := NewConnector(stub)

	got, err := c.Search(t.Context(), source.Query{Text: "a b", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Nil(t, stub.gotTerms)
}

func TestConnectorSearchPropagatesError(t *testing.T) {
	c := NewConnector(&stubMatcher{err: errors.New("bolt handshake failed")})
	_, err := c.Search(t.Context(), source.Query{Text: "retrieval", Limit: 5})
	assert.ErrorContains(t, err, "graph search")
}
