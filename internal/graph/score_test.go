package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryTerms(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"simple", "context fusion engine", []string{"context", "fusion", "engine"}},
		{"short tokens dropped", "go is a language", []string{"language"}},
		{"punctuation trimmed", "What's ingestion?", []string{"what's", "ingestion"}},
		{"lowercased", "Semantic MEMORY", []string{"semantic", "memory"}},
		{"empty", "", nil},
		{"only short tokens", "a b cd", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := queryTerms(tt.query)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScoreMatch(t *testing.T) {
	t.Run("full term ratio only", func(t *testing.T) {
		m := Match{Concept: Concept{Name: "semantic memory", Description: "long-lived facts"}}
		got := scoreMatch([]string{"semantic", "memory"}, "semantic memory facts", m)
		assert.InDelta(t, 0.4, got, 1e-9)
	})

	t.Run("partial term ratio", func(t *testing.T) {
		m := Match{Concept: Concept{Name: "ingestion", Description: "chunking content"}}
		got := scoreMatch([]string{"ingestion", "neo4j"}, "ingestion neo4j", m)
		assert.InDelta(t, 0.2, got, 1e-9)
	})

	t.Run("strength mean added", func(t *testing.T) {
		m := Match{
			Concept:   Concept{Name: "retrieval", Description: ""},
			Strengths: []float64{0.8, 0.4},
		}
		// 0.4*1 + 0.3*0.6
		got := scoreMatch([]string{"retrieval"}, "tell me about retrieval paths", m)
		assert.InDelta(t, 0.58, got, 1e-9)
	})

	t.Run("exact name bonus", func(t *testing.T) {
		m := Match{Concept: Concept{Name: "context fusion"}}
		got := scoreMatch([]string{"context", "fusion"}, "Context Fusion", m)
		assert.InDelta(t, 0.6, got, 1e-9)
	})

	t.Run("capability bonus", func(t *testing.T) {
		m := Match{
			Concept:      Concept{Name: "ingestion"},
			Capabilities: []string{"ingest documents"},
		}
		got := scoreMatch([]string{"ingestion"}, "ingestion", m)
		// 0.4 + 0.2 exact + 0.1 capability
		assert.InDelta(t, 0.7, got, 1e-9)
	})

	t.Run("capped at one", func(t *testing.T) {
		m := Match{
			Concept:      Concept{Name: "retrieval", Description: "retrieval everywhere"},
			Strengths:    []float64{1, 1, 1},
			Capabilities: []string{"answer with context"},
		}
		got := scoreMatch([]string{"retrieval"}, "retrieval", m)
		assert.Equal(t, 1.0, got)
	})

	t.Run("no terms", func(t *testing.T) {
		assert.Zero(t, scoreMatch(nil, "", Match{}))
	})
}
