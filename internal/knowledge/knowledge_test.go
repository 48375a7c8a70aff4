package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidSourceType(t *testing.T) {
	for _, st := range []string{SourceTypeFile, SourceTypeURL, SourceTypeGitHub, SourceTypeSeed} {
		assert.True(t, ValidSourceType(st), "source type %q should be valid", st)
	}
	assert.False(t, ValidSourceType(""))
	assert.False(t, ValidSourceType("conversation"))
	assert.False(t, ValidSourceType("File"))
}

func TestBuildSearchConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := buildSearchConfig(nil)
		assert.Equal(t, defaultTopK, cfg.topK)
		assert.Empty(t, cfg.sourceType)
	})

	t.Run("topK applied", func(t *testing.T) {
		cfg := buildSearchConfig([]SearchOption{WithTopK(12)})
		assert.Equal(t, 12, cfg.topK)
	})

	t.Run("non-positive topK falls back", func(t *testing.T) {
		cfg := buildSearchConfig([]SearchOption{WithTopK(0)})
		assert.Equal(t, defaultTopK, cfg.topK)
	})

	t.Run("topK capped", func(t *testing.T) {
		cfg := buildSearchConfig([]SearchOption{WithTopK(MaxTopK + 10)})
		assert.Equal(t, MaxTopK, cfg.topK)
	})

	t.Run("source type filter", func(t *testing.T) {
		cfg := buildSearchConfig([]SearchOption{WithSourceType(SourceTypeSeed)})
		assert.Equal(t, SourceTypeSeed, cfg.sourceType)
	})
}

func TestClampSimilarity(t *testing.T) {
	assert.Equal(t, 0.0, clampSimilarity(-0.3))
	assert.Equal(t, 1.0, clampSimilarity(1.2))
	assert.Equal(t, 0.42, clampSimilarity(0.42))
}

func TestSeedDocs(t *testing.T) {
	docs := seedDocs()
	assert.NotEmpty(t, docs)

	seen := make(map[string]bool)
	for _, d := range docs {
		assert.NotEmpty(t, d.ref)
		assert.NotEmpty(t, d.title)
		assert.NotEmpty(t, d.chunks)
		assert.False(t, seen[d.ref], "duplicate seed ref %q", d.ref)
		seen[d.ref] = true
	}
}
