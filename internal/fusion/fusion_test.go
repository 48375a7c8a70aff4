package fusion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Weights: map[Source]float64{
			SourceMemory:       0.25,
			SourceVector:       0.60,
			SourceGraph:        0.40,
			SourceConversation: 0.10,
		},
		MaxItems: 10,
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"default is valid", DefaultConfig(), nil},
		{"max items zero", Config{MaxItems: 0}, ErrInvalidMaxItems},
		{"max items negative", Config{MaxItems: -3}, ErrInvalidMaxItems},
		{"threshold above one", Config{MaxItems: 1, DedupThreshold: 1.5}, ErrInvalidDedupThreshold},
		{"threshold negative", Config{MaxItems: 1, DedupThreshold: -0.1}, ErrInvalidDedupThreshold},
		{"negative weight", Config{MaxItems: 1, Weights: map[Source]float64{SourceVector: -0.5}}, ErrInvalidWeight},
		{"nan weight", Config{MaxItems: 1, Weights: map[Source]float64{SourceGraph: math.NaN()}}, ErrInvalidWeight},
		{"missing weights map is valid", Config{MaxItems: 1}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestFuseEmptyInput(t *testing.T) {
	cfg := testConfig()

	assert.Empty(t, Fuse(nil, cfg))
	assert.Empty(t, Fuse(map[Source][]Candidate{}, cfg))
	assert.Empty(t, Fuse(map[Source][]Candidate{
		SourceMemory: {},
		SourceVector: nil,
		SourceGraph:  {},
	}, cfg))
}

func TestFuseSingleSource(t *testing.T) {
	cfg := testConfig()
	cfg.Weights = map[Source]float64{SourceVector: 1.0}
	cfg.MaxItems = 2

	in := map[Source][]Candidate{
		SourceVector: {
			{ID: "a", Score: 0.9, Content: "alpha"},
			{ID: "b", Score: 0.5, Content: "beta"},
			{ID: "c", Score: 0.2, Content: "gamma"},
		},
	}

	out := Fuse(in, cfg)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.InDelta(t, 0.9, out[0].Score, 1e-9)
	assert.Equal(t, "b", out[1].ID)
	assert.InDelta(t, 0.5, out[1].Score, 1e-9)
	assert.Equal(t, []Source{SourceVector}, out[0].Sources)
}

func TestFuseWeightedSumAcrossSources(t *testing.T) {
	// Same identifier from memory (0.4, weight 0.25) and vector
	// (0.8, weight 0.6) fuses to 0.1 + 0.48 = 0.58.
	cfg := testConfig()

	in := map[Source][]Candidate{
		SourceMemory: {{ID: "doc-1", Score: 0.4, Content: "from memory"}},
		SourceVector: {{ID: "doc-1", Score: 0.8, Content: "from vector"}},
	}

	out := Fuse(in, cfg)
	require.Len(t, out, 1)
	assert.Equal(t, "doc-1", out[0].ID)
	assert.InDelta(t, 0.58, out[0].Score, 1e-9)
	assert.Equal(t, []Source{SourceMemory, SourceVector}, out[0].Sources)
	// Content carried from the best-scoring candidate.
	assert.Equal(t, "from vector", out[0].Content)
}

func TestFuseCorroborationReward(t *testing.T) {
	// A is vector-only at 0.9; B is in vector and graph at 0.5 each.
	// With equal weights 0.5: B = 0.5, A = 0.45 — B ranks above A.
	cfg := Config{
		Weights:  map[Source]float64{SourceVector: 0.5, SourceGraph: 0.5},
		MaxItems: 10,
	}

	in := map[Source][]Candidate{
		SourceVector: {
			{ID: "A", Score: 0.9, Content: "single source"},
			{ID: "B", Score: 0.5, Content: "corroborated"},
		},
		SourceGraph: {
			{ID: "B", Score: 0.5, Content: "corroborated"},
		},
	}

	out := Fuse(in, cfg)
	require.Len(t, out, 2)
	assert.Equal(t, "B", out[0].ID)
	assert.InDelta(t, 0.5, out[0].Score, 1e-9)
	assert.Equal(t, "A", out[1].ID)
	assert.InDelta(t, 0.45, out[1].Score, 1e-9)
}

func TestFuseDeterminism(t *testing.T) {
	cfg := testConfig()
	cfg.DedupThreshold = 0.85

	in := map[Source][]Candidate{
		SourceMemory: {
			{ID: "m1", Score: 0.7, Content: "user prefers dark mode terminals"},
			{ID: "m2", Score: 0.3, Content: "project deadline is friday"},
		},
		SourceVector: {
			{ID: "v1", Score: 0.9, Content: "loan approval requires credit check"},
			{ID: "v2", Score: 0.7, Content: "user prefers dark mode terminals"},
		},
		SourceGraph: {
			{ID: "g1", Score: 0.5, Content: "credit check links to loan approval"},
		},
		SourceConversation: {
			{ID: "c1", Score: 0.4, Content: "we discussed interest rates"},
		},
	}

	first := Fuse(in, cfg)
	for range 50 {
		assert.Equal(t, first, Fuse(in, cfg))
	}
}

func TestFuseBoundedOutputAndNoDuplicates(t *testing.T) {
	cfg := testConfig()
	cfg.MaxItems = 3

	in := map[Source][]Candidate{
		SourceVector: {
			{ID: "a", Score: 0.9, Content: "a"},
			{ID: "b", Score: 0.8, Content: "b"},
			{ID: "c", Score: 0.7, Content: "c"},
			{ID: "d", Score: 0.6, Content: "d"},
			{ID: "a", Score: 0.5, Content: "a again"},
		},
		SourceGraph: {
			{ID: "a", Score: 0.4, Content: "a graph"},
			{ID: "e", Score: 0.3, Content: "e"},
		},
	}

	out := Fuse(in, cfg)
	require.LessOrEqual(t, len(out), 3)

	seen := make(map[string]bool)
	for _, item := range out {
		assert.False(t, seen[item.ID], "duplicate identifier %q", item.ID)
		seen[item.ID] = true
	}
}

func TestFuseMonotonicWeighting(t *testing.T) {
	// Increasing the graph weight never decreases the rank of a
	// graph-only candidate relative to a fixed competitor.
	in := map[Source][]Candidate{
		SourceVector: {{ID: "vec-only", Score: 0.8, Content: "vector item"}},
		SourceGraph:  {{ID: "graph-only", Score: 0.8, Content: "graph item"}},
	}

	rankOf := func(items []Item, id string) int {
		for i, it := range items {
			if it.ID == id {
				return i
			}
		}
		t.Fatalf("item %q missing from output", id)
		return -1
	}

	prevRank := len(in)
	for _, gw := range []float64{0.1, 0.3, 0.5, 0.7, 0.9, 1.2} {
		cfg := Config{
			Weights:  map[Source]float64{SourceVector: 0.6, SourceGraph: gw},
			MaxItems: 10,
		}
		out := Fuse(in, cfg)
		r := rankOf(out, "graph-only")
		assert.LessOrEqual(t, r, prevRank, "graph weight %v worsened rank", gw)
		prevRank = r
	}
}

func TestFuseNormalizesOutOfRangeBatch(t *testing.T) {
	// A source whose connector failed to bound scores gets min-max
	// rescaled; an in-range source is left untouched.
	cfg := Config{
		Weights:  map[Source]float64{SourceVector: 1.0, SourceGraph: 1.0},
		MaxItems: 10,
	}

	in := map[Source][]Candidate{
		SourceVector: {
			{ID: "v-hi", Score: 10.0, Content: "hi"},
			{ID: "v-mid", Score: 5.0, Content: "mid"},
			{ID: "v-lo", Score: 0.0, Content: "lo"},
		},
		SourceGraph: {
			{ID: "g", Score: 0.5, Content: "graph"},
		},
	}

	out := Fuse(in, cfg)
	require.Len(t, out, 4)

	byID := make(map[string]Item)
	for _, it := range out {
		byID[it.ID] = it
	}
	assert.InDelta(t, 1.0, byID["v-hi"].Score, 1e-9)
	assert.InDelta(t, 0.5, byID["v-mid"].Score, 1e-9)
	assert.InDelta(t, 0.0, byID["v-lo"].Score, 1e-9)
	assert.InDelta(t, 0.5, byID["g"].Score, 1e-9)
}

func TestFuseConstantOutOfRangeBatchClamps(t *testing.T) {
	cfg := Config{Weights: map[Source]float64{SourceVector: 1.0}, MaxItems: 10}

	in := map[Source][]Candidate{
		SourceVector: {
			{ID: "a", Score: 7.0, Content: "a"},
			{ID: "b", Score: 7.0, Content: "b"},
		},
	}

	out := Fuse(in, cfg)
	require.Len(t, out, 2)
	for _, it := range out {
		assert.InDelta(t, 1.0, it.Score, 1e-9)
	}
}

func TestFuseRejectsMalformedCandidates(t *testing.T) {
	cfg := testConfig()

	in := map[Source][]Candidate{
		SourceVector: {
			{ID: "", Score: 0.9, Content: "missing identifier"},
			{ID: "nan", Score: math.NaN(), Content: "not a number"},
			{ID: "inf", Score: math.Inf(1), Content: "infinite"},
			{ID: "ok", Score: 0.6, Content: "valid"},
		},
	}

	out := Fuse(in, cfg)
	require.Len(t, out, 1)
	assert.Equal(t, "ok", out[0].ID)
	assert.InDelta(t, 0.36, out[0].Score, 1e-9)
}

func TestFuseMissingWeightDefaultsToZero(t *testing.T) {
	cfg := Config{
		Weights:  map[Source]float64{SourceVector: 0.6},
		MaxItems: 10,
	}

	in := map[Source][]Candidate{
		SourceVector: {{ID: "v", Score: 0.5, Content: "weighted"}},
		SourceGraph:  {{ID: "g", Score: 0.9, Content: "unweighted"}},
	}

	out := Fuse(in, cfg)
	require.Len(t, out, 2)
	assert.Equal(t, "v", out[0].ID)
	assert.InDelta(t, 0.3, out[0].Score, 1e-9)
	assert.Equal(t, "g", out[1].ID)
	assert.InDelta(t, 0.0, out[1].Score, 1e-9)
}

func TestFuseTieBreaks(t *testing.T) {
	// Equal fused scores: more contributing sources wins, then ID asc.
	cfg := Config{
		Weights:  map[Source]float64{SourceVector: 0.5, SourceGraph: 0.5},
		MaxItems: 10,
	}

	in := map[Source][]Candidate{
		SourceVector: {
			{ID: "z-single", Score: 0.8, Content: "z"},
			{ID: "both", Score: 0.4, Content: "both"},
			{ID: "a-single", Score: 0.8, Content: "a"},
		},
		SourceGraph: {
			{ID: "both", Score: 0.4, Content: "both"},
		},
	}

	out := Fuse(in, cfg)
	require.Len(t, out, 3)
	// All three fuse to 0.4.
	assert.Equal(t, "both", out[0].ID, "two sources beat one on a tie")
	assert.Equal(t, "a-single", out[1].ID)
	assert.Equal(t, "z-single", out[2].ID)
}

func TestFuseFuzzyDedupMergesBysmallestID(t *testing.T) {
	cfg := Config{
		Weights:        map[Source]float64{SourceMemory: 0.25, SourceVector: 0.60},
		MaxItems:       10,
		DedupThreshold: 0.8,
	}

	// Different identifiers, near-identical content across sources.
	in := map[Source][]Candidate{
		SourceVector: {{ID: "zzz-9", Score: 0.8, Content: "loan approval requires a credit check"}},
		SourceMemory: {{ID: "aaa-1", Score: 0.4, Content: "loan approval requires a credit check"}},
	}

	out := Fuse(in, cfg)
	require.Len(t, out, 1)
	assert.Equal(t, "aaa-1", out[0].ID, "merged group keyed by smallest identifier")
	assert.Equal(t, []Source{SourceMemory, SourceVector}, out[0].Sources)
	assert.InDelta(t, 0.25*0.4+0.60*0.8, out[0].Score, 1e-9)
}

func TestFuseFuzzyDedupDisabledByZeroThreshold(t *testing.T) {
	cfg := Config{
		Weights:  map[Source]float64{SourceMemory: 0.25, SourceVector: 0.60},
		MaxItems: 10,
	}

	in := map[Source][]Candidate{
		SourceVector: {{ID: "v1", Score: 0.8, Content: "identical content here"}},
		SourceMemory: {{ID: "m1", Score: 0.4, Content: "identical content here"}},
	}

	assert.Len(t, Fuse(in, cfg), 2)
}

func TestFuseFuzzyDedupRespectsThreshold(t *testing.T) {
	cfg := Config{
		Weights:        map[Source]float64{SourceVector: 1.0},
		MaxItems:       10,
		DedupThreshold: 0.9,
	}

	in := map[Source][]Candidate{
		SourceVector: {
			{ID: "a", Score: 0.8, Content: "the quick brown fox jumps over the lazy dog"},
			{ID: "b", Score: 0.6, Content: "an entirely different sentence about lending"},
		},
	}

	assert.Len(t, Fuse(in, cfg), 2, "dissimilar content must not merge")
}

func TestTokenOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "credit check required", "credit check required", 1.0},
		{"case insensitive", "Credit Check", "credit check", 1.0},
		{"disjoint", "alpha beta", "gamma delta", 0.0},
		{"partial", "a b c d", "a b x y", 0.5},
		{"both empty", "", "", 0.0},
		{"one empty", "something", "", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tokenOverlap(tt.a, tt.b), 1e-9)
		})
	}
}
