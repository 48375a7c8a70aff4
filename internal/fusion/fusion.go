package fusion

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Source identifies a retrieval backend.
type Source string

// Known retrieval sources.
const (
	SourceMemory       Source = "memory"
	SourceVector       Source = "vector"
	SourceGraph        Source = "graph"
	SourceConversation Source = "conversation"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceMemory, SourceVector, SourceGraph, SourceConversation:
		return true
	}
	return false
}

// AllSources returns the known sources in canonical order.
func AllSources() []Source {
	return []Source{SourceMemory, SourceVector, SourceGraph, SourceConversation}
}

// Candidate is a single retrieved item before fusion.
//
// ID uniqueness scope is per-source, not global. Score is on the source's
// local scale; connectors are expected to normalize to [0,1] before handing
// candidates to Fuse, but the engine rescues out-of-range batches (see Fuse).
type Candidate struct {
	ID       string         `json:"id"`
	Source   Source         `json:"source"`
	Score    float64        `json:"score"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Item is a post-fusion context item.
//
// ID, Content, and Metadata are carried over from the best-scoring
// candidate in the item's group. Sources lists the contributing sources,
// sorted and unique.
type Item struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
	Sources  []Source       `json:"sources"`
}

// Sentinel errors for Config validation.
var (
	// ErrInvalidMaxItems indicates MaxItems is below 1.
	ErrInvalidMaxItems = errors.New("invalid max items")

	// ErrInvalidDedupThreshold indicates DedupThreshold is outside [0,1].
	ErrInvalidDedupThreshold = errors.New("invalid dedup threshold")

	// ErrInvalidWeight indicates a source weight is negative or not finite.
	ErrInvalidWeight = errors.New("invalid source weight")
)

// Default fusion parameters. The weight table is the canonical one:
// memory 0.25, vector 0.60, graph 0.40, conversation 0.10.
const (
	DefaultMaxItems       = 8
	DefaultDedupThreshold = 0.85

	DefaultMemoryWeight       = 0.25
	DefaultVectorWeight       = 0.60
	DefaultGraphWeight        = 0.40
	DefaultConversationWeight = 0.10
)

// Config holds the fusion parameters. Loaded once at startup, validated
// with Validate, and treated as immutable thereafter. Weights need not
// sum to 1 — they are multiplicative coefficients, not probabilities.
// A source present in the input but missing from Weights contributes
// with weight 0 rather than failing the call.
type Config struct {
	Weights        map[Source]float64 `json:"weights"`
	MaxItems       int                `json:"max_items"`
	DedupThreshold float64            `json:"dedup_threshold"` // 0 disables fuzzy dedup
}

// DefaultConfig returns the canonical fusion configuration.
func DefaultConfig() Config {
	return Config{
		Weights: map[Source]float64{
			SourceMemory:       DefaultMemoryWeight,
			SourceVector:       DefaultVectorWeight,
			SourceGraph:        DefaultGraphWeight,
			SourceConversation: DefaultConversationWeight,
		},
		MaxItems:       DefaultMaxItems,
		DedupThreshold: DefaultDedupThreshold,
	}
}

// Validate checks the configuration. Intended for startup fail-fast;
// Fuse itself never fails on a validated config.
func (c Config) Validate() error {
	if c.MaxItems < 1 {
		return fmt.Errorf("%w: %d (must be >= 1)", ErrInvalidMaxItems, c.MaxItems)
	}
	if c.DedupThreshold < 0 || c.DedupThreshold > 1 || math.IsNaN(c.DedupThreshold) {
		return fmt.Errorf("%w: %v (must be in [0,1])", ErrInvalidDedupThreshold, c.DedupThreshold)
	}
	for src, w := range c.Weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: %s=%v", ErrInvalidWeight, src, w)
		}
	}
	return nil
}

// Weight returns the weight for a source, defaulting to 0 when unset.
func (c Config) Weight(src Source) float64 {
	return c.Weights[src]
}

// group accumulates candidates sharing one output identifier.
type group struct {
	id       string
	perSrc   map[Source]float64 // best normalized score per source
	best     Candidate          // best-scoring candidate (content/metadata carrier)
	bestNorm float64
}

// Fuse merges per-source candidate lists into one ranked, bounded,
// deduplicated item list.
//
// Pipeline:
//  1. Reject malformed candidates individually (empty ID, NaN/Inf score);
//     per source, min-max rescale the batch if any surviving score falls
//     outside [0,1].
//  2. Group by ID; if cfg.DedupThreshold > 0, merge groups whose contents
//     are near-identical (token-overlap ratio >= threshold), keyed by the
//     lexicographically smallest ID.
//  3. fused = Σ weight(s) × best score(s) over contributing sources.
//  4. Sort by fused score desc, contributing-source count desc, ID asc;
//     truncate to cfg.MaxItems.
//
// Result length is <= cfg.MaxItems, contains no duplicate IDs, and is
// deterministic for identical inputs. A nil or all-empty input yields an
// empty (non-nil) result.
func Fuse(bySource map[Source][]Candidate, cfg Config) []Item {
	groups := make(map[string]*group)

	// Iterate sources in canonical order so best-candidate tie-breaks
	// never depend on map iteration order.
	for _, src := range AllSources() {
		batch := sanitize(bySource[src])
		if len(batch) == 0 {
			continue
		}
		normalize(batch)

		for _, c := range batch {
			c.Source = src // the map key is authoritative
			g, ok := groups[c.ID]
			if !ok {
				g = &group{id: c.ID, perSrc: make(map[Source]float64), best: c, bestNorm: c.Score}
				groups[c.ID] = g
			}
			// Within a source, duplicate IDs keep the best score.
			if prev, seen := g.perSrc[src]; !seen || c.Score > prev {
				g.perSrc[src] = c.Score
			}
			if c.Score > g.bestNorm {
				g.best = c
				g.bestNorm = c.Score
			}
		}
	}

	if cfg.DedupThreshold > 0 {
		groups = mergeNearDuplicates(groups, cfg.DedupThreshold)
	}

	items := make([]Item, 0, len(groups))
	for _, g := range groups {
		var fused float64
		srcs := make([]Source, 0, len(g.perSrc))
		for src, score := range g.perSrc {
			fused += cfg.Weight(src) * score
			srcs = append(srcs, src)
		}
		sort.Slice(srcs, func(i, j int) bool { return srcs[i] < srcs[j] })

		items = append(items, Item{
			ID:       g.id,
			Content:  g.best.Content,
			Metadata: g.best.Metadata,
			Score:    fused,
			Sources:  srcs,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		if len(items[i].Sources) != len(items[j].Sources) {
			return len(items[i].Sources) > len(items[j].Sources)
		}
		return items[i].ID < items[j].ID
	})

	if len(items) > cfg.MaxItems {
		items = items[:cfg.MaxItems]
	}
	return items
}

// sanitize drops malformed candidates: empty ID, NaN or infinite score.
// Rejection is per-candidate — the rest of the batch survives.
func sanitize(batch []Candidate) []Candidate {
	out := make([]Candidate, 0, len(batch))
	for _, c := range batch {
		if c.ID == "" {
			continue
		}
		if math.IsNaN(c.Score) || math.IsInf(c.Score, 0) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// normalize rescales a source batch in place when any score is outside
// [0,1]. Uses the batch's observed min/max so one noisy source cannot
// dominate by raw magnitude. A constant batch clamps instead.
func normalize(batch []Candidate) {
	inRange := true
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, c := range batch {
		if c.Score < 0 || c.Score > 1 {
			inRange = false
		}
		lo = math.Min(lo, c.Score)
		hi = math.Max(hi, c.Score)
	}
	if inRange {
		return
	}
	if hi == lo {
		v := clamp01(lo)
		for i := range batch {
			batch[i].Score = v
		}
		return
	}
	for i := range batch {
		batch[i].Score = (batch[i].Score - lo) / (hi - lo)
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// mergeNearDuplicates collapses groups whose contents are near-identical.
// Groups are visited in ascending ID order and each group is absorbed into
// the first earlier group it matches, so the merged group is always keyed
// by the lexicographically smallest ID — deterministic by construction.
func mergeNearDuplicates(groups map[string]*group, threshold float64) map[string]*group {
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	kept := make([]*group, 0, len(ids))
	for _, id := range ids {
		g := groups[id]
		merged := false
		for _, k := range kept {
			if tokenOverlap(k.best.Content, g.best.Content) >= threshold {
				absorb(k, g)
				merged = true
				break
			}
		}
		if !merged {
			kept = append(kept, g)
		}
	}

	out := make(map[string]*group, len(kept))
	for _, g := range kept {
		out[g.id] = g
	}
	return out
}

// absorb folds src into dst: per-source best scores union, best candidate
// carries over if strictly better. dst keeps its (smaller) ID.
func absorb(dst, src *group) {
	for s, score := range src.perSrc {
		if prev, ok := dst.perSrc[s]; !ok || score > prev {
			dst.perSrc[s] = score
		}
	}
	if src.bestNorm > dst.bestNorm {
		dst.best = src.best
		dst.bestNorm = src.bestNorm
	}
}

// tokenOverlap computes the token-overlap ratio |A∩B| / max(|A|,|B|)
// over lowercased word tokens. Returns 0 when either side is empty.
func tokenOverlap(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			shared++
		}
	}
	return float64(shared) / math.Max(float64(len(ta)), float64(len(tb)))
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		set[tok] = struct{}{}
	}
	return set
}
