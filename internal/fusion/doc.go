// Package fusion implements the context fusion and ranking engine.
//
// The engine takes heterogeneous, differently-scored result lists from
// multiple retrieval backends (semantic memory, vector similarity, graph
// traversal, conversation history) and produces a single ordered,
// deduplicated context set bounded by a configurable budget.
//
// Fuse is a pure function: it performs no I/O, reads no clock, and uses
// no randomness. Given identical inputs it always produces identical
// output, in both identity and order. The package also provides Assemble,
// which renders a fused item list into a token-budgeted prompt fragment.
//
// Design:
//   - Per-source min-max normalization rescues batches whose connector
//     failed to bound scores to [0,1].
//   - Candidates are grouped by identifier; optional fuzzy dedup merges
//     groups with near-identical content, keyed by the lexicographically
//     smallest identifier.
//   - fused = Σ weight(s) × score(s) over contributing sources, so
//     multi-source corroboration is rewarded by construction.
package fusion
