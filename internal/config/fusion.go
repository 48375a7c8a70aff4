package config

import (
	"time"

	"github.com/tessera-ai/tessera/internal/fusion"
)

// Fusion tuning defaults not owned by the fusion package itself.
const (
	// DefaultContextTokenBudget bounds the assembled prompt fragment.
	DefaultContextTokenBudget = 2000

	// DefaultSourceTimeoutSeconds is the per-connector search deadline.
	DefaultSourceTimeoutSeconds = 5

	// DefaultSourceLimit is the per-source candidate cap per query.
	DefaultSourceLimit = 10
)

// FusionSettings is the file/env shape of the fusion configuration.
// Weights are flat keys rather than a map so they bind cleanly to both
// YAML and TESSERA_* environment overrides.
type FusionSettings struct {
	MemoryWeight       float64 `mapstructure:"memory_weight" json:"memory_weight"`
	VectorWeight       float64 `mapstructure:"vector_weight" json:"vector_weight"`
	GraphWeight        float64 `mapstructure:"graph_weight" json:"graph_weight"`
	ConversationWeight float64 `mapstructure:"conversation_weight" json:"conversation_weight"`

	MaxContextItems          int     `mapstructure:"max_context_items" json:"max_context_items"`
	DedupSimilarityThreshold float64 `mapstructure:"dedup_similarity_threshold" json:"dedup_similarity_threshold"`

	ContextTokenBudget   int `mapstructure:"context_token_budget" json:"context_token_budget"`
	SourceTimeoutSeconds int `mapstructure:"source_timeout_seconds" json:"source_timeout_seconds"`
	SourceLimit          int `mapstructure:"source_limit" json:"source_limit"`
}

// Engine converts the settings into the immutable fusion.Config consumed
// by the engine. Called once at startup after Validate.
func (f FusionSettings) Engine() fusion.Config {
	return fusion.Config{
		Weights: map[fusion.Source]float64{
			fusion.SourceMemory:       f.MemoryWeight,
			fusion.SourceVector:       f.VectorWeight,
			fusion.SourceGraph:        f.GraphWeight,
			fusion.SourceConversation: f.ConversationWeight,
		},
		MaxItems:       f.MaxContextItems,
		DedupThreshold: f.DedupSimilarityThreshold,
	}
}

// SourceTimeout returns the per-connector deadline as a Duration.
func (f FusionSettings) SourceTimeout() time.Duration {
	return time.Duration(f.SourceTimeoutSeconds) * time.Second
}
