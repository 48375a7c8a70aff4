package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
// A validation failure here blocks process startup (fail-fast); nothing
// downstream re-validates at request time.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. API key validation (required unless running against local Ollama)
	if c.Provider != ProviderOllama && os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
			"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
			ErrMissingAPIKey)
	}

	// 2. Model configuration
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	// Temperature range: 0.0 (deterministic) to 2.0 (maximum creativity)
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	// MaxTokens range: 1 to 2097152 (Gemini 2.5 max context window)
	if c.MaxTokens < 1 || c.MaxTokens > 2097152 {
		return fmt.Errorf("%w: must be between 1 and 2,097,152, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	// 3. PostgreSQL configuration
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set in config.yaml", ErrInvalidPostgresPassword)
	}
	if c.PostgresPassword == "tessera_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password in config.yaml for production deployments")
	}
	if len(c.PostgresPassword) < 8 {
		return fmt.Errorf("%w: postgres_password must be at least 8 characters (got %d)",
			ErrInvalidPostgresPassword, len(c.PostgresPassword))
	}

	// Modern SSL modes only - exclude deprecated allow/prefer (MITM vulnerable)
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v\n"+
			"Note: 'allow' and 'prefer' modes are deprecated (vulnerable to MITM attacks)",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	// 4. Neo4j configuration. A missing password is allowed (auth-disabled
	// dev instances); an unparseable URI is not.
	if c.Neo4jURI == "" {
		return fmt.Errorf("%w: neo4j_uri cannot be empty", ErrInvalidNeo4jURI)
	}
	if !hasNeo4jScheme(c.Neo4jURI) {
		return fmt.Errorf("%w: %q (expected neo4j://, neo4j+s://, bolt:// or bolt+s://)",
			ErrInvalidNeo4jURI, c.Neo4jURI)
	}

	// 5. Fusion configuration (delegates to fusion.Config.Validate)
	if err := c.Fusion.Engine().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFusion, err)
	}
	if c.Fusion.ContextTokenBudget < 1 {
		return fmt.Errorf("%w: must be >= 1, got %d", ErrInvalidTokenBudget, c.Fusion.ContextTokenBudget)
	}
	if c.Fusion.SourceTimeoutSeconds < 1 || c.Fusion.SourceTimeoutSeconds > 120 {
		return fmt.Errorf("%w: must be between 1 and 120 seconds, got %d",
			ErrInvalidSourceTimeout, c.Fusion.SourceTimeoutSeconds)
	}
	if c.Fusion.SourceLimit < 1 {
		return fmt.Errorf("%w: source_limit must be >= 1, got %d", ErrInvalidFusion, c.Fusion.SourceLimit)
	}

	// 6. History bounds
	if c.MaxHistoryMessages < 1 || c.MaxHistoryMessages > MaxAllowedHistoryMessages {
		return fmt.Errorf("max_history_messages must be between 1 and %d, got %d",
			MaxAllowedHistoryMessages, c.MaxHistoryMessages)
	}

	return nil
}

// NormalizeMaxHistoryMessages clamps the max history messages value into
// its allowed range, substituting the default for non-positive input.
func NormalizeMaxHistoryMessages(limit int32) int32 {
	if limit <= 0 {
		return DefaultMaxHistoryMessages
	}
	if limit > MaxAllowedHistoryMessages {
		return MaxAllowedHistoryMessages
	}
	return limit
}

// hasNeo4jScheme reports whether uri carries a scheme the neo4j-go-driver
// accepts.
func hasNeo4jScheme(uri string) bool {
	for _, scheme := range []string{"neo4j://", "neo4j+s://", "neo4j+ssc://", "bolt://", "bolt+s://", "bolt+ssc://"} {
		if strings.HasPrefix(uri, scheme) {
			return true
		}
	}
	return false
}
