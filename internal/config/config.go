// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.tessera/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - AI: provider, model, temperature, max tokens, embedder
//   - Storage: PostgreSQL connection (see storage.go)
//   - Graph: Neo4j connection
//   - Fusion: source weights, context budget, dedup threshold (see fusion.go)
//   - Ingest: GitHub token, Redis task registry
//   - Observability: OTLP tracing endpoint
//
// Security: Sensitive data (passwords, tokens) are never logged; the config
// directory uses 0750 permissions.
// Validation: range checks live in validation.go with sentinel errors
// checkable via errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/tessera-ai/tessera/internal/fusion"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidNeo4jURI indicates the Neo4j connection URI is invalid.
	ErrInvalidNeo4jURI = errors.New("invalid Neo4j URI")

	// ErrInvalidFusion indicates the fusion configuration is invalid.
	ErrInvalidFusion = errors.New("invalid fusion configuration")

	// ErrInvalidTokenBudget indicates the context token budget is out of range.
	ErrInvalidTokenBudget = errors.New("invalid context token budget")

	// ErrInvalidSourceTimeout indicates the per-source timeout is out of range.
	ErrInvalidSourceTimeout = errors.New("invalid source timeout")
)

const (
	// DefaultGeminiEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 outputs 3072 dimensions by default, but supports
	// truncation to 768 via OutputDimensionality. Our pgvector schema uses
	// 768 dimensions; see knowledge.VectorDimension.
	DefaultGeminiEmbedderModel = "gemini-embedding-001"

	// DefaultMaxHistoryMessages is the default number of messages to load.
	DefaultMaxHistoryMessages int32 = 100

	// MaxAllowedHistoryMessages is the absolute maximum to prevent OOM.
	MaxAllowedHistoryMessages int32 = 10000
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOllama   = "ollama"
	ProviderGoogleAI = "googleai"
)

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider    string  `mapstructure:"provider" json:"provider"`
	ModelName   string  `mapstructure:"model_name" json:"model_name"`
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Conversation history configuration
	MaxHistoryMessages int32 `mapstructure:"max_history_messages" json:"max_history_messages"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Graph store configuration
	Neo4jURI      string `mapstructure:"neo4j_uri" json:"neo4j_uri"`
	Neo4jUser     string `mapstructure:"neo4j_user" json:"neo4j_user"`
	Neo4jPassword string `mapstructure:"neo4j_password" json:"neo4j_password"` // SENSITIVE: masked in MarshalJSON

	// Embedding configuration
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Fusion configuration (see fusion.go)
	Fusion FusionSettings `mapstructure:"fusion" json:"fusion"`

	// Ingestion configuration
	RedisAddr   string `mapstructure:"redis_addr" json:"redis_addr"`     // optional: Redis-backed task registry
	GitHubToken string `mapstructure:"github_token" json:"github_token"` // SENSITIVE: masked in MarshalJSON

	// Observability configuration
	OTLP OTLPSettings `mapstructure:"otlp" json:"otlp"`

	// Serve mode configuration
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"`
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`
}

// OTLPSettings holds OTLP trace export configuration.
// Tracing is disabled when Endpoint is empty.
type OTLPSettings struct {
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	// Configuration directory: ~/.tessera/ (overridable via TESSERA_CONFIG)
	configDir := os.Getenv("TESSERA_CONFIG")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting user home directory: %w", err)
		}
		configDir = filepath.Join(home, ".tessera")
	}

	// Ensure directory exists (0750 for better security)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	// Read configuration file (if exists)
	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Parse DATABASE_URL if set (highest priority for PostgreSQL config)
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// CRITICAL: Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("max_tokens", 2048)
	viper.SetDefault("max_history_messages", DefaultMaxHistoryMessages)

	// Ollama defaults
	viper.SetDefault("ollama_host", "http://localhost:11434")

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "tessera")
	viper.SetDefault("postgres_password", "tessera_dev_password")
	viper.SetDefault("postgres_db_name", "tessera")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Neo4j defaults
	viper.SetDefault("neo4j_uri", "neo4j://localhost:7687")
	viper.SetDefault("neo4j_user", "neo4j")
	viper.SetDefault("neo4j_password", "")

	// Embedding defaults
	viper.SetDefault("embedder_model", DefaultGeminiEmbedderModel)

	// Fusion defaults (the canonical weight table)
	viper.SetDefault("fusion.memory_weight", fusion.DefaultMemoryWeight)
	viper.SetDefault("fusion.vector_weight", fusion.DefaultVectorWeight)
	viper.SetDefault("fusion.graph_weight", fusion.DefaultGraphWeight)
	viper.SetDefault("fusion.conversation_weight", fusion.DefaultConversationWeight)
	viper.SetDefault("fusion.max_context_items", fusion.DefaultMaxItems)
	viper.SetDefault("fusion.dedup_similarity_threshold", fusion.DefaultDedupThreshold)
	viper.SetDefault("fusion.context_token_budget", DefaultContextTokenBudget)
	viper.SetDefault("fusion.source_timeout_seconds", DefaultSourceTimeoutSeconds)
	viper.SetDefault("fusion.source_limit", DefaultSourceLimit)

	// CORS defaults (local dev frontend)
	viper.SetDefault("cors_origins", []string{"http://localhost:5173"})

	// Proxy trust (default: false — safe for direct exposure)
	viper.SetDefault("trust_proxy", false)

	// OTLP defaults (tracing disabled until endpoint set)
	viper.SetDefault("otlp.endpoint", "")
	viper.SetDefault("otlp.service_name", "tessera")
	viper.SetDefault("otlp.environment", "dev")
}

// bindEnvVariables binds environment variable overrides explicitly.
//
// Secrets:
//  1. GEMINI_API_KEY - read directly by Genkit (not via Viper), presence
//     validated in cfg.Validate()
//  2. NEO4J_PASSWORD - graph store credential
//  3. GITHUB_TOKEN - optional, raises GitHub API rate limits for ingestion
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail)
	// If this panics, it's a BUG in our code, not a runtime error
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	// AI provider and model overrides
	mustBind("provider", "TESSERA_PROVIDER")
	mustBind("model_name", "TESSERA_MODEL_NAME")
	mustBind("ollama_host", "TESSERA_OLLAMA_HOST")

	// Graph store
	mustBind("neo4j_uri", "NEO4J_URI")
	mustBind("neo4j_user", "NEO4J_USER")
	mustBind("neo4j_password", "NEO4J_PASSWORD")

	// Ingestion
	mustBind("redis_addr", "TESSERA_REDIS_ADDR")
	mustBind("github_token", "GITHUB_TOKEN")

	// Serve mode
	mustBind("cors_origins", "TESSERA_CORS_ORIGINS")
	mustBind("trust_proxy", "TESSERA_TRUST_PROXY")
	mustBind("rate_burst", "TESSERA_RATE_BURST")

	// Observability
	mustBind("otlp.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")

	// NOTE: GEMINI_API_KEY is read directly by Genkit, not via Viper.
	// Validation checks its presence based on the selected provider.
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks (U+2588) avoid accidental substring matching against
// real secret material.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Shows first 2 and last 2 characters, masks the rest.
// SECURITY: secrets of 8 chars or fewer are fully masked to prevent
// substring attacks.
//
// THREAT MODEL: This defends against accidental logging of real secrets.
// It is NOT cryptographically secure — if logs are compromised, rotate secrets.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	prefix := make([]byte, 2)
	suffix := make([]byte, 2)
	copy(prefix, s[:2])
	copy(suffix, s[len(s)-2:])
	return string(prefix) + "<" + maskedValue + ">" + string(suffix)
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - PostgresPassword
//   - Neo4jPassword
//   - GitHubToken
//
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.Neo4jPassword = maskSecret(a.Neo4jPassword)
	a.GitHubToken = maskSecret(a.GitHubToken)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "googleai/gemini-2.5-flash", "ollama/llama3.3".
// If ModelName already contains a "/", it is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.ModelName
	default:
		return ProviderGoogleAI + "/" + c.ModelName
	}
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
