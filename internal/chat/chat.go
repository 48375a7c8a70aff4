// Package chat implements the conversational service: it gathers
// context from the retrieval sources, fuses and renders it into a
// prompt fragment, generates a model response with the session history,
// and persists the exchanged messages.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tessera-ai/tessera/internal/fusion"
	"github.com/tessera-ai/tessera/internal/session"
	"github.com/tessera-ai/tessera/internal/source"
)

const (
	// fallbackResponseMessage is returned when the model produces an
	// empty response.
	fallbackResponseMessage = "I apologize, but I couldn't generate a response. Please try rephrasing your question."

	// historyLimit bounds how many stored messages are loaded per turn.
	historyLimit = 50
)

// Sentinel errors for service operations.
var (
	// ErrInvalidSession indicates the session ID is invalid or unknown.
	ErrInvalidSession = errors.New("invalid session")

	// ErrExecutionFailed indicates response generation failed.
	ErrExecutionFailed = errors.New("execution failed")
)

// Response is the complete result of one conversational turn.
type Response struct {
	FinalText   string        // Model's final text output
	ContextUsed []fusion.Item // Fused context injected into the prompt
}

// StreamCallback is called for each chunk of a streaming response.
// Return an error to abort the stream.
type StreamCallback func(ctx context.Context, chunk *ai.ModelResponseChunk) error

// sessionStore is the subset of session.Store the service needs.
type sessionStore interface {
	Get(ctx context.Context, id uuid.UUID) (*session.Session, error)
	LoadHistory(ctx context.Context, sessionID uuid.UUID, limit int) (*session.History, error)
	AddMessages(ctx context.Context, sessionID uuid.UUID, messages []*session.Message) error
}

// Config contains all required parameters for the chat service.
type Config struct {
	Genkit       *genkit.Genkit
	Gatherer     *source.Gatherer
	SessionStore sessionStore
	Logger       *slog.Logger

	// Fusion behavior. Zero value uses fusion.DefaultConfig.
	FusionConfig fusion.Config

	// SourceLimit caps candidates requested per retrieval source.
	// Zero uses the fusion MaxItems.
	SourceLimit int

	// Configuration values
	ModelName string // Provider-qualified model name (e.g. "googleai/gemini-2.5-flash")

	// Resilience configuration
	RetryConfig          RetryConfig          // LLM retry settings (zero-value uses defaults)
	CircuitBreakerConfig CircuitBreakerConfig // Circuit breaker settings (zero-value uses defaults)
	RateLimiter          *rate.Limiter        // Optional: proactive rate limiting (nil = use default)

	// Token management
	TokenBudget TokenBudget // Token budget for history and context (zero-value uses defaults)
}

// validate checks if all required parameters are present.
func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Gatherer == nil {
		return errors.New("source gatherer is required")
	}
	if cfg.SessionStore == nil {
		return errors.New("session store is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Service runs retrieval-augmented conversations.
//
// Service is stateless across requests; all configuration is captured
// immutably at construction time for thread-safe concurrent access.
type Service struct {
	// Immutable configuration (captured at construction)
	modelName   string
	fusionCfg   fusion.Config
	sourceLimit int

	// Resilience (captured at construction)
	retryConfig    RetryConfig
	circuitBreaker *CircuitBreaker
	rateLimiter    *rate.Limiter

	// Token management (captured at construction)
	tokenBudget TokenBudget

	// Dependencies (read-only after construction)
	g        *genkit.Genkit
	gatherer *source.Gatherer
	sessions sessionStore
	logger   *slog.Logger
}

// New creates a new Service with required configuration.
func New(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	fusionCfg := cfg.FusionConfig
	if len(fusionCfg.Weights) == 0 && fusionCfg.MaxItems == 0 {
		fusionCfg = fusion.DefaultConfig()
	}
	if err := fusionCfg.Validate(); err != nil {
		return nil, fmt.Errorf("fusion config: %w", err)
	}

	sourceLimit := cfg.SourceLimit
	if sourceLimit <= 0 {
		sourceLimit = fusionCfg.MaxItems
	}

	retryConfig := cfg.RetryConfig
	if retryConfig.MaxRetries == 0 {
		retryConfig = DefaultRetryConfig()
	}

	cbConfig := cfg.CircuitBreakerConfig
	if cbConfig.FailureThreshold == 0 {
		cbConfig = DefaultCircuitBreakerConfig()
	}

	tokenBudget := cfg.TokenBudget
	if tokenBudget.MaxHistoryTokens == 0 {
		tokenBudget.MaxHistoryTokens = DefaultTokenBudget().MaxHistoryTokens
	}
	if tokenBudget.MaxContextTokens == 0 {
		tokenBudget.MaxContextTokens = DefaultTokenBudget().MaxContextTokens
	}

	// Default: 10 requests/sec sustained, burst of 30
	rl := cfg.RateLimiter
	if rl == nil {
		rl = rate.NewLimiter(10, 30)
	}

	s := &Service{
		modelName:   cfg.ModelName,
		fusionCfg:   fusionCfg,
		sourceLimit: sourceLimit,

		retryConfig:    retryConfig,
		circuitBreaker: NewCircuitBreaker(cbConfig),
		rateLimiter:    rl,

		tokenBudget: tokenBudget,

		g:        cfg.Genkit,
		gatherer: cfg.Gatherer,
		sessions: cfg.SessionStore,
		logger:   cfg.Logger,
	}

	s.logger.Info("chat service initialized",
		"max_items", fusionCfg.MaxItems,
		"dedup_threshold", fusionCfg.DedupThreshold,
	)

	return s, nil
}

// FusionConfig returns the service's active fusion configuration.
func (s *Service) FusionConfig() fusion.Config {
	return s.fusionCfg
}

// Execute runs one conversational turn (non-streaming).
// This is a convenience wrapper around ExecuteStream with nil callback.
func (s *Service) Execute(ctx context.Context, sessionID uuid.UUID, input string) (*Response, error) {
	return s.ExecuteStream(ctx, sessionID, input, nil)
}

// ExecuteStream runs one conversational turn with optional streaming
// output. If callback is non-nil, it is called for each response chunk
// as it is generated. The final response is always returned after
// generation completes.
func (s *Service) ExecuteStream(ctx context.Context, sessionID uuid.UUID, input string, callback StreamCallback) (*Response, error) {
	if sessionID == uuid.Nil {
		return nil, ErrInvalidSession
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("%w: empty input", ErrExecutionFailed)
	}

	streaming := callback != nil
	s.logger.Debug("executing chat turn",
		"session_id", sessionID,
		"streaming", streaming)

	// Step 1: gather candidates from every source and fuse them.
	fragment := s.BuildContext(ctx, input, sessionID)

	// Step 2: load conversation history.
	history, err := s.sessions.LoadHistory(ctx, sessionID, historyLimit)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidSession, sessionID)
		}
		return nil, fmt.Errorf("loading history: %w", err)
	}

	// Step 3: generate the response with the fused context.
	resp, err := s.generateResponse(ctx, input, history.Messages(), fragment, callback)
	if err != nil {
		return nil, err
	}

	responseText := resp.Text()
	if strings.TrimSpace(responseText) == "" {
		s.logger.Warn("model returned empty response", "session_id", sessionID)
		responseText = fallbackResponseMessage
	}

	// Step 4: persist the turn. Best-effort: the user already has the
	// response, so a failed write degrades history rather than the request.
	newMessages := []*session.Message{
		{Role: session.RoleUser, Content: []*ai.Part{ai.NewTextPart(input)}},
		{Role: session.RoleAssistant, Content: []*ai.Part{ai.NewTextPart(responseText)}},
	}
	if err := s.sessions.AddMessages(ctx, sessionID, newMessages); err != nil {
		s.logger.Warn("persisting messages", "error", err, "session_id", sessionID)
	}

	return &Response{
		FinalText:   responseText,
		ContextUsed: fragment.Items,
	}, nil
}

// BuildContext runs the retrieval half of a turn: gather from all
// connectors, fuse, and render a budgeted prompt fragment. It never
// fails; degraded sources contribute empty candidate lists. The
// session's owner scopes owner-partitioned sources, so one owner's
// memories never surface in another owner's context.
func (s *Service) BuildContext(ctx context.Context, query string, sessionID uuid.UUID) fusion.Fragment {
	ownerID := ""
	if sessionID != uuid.Nil {
		sess, err := s.sessions.Get(ctx, sessionID)
		if err != nil {
			s.logger.Warn("resolving session owner, memory search uses default scope",
				"session_id", sessionID,
				"error", err,
			)
		} else {
			ownerID = sess.OwnerID
		}
	}

	bySource := s.gatherer.Gather(ctx, source.Query{
		Text:      query,
		SessionID: sessionID,
		OwnerID:   ownerID,
		Limit:     s.sourceLimit,
	})
	items := fusion.Fuse(bySource, s.fusionCfg)
	return fusion.Assemble(items, s.tokenBudget.MaxContextTokens)
}

// generateResponse is the unified generation path for streaming and
// non-streaming modes.
func (s *Service) generateResponse(ctx context.Context, input string, historyMessages []*ai.Message, fragment fusion.Fragment, callback StreamCallback) (*ai.ModelResponse, error) {
	messages := make([]*ai.Message, 0, len(historyMessages)+2)
	messages = append(messages, ai.NewSystemMessage(ai.NewTextPart(systemPrompt(fragment))))
	messages = append(messages, s.truncateHistory(historyMessages, s.tokenBudget.MaxHistoryTokens)...)
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(input)))

	opts := []ai.GenerateOption{
		ai.WithMessages(messages...),
	}
	if s.modelName != "" {
		opts = append(opts, ai.WithModelName(s.modelName))
	}
	if callback != nil {
		opts = append(opts, ai.WithStreaming(callback))
	}

	s.logger.Debug("generating response",
		"history_messages", len(historyMessages),
		"context_items", len(fragment.Items),
		"context_tokens", fragment.Tokens,
		"query_length", len(input),
	)

	// Check circuit breaker before attempting the request.
	if err := s.circuitBreaker.Allow(); err != nil {
		s.logger.Warn("circuit breaker is open, rejecting request",
			"state", s.circuitBreaker.State().String())
		return nil, fmt.Errorf("service unavailable: %w", err)
	}

	resp, err := s.generateWithRetry(ctx, opts)
	if err != nil {
		s.circuitBreaker.Failure()
		return nil, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}

	s.circuitBreaker.Success()
	return resp, nil
}

const promptPreamble = `You are Tessera, a helpful assistant with access to retrieved context from the user's memories, documents, and knowledge graph.
Answer using the context below when it is relevant. If the context does not cover the question, say so and answer from general knowledge.
Today's date: %s.`

// systemPrompt renders the system message for a turn. An empty fragment
// produces a no-context prompt rather than failing the turn.
func systemPrompt(fragment fusion.Fragment) string {
	preamble := fmt.Sprintf(promptPreamble, time.Now().Format("2006-01-02"))
	if fragment.Empty() {
		return preamble + "\n\nNo retrieved context is available for this question."
	}
	return preamble + "\n\nRetrieved context:\n" + fragment.Text
}

// Title generation constants.
const (
	titleGenerationTimeout = 5 * time.Second
	titleInputMaxRunes     = 500
	titleMaxRunes          = 100
)

var titlePrompt = fmt.Sprintf(`Generate a concise title (max %d characters) for a chat session based on this first message.`, titleMaxRunes) + `
The title should capture the main topic or intent.
Return ONLY the title text, no quotes, no explanations, no punctuation at the end.

Message: %s

Title:`

// GenerateTitle generates a concise session title from the user's first
// message. Returns empty string on failure (best-effort).
func (s *Service) GenerateTitle(ctx context.Context, userMessage string) string {
	ctx, cancel := context.WithTimeout(ctx, titleGenerationTimeout)
	defer cancel()

	inputRunes := []rune(userMessage)
	if len(inputRunes) > titleInputMaxRunes {
		userMessage = string(inputRunes[:titleInputMaxRunes]) + "..."
	}

	opts := []ai.GenerateOption{
		ai.WithPrompt(titlePrompt, userMessage),
	}
	if s.modelName != "" {
		opts = append(opts, ai.WithModelName(s.modelName))
	}

	response, err := genkit.Generate(ctx, s.g, opts...)
	if err != nil {
		s.logger.Debug("title generation failed", "error", err)
		return ""
	}

	title := strings.TrimSpace(response.Text())
	if title == "" {
		return ""
	}

	titleRunes := []rune(title)
	if len(titleRunes) > titleMaxRunes {
		title = string(titleRunes[:titleMaxRunes-3]) + "..."
	}

	return title
}
