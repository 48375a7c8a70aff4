// Package mcp exposes retrieval and ingestion over the Model Context
// Protocol, so external MCP clients can search the fused context,
// store memories and enqueue URL ingestion.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tessera-ai/tessera/internal/fusion"
	"github.com/tessera-ai/tessera/internal/ingest"
	"github.com/tessera-ai/tessera/internal/memory"
)

// contextBuilder assembles fused retrieval context for a query.
type contextBuilder interface {
	BuildContext(ctx context.Context, query string, sessionID uuid.UUID) fusion.Fragment
}

// memoryAdder persists a long-term memory.
type memoryAdder interface {
	Add(ctx context.Context, content string, category memory.Category,
		ownerID string, sessionID uuid.UUID, opts memory.AddOpts) error
}

// urlIngester enqueues asynchronous URL ingestion.
type urlIngester interface {
	IngestURL(rawURL, ownerID string) (*ingest.Task, error)
}

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string
	OwnerID string // owner scope for memories and ingestion tasks

	Context  contextBuilder
	Memories memoryAdder
	Ingest   urlIngester
	Logger   *slog.Logger
}

// Server wraps the MCP SDK server and the tool dependencies.
type Server struct {
	mcpServer *mcp.Server
	owner     string
	context   contextBuilder
	memories  memoryAdder
	ingest    urlIngester
	logger    *slog.Logger
}

// NewServer creates an MCP server with all tools registered.
func NewServer(cfg Config) (*Server, error) {
	switch {
	case cfg.Name == "":
		return nil, fmt.Errorf("server name is required")
	case cfg.Version == "":
		return nil, fmt.Errorf("server version is required")
	case cfg.Context == nil:
		return nil, fmt.Errorf("context builder is required")
	case cfg.Memories == nil:
		return nil, fmt.Errorf("memory store is required")
	case cfg.Ingest == nil:
		return nil, fmt.Errorf("ingest pipeline is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	owner := cfg.OwnerID
	if owner == "" {
		owner = "default"
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{Name: cfg.Name, Version: cfg.Version}, nil),
		owner:     owner,
		context:   cfg.Context,
		memories:  cfg.Memories,
		ingest:    cfg.Ingest,
		logger:    logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}
	return s, nil
}

// Run serves MCP on the given transport. Blocking.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

func (s *Server) registerTools() error {
	if err := s.registerSearchContext(); err != nil {
		return err
	}
	if err := s.registerRemember(); err != nil {
		return err
	}
	return s.registerIngestURL()
}

// SearchContextInput is the input schema for the search_context tool.
type SearchContextInput struct {
	Query string `json:"query" jsonschema:"The question or topic to retrieve context for"`
}

type searchContextOutput struct {
	Text   string            `json:"text"`
	Items  []contextItemJSON `json:"items"`
	Tokens int               `json:"tokens"`
}

type contextItemJSON struct {
	ID      string   `json:"id"`
	Content string   `json:"content"`
	Sources []string `json:"sources"`
	Score   float64  `json:"score"`
}

func (s *Server) registerSearchContext() error {
	schema, err := jsonschema.For[SearchContextInput](nil)
	if err != nil {
		return fmt.Errorf("search_context schema: %w", err)
	}

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "search_context",
		Description: "Search all knowledge sources (memories, documents, concept graph) and return the fused, ranked context for a query.",
		InputSchema: schema,
	}, s.searchContext)
	return nil
}

func (s *Server) searchContext(ctx context.Context, _ *mcp.CallToolRequest, in SearchContextInput) (*mcp.CallToolResult, any, error) {
	if in.Query == "" {
		return errorResult("query is required"), nil, nil
	}

	fragment := s.context.BuildContext(ctx, in.Query, uuid.Nil)

	out := searchContextOutput{
		Text:   fragment.Text,
		Items:  make([]contextItemJSON, len(fragment.Items)),
		Tokens: fragment.Tokens,
	}
	for i, item := range fragment.Items {
		sources := make([]string, len(item.Sources))
		for j, src := range item.Sources {
			sources[j] = string(src)
		}
		out.Items[i] = contextItemJSON{
			ID:      item.ID,
			Content: item.Content,
			Sources: sources,
			Score:   item.Score,
		}
	}
	return jsonResult(out), nil, nil
}

// RememberInput is the input schema for the remember tool.
type RememberInput struct {
	Content  string `json:"content" jsonschema:"The fact or preference to remember"`
	Category string `json:"category,omitempty" jsonschema:"One of: fact, preference, project, context (default fact)"`
}

func (s *Server) registerRemember() error {
	schema, err := jsonschema.For[RememberInput](nil)
	if err != nil {
		return fmt.Errorf("remember schema: %w", err)
	}

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "remember",
		Description: "Store a long-term memory. Near-duplicate memories are merged automatically.",
		InputSchema: schema,
	}, s.remember)
	return nil
}

func (s *Server) remember(ctx context.Context, _ *mcp.CallToolRequest, in RememberInput) (*mcp.CallToolResult, any, error) {
	if in.Content == "" {
		return errorResult("content is required"), nil, nil
	}

	category := memory.Category(in.Category)
	if category == "" {
		category = memory.CategoryFact
	}
	if !category.Valid() {
		return errorResult(fmt.Sprintf("unknown category %q", in.Category)), nil, nil
	}

	if err := s.memories.Add(ctx, in.Content, category, s.owner, uuid.Nil, memory.AddOpts{}); err != nil {
		s.logger.Warn("remember failed", "error", err)
		return errorResult("storing memory failed"), nil, nil
	}
	return jsonResult(map[string]string{"status": "stored"}), nil, nil
}

// IngestURLInput is the input schema for the ingest_url tool.
type IngestURLInput struct {
	URL string `json:"url" jsonschema:"The public http(s) URL to ingest into the knowledge store"`
}

func (s *Server) registerIngestURL() error {
	schema, err := jsonschema.For[IngestURLInput](nil)
	if err != nil {
		return fmt.Errorf("ingest_url schema: %w", err)
	}

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "ingest_url",
		Description: "Fetch a web page, extract its article text and index it into the knowledge store. Returns the async task ID.",
		InputSchema: schema,
	}, s.ingestURL)
	return nil
}

func (s *Server) ingestURL(_ context.Context, _ *mcp.CallToolRequest, in IngestURLInput) (*mcp.CallToolResult, any, error) {
	if in.URL == "" {
		return errorResult("url is required"), nil, nil
	}

	task, err := s.ingest.IngestURL(in.URL, s.owner)
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	return jsonResult(map[string]string{
		"taskId": task.ID.String(),
		"status": string(task.Status),
	}), nil, nil
}

// jsonResult marshals data into a single text content block. Clients
// parse the JSON themselves.
func jsonResult(data any) *mcp.CallToolResult {
	b, err := json.Marshal(data)
	if err != nil {
		return errorResult("marshal error")
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}
