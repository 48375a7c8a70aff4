package graph

import (
	"context"
	"fmt"
)

// Seed populates the baseline concept graph. Idempotent: every node and
// edge is merged by name.
func (s *Store) Seed(ctx context.Context) error {
	concepts := []Concept{
		{Name: "retrieval", Description: "finding relevant content across memory, documents, graph, and conversation", Category: "core"},
		{Name: "context fusion", Description: "normalizing, deduplicating, and ranking retrieved candidates into one context", Category: "core"},
		{Name: "semantic memory", Description: "long-lived facts and preferences retrieved by hybrid vector and text search", Category: "store"},
		{Name: "knowledge base", Description: "ingested documents chunked and embedded for vector similarity search", Category: "store"},
		{Name: "concept graph", Description: "weighted concept relationships traversed for associative context", Category: "store"},
		{Name: "conversation", Description: "the current session's recent messages", Category: "store"},
		{Name: "ingestion", Description: "extracting, chunking, embedding, and storing content from files, URLs, and repositories", Category: "pipeline"},
	}
	for _, c := range concepts {
		if err := s.UpsertConcept(ctx, c); err != nil {
			return fmt.Errorf("seeding graph: %w", err)
		}
	}

	relations := []struct {
		from, to string
		strength float64
	}{
		{"retrieval", "context fusion", 0.9},
		{"retrieval", "semantic memory", 0.8},
		{"retrieval", "knowledge base", 0.8},
		{"retrieval", "concept graph", 0.7},
		{"retrieval", "conversation", 0.6},
		{"ingestion", "knowledge base", 0.9},
		{"ingestion", "semantic memory", 0.5},
		{"context fusion", "conversation", 0.5},
	}
	for _, r := range relations {
		if err := s.RelateConcepts(ctx, r.from, r.to, r.strength); err != nil {
			return fmt.Errorf("seeding graph relations: %w", err)
		}
	}

	capabilities := []struct {
		cap      Capability
		concepts []string
	}{
		{
			cap: Capability{
				Name:        "answer with context",
				Description: "Answer questions grounded in fused context from every retrieval source.",
				Examples:    []string{"What did I say about the deployment pipeline last week?"},
			},
			concepts: []string{"retrieval", "context fusion"},
		},
		{
			cap: Capability{
				Name:        "remember facts",
				Description: "Store facts and preferences for future conversations.",
				Examples:    []string{"Remember that I prefer table-driven tests."},
			},
			concepts: []string{"semantic memory"},
		},
		{
			cap: Capability{
				Name:        "ingest documents",
				Description: "Index files, web pages, and GitHub repositories into the knowledge base.",
				Examples:    []string{"Ingest https://go.dev/blog/error-handling"},
			},
			concepts: []string{"ingestion", "knowledge base"},
		},
	}
	for _, c := range capabilities {
		if err := s.UpsertCapability(ctx, c.cap, c.concepts); err != nil {
			return fmt.Errorf("seeding graph capabilities: %w", err)
		}
	}

	s.logger.Info("seeded concept graph",
		"concepts", len(concepts), "relations", len(relations), "capabilities", len(capabilities))
	return nil
}
