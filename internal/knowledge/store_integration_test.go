//go:build integration
// +build integration

package knowledge_test

import (
	"context"
	"testing"

	"github.com/tessera-ai/tessera/internal/knowledge"
	"github.com/tessera-ai/tessera/internal/testutil"
)

// Run with: go test -tags=integration ./internal/knowledge -v
// Requires Docker for the PostgreSQL container.

func newIntegrationStore(t *testing.T) *knowledge.Store {
	t.Helper()
	tdb := testutil.SetupTestDB(t)
	g := testutil.NewGenkit(t)
	embedder := testutil.NewMockEmbedder(768).Register(g)
	store, err := knowledge.NewStore(tdb.Pool, embedder, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestStore_IndexAndSearch(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	docID, err := store.UpsertDocument(ctx, "Deploy guide", "file", "docs/deploy.md")
	if err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
	chunks := []string{
		"Deployments go through the staging cluster first.",
		"Rollbacks use the previous image tag.",
	}
	if err := store.ReplaceChunks(ctx, docID, chunks); err != nil {
		t.Fatalf("ReplaceChunks: %v", err)
	}

	results, err := store.Search(ctx, "Rollbacks use the previous image tag.", knowledge.WithTopK(2))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("Search returned no results")
	}
	if results[0].Content != "Rollbacks use the previous image tag." {
		t.Errorf("top result = %q, want exact chunk first", results[0].Content)
	}
	if results[0].Title != "Deploy guide" {
		t.Errorf("title = %q, want %q", results[0].Title, "Deploy guide")
	}
	if results[0].Similarity <= 0.9 {
		t.Errorf("similarity = %f, want near 1 for identical text", results[0].Similarity)
	}
}

func TestStore_UpsertIsIdempotent(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	first, err := store.UpsertDocument(ctx, "Guide", "file", "docs/guide.md")
	if err != nil {
		t.Fatalf("first UpsertDocument: %v", err)
	}
	second, err := store.UpsertDocument(ctx, "Guide v2", "file", "docs/guide.md")
	if err != nil {
		t.Fatalf("second UpsertDocument: %v", err)
	}
	if first != second {
		t.Errorf("same source_ref produced two documents: %s vs %s", first, second)
	}

	docs, chunks, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if docs != 1 {
		t.Errorf("documents = %d, want 1", docs)
	}
	if chunks != 0 {
		t.Errorf("chunks = %d, want 0", chunks)
	}
}

func TestStore_ReplaceChunksReplaces(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	docID, err := store.UpsertDocument(ctx, "Notes", "file", "notes.md")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.ReplaceChunks(ctx, docID, []string{"one", "two", "three"}); err != nil {
		t.Fatalf("first ReplaceChunks: %v", err)
	}
	if err := store.ReplaceChunks(ctx, docID, []string{"only"}); err != nil {
		t.Fatalf("second ReplaceChunks: %v", err)
	}

	_, chunks, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if chunks != 1 {
		t.Errorf("chunks after replace = %d, want 1", chunks)
	}
}

func TestStore_DeleteDocumentCascades(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	docID, err := store.UpsertDocument(ctx, "Old", "url", "https://example.com/old")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.ReplaceChunks(ctx, docID, []string{"stale content"}); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteDocument(ctx, docID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}

	docs, chunks, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if docs != 0 || chunks != 0 {
		t.Errorf("after delete: docs=%d chunks=%d, want 0/0", docs, chunks)
	}
}
