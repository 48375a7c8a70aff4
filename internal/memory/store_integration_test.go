//go:build integration
// +build integration

package memory_test

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/tessera-ai/tessera/internal/memory"
	"github.com/tessera-ai/tessera/internal/testutil"
)

// Run with: go test -tags=integration ./internal/memory -v
// Requires Docker for the PostgreSQL container.

func newIntegrationStore(t *testing.T) *memory.Store {
	t.Helper()
	tdb := testutil.SetupTestDB(t)
	g := testutil.NewGenkit(t)
	embedder := testutil.NewMockEmbedder(int(memory.VectorDimension)).Register(g)
	store, err := memory.NewStore(tdb.Pool, embedder, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestStore_AddAndSearch(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	const owner = "alice"
	facts := []string{
		"The deployment pipeline runs on Fridays",
		"Prefers dark mode in all editors",
		"The staging cluster lives in europe-west1",
	}
	for _, f := range facts {
		if err := store.Add(ctx, f, memory.CategoryFact, owner, uuid.Nil, memory.AddOpts{}); err != nil {
			t.Fatalf("Add(%q): %v", f, err)
		}
	}

	// Identical text embeds to the identical vector, so the nearest
	// neighbor is an exact match and the query must return it first.
	got, err := store.HybridSearch(ctx, "The staging cluster lives in europe-west1", owner, 3)
	if err != nil {
		t.Fatalf("HybridSearch: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("HybridSearch returned no results")
	}
	if got[0].Content != "The staging cluster lives in europe-west1" {
		t.Errorf("top result = %q, want exact match first", got[0].Content)
	}
	if got[0].Score <= 0 {
		t.Errorf("top score = %f, want > 0", got[0].Score)
	}
}

func TestStore_AddMergesDuplicates(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	const owner = "bob"
	const content = "Works from the Berlin office"

	if err := store.Add(ctx, content, memory.CategoryFact, owner, uuid.Nil, memory.AddOpts{}); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if err := store.Add(ctx, content, memory.CategoryFact, owner, uuid.Nil, memory.AddOpts{}); err != nil {
		t.Fatalf("second Add: %v", err)
	}

	stats, err := store.Stats(ctx, owner)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 1 {
		t.Errorf("Total after duplicate Add = %d, want 1 (merged)", stats.Total)
	}
}

func TestStore_OwnerIsolation(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	if err := store.Add(ctx, "Secret for alice only", memory.CategoryFact, "alice", uuid.Nil, memory.AddOpts{}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, err := store.HybridSearch(ctx, "Secret for alice only", "mallory", 5)
	if err != nil {
		t.Fatalf("HybridSearch: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("other owner saw %d memories, want 0", len(got))
	}

	all, err := store.All(ctx, "mallory", "")
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("All for other owner = %d, want 0", len(all))
	}
}

func TestStore_StatsAndDelete(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	const owner = "carol"
	if err := store.Add(ctx, "Likes espresso", memory.CategoryPreference, owner, uuid.Nil, memory.AddOpts{}); err != nil {
		t.Fatal(err)
	}
	if err := store.Add(ctx, "Ships a CLI tool", memory.CategoryProject, owner, uuid.Nil, memory.AddOpts{}); err != nil {
		t.Fatal(err)
	}

	stats, err := store.Stats(ctx, owner)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 2 {
		t.Errorf("Total = %d, want 2", stats.Total)
	}
	if stats.ByCategory[memory.CategoryPreference] != 1 {
		t.Errorf("preference count = %d, want 1", stats.ByCategory[memory.CategoryPreference])
	}

	if err := store.DeleteAll(ctx, owner); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	stats, err = store.Stats(ctx, owner)
	if err != nil {
		t.Fatalf("Stats after DeleteAll: %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("Total after DeleteAll = %d, want 0", stats.Total)
	}
}
