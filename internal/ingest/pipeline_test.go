package ingest

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-ai/tessera/internal/graph"
	"github.com/tessera-ai/tessera/internal/memory"
)

type stubChunkStore struct {
	mu        sync.Mutex
	docs      map[string][]string // sourceRef -> chunks
	upsertErr error
}

func newStubChunkStore() *stubChunkStore {
	return &stubChunkStore{docs: make(map[string][]string)}
}

func (s *stubChunkStore) UpsertDocument(_ context.Context, _, _, sourceRef string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return uuid.Nil, s.upsertErr
	}
	id := uuid.New()
	s.docs[sourceRef] = nil
	return id, nil
}

func (s *stubChunkStore) ReplaceChunks(_ context.Context, _ uuid.UUID, chunks []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ref, existing := range s.docs {
		if existing == nil {
			s.docs[ref] = chunks
			break
		}
	}
	return nil
}

func (s *stubChunkStore) chunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, chunks := range s.docs {
		total += len(chunks)
	}
	return total
}

type stubMemoryStore struct {
	mu    sync.Mutex
	added []string
}

func (s *stubMemoryStore) Add(_ context.Context, content string, _ memory.Category, _ string, _ uuid.UUID, _ memory.AddOpts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.added = append(s.added, content)
	return nil
}

type stubConceptStore struct {
	mu       sync.Mutex
	concepts []graph.Concept
}

func (s *stubConceptStore) UpsertConcept(_ context.Context, c graph.Concept) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.concepts = append(s.concepts, c)
	return nil
}

func newTestPipeline(t *testing.T, dir string, store *stubChunkStore, mem *stubMemoryStore, concepts *stubConceptStore) (*Pipeline, Registry) {
	t.Helper()

	files, err := NewFileExtractor([]string{dir})
	require.NoError(t, err)

	registry := NewMemoryRegistry()
	cfg := PipelineConfig{
		Knowledge: store,
		Registry:  registry,
		Logger:    slog.New(slog.DiscardHandler),
		Files:     files,
	}
	if mem != nil {
		cfg.Memories = mem
	}
	if concepts != nil {
		cfg.Graph = concepts
	}

	p, err := NewPipeline(cfg)
	require.NoError(t, err)
	return p, registry
}

func TestPipeline_IngestFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	content := strings.Repeat("Ingestion writes chunks to the vector store. ", 60)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	store := newStubChunkStore()
	mem := &stubMemoryStore{}
	concepts := &stubConceptStore{}
	p, registry := newTestPipeline(t, dir, store, mem, concepts)

	task, err := p.IngestFiles([]string{path}, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, KindFile, task.Kind)
	assert.Equal(t, "doc.txt", task.Source)

	p.Wait()

	final, err := registry.Get(t.Context(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, 1, final.Documents)
	assert.Equal(t, store.chunkCount(), final.Chunks)
	assert.Greater(t, final.Chunks, 1)

	require.Len(t, mem.added, 1)
	assert.Contains(t, mem.added[0], "doc.txt")
	require.Len(t, concepts.concepts, 1)
	assert.Equal(t, "doc.txt", concepts.concepts[0].Name)
}

func TestPipeline_IngestFiles_Validation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p, _ := newTestPipeline(t, dir, newStubChunkStore(), nil, nil)

	_, err := p.IngestFiles(nil, "owner-1")
	require.Error(t, err)

	many := make([]string, MaxFilesPerUpload+1)
	for i := range many {
		many[i] = filepath.Join(dir, "f.txt")
	}
	_, err = p.IngestFiles(many, "owner-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many files")
}

func TestPipeline_FailsWhenNoFileExtractable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p, registry := newTestPipeline(t, dir, newStubChunkStore(), nil, nil)

	task, err := p.IngestFiles([]string{filepath.Join(dir, "missing.txt")}, "owner-1")
	require.NoError(t, err)

	p.Wait()

	final, err := registry.Get(t.Context(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, final.Status)
	assert.NotEmpty(t, final.Error)
}

func TestPipeline_FailsOnStoreError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("some ingestable text"), 0o600))

	store := newStubChunkStore()
	store.upsertErr = errors.New("connection refused")
	p, registry := newTestPipeline(t, dir, store, nil, nil)

	task, err := p.IngestFiles([]string{path}, "owner-1")
	require.NoError(t, err)

	p.Wait()

	final, err := registry.Get(t.Context(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Contains(t, final.Error, "connection refused")
}

func TestPipeline_IngestGitHub_ValidatesSpec(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p, _ := newTestPipeline(t, dir, newStubChunkStore(), nil, nil)
	p.github = NewGitHubExtractor("")

	_, err := p.IngestGitHub("not-a-repo", "", "owner-1")
	require.Error(t, err)
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusStoring.Terminal())
}
