package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tessera-ai/tessera/internal/graph"
	"github.com/tessera-ai/tessera/internal/knowledge"
	"github.com/tessera-ai/tessera/internal/memory"
)

// summaryMemoryMaxRunes bounds the per-document memory written after a
// successful ingestion.
const summaryMemoryMaxRunes = 280

// maxConceptsPerTask bounds the graph writes per ingestion run.
const maxConceptsPerTask = 10

// chunkStore is the subset of knowledge.Store the pipeline needs.
type chunkStore interface {
	UpsertDocument(ctx context.Context, title, sourceType, sourceRef string) (uuid.UUID, error)
	ReplaceChunks(ctx context.Context, docID uuid.UUID, chunks []string) error
}

// memoryStore receives per-document summary memories.
type memoryStore interface {
	Add(ctx context.Context, content string, category memory.Category,
		ownerID string, sessionID uuid.UUID, opts memory.AddOpts) error
}

// conceptStore receives document concepts.
type conceptStore interface {
	UpsertConcept(ctx context.Context, c graph.Concept) error
}

// PipelineConfig wires the pipeline's stores and extractors.
type PipelineConfig struct {
	Knowledge chunkStore
	Memories  memoryStore  // optional; nil disables summary memories
	Graph     conceptStore // optional; nil disables concept writes
	Registry  Registry
	Logger    *slog.Logger

	Files  *FileExtractor
	URLs   *URLExtractor
	GitHub *GitHubExtractor

	// BackgroundCtx outlives individual requests; task execution is
	// async and must not be canceled when the enqueueing request ends.
	BackgroundCtx context.Context //nolint:containedctx // App lifecycle context, not a request context
}

// Pipeline executes ingestion tasks on a bounded worker pool.
type Pipeline struct {
	knowledge chunkStore
	memories  memoryStore
	graph     conceptStore
	registry  Registry
	logger    *slog.Logger

	files  *FileExtractor
	urls   *URLExtractor
	github *GitHubExtractor

	bgCtx context.Context //nolint:containedctx // App lifecycle context, not a request context
	group *errgroup.Group
}

// NewPipeline creates a pipeline with at most MaxConcurrentTasks tasks
// in flight.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Knowledge == nil {
		return nil, errors.New("knowledge store is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("task registry is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	bgCtx := cfg.BackgroundCtx
	if bgCtx == nil {
		bgCtx = context.Background()
	}

	group := new(errgroup.Group)
	group.SetLimit(MaxConcurrentTasks)

	return &Pipeline{
		knowledge: cfg.Knowledge,
		memories:  cfg.Memories,
		graph:     cfg.Graph,
		registry:  cfg.Registry,
		logger:    cfg.Logger,
		files:     cfg.Files,
		urls:      cfg.URLs,
		github:    cfg.GitHub,
		bgCtx:     bgCtx,
		group:     group,
	}, nil
}

// Wait blocks until all in-flight tasks finish. Called on shutdown.
func (p *Pipeline) Wait() {
	_ = p.group.Wait()
}

// IngestFiles queues ingestion of local files and returns the pending
// task immediately.
func (p *Pipeline) IngestFiles(paths []string, ownerID string) (*Task, error) {
	if p.files == nil {
		return nil, errors.New("file ingestion is not configured")
	}
	if len(paths) == 0 {
		return nil, errors.New("no files given")
	}
	if len(paths) > MaxFilesPerUpload {
		return nil, fmt.Errorf("too many files: %d exceeds limit %d", len(paths), MaxFilesPerUpload)
	}

	names := make([]string, len(paths))
	for i, path := range paths {
		names[i] = filepath.Base(path)
	}

	return p.enqueue(KindFile, strings.Join(names, ", "), ownerID, func(_ context.Context) ([]Document, error) {
		var docs []Document
		var errs []error
		for _, path := range paths {
			doc, err := p.files.Extract(path)
			if err != nil {
				p.logger.Warn("skipping file", "path", path, "error", err)
				errs = append(errs, err)
				continue
			}
			docs = append(docs, doc)
		}
		if len(docs) == 0 {
			return nil, fmt.Errorf("no files could be extracted: %w", errors.Join(errs...))
		}
		return docs, nil
	})
}

// IngestURL queues ingestion of one web page.
func (p *Pipeline) IngestURL(rawURL, ownerID string) (*Task, error) {
	if p.urls == nil {
		return nil, errors.New("url ingestion is not configured")
	}
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, errors.New("url is required")
	}

	return p.enqueue(KindURL, rawURL, ownerID, func(ctx context.Context) ([]Document, error) {
		doc, err := p.urls.Extract(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		return []Document{doc}, nil
	})
}

// IngestGitHub queues ingestion of a GitHub repository's text files.
func (p *Pipeline) IngestGitHub(repoSpec, ref, ownerID string) (*Task, error) {
	if p.github == nil {
		return nil, errors.New("github ingestion is not configured")
	}
	if _, _, err := splitRepoSpec(repoSpec); err != nil {
		return nil, err
	}

	source := repoSpec
	if ref != "" {
		source = repoSpec + "@" + ref
	}
	return p.enqueue(KindGitHub, source, ownerID, func(ctx context.Context) ([]Document, error) {
		return p.github.Extract(ctx, repoSpec, ref)
	})
}

// enqueue registers a pending task and schedules its run on the pool.
func (p *Pipeline) enqueue(kind Kind, source, ownerID string, extract func(context.Context) ([]Document, error)) (*Task, error) {
	task := newTask(kind, source)
	if err := p.registry.Save(p.bgCtx, task); err != nil {
		return nil, fmt.Errorf("registering task: %w", err)
	}

	snapshot := *task
	p.group.Go(func() error {
		p.run(task, ownerID, extract)
		return nil
	})
	return &snapshot, nil
}

// run executes one task end to end. Errors mark the task failed; they
// are never returned since nothing awaits them.
func (p *Pipeline) run(task *Task, ownerID string, extract func(context.Context) ([]Document, error)) {
	ctx := p.bgCtx
	start := time.Now()

	p.setStatus(task, StatusExtracting)
	docs, err := extract(ctx)
	if err != nil {
		p.fail(task, fmt.Errorf("extracting: %w", err))
		return
	}

	p.setStatus(task, StatusVectorizing)
	byDoc := make([][]string, len(docs))
	for i, doc := range docs {
		byDoc[i] = Chunk(doc.Content, DefaultChunkSize, DefaultChunkOverlap)
	}

	p.setStatus(task, StatusStoring)
	sourceType := sourceTypeFor(task.Kind)
	var chunkCount atomic.Int64

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(MaxConcurrentTasks)
	for i := range docs {
		doc, chunks := docs[i], byDoc[i]
		if len(chunks) == 0 {
			continue
		}
		eg.Go(func() error {
			docID, err := p.knowledge.UpsertDocument(egCtx, doc.Title, sourceType, doc.SourceRef)
			if err != nil {
				return fmt.Errorf("upserting document %s: %w", doc.SourceRef, err)
			}
			if err := p.knowledge.ReplaceChunks(egCtx, docID, chunks); err != nil {
				return fmt.Errorf("storing chunks of %s: %w", doc.SourceRef, err)
			}
			chunkCount.Add(int64(len(chunks)))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		p.fail(task, err)
		return
	}

	// Memory and graph writes are best-effort enrichment; the documents
	// are already searchable.
	p.recordMemories(ctx, docs, ownerID)
	p.recordConcepts(ctx, docs)

	p.update(task, func(t *Task) {
		t.Status = StatusCompleted
		t.Documents = len(docs)
		t.Chunks = int(chunkCount.Load())
	})
	p.logger.Info("ingestion completed",
		"task_id", task.ID,
		"kind", task.Kind,
		"documents", len(docs),
		"chunks", chunkCount.Load(),
		"elapsed", time.Since(start),
	)
}

// recordMemories stores one short summary memory per document.
func (p *Pipeline) recordMemories(ctx context.Context, docs []Document, ownerID string) {
	if p.memories == nil || ownerID == "" {
		return
	}
	for _, doc := range docs {
		summary := doc.Content
		if runes := []rune(summary); len(runes) > summaryMemoryMaxRunes {
			summary = string(runes[:summaryMemoryMaxRunes]) + "..."
		}
		content := fmt.Sprintf("Ingested %q: %s", doc.Title, summary)
		if err := p.memories.Add(ctx, content, memory.CategoryContext, ownerID, uuid.Nil, memory.AddOpts{}); err != nil {
			p.logger.Debug("storing ingestion memory", "error", err, "source", doc.SourceRef)
		}
	}
}

// recordConcepts upserts a graph concept per document title.
func (p *Pipeline) recordConcepts(ctx context.Context, docs []Document) {
	if p.graph == nil {
		return
	}
	for i, doc := range docs {
		if i >= maxConceptsPerTask {
			return
		}
		c := graph.Concept{
			Name:        strings.ToLower(doc.Title),
			Description: fmt.Sprintf("ingested document from %s", doc.SourceRef),
			Category:    "document",
		}
		if err := p.graph.UpsertConcept(ctx, c); err != nil {
			p.logger.Debug("upserting document concept", "error", err, "source", doc.SourceRef)
		}
	}
}

func (p *Pipeline) setStatus(task *Task, status Status) {
	p.update(task, func(t *Task) { t.Status = status })
}

func (p *Pipeline) fail(task *Task, err error) {
	p.logger.Warn("ingestion failed", "task_id", task.ID, "kind", task.Kind, "error", err)
	p.update(task, func(t *Task) {
		t.Status = StatusFailed
		t.Error = err.Error()
	})
}

func (p *Pipeline) update(task *Task, fn func(*Task)) {
	fn(task)
	task.UpdatedAt = time.Now().UTC()
	if err := p.registry.Save(p.bgCtx, task); err != nil {
		p.logger.Warn("saving task state", "task_id", task.ID, "error", err)
	}
}

// sourceTypeFor maps a task kind to the knowledge store's source type.
func sourceTypeFor(kind Kind) string {
	switch kind {
	case KindFile:
		return knowledge.SourceTypeFile
	case KindURL:
		return knowledge.SourceTypeURL
	case KindGitHub:
		return knowledge.SourceTypeGitHub
	default:
		return knowledge.SourceTypeFile
	}
}
