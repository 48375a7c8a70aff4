// Package ingest runs the content ingestion pipeline: extract text from
// files, URLs, or GitHub repositories, chunk it, and write the results
// in parallel to the knowledge, memory, and graph stores. Tasks execute
// asynchronously; callers poll the registry for progress.
package ingest

import (
	"time"

	"github.com/google/uuid"
)

// Ingestion limits.
const (
	MaxFileSize        = 10 << 20 // 10MB per uploaded file
	MaxFilesPerUpload  = 10
	MaxURLContentSize  = 5 << 20 // 5MB fetched body
	URLTimeout         = 30 * time.Second
	MaxRepoFiles       = 100
	GitHubTimeout      = 60 * time.Second
	MaxConcurrentTasks = 5
)

// Kind identifies the ingestion source type.
type Kind string

const (
	KindFile   Kind = "file"
	KindURL    Kind = "url"
	KindGitHub Kind = "github"
)

// Status is the lifecycle state of an ingestion task.
type Status string

const (
	StatusPending     Status = "pending"
	StatusExtracting  Status = "extracting"
	StatusVectorizing Status = "vectorizing"
	StatusStoring     Status = "storing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Terminal reports whether the status is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task tracks one ingestion run.
type Task struct {
	ID        uuid.UUID `json:"id"`
	Kind      Kind      `json:"kind"`
	Source    string    `json:"source"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Documents int       `json:"documents"`
	Chunks    int       `json:"chunks"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Document is extracted text ready for chunking and storage.
type Document struct {
	Title     string
	SourceRef string // stable reference: file path, URL, or github://owner/repo/path
	Content   string
}

// newTask creates a pending task for the given source.
func newTask(kind Kind, source string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:        uuid.New(),
		Kind:      kind,
		Source:    source,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
