package ingest

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// RetainedTasks is how many recent tasks a registry keeps.
const RetainedTasks = 50

// ErrTaskNotFound indicates the task ID is unknown or already evicted.
var ErrTaskNotFound = errors.New("task not found")

// Registry stores task state for polling. Implementations retain only
// the most recent RetainedTasks tasks.
type Registry interface {
	// Save persists a snapshot of the task, overwriting any previous state.
	Save(ctx context.Context, task *Task) error
	// Get returns the task or ErrTaskNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Task, error)
	// Recent returns retained tasks, newest first.
	Recent(ctx context.Context) ([]*Task, error)
}

// MemoryRegistry is the in-process default registry.
type MemoryRegistry struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*Task
}

// NewMemoryRegistry creates an empty in-process registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{tasks: make(map[uuid.UUID]*Task)}
}

func (r *MemoryRegistry) Save(_ context.Context, task *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := *task
	r.tasks[task.ID] = &snapshot
	r.evictLocked()
	return nil
}

func (r *MemoryRegistry) Get(_ context.Context, id uuid.UUID) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	snapshot := *task
	return &snapshot, nil
}

func (r *MemoryRegistry) Recent(_ context.Context) ([]*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		snapshot := *task
		out = append(out, &snapshot)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// evictLocked drops the oldest tasks beyond the retention cap.
func (r *MemoryRegistry) evictLocked() {
	for len(r.tasks) > RetainedTasks {
		var oldest uuid.UUID
		first := true
		for id, task := range r.tasks {
			if first || task.CreatedAt.Before(r.tasks[oldest].CreatedAt) {
				oldest = id
				first = false
			}
		}
		delete(r.tasks, oldest)
	}
}
