package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisTaskPrefix = "tessera:task:"
	redisTaskIndex  = "tessera:tasks"
	redisTaskTTL    = 24 * time.Hour
)

// RedisRegistry stores tasks in Redis so task status survives process
// restarts and is visible across instances.
type RedisRegistry struct {
	client *redis.Client
}

// NewRedisRegistry creates a registry backed by the given Redis client.
func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func (r *RedisRegistry) Save(ctx context.Context, task *Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshaling task: %w", err)
	}

	key := redisTaskPrefix + task.ID.String()
	isNew := task.Status == StatusPending

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, key, payload, redisTaskTTL)
	if isNew {
		pipe.LPush(ctx, redisTaskIndex, task.ID.String())
		pipe.LTrim(ctx, redisTaskIndex, 0, RetainedTasks-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving task: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Get(ctx context.Context, id uuid.UUID) (*Task, error) {
	payload, err := r.client.Get(ctx, redisTaskPrefix+id.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("getting task: %w", err)
	}

	var task Task
	if err := json.Unmarshal(payload, &task); err != nil {
		return nil, fmt.Errorf("unmarshaling task: %w", err)
	}
	return &task, nil
}

func (r *RedisRegistry) Recent(ctx context.Context) ([]*Task, error) {
	ids, err := r.client.LRange(ctx, redisTaskIndex, 0, RetainedTasks-1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	if len(ids) == 0 {
		return []*Task{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisTaskPrefix + id
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("fetching tasks: %w", err)
	}

	tasks := make([]*Task, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue // expired entry still listed in the index
		}
		var task Task
		if err := json.Unmarshal([]byte(s), &task); err != nil {
			continue
		}
		tasks = append(tasks, &task)
	}
	return tasks, nil
}
