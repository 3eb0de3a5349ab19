package taskstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/answer42/agentcore/internal/corekit"
)

// RedisStore implements Store against Redis, giving AgentTask and
// MemoryEntry durability across process restarts.
//
// JSON per key, SETNX for Create's duplicate-id guard, and TTL
// refreshed on every write so a paper's task history doesn't outlive
// TaskTTL once settled. Memo entries live in the same client under a
// separate key prefix with no TTL, since they outlive individual
// requests. RedisStore runs no eviction of its own: memo keys stay
// until they are deleted outside this type.
type RedisStore struct {
	client *redis.Client
	cfg    RedisConfig
	logger corekit.Logger
}

// RedisConfig configures key namespacing and task TTL.
type RedisConfig struct {
	KeyPrefix string        // default "agentcore"
	TaskTTL   time.Duration // default 24h
}

// DefaultRedisConfig returns sensible defaults for this namespace.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{KeyPrefix: "agentcore", TaskTTL: 24 * time.Hour}
}

// NewRedisStore wraps an already-connected *redis.Client.
func NewRedisStore(client *redis.Client, cfg RedisConfig, logger corekit.Logger) *RedisStore {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "agentcore"
	}
	if cfg.TaskTTL <= 0 {
		cfg.TaskTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = corekit.NoOpLogger{}
	}
	return &RedisStore{client: client, cfg: cfg, logger: logger}
}

func (s *RedisStore) taskKey(id string) string { return fmt.Sprintf("%s:task:%s", s.cfg.KeyPrefix, id) }
func (s *RedisStore) memoKey(key string) string { return fmt.Sprintf("%s:memo:%s", s.cfg.KeyPrefix, key) }

func (s *RedisStore) Create(ctx context.Context, task *corekit.AgentTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return corekit.NewStageError(corekit.KindInvalidInput, "failed to serialize task", err)
	}
	set, err := s.client.SetNX(ctx, s.taskKey(task.ID), data, s.cfg.TaskTTL).Result()
	if err != nil {
		return corekit.NewStageError(corekit.KindProviderUnavail, "redis create failed", err)
	}
	if !set {
		return corekit.NewStageError(corekit.KindDuplicateID, "task id already exists: "+task.ID, nil)
	}
	s.logger.Info("task created", map[string]interface{}{"task_id": task.ID, "agent_id": string(task.AgentID)})
	return nil
}

func (s *RedisStore) get(ctx context.Context, id string) (*corekit.AgentTask, error) {
	data, err := s.client.Get(ctx, s.taskKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, corekit.ErrTaskNotFound
		}
		return nil, corekit.NewStageError(corekit.KindProviderUnavail, "redis get failed", err)
	}
	var task corekit.AgentTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, corekit.NewStageError(corekit.KindInvalidResponse, "failed to deserialize task", err)
	}
	return &task, nil
}

func (s *RedisStore) put(ctx context.Context, task *corekit.AgentTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return corekit.NewStageError(corekit.KindInvalidInput, "failed to serialize task", err)
	}
	if err := s.client.Set(ctx, s.taskKey(task.ID), data, s.cfg.TaskTTL).Err(); err != nil {
		return corekit.NewStageError(corekit.KindProviderUnavail, "redis set failed", err)
	}
	return nil
}

func (s *RedisStore) MarkRunning(ctx context.Context, id string, startedAt time.Time) error {
	t, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if t.Status.IsTerminal() {
		return corekit.NewStageError(corekit.KindIllegalTransition, "cannot mark a terminal task running", nil)
	}
	if t.StartedAt != nil && t.StartedAt.Before(startedAt) {
		return nil
	}
	t.Status = corekit.TaskRunning
	t.StartedAt = &startedAt
	return s.put(ctx, t)
}

func (s *RedisStore) Settle(ctx context.Context, id string, status corekit.TaskStatus, result []byte, errMsg string, completedAt time.Time) error {
	t, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if !status.IsTerminal() {
		return corekit.NewStageError(corekit.KindIllegalTransition, "settle requires a terminal status", nil)
	}
	if t.Status.IsTerminal() {
		if t.Status == status && bytes.Equal(t.Result, result) && t.Error == errMsg {
			return nil
		}
		return corekit.NewStageError(corekit.KindIllegalTransition, "task already settled to a different state", nil)
	}
	t.Status = status
	t.Result = result
	t.Error = errMsg
	t.CompletedAt = &completedAt
	if err := t.Validate(); err != nil {
		return err
	}
	return s.put(ctx, t)
}

func (s *RedisStore) Get(ctx context.Context, id string) (*corekit.AgentTask, error) {
	return s.get(ctx, id)
}

func (s *RedisStore) MemoGet(ctx context.Context, key string) (*corekit.MemoryEntry, error) {
	data, err := s.client.Get(ctx, s.memoKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, corekit.ErrMemoNotFound
		}
		return nil, corekit.NewStageError(corekit.KindProviderUnavail, "redis memo get failed", err)
	}
	var entry corekit.MemoryEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, corekit.NewStageError(corekit.KindInvalidResponse, "failed to deserialize memo entry", err)
	}
	return &entry, nil
}

func (s *RedisStore) MemoPut(ctx context.Context, entry *corekit.MemoryEntry) error {
	entry.SizeBytes = len(entry.Data)
	data, err := json.Marshal(entry)
	if err != nil {
		return corekit.NewStageError(corekit.KindInvalidInput, "failed to serialize memo entry", err)
	}
	// No TTL: memo entries outlive requests, and nothing in this
	// store evicts them or caps their total size.
	if err := s.client.Set(ctx, s.memoKey(entry.Key), data, 0).Err(); err != nil {
		return corekit.NewStageError(corekit.KindProviderUnavail, "redis memo put failed", err)
	}
	return nil
}
