package taskstore

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/answer42/agentcore/internal/corekit"
)

// MemoryStore is an in-process Store backed by mutex-guarded maps. It is
// the default for tests and local development; production deployments
// use RedisStore for durability across restarts.
type MemoryStore struct {
	mu    sync.Mutex
	tasks map[string]*corekit.AgentTask
	memo  map[string]*corekit.MemoryEntry

	// MemoSizeCapBytes bounds total memo storage; beyond it, the least
	// recently updated entries are evicted.
	MemoSizeCapBytes int
	memoSize         int
}

// NewMemoryStore builds an empty MemoryStore. A zero memoSizeCapBytes
// means no eviction sweep runs.
func NewMemoryStore(memoSizeCapBytes int) *MemoryStore {
	return &MemoryStore{
		tasks:            make(map[string]*corekit.AgentTask),
		memo:             make(map[string]*corekit.MemoryEntry),
		MemoSizeCapBytes: memoSizeCapBytes,
	}
}

func (s *MemoryStore) Create(ctx context.Context, task *corekit.AgentTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return corekit.NewStageError(corekit.KindDuplicateID, "task id already exists: "+task.ID, nil)
	}
	cp := *task
	s.tasks[task.ID] = &cp
	return nil
}

func (s *MemoryStore) MarkRunning(ctx context.Context, id string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return corekit.ErrTaskNotFound
	}
	if t.Status.IsTerminal() {
		return corekit.NewStageError(corekit.KindIllegalTransition, "cannot mark a terminal task running", nil)
	}
	if t.StartedAt != nil && t.StartedAt.Before(startedAt) {
		// Already running with an earlier timestamp: idempotent no-op.
		return nil
	}
	t.Status = corekit.TaskRunning
	t.StartedAt = &startedAt
	return nil
}

func (s *MemoryStore) Settle(ctx context.Context, id string, status corekit.TaskStatus, result []byte, errMsg string, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return corekit.ErrTaskNotFound
	}
	if !status.IsTerminal() {
		return corekit.NewStageError(corekit.KindIllegalTransition, "settle requires a terminal status", nil)
	}
	if t.Status.IsTerminal() {
		if t.Status == status && bytes.Equal(t.Result, result) && t.Error == errMsg {
			return nil // idempotent replay of the same settlement
		}
		return corekit.NewStageError(corekit.KindIllegalTransition, "task already settled to a different state", nil)
	}
	t.Status = status
	t.Result = result
	t.Error = errMsg
	t.CompletedAt = &completedAt
	return t.Validate()
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*corekit.AgentTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, corekit.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) MemoGet(ctx context.Context, key string) (*corekit.MemoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.memo[key]
	if !ok {
		return nil, corekit.ErrMemoNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) MemoPut(ctx context.Context, entry *corekit.MemoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.SizeBytes = len(entry.Data)
	if old, ok := s.memo[entry.Key]; ok {
		s.memoSize -= old.SizeBytes
	}
	cp := *entry
	s.memo[entry.Key] = &cp
	s.memoSize += entry.SizeBytes
	s.evictLocked()
	return nil
}

// evictLocked drops the least-recently-updated memo entries until the
// size cap is satisfied. Called with s.mu held.
func (s *MemoryStore) evictLocked() {
	if s.MemoSizeCapBytes <= 0 || s.memoSize <= s.MemoSizeCapBytes {
		return
	}
	entries := make([]*corekit.MemoryEntry, 0, len(s.memo))
	for _, e := range s.memo {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].UpdatedAt.Before(entries[j].UpdatedAt)
	})
	for _, e := range entries {
		if s.memoSize <= s.MemoSizeCapBytes {
			break
		}
		delete(s.memo, e.Key)
		s.memoSize -= e.SizeBytes
	}
}

