// Package taskstore persists AgentTask and MemoryEntry records:
// durable task state with idempotent create/settle, and a key/value
// memoization table agents use for deduplication.
package taskstore

import (
	"context"
	"time"

	"github.com/answer42/agentcore/internal/corekit"
)

// Store is the durable backend every Agent runtime shares (the
// Orchestrator holds no Store of its own). All operations must be safe under concurrent callers: no task
// ever observes a non-terminal state after having been settled, even
// under process crashes and restarts.
type Store interface {
	// Create persists a new task. Fails with KindDuplicateID if id
	// already exists.
	Create(ctx context.Context, task *corekit.AgentTask) error
	// MarkRunning transitions a task to running. Idempotent: if already
	// running with an earlier startedAt, the earlier timestamp is kept.
	MarkRunning(ctx context.Context, id string, startedAt time.Time) error
	// Settle transitions a task to a terminal state. Idempotent if
	// settling to the same terminal state with the same payload;
	// otherwise fails with KindIllegalTransition.
	Settle(ctx context.Context, id string, status corekit.TaskStatus, result []byte, errMsg string, completedAt time.Time) error
	// Get returns the full task, or ErrTaskNotFound.
	Get(ctx context.Context, id string) (*corekit.AgentTask, error)
	// MemoGet returns a previously stored MemoryEntry, or ErrMemoNotFound.
	MemoGet(ctx context.Context, key string) (*corekit.MemoryEntry, error)
	// MemoPut stores/overwrites a MemoryEntry.
	MemoPut(ctx context.Context, entry *corekit.MemoryEntry) error
}
