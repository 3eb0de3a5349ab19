package corekit

import (
	"encoding/json"
	"time"
)

// TaskStatus is a task's four-state lifecycle. There is no "queued" or
// "cancelled" status: cancellation settles a task to Failed with an
// Error string that starts with the KindCancelled kind.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// IsTerminal reports whether the status is absorbing.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// AgentTask is the durable unit of work. Its lifecycle and uniqueness
// invariants are enforced by taskstore.Store implementations, not by
// this type itself — a plain struct can't stop a caller from building
// an invalid value, but every constructor and mutator the store exposes
// preserves them.
type AgentTask struct {
	ID          string          `json:"id"`
	AgentID     StageKind       `json:"agent_id"`
	UserID      string          `json:"user_id"`
	Input       json.RawMessage `json:"input_json"`
	Status      TaskStatus      `json:"status"`
	Error       string          `json:"error,omitempty"`
	Result      json.RawMessage `json:"result_json,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Validate checks the task's internal state transitions for consistency.
// Process-wide ID uniqueness is a store-level concern, enforced by
// Store.Create instead.
func (t *AgentTask) Validate() error {
	switch t.Status {
	case TaskCompleted:
		if t.Result == nil {
			return NewStageError(KindIllegalTransition, "completed task has nil result", nil)
		}
		if t.Error != "" {
			return NewStageError(KindIllegalTransition, "completed task has non-empty error", nil)
		}
	case TaskFailed:
		if t.Error == "" {
			return NewStageError(KindIllegalTransition, "failed task has empty error", nil)
		}
	}
	if t.StartedAt != nil && t.CompletedAt != nil && t.StartedAt.After(*t.CompletedAt) {
		return NewStageError(KindIllegalTransition, "started_at after completed_at", nil)
	}
	return nil
}

// MemoryEntry is the idempotency/dedup record keyed by content fingerprint.
type MemoryEntry struct {
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data_json"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	// SizeBytes is tracked separately from len(Data) so the LRU sweep
	// doesn't need to re-marshal entries just to price them.
	SizeBytes int `json:"-"`
}
