package corekit

import "time"

// PipelineRequest is a single paper-processing job. It is
// immutable after creation; the Orchestrator never mutates it.
type PipelineRequest struct {
	ID        string
	PaperID   string
	UserID    string
	Stages    []StageKind
	CreatedAt time.Time
	Deadline  *time.Time
	Observer  ProgressObserver
}

// Fingerprint identifies a request for the dedup rule: resubmitting
// with identical (userID, paperID, stages) while the original is still
// running must return the same request id.
func (r *PipelineRequest) Fingerprint() string {
	s := r.UserID + "|" + r.PaperID + "|"
	for _, st := range r.Stages {
		s += string(st) + ","
	}
	return s
}

// ProgressEvent is what observers receive when a stage starts running
// and again when it settles.
type ProgressEvent struct {
	RequestID    string
	Stage        StageKind
	Status       TaskStatus
	ElapsedMs    int64
	UsedFallback bool
}

// ProgressObserver is the outbound collaborator contract. Emit is
// best-effort: the core tolerates observer failures (logged, not
// propagated), so implementations should not return an error from Emit —
// there is nowhere for it to go.
type ProgressObserver interface {
	Emit(event ProgressEvent)
}

// ProgressObserverFunc adapts a function to a ProgressObserver.
type ProgressObserverFunc func(ProgressEvent)

func (f ProgressObserverFunc) Emit(event ProgressEvent) { f(event) }

// PipelineStageState is one row of the getPipelineStatus response.
type PipelineStageState struct {
	Stage        StageKind
	Status       TaskStatus
	UsedFallback bool
	Error        string
}

// PipelineStatus answers getPipelineStatus(requestId).
type PipelineStatus struct {
	RequestID       string
	StageStates     []PipelineStageState
	OverallProgress float64 // 0..1
}

// PipelineResult is the final assembled outcome of Orchestrator.Run.
type PipelineResult struct {
	RequestID string
	Success   bool
	Stages    map[StageKind]StageResult
}
