// Package orchestrator implements the scheduler: build a
// per-request DAG, partition it into waves, and dispatch each wave's
// stages concurrently through the agent pool with deadline enforcement,
// progress emission, and downstream-failure propagation.
//
// Wave dispatch uses golang.org/x/sync/errgroup to fan out one goroutine
// per runnable stage and wait for all of them without leaking; stage
// errors are returned as data in each StageResult, never through the
// group.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/answer42/agentcore/internal/agent"
	"github.com/answer42/agentcore/internal/corekit"
)

// Orchestrator owns the agent pool and the collaborators every stage
// dispatch touches. One instance is constructed by pkg/agentcore's
// NewCore and shared across every PipelineRequest.
type Orchestrator struct {
	Agents     map[corekit.StageKind]agent.Agent
	PaperStore corekit.PaperStore
	Ledger     corekit.CreditLedger // optional; nil skips reservation entirely
	Logger     corekit.Logger
}

// New builds an Orchestrator. A nil Logger installs corekit.NoOpLogger{}.
func New(agents map[corekit.StageKind]agent.Agent, paperStore corekit.PaperStore, ledger corekit.CreditLedger, logger corekit.Logger) *Orchestrator {
	if logger == nil {
		logger = corekit.NoOpLogger{}
	}
	return &Orchestrator{Agents: agents, PaperStore: paperStore, Ledger: ledger, Logger: logger}
}

// Run executes req's stage DAG to completion (or first terminal
// cancellation/deadline) and returns the assembled PipelineResult. It
// never returns a non-nil error for an ordinary stage failure — that is
// reported per-stage inside the result — only for programmer-level
// misuse (an unknown stage, a nil agent for a requested stage) or when
// PaperStore.LoadBytes fails for the paper.
func (o *Orchestrator) Run(ctx context.Context, req *corekit.PipelineRequest) (*corekit.PipelineResult, error) {
	if req.Deadline != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, *req.Deadline)
		defer cancel()
	}

	all := closure(req.Stages)
	for _, s := range all {
		if o.Agents[s] == nil {
			return nil, corekit.NewStageError(corekit.KindInvalidInput, "no agent registered for stage "+string(s), nil)
		}
	}
	waves := buildWaves(all)

	rawText, err := o.PaperStore.LoadBytes(ctx, req.PaperID)
	if err != nil {
		return nil, err
	}
	meta, err := o.PaperStore.LoadMetadata(ctx, req.PaperID)
	if err != nil {
		meta = map[string]interface{}{}
	}
	titleHint, _ := meta["title"].(string)

	payloads := make(map[corekit.StageKind]interface{})
	stageResults := make(map[corekit.StageKind]corekit.StageResult)
	failed := make(map[corekit.StageKind]bool)

	requested := make(map[corekit.StageKind]bool, len(req.Stages))
	for _, s := range req.Stages {
		requested[s] = true
	}

	for _, wave := range waves {
		if ctx.Err() != nil {
			o.failRemaining(req, wave, stageResults, failed, ctx.Err())
			continue
		}

		runnable, skipped := o.partitionWave(wave, all, failed)
		for _, s := range skipped {
			failed[s] = true
			result := corekit.StageResult{Kind: s, Success: false, Err: corekit.NewStageError(corekit.KindUpstreamFailed, "an upstream dependency failed", nil)}
			stageResults[s] = result
			o.emit(req, s, corekit.TaskFailed, 0, false)
		}

		if len(runnable) == 0 {
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		type outcome struct {
			stage  corekit.StageKind
			result corekit.StageResult
			err    error
		}
		out := make(chan outcome, len(runnable))

		for _, stage := range runnable {
			stage := stage
			g.Go(func() error {
				result, err := o.dispatch(gctx, req, stage, rawText, titleHint, payloads)
				out <- outcome{stage: stage, result: result, err: err}
				return nil // per-stage errors are data, not goroutine failures
			})
		}
		_ = g.Wait()
		close(out)

		for oc := range out {
			stageResults[oc.stage] = oc.result
			if oc.result.Success {
				payloads[oc.stage] = oc.result.Payload
			} else {
				failed[oc.stage] = true
			}
		}
	}

	success := true
	for _, s := range req.Stages {
		r, ok := stageResults[s]
		if !ok || !r.Success {
			success = false
			break
		}
	}

	return &corekit.PipelineResult{RequestID: req.ID, Success: success, Stages: stageResults}, nil
}

// partitionWave splits wave into stages whose dependencies all succeeded
// (runnable) and stages with at least one failed dependency (skipped,
// settled as upstream-failed without ever reaching an agent).
func (o *Orchestrator) partitionWave(wave, all []corekit.StageKind, failed map[corekit.StageKind]bool) (runnable, skipped []corekit.StageKind) {
	for _, s := range wave {
		blocked := false
		for _, dep := range corekit.StageDependencies[s] {
			if failed[dep] {
				blocked = true
				break
			}
		}
		if blocked {
			skipped = append(skipped, s)
		} else {
			runnable = append(runnable, s)
		}
	}
	return runnable, skipped
}

// failRemaining settles every not-yet-settled stage in wave (and
// implicitly every later wave, since Run's loop keeps calling this once
// ctx is done) as failed with cause.
func (o *Orchestrator) failRemaining(req *corekit.PipelineRequest, wave []corekit.StageKind, results map[corekit.StageKind]corekit.StageResult, failed map[corekit.StageKind]bool, cause error) {
	kind := corekit.KindCancelled
	if errors.Is(cause, context.DeadlineExceeded) {
		kind = corekit.KindDeadlineExceeded
	}
	for _, s := range wave {
		if _, done := results[s]; done {
			continue
		}
		failed[s] = true
		stageErr := corekit.NewStageError(kind, "pipeline ended before this stage could run", cause)
		results[s] = corekit.StageResult{Kind: s, Success: false, Err: stageErr}
		o.emit(req, s, corekit.TaskFailed, 0, false)
	}
}

// dispatch runs one stage: emits a start event, builds its task and
// input, reserves ledger credit, calls the agent, and emits the end
// event.
func (o *Orchestrator) dispatch(ctx context.Context, req *corekit.PipelineRequest, stage corekit.StageKind, rawText []byte, titleHint string, payloads map[corekit.StageKind]interface{}) (corekit.StageResult, error) {
	o.emit(req, stage, corekit.TaskRunning, 0, false)

	input, err := buildStageInput(stage, req.PaperID, rawText, titleHint, payloads)
	if err != nil {
		stageErr := corekit.NewStageError(corekit.KindInvalidInput, err.Error(), err)
		o.emit(req, stage, corekit.TaskFailed, 0, false)
		return corekit.StageResult{Kind: stage, Success: false, Err: stageErr}, nil
	}

	var reservationID string
	if o.Ledger != nil {
		reservationID, err = o.Ledger.Reserve(ctx, req.UserID, stage, 1.0)
		if err != nil {
			o.emit(req, stage, corekit.TaskFailed, 0, false)
			return corekit.StageResult{Kind: stage, Success: false, Err: err}, nil
		}
	}

	task := &corekit.AgentTask{
		ID:        req.ID + ":" + string(stage),
		AgentID:   stage,
		UserID:    req.UserID,
		Input:     input,
		Status:    corekit.TaskPending,
		CreatedAt: time.Now(),
	}

	start := time.Now()
	result, procErr := o.Agents[stage].Process(ctx, task)
	elapsed := time.Since(start)

	if o.Ledger != nil {
		if procErr == nil && result != nil && result.Success {
			_ = o.Ledger.Commit(ctx, reservationID)
		} else {
			_ = o.Ledger.Release(ctx, reservationID)
		}
	}

	if procErr != nil || result == nil {
		if procErr == nil {
			procErr = corekit.NewStageError(corekit.KindProviderUnavail, "agent returned no result", nil)
		}
		o.emit(req, stage, corekit.TaskFailed, elapsed, false)
		return corekit.StageResult{Kind: stage, Success: false, Err: procErr, Elapsed: elapsed}, nil
	}

	if o.PaperStore != nil && result.Success {
		if err := o.PaperStore.SaveResults(ctx, req.PaperID, stage, result.Payload); err != nil {
			o.Logger.Error("failed to persist stage result", map[string]interface{}{
				"request_id": req.ID, "stage": string(stage), "error": err.Error(),
			})
		}
	}

	status := corekit.TaskCompleted
	if !result.Success {
		status = corekit.TaskFailed
	}
	o.emit(req, stage, status, elapsed, result.UsedFallback)

	return *result, nil
}

func (o *Orchestrator) emit(req *corekit.PipelineRequest, stage corekit.StageKind, status corekit.TaskStatus, elapsed time.Duration, usedFallback bool) {
	if req.Observer == nil {
		return
	}
	req.Observer.Emit(corekit.ProgressEvent{
		RequestID:    req.ID,
		Stage:        stage,
		Status:       status,
		ElapsedMs:    elapsed.Milliseconds(),
		UsedFallback: usedFallback,
	})
}
