// Package agent implements the generic Agent contract and the
// seven concrete pipeline stages. Agent is expressed as an interface with
// every cross-cutting behavior (rate limiting, circuit breaking, retry,
// fallback, task-store bookkeeping) composed into a shared Runtime rather
// than duplicated per stage or expressed as class inheritance.
//
// Modeled on a small struct embedding a Logger/Telemetry/AIClient that
// concrete agent types wrap rather than subclass.
package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/answer42/agentcore/internal/breaker"
	"github.com/answer42/agentcore/internal/corekit"
	"github.com/answer42/agentcore/internal/fallback"
	"github.com/answer42/agentcore/internal/ratelimit"
	"github.com/answer42/agentcore/internal/retrypolicy"
	"github.com/answer42/agentcore/internal/taskstore"
)

// Agent is the uniform per-stage contract: process a task,
// produce a StageResult.
type Agent interface {
	Stage() corekit.StageKind
	Process(ctx context.Context, task *corekit.AgentTask) (*corekit.StageResult, error)
}

// Runtime composes the Rate Limiter, Circuit Breaker, Retry Policy,
// Provider Adapter, Fallback Registry, and Task Store behind the steps
// common to every agent. One Runtime is constructed per provider and
// shared by every agent backed by that provider, process-wide and
// shared across requests.
type Runtime struct {
	Provider  corekit.AIClient
	Limiter   *ratelimit.Limiter
	Breaker   *breaker.Breaker
	Retry     *retrypolicy.Policy
	Store     taskstore.Store
	Fallback  *fallback.Registry
	Logger    corekit.Logger
	Telemetry corekit.Telemetry
}

// NewRuntime builds a Runtime. A nil Logger installs corekit.NoOpLogger{};
// Telemetry defaults to corekit.NoOpTelemetry{} and can be set directly on
// the returned Runtime by a caller that wants spans (e.g. pkg/agentcore's
// core builder).
func NewRuntime(provider corekit.AIClient, limiter *ratelimit.Limiter, brk *breaker.Breaker, retry *retrypolicy.Policy, store taskstore.Store, fb *fallback.Registry, logger corekit.Logger) *Runtime {
	if logger == nil {
		logger = corekit.NoOpLogger{}
	}
	return &Runtime{Provider: provider, Limiter: limiter, Breaker: brk, Retry: retry, Store: store, Fallback: fb, Logger: logger, Telemetry: corekit.NoOpTelemetry{}}
}

// Fingerprint returns a stable content-addressed key over fp, used for
// memoization.
func Fingerprint(fp string) string {
	sum := sha256.Sum256([]byte(fp))
	return hex.EncodeToString(sum[:])
}

// StageWork is what a concrete agent supplies to Runtime.Run: how to
// build a fingerprint, the prompt, and how to parse+validate the
// provider's raw text into a typed payload.
type StageWork struct {
	Stage            corekit.StageKind
	FingerprintInput string
	Prompt           string
	Options          *corekit.AIOptions
	// ParseAndValidate turns raw provider text into a typed payload,
	// returning a KindInvalidResponse StageError on schema failure.
	ParseAndValidate func(raw string) (interface{}, error)
}

// Run executes the behavior common to every agent. task.Input/
// task.AgentID/task.ID must already be populated by the caller;
// task.Status starts at TaskPending. The Orchestrator does not persist
// the task; Run registers it with Store.Create itself.
func (r *Runtime) Run(ctx context.Context, task *corekit.AgentTask, work StageWork) (*corekit.StageResult, error) {
	start := time.Now()

	ctx, span := r.Telemetry.StartSpan(ctx, "ai.agent.process")
	span.SetAttribute("agent.stage", string(work.Stage))
	span.SetAttribute("agent.task_id", task.ID)
	span.SetAttribute("agent.provider", r.Provider.Name())
	defer span.End()

	// Step 1: idempotent replay if this task id already completed. Decode
	// through work.ParseAndValidate, the same path a fresh provider
	// response takes, so a replay returns the stage's concrete output
	// type rather than a bare map[string]interface{}.
	if existing, err := r.Store.Get(ctx, task.ID); err == nil && existing.Status == corekit.TaskCompleted {
		if payload, perr := work.ParseAndValidate(string(existing.Result)); perr == nil {
			return &corekit.StageResult{Kind: work.Stage, Success: true, Payload: payload, Elapsed: time.Since(start)}, nil
		} else {
			r.Logger.Error("failed to decode persisted task result during replay", map[string]interface{}{
				"task_id": task.ID, "error": perr.Error(),
			})
		}
	}

	// Step 2: memoization short-circuit. The task row still needs to
	// exist before it can be settled, so this path creates it too.
	fp := Fingerprint(work.FingerprintInput)
	if memo, err := r.Store.MemoGet(ctx, fp); err == nil {
		if payload, perr := work.ParseAndValidate(string(memo.Data)); perr == nil {
			if cerr := r.create(ctx, task); cerr != nil {
				return nil, cerr
			}
			r.settle(ctx, task, corekit.TaskCompleted, memo.Data, "")
			return &corekit.StageResult{Kind: work.Stage, Success: true, Payload: payload, Elapsed: time.Since(start)}, nil
		}
	}

	if err := r.MarkRunning(ctx, task); err != nil {
		return nil, err
	}

	fallbackAgent, hasFallback := r.Fallback.Lookup(work.Stage)

	op := func(opCtx context.Context) (*corekit.StageResult, error) {
		// Step 3: rate limiter permit.
		if err := r.Limiter.Acquire(opCtx); err != nil {
			return nil, err
		}
		// Steps 4-5: circuit breaker gate + provider call under the
		// breaker's failure accounting.
		var resp *corekit.AIResponse
		callErr := r.Breaker.Execute(opCtx, func(innerCtx context.Context) error {
			var e error
			resp, e = r.Provider.Complete(innerCtx, work.Prompt, work.Options)
			return e
		})
		if callErr != nil {
			return nil, callErr
		}
		// Step 6: validate against the stage's output schema.
		payload, err := work.ParseAndValidate(resp.Content)
		if err != nil {
			return nil, err
		}
		return &corekit.StageResult{Kind: work.Stage, Success: true, Payload: payload}, nil
	}

	var fb retrypolicy.Fallback
	if hasFallback {
		fb = func(fbCtx context.Context) (*corekit.StageResult, bool, error) {
			result, err := fallbackAgent.Run(work.Stage, work.Prompt)
			if err != nil {
				return nil, true, err
			}
			return result, true, nil
		}
	}

	result, err := r.Retry.Do(ctx, op, fb)
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		r.settle(ctx, task, corekit.TaskFailed, nil, err.Error())
		return &corekit.StageResult{Kind: work.Stage, Success: false, Err: err, Elapsed: elapsed}, err
	}
	result.Elapsed = elapsed
	span.SetAttribute("agent.used_fallback", result.UsedFallback)

	// Step 7: persist memo + settle on success.
	resultJSON, marshalErr := json.Marshal(result.Payload)
	if marshalErr != nil {
		stageErr := corekit.NewStageError(corekit.KindInvalidResponse, "failed to serialize stage payload", marshalErr)
		r.settle(ctx, task, corekit.TaskFailed, nil, stageErr.Error())
		return &corekit.StageResult{Kind: work.Stage, Success: false, Err: stageErr, Elapsed: elapsed}, stageErr
	}
	now := time.Now()
	_ = r.Store.MemoPut(ctx, &corekit.MemoryEntry{Key: fp, Data: resultJSON, CreatedAt: now, UpdatedAt: now})
	r.settle(ctx, task, corekit.TaskCompleted, resultJSON, "")

	return result, nil
}

// CompleteText runs prompt/opts through the rate limiter, circuit
// breaker, and retry policy, falling back at most once per call, exactly
// as Run does internally. Stages that need more than one raw provider
// call per task (TextExtractor's chunk reassembly, Summarizer's
// brief/standard/detailed round-trips) call this directly instead of
// Run, and are responsible for their own memoization/settlement.
func (r *Runtime) CompleteText(ctx context.Context, stage corekit.StageKind, prompt string, opts *corekit.AIOptions) (*corekit.AIResponse, error) {
	ctx, span := r.Telemetry.StartSpan(ctx, "ai.agent.process")
	span.SetAttribute("agent.stage", string(stage))
	span.SetAttribute("agent.provider", r.Provider.Name())
	defer span.End()

	fallbackAgent, hasFallback := r.Fallback.Lookup(stage)

	op := func(opCtx context.Context) (*corekit.StageResult, error) {
		if err := r.Limiter.Acquire(opCtx); err != nil {
			return nil, err
		}
		var resp *corekit.AIResponse
		callErr := r.Breaker.Execute(opCtx, func(innerCtx context.Context) error {
			var e error
			resp, e = r.Provider.Complete(innerCtx, prompt, opts)
			return e
		})
		if callErr != nil {
			return nil, callErr
		}
		return &corekit.StageResult{Kind: stage, Success: true, Payload: resp}, nil
	}

	var fb retrypolicy.Fallback
	if hasFallback {
		fb = func(fbCtx context.Context) (*corekit.StageResult, bool, error) {
			result, err := fallbackAgent.Run(stage, prompt)
			if err != nil {
				return nil, true, err
			}
			return result, true, nil
		}
	}

	result, err := r.Retry.Do(ctx, op, fb)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttribute("agent.used_fallback", result.UsedFallback)
	if resp, ok := result.Payload.(*corekit.AIResponse); ok {
		return resp, nil
	}
	// A fallback agent produced a StageResult directly (its Payload is
	// already the stage's typed output, not an AIResponse); wrap it so
	// callers have a uniform return shape to marshal.
	content, _ := json.Marshal(result.Payload)
	return &corekit.AIResponse{Content: string(content)}, nil
}

// create persists task, the Task Store upsert every stage needs before
// it can transition away from pending. A duplicate-id error from an
// earlier attempt at the same task is not an error here: Create is only
// ever reached with a task this Runtime is about to run.
func (r *Runtime) create(ctx context.Context, task *corekit.AgentTask) error {
	if err := r.Store.Create(ctx, task); err != nil && corekit.KindOf(err) != corekit.KindDuplicateID {
		return err
	}
	return nil
}

// MarkRunning persists task and transitions it to running — the
// pending→running upsert every stage makes exactly once at the start of
// its work. Exposed directly for multi-call stages that bypass Run's
// single-op bookkeeping.
func (r *Runtime) MarkRunning(ctx context.Context, task *corekit.AgentTask) error {
	if err := r.create(ctx, task); err != nil {
		return err
	}
	return r.Store.MarkRunning(ctx, task.ID, time.Now())
}

// Settle exposes Store.Settle for multi-call stages.
func (r *Runtime) Settle(ctx context.Context, task *corekit.AgentTask, status corekit.TaskStatus, result []byte, errMsg string) error {
	return r.Store.Settle(ctx, task.ID, status, result, errMsg, time.Now())
}

func (r *Runtime) settle(ctx context.Context, task *corekit.AgentTask, status corekit.TaskStatus, result []byte, errMsg string) {
	if err := r.Store.Settle(ctx, task.ID, status, result, errMsg, time.Now()); err != nil {
		r.Logger.Error("failed to settle task", map[string]interface{}{
			"task_id": task.ID, "status": string(status), "error": err.Error(),
		})
	}
}
