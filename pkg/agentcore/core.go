// Package agentcore is the public facade over the orchestration core:
// one NewCore builder wires every internal collaborator from a Config,
// and four calls — SubmitPipeline, GetPipelineStatus, SubscribeProgress,
// CancelPipeline — make up the entire inbound surface.
// cmd/pipelinectl is the only caller shipped in this repo; a future HTTP
// or gRPC front end would be a thin adapter over the same four calls.
package agentcore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/answer42/agentcore/internal/agent"
	"github.com/answer42/agentcore/internal/breaker"
	"github.com/answer42/agentcore/internal/config"
	"github.com/answer42/agentcore/internal/corekit"
	"github.com/answer42/agentcore/internal/fallback"
	"github.com/answer42/agentcore/internal/orchestrator"
	"github.com/answer42/agentcore/internal/providers/anthropic"
	"github.com/answer42/agentcore/internal/providers/gemini"
	"github.com/answer42/agentcore/internal/providers/local"
	"github.com/answer42/agentcore/internal/providers/openai"
	"github.com/answer42/agentcore/internal/ratelimit"
	"github.com/answer42/agentcore/internal/retrypolicy"
	"github.com/answer42/agentcore/internal/taskstore"
)

// Core is the assembled orchestration core: one Orchestrator, one shared
// Runtime (and therefore one rate limiter/breaker/retry policy per
// primary provider, process-wide and shared across requests), and the
// bookkeeping SubmitPipeline/GetPipelineStatus/SubscribeProgress/
// CancelPipeline need that the Orchestrator itself has no reason to keep
// (request fingerprint dedup, live per-request progress, cancellation
// handles).
type Core struct {
	orch   *orchestrator.Orchestrator
	logger corekit.Logger

	mu            sync.Mutex
	byFingerprint map[string]string        // request fingerprint -> requestID, while running
	requests      map[string]*requestState // requestID -> live state
}

type requestState struct {
	mu       sync.Mutex
	cancel   context.CancelFunc
	stages   map[corekit.StageKind]corekit.PipelineStageState
	total    int
	result   *corekit.PipelineResult
	subs     map[chan corekit.ProgressEvent]struct{}
}

// NewCore builds a Core from cfg, constructing the primary remote
// provider adapter named by cfg.Providers.Primary, the local fallback
// adapter, the shared rate limiter/breaker/retry policy, the task store
// backend (memory or Redis), the fallback registry, and one Agent per
// stage kind, then hands all seven agents to a new Orchestrator.
func NewCore(cfg config.Config, paperStore corekit.PaperStore, ledger corekit.CreditLedger, logger corekit.Logger, telemetry corekit.Telemetry) (*Core, error) {
	if logger == nil {
		logger = corekit.NoOpLogger{}
	}
	if telemetry == nil {
		telemetry = corekit.NoOpTelemetry{}
	}

	primary, err := buildPrimaryProvider(cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := buildTaskStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.New(ratelimit.Config{
		Capacity: cfg.RateLimiter.Capacity, RefillPerSec: cfg.RateLimiter.RefillPerSec,
		HighWaterMark: cfg.RateLimiter.HighWaterMark,
	})
	brk := breaker.New(breaker.Config{
		Name: cfg.Providers.Primary, WindowSize: cfg.Breaker.WindowSize,
		FailureThreshold: cfg.Breaker.FailureThreshold, CoolDown: cfg.Breaker.CoolDown,
		CoolDownCeiling: cfg.Breaker.CoolDownCeiling, HalfOpenProbes: cfg.Breaker.HalfOpenProbes,
		Logger: logger,
	})
	retry := retrypolicy.New(retrypolicy.Config{
		MaxAttempts: cfg.Retry.MaxAttempts, BaseDelay: cfg.Retry.BaseDelay,
		Multiplier: cfg.Retry.Multiplier, JitterFraction: cfg.Retry.JitterFraction,
		PerAttemptDeadline: cfg.Retry.PerAttemptDeadline,
	})

	fb := fallback.New(cfg.Fallback.Enabled)
	if cfg.Fallback.Enabled {
		localClient := local.NewClient(cfg.Providers.Local.Host, cfg.Providers.Local.Model, logger)
		fbAgent := agent.NewLocalFallbackAgent(localClient, logger, cfg.Fallback.InputTruncation)
		// Registry.Register silently no-ops for stages the retry policy
		// never calls it for (TextExtractor, Discoverer); registering
		// all seven here keeps this list in one place rather than
		// duplicating stagesEligibleForFallback's membership test.
		for _, stage := range corekit.AllStages {
			fb.Register(stage, fbAgent)
		}
	}

	rt := agent.NewRuntime(primary, limiter, brk, retry, store, fb, logger)
	rt.Telemetry = telemetry

	agents := map[corekit.StageKind]agent.Agent{
		corekit.StageTextExtractor:     &agent.TextExtractorAgent{Runtime: rt},
		corekit.StageMetadataEnhancer:  &agent.MetadataEnhancerAgent{Runtime: rt},
		corekit.StageSummarizer:        &agent.SummarizerAgent{Runtime: rt},
		corekit.StageConceptExplainer:  &agent.ConceptExplainerAgent{Runtime: rt},
		corekit.StageQualityChecker:    &agent.QualityCheckerAgent{Runtime: rt, QualityFloor: cfg.QualityFloor},
		corekit.StageCitationFormatter: &agent.CitationFormatterAgent{Runtime: rt},
		corekit.StageDiscoverer:        &agent.DiscovererAgent{Runtime: rt},
	}

	orch := orchestrator.New(agents, paperStore, ledger, logger)

	return &Core{
		orch:          orch,
		logger:        logger,
		byFingerprint: make(map[string]string),
		requests:      make(map[string]*requestState),
	}, nil
}

func buildPrimaryProvider(cfg config.Config, logger corekit.Logger) (corekit.AIClient, error) {
	switch cfg.Providers.Primary {
	case "anthropic":
		return anthropic.NewClient(cfg.Providers.Anthropic.APIKey, cfg.Providers.Anthropic.BaseURL, logger), nil
	case "openai":
		return openai.NewClient(cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.BaseURL, logger), nil
	case "gemini":
		return gemini.NewClient(cfg.Providers.Gemini.APIKey, cfg.Providers.Gemini.BaseURL, logger), nil
	default:
		return nil, fmt.Errorf("agentcore: unknown primary provider %q", cfg.Providers.Primary)
	}
}

func buildTaskStore(cfg config.Config, logger corekit.Logger) (taskstore.Store, error) {
	switch cfg.TaskStore.Backend {
	case "", "memory":
		return taskstore.NewMemoryStore(cfg.TaskStore.MemoSizeCapBytes), nil
	case "redis":
		return nil, fmt.Errorf("agentcore: NewCore does not build the redis task store backend; only \"memory\" is supported here")
	default:
		return nil, fmt.Errorf("agentcore: unknown task store backend %q", cfg.TaskStore.Backend)
	}
}

// SubmitPipeline starts a new pipeline run, or returns the in-flight
// requestID for an identical (userID, paperID, stages) request that is
// still running. The only error this returns is input validation;
// runtime failures surface through GetPipelineStatus instead.
func (c *Core) SubmitPipeline(ctx context.Context, userID, paperID string, stages []corekit.StageKind, deadline *time.Time, observer corekit.ProgressObserver) (string, error) {
	if paperID == "" {
		return "", corekit.NewStageError(corekit.KindInvalidInput, "paperID is required", nil)
	}
	if len(stages) == 0 {
		return "", corekit.NewStageError(corekit.KindInvalidInput, "at least one stage is required", nil)
	}

	req := &corekit.PipelineRequest{
		PaperID: paperID, UserID: userID, Stages: stages, CreatedAt: time.Now(), Deadline: deadline,
	}
	fp := req.Fingerprint()

	c.mu.Lock()
	if existingID, ok := c.byFingerprint[fp]; ok {
		c.mu.Unlock()
		return existingID, nil
	}
	req.ID = uuid.NewString()
	c.byFingerprint[fp] = req.ID
	c.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	state := &requestState{
		cancel: cancel,
		stages: make(map[corekit.StageKind]corekit.PipelineStageState, len(stages)),
		total:  len(stages),
		subs:   make(map[chan corekit.ProgressEvent]struct{}),
	}
	for _, s := range stages {
		state.stages[s] = corekit.PipelineStageState{Stage: s, Status: corekit.TaskPending}
	}

	c.mu.Lock()
	c.requests[req.ID] = state
	c.mu.Unlock()

	// Stages of one wave emit from separate goroutines; emitMu hands the
	// caller's observer one event at a time.
	var emitMu sync.Mutex
	req.Observer = corekit.ProgressObserverFunc(func(event corekit.ProgressEvent) {
		emitMu.Lock()
		defer emitMu.Unlock()
		state.recordAndBroadcast(event)
		if observer != nil {
			observer.Emit(event)
		}
	})

	go func() {
		defer cancel()
		result, err := c.orch.Run(runCtx, req)
		if err != nil {
			c.logger.Error("pipeline run failed to start", map[string]interface{}{
				"request_id": req.ID, "error": err.Error(),
			})
		}
		state.mu.Lock()
		state.result = result
		state.mu.Unlock()

		c.mu.Lock()
		delete(c.byFingerprint, fp)
		c.mu.Unlock()
	}()

	return req.ID, nil
}

// GetPipelineStatus reports each stage's current status and the
// pipeline's overall completion fraction.
func (c *Core) GetPipelineStatus(requestID string) (*corekit.PipelineStatus, error) {
	c.mu.Lock()
	state, ok := c.requests[requestID]
	c.mu.Unlock()
	if !ok {
		return nil, corekit.NewStageError(corekit.KindInvalidInput, "unknown request id", nil)
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	stageStates := make([]corekit.PipelineStageState, 0, len(state.stages))
	completed := 0
	for _, st := range state.stages {
		stageStates = append(stageStates, st)
		if st.Status.IsTerminal() {
			completed++
		}
	}
	return &corekit.PipelineStatus{
		RequestID:       requestID,
		StageStates:     stageStates,
		OverallProgress: float64(completed) / float64(state.total),
	}, nil
}

// SubscribeProgress registers ch to receive every ProgressEvent for
// requestID from this point forward. The returned unsubscribe func
// should be called once the caller stops reading; delivery never blocks,
// so events that arrive while ch's buffer is full are dropped for that
// subscriber.
func (c *Core) SubscribeProgress(requestID string, bufferSize int) (<-chan corekit.ProgressEvent, func(), error) {
	c.mu.Lock()
	state, ok := c.requests[requestID]
	c.mu.Unlock()
	if !ok {
		return nil, nil, corekit.NewStageError(corekit.KindInvalidInput, "unknown request id", nil)
	}
	if bufferSize <= 0 {
		bufferSize = 16
	}

	ch := make(chan corekit.ProgressEvent, bufferSize)
	state.mu.Lock()
	state.subs[ch] = struct{}{}
	state.mu.Unlock()

	unsubscribe := func() {
		state.mu.Lock()
		delete(state.subs, ch)
		state.mu.Unlock()
		close(ch)
	}
	return ch, unsubscribe, nil
}

// CancelPipeline triggers cooperative cancellation for requestID; every
// in-flight stage is expected to reach a terminal state shortly after.
// Cancelling an already-finished or unknown request is a no-op.
func (c *Core) CancelPipeline(requestID string) error {
	c.mu.Lock()
	state, ok := c.requests[requestID]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	state.mu.Lock()
	cancel := state.cancel
	state.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (s *requestState) recordAndBroadcast(event corekit.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Only requested stages are tracked, so completed never exceeds total;
	// dependency stages added by the orchestrator are still broadcast.
	if _, tracked := s.stages[event.Stage]; tracked {
		s.stages[event.Stage] = corekit.PipelineStageState{
			Stage: event.Stage, Status: event.Status, UsedFallback: event.UsedFallback,
		}
	}
	for ch := range s.subs {
		select {
		case ch <- event:
		default:
			// A slow subscriber must not stall pipeline progress; it
			// misses this event rather than backpressuring dispatch.
		}
	}
}
