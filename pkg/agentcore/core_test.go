package agentcore

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/answer42/agentcore/internal/agent"
	"github.com/answer42/agentcore/internal/breaker"
	"github.com/answer42/agentcore/internal/corekit"
	"github.com/answer42/agentcore/internal/fallback"
	"github.com/answer42/agentcore/internal/orchestrator"
	"github.com/answer42/agentcore/internal/ratelimit"
	"github.com/answer42/agentcore/internal/retrypolicy"
	"github.com/answer42/agentcore/internal/taskstore"
)

// scriptedClient is a minimal corekit.AIClient test double serving
// canned responses by calling order, or deriving one from a prompt via
// genResponse.
type scriptedClient struct {
	name        string
	responses   []string
	genResponse func(prompt string) (string, error)
	calls       int
	mu          sync.Mutex
}

func (c *scriptedClient) Name() string { return c.name }

func (c *scriptedClient) Complete(ctx context.Context, prompt string, opts *corekit.AIOptions) (*corekit.AIResponse, error) {
	c.mu.Lock()
	n := c.calls
	c.calls++
	c.mu.Unlock()

	if n < len(c.responses) {
		return &corekit.AIResponse{Content: c.responses[n], Model: "scripted"}, nil
	}
	if c.genResponse != nil {
		content, err := c.genResponse(prompt)
		if err != nil {
			return nil, err
		}
		return &corekit.AIResponse{Content: content, Model: "scripted"}, nil
	}
	return &corekit.AIResponse{Content: "{}", Model: "scripted"}, nil
}

// blockingClient never returns on its own; it only unblocks once ctx is
// cancelled, so tests can exercise CancelPipeline against a stage that is
// genuinely in flight.
type blockingClient struct{}

func (c *blockingClient) Name() string { return "blocking" }

func (c *blockingClient) Complete(ctx context.Context, prompt string, opts *corekit.AIOptions) (*corekit.AIResponse, error) {
	<-ctx.Done()
	return nil, corekit.NewStageError(corekit.KindCancelled, "request cancelled", ctx.Err())
}

type fakePaperStore struct {
	mu  sync.Mutex
	raw []byte
}

func (s *fakePaperStore) LoadBytes(ctx context.Context, paperID string) ([]byte, error) {
	return s.raw, nil
}
func (s *fakePaperStore) LoadMetadata(ctx context.Context, paperID string) (map[string]interface{}, error) {
	return map[string]interface{}{}, nil
}
func (s *fakePaperStore) SaveResults(ctx context.Context, paperID string, stage corekit.StageKind, payload interface{}) error {
	return nil
}

func newTestRuntime(client corekit.AIClient) *agent.Runtime {
	limiter := ratelimit.New(ratelimit.Config{Capacity: 1000, RefillPerSec: 10000})
	brk := breaker.New(breaker.Config{Name: "test", CoolDown: 20 * time.Millisecond, CoolDownCeiling: 100 * time.Millisecond})
	retry := retrypolicy.New(retrypolicy.Config{MaxAttempts: 2, BaseDelay: time.Millisecond})
	store := taskstore.NewMemoryStore(1 << 20)
	return agent.NewRuntime(client, limiter, brk, retry, store, fallback.New(false), corekit.NoOpLogger{})
}

// newTestCore builds a Core directly from a prebuilt agent pool, bypassing
// NewCore's provider-construction logic so tests can exercise the
// SubmitPipeline/GetPipelineStatus/SubscribeProgress/CancelPipeline
// surface against deterministic test doubles.
func newTestCore(agents map[corekit.StageKind]agent.Agent, store corekit.PaperStore) *Core {
	return &Core{
		orch:          orchestrator.New(agents, store, nil, corekit.NoOpLogger{}),
		logger:        corekit.NoOpLogger{},
		byFingerprint: make(map[string]string),
		requests:      make(map[string]*requestState),
	}
}

func fastAgents() map[corekit.StageKind]agent.Agent {
	extractor := &scriptedClient{name: "extract", responses: []string{
		`{"cleaned_text":"a paper about attention","sections":[]}`,
	}}
	enhancer := &scriptedClient{name: "enhance", responses: []string{
		`{"title":"T","authors":["A"],"venue":"","year":2024,"identifiers":[]}`,
	}}
	summarizer := &scriptedClient{name: "summarize", genResponse: func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "2-3 sentence"):
			return "b", nil
		case strings.Contains(prompt, "one-paragraph"):
			return "s s", nil
		default:
			return "d d d d", nil
		}
	}}
	quality := &scriptedClient{name: "quality", responses: []string{`{"score":0.9,"issues":[]}`}}

	return map[corekit.StageKind]agent.Agent{
		corekit.StageTextExtractor:    &agent.TextExtractorAgent{Runtime: newTestRuntime(extractor)},
		corekit.StageMetadataEnhancer: &agent.MetadataEnhancerAgent{Runtime: newTestRuntime(enhancer)},
		corekit.StageSummarizer:       &agent.SummarizerAgent{Runtime: newTestRuntime(summarizer)},
		corekit.StageQualityChecker:   &agent.QualityCheckerAgent{Runtime: newTestRuntime(quality), QualityFloor: 0.5},
	}
}

func TestSubmitPipelineRunsToCompletion(t *testing.T) {
	core := newTestCore(fastAgents(), &fakePaperStore{raw: []byte("raw text")})

	reqID, err := core.SubmitPipeline(context.Background(), "user-1", "paper-1",
		[]corekit.StageKind{corekit.StageTextExtractor, corekit.StageMetadataEnhancer, corekit.StageSummarizer, corekit.StageQualityChecker},
		nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, reqID)

	require.Eventually(t, func() bool {
		status, err := core.GetPipelineStatus(reqID)
		return err == nil && status.OverallProgress == 1
	}, time.Second, 5*time.Millisecond)

	status, err := core.GetPipelineStatus(reqID)
	require.NoError(t, err)
	for _, s := range status.StageStates {
		assert.Equal(t, corekit.TaskCompleted, s.Status, "stage %s", s.Stage)
	}
}

func TestSubmitPipelineRejectsMissingPaperID(t *testing.T) {
	core := newTestCore(fastAgents(), &fakePaperStore{})
	_, err := core.SubmitPipeline(context.Background(), "user-1", "", []corekit.StageKind{corekit.StageTextExtractor}, nil, nil)
	require.Error(t, err)
}

func TestSubmitPipelineRejectsEmptyStages(t *testing.T) {
	core := newTestCore(fastAgents(), &fakePaperStore{})
	_, err := core.SubmitPipeline(context.Background(), "user-1", "paper-1", nil, nil, nil)
	require.Error(t, err)
}

func TestSubmitPipelineDedupesWhileInFlight(t *testing.T) {
	agents := map[corekit.StageKind]agent.Agent{
		corekit.StageTextExtractor: &agent.TextExtractorAgent{Runtime: newTestRuntime(&blockingClient{})},
	}
	core := newTestCore(agents, &fakePaperStore{raw: []byte("raw text")})

	id1, err := core.SubmitPipeline(context.Background(), "user-1", "paper-1", []corekit.StageKind{corekit.StageTextExtractor}, nil, nil)
	require.NoError(t, err)
	id2, err := core.SubmitPipeline(context.Background(), "user-1", "paper-1", []corekit.StageKind{corekit.StageTextExtractor}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	require.NoError(t, core.CancelPipeline(id1))
}

func TestGetPipelineStatusUnknownRequestErrors(t *testing.T) {
	core := newTestCore(fastAgents(), &fakePaperStore{})
	_, err := core.GetPipelineStatus("does-not-exist")
	assert.Error(t, err)
}

func TestSubscribeProgressReceivesEveryStageEvent(t *testing.T) {
	core := newTestCore(fastAgents(), &fakePaperStore{raw: []byte("raw text")})

	reqID, err := core.SubmitPipeline(context.Background(), "user-1", "paper-1",
		[]corekit.StageKind{corekit.StageTextExtractor, corekit.StageMetadataEnhancer, corekit.StageSummarizer, corekit.StageQualityChecker},
		nil, nil)
	require.NoError(t, err)

	ch, unsubscribe, err := core.SubscribeProgress(reqID, 0)
	require.NoError(t, err)
	defer unsubscribe()

	seen := make(map[corekit.StageKind]bool)
	timeout := time.After(time.Second)
	for len(seen) < 4 {
		select {
		case event, ok := <-ch:
			if !ok {
				t.Fatal("channel closed before every stage event arrived")
			}
			if event.Status == corekit.TaskCompleted {
				seen[event.Stage] = true
			}
		case <-timeout:
			t.Fatalf("timed out waiting for progress events, saw %d/4 stages", len(seen))
		}
	}
}

func TestCancelPipelineStopsInFlightRun(t *testing.T) {
	agents := map[corekit.StageKind]agent.Agent{
		corekit.StageTextExtractor: &agent.TextExtractorAgent{Runtime: newTestRuntime(&blockingClient{})},
	}
	core := newTestCore(agents, &fakePaperStore{raw: []byte("raw text")})

	reqID, err := core.SubmitPipeline(context.Background(), "user-1", "paper-1", []corekit.StageKind{corekit.StageTextExtractor}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, core.CancelPipeline(reqID))

	require.Eventually(t, func() bool {
		core.mu.Lock()
		state, ok := core.requests[reqID]
		core.mu.Unlock()
		if !ok {
			return false
		}
		state.mu.Lock()
		defer state.mu.Unlock()
		return state.result != nil
	}, time.Second, 5*time.Millisecond)
}

func TestCancelPipelineOnUnknownRequestIsNoop(t *testing.T) {
	core := newTestCore(fastAgents(), &fakePaperStore{})
	assert.NoError(t, core.CancelPipeline("does-not-exist"))
}
