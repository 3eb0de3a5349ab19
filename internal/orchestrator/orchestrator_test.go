package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/answer42/agentcore/internal/agent"
	"github.com/answer42/agentcore/internal/breaker"
	"github.com/answer42/agentcore/internal/corekit"
	"github.com/answer42/agentcore/internal/fallback"
	"github.com/answer42/agentcore/internal/ratelimit"
	"github.com/answer42/agentcore/internal/retrypolicy"
	"github.com/answer42/agentcore/internal/taskstore"
)

// scriptedClient is a corekit.AIClient test double: it serves fixed
// responses in order, or derives one from a genResponse callback, or
// always errors with a fixed ErrorKind.
type scriptedClient struct {
	name        string
	responses   []string
	genResponse func(prompt string) (string, error)
	alwaysErr   corekit.ErrorKind
	calls       int32
}

func (c *scriptedClient) Name() string { return c.name }

func (c *scriptedClient) Complete(ctx context.Context, prompt string, opts *corekit.AIOptions) (*corekit.AIResponse, error) {
	n := atomic.AddInt32(&c.calls, 1)
	if c.alwaysErr != "" {
		return nil, corekit.NewStageError(c.alwaysErr, "scripted failure", nil)
	}
	if int(n) <= len(c.responses) {
		return &corekit.AIResponse{Content: c.responses[n-1], Model: "scripted"}, nil
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

func (c *scriptedClient) callCount() int { return int(atomic.LoadInt32(&c.calls)) }

type fakePaperStore struct {
	mu        sync.Mutex
	raw       []byte
	saveCount int
}

func (s *fakePaperStore) LoadBytes(ctx context.Context, paperID string) ([]byte, error) {
	return s.raw, nil
}
func (s *fakePaperStore) LoadMetadata(ctx context.Context, paperID string) (map[string]interface{}, error) {
	return map[string]interface{}{}, nil
}
func (s *fakePaperStore) SaveResults(ctx context.Context, paperID string, stage corekit.StageKind, payload interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCount++
	return nil
}

func (s *fakePaperStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveCount
}

// recordingObserver captures every emitted event in arrival order.
type recordingObserver struct {
	mu     sync.Mutex
	events []corekit.ProgressEvent
}

func (o *recordingObserver) Emit(e corekit.ProgressEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

func (o *recordingObserver) snapshot() []corekit.ProgressEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]corekit.ProgressEvent, len(o.events))
	copy(out, o.events)
	return out
}

func newRuntime(client corekit.AIClient, fb *fallback.Registry) *agent.Runtime {
	limiter := ratelimit.New(ratelimit.Config{Capacity: 1000, RefillPerSec: 10000})
	brk := breaker.New(breaker.Config{Name: "test", CoolDown: 20 * time.Millisecond, CoolDownCeiling: 100 * time.Millisecond})
	retry := retrypolicy.New(retrypolicy.Config{MaxAttempts: 2, BaseDelay: time.Millisecond})
	store := taskstore.NewMemoryStore(1 << 20)
	if fb == nil {
		fb = fallback.New(false)
	}
	return agent.NewRuntime(client, limiter, brk, retry, store, fb, corekit.NoOpLogger{})
}

func TestHappyPathAllStagesComplete(t *testing.T) {
	extractor := &scriptedClient{name: "extract", responses: []string{
		`{"cleaned_text":"This paper studies attention mechanisms in depth.","sections":[]}`,
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

	agents := map[corekit.StageKind]agent.Agent{
		corekit.StageTextExtractor:    &agent.TextExtractorAgent{Runtime: newRuntime(extractor, nil)},
		corekit.StageMetadataEnhancer: &agent.MetadataEnhancerAgent{Runtime: newRuntime(enhancer, nil)},
		corekit.StageSummarizer:       &agent.SummarizerAgent{Runtime: newRuntime(summarizer, nil)},
		corekit.StageQualityChecker:   &agent.QualityCheckerAgent{Runtime: newRuntime(quality, nil)},
	}
	store := &fakePaperStore{raw: []byte("raw ocr text")}
	obs := &recordingObserver{}
	orch := New(agents, store, nil, corekit.NoOpLogger{})

	req := &corekit.PipelineRequest{
		ID: "req-1", PaperID: "paper-1", UserID: "user-1",
		Stages:   []corekit.StageKind{corekit.StageTextExtractor, corekit.StageMetadataEnhancer, corekit.StageSummarizer, corekit.StageQualityChecker},
		Observer: obs,
	}

	result, err := orch.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected overall success, stages: %+v", result.Stages)
	}
	for _, s := range req.Stages {
		r := result.Stages[s]
		if !r.Success {
			t.Errorf("stage %s failed: %v", s, r.Err)
		}
		if r.UsedFallback {
			t.Errorf("stage %s unexpectedly used fallback", s)
		}
	}
	if store.count() != 4 {
		t.Errorf("SaveResults called %d times, want 4", store.count())
	}
}

func TestFallbackSucceedsAfterPrimaryExhausted(t *testing.T) {
	extractor := &scriptedClient{name: "extract", responses: []string{
		`{"cleaned_text":"paper body","sections":[]}`,
	}}
	primary := &scriptedClient{name: "primary-summarize", alwaysErr: corekit.KindProviderTransient}
	local := &scriptedClient{name: "local-summarize", genResponse: func(prompt string) (string, error) {
		return "degraded summary", nil
	}}
	fb := fallback.New(true)
	fb.Register(corekit.StageSummarizer, agent.NewLocalFallbackAgent(local, corekit.NoOpLogger{}, 0))

	agents := map[corekit.StageKind]agent.Agent{
		corekit.StageTextExtractor:    &agent.TextExtractorAgent{Runtime: newRuntime(extractor, nil)},
		corekit.StageMetadataEnhancer: &agent.MetadataEnhancerAgent{Runtime: newRuntime(&scriptedClient{name: "enhance", responses: []string{`{"title":"T","authors":[],"venue":"","year":2024,"identifiers":[]}`}}, nil)},
		corekit.StageSummarizer:       &agent.SummarizerAgent{Runtime: newRuntime(primary, fb)},
	}
	store := &fakePaperStore{raw: []byte("raw text")}
	orch := New(agents, store, nil, corekit.NoOpLogger{})

	req := &corekit.PipelineRequest{
		ID: "req-2", PaperID: "paper-2", UserID: "user-1",
		Stages: []corekit.StageKind{corekit.StageSummarizer},
	}
	result, err := orch.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := result.Stages[corekit.StageSummarizer]
	if !r.Success {
		t.Fatalf("expected summarizer to succeed via fallback: %v", r.Err)
	}
}

func TestUpstreamFailurePropagatesToDependents(t *testing.T) {
	extractor := &scriptedClient{name: "extract", responses: []string{
		`{"cleaned_text":"paper body","sections":[]}`,
	}}
	failingEnhancer := &scriptedClient{name: "enhance-fail", alwaysErr: corekit.KindProviderUnavail}
	citation := &scriptedClient{name: "citation", responses: []string{
		`{"citations":[],"formatted_bibliography":{"APA":"x","MLA":"x","Chicago":"x","IEEE":"x"}}`,
	}}

	agents := map[corekit.StageKind]agent.Agent{
		corekit.StageTextExtractor:     &agent.TextExtractorAgent{Runtime: newRuntime(extractor, nil)},
		corekit.StageMetadataEnhancer:  &agent.MetadataEnhancerAgent{Runtime: newRuntime(failingEnhancer, nil)},
		corekit.StageCitationFormatter: &agent.CitationFormatterAgent{Runtime: newRuntime(citation, nil)},
		corekit.StageDiscoverer:        &agent.DiscovererAgent{Runtime: newRuntime(&scriptedClient{name: "discover"}, nil)},
	}
	store := &fakePaperStore{raw: []byte("raw text")}
	orch := New(agents, store, nil, corekit.NoOpLogger{})

	req := &corekit.PipelineRequest{
		ID: "req-3", PaperID: "paper-3", UserID: "user-1",
		Stages: []corekit.StageKind{corekit.StageMetadataEnhancer, corekit.StageCitationFormatter, corekit.StageDiscoverer},
	}
	result, err := orch.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected overall failure since metadata_enhancer failed terminally")
	}
	if result.Stages[corekit.StageCitationFormatter].Success != true {
		t.Error("citation_formatter is independent of metadata_enhancer and should still succeed")
	}
	discoverer := result.Stages[corekit.StageDiscoverer]
	if discoverer.Success {
		t.Fatal("discoverer depends on metadata_enhancer and must fail")
	}
	if corekit.KindOf(discoverer.Err) != corekit.KindUpstreamFailed {
		t.Errorf("discoverer error kind = %v, want upstream-failed", corekit.KindOf(discoverer.Err))
	}
}

func TestCancellationStopsDownstreamDispatch(t *testing.T) {
	extractor := &scriptedClient{name: "extract", responses: []string{
		`{"cleaned_text":"paper body","sections":[]}`,
	}}
	enhancer := &scriptedClient{name: "enhance", responses: []string{
		`{"title":"T","authors":[],"venue":"","year":2024,"identifiers":[]}`,
	}}
	blockedSummarizer := &blockingClient{}

	agents := map[corekit.StageKind]agent.Agent{
		corekit.StageTextExtractor:    &agent.TextExtractorAgent{Runtime: newRuntime(extractor, nil)},
		corekit.StageMetadataEnhancer: &agent.MetadataEnhancerAgent{Runtime: newRuntime(enhancer, nil)},
		corekit.StageSummarizer:       &agent.SummarizerAgent{Runtime: newRuntime(blockedSummarizer, nil)},
	}
	store := &fakePaperStore{raw: []byte("raw text")}
	orch := New(agents, store, nil, corekit.NoOpLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	req := &corekit.PipelineRequest{
		ID: "req-4", PaperID: "paper-4", UserID: "user-1",
		Stages: []corekit.StageKind{corekit.StageTextExtractor, corekit.StageSummarizer},
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result, err := orch.Run(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Stages[corekit.StageTextExtractor].Success {
		t.Error("text_extractor should have completed before cancellation")
	}
	summarizer := result.Stages[corekit.StageSummarizer]
	if summarizer.Success {
		t.Fatal("summarizer should fail after cancellation")
	}
	if corekit.KindOf(summarizer.Err) != corekit.KindCancelled {
		t.Errorf("summarizer error kind = %v, want cancelled", corekit.KindOf(summarizer.Err))
	}
}

func TestMemoizedExtractionSkipsSecondProviderCall(t *testing.T) {
	extractor := &scriptedClient{name: "extract", responses: []string{
		`{"cleaned_text":"shared paper body","sections":[]}`,
	}}
	rt := newRuntime(extractor, nil)
	agents := map[corekit.StageKind]agent.Agent{
		corekit.StageTextExtractor: &agent.TextExtractorAgent{Runtime: rt},
	}
	store := &fakePaperStore{raw: []byte("shared raw text")}
	orch := New(agents, store, nil, corekit.NoOpLogger{})

	first := &corekit.PipelineRequest{ID: "req-5a", PaperID: "paper-5", UserID: "user-1", Stages: []corekit.StageKind{corekit.StageTextExtractor}}
	if _, err := orch.Run(context.Background(), first); err != nil {
		t.Fatalf("first run: %v", err)
	}

	second := &corekit.PipelineRequest{ID: "req-5b", PaperID: "paper-5", UserID: "user-1", Stages: []corekit.StageKind{corekit.StageTextExtractor}}
	start := time.Now()
	result, err := orch.Run(context.Background(), second)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !result.Stages[corekit.StageTextExtractor].Success {
		t.Fatal("second run's text_extractor should succeed from memo")
	}
	if extractor.callCount() != 1 {
		t.Errorf("provider called %d times, want 1 (second request should replay from memo)", extractor.callCount())
	}
	if elapsed > 50*time.Millisecond {
		t.Errorf("memoized replay took %v, want < 50ms", elapsed)
	}
}

// TestSustainedFailureTripsBreaker submits the same stage 25
// times back-to-back against a client that fails the first 22 calls and
// succeeds after; the breaker's 20-outcome window should trip open well
// before all 25 attempts reach the provider.
func TestSustainedFailureTripsBreaker(t *testing.T) {
	client := &countedFlakyClient{failCount: 22}
	rt := newRuntime(client, nil)
	a := &agent.ConceptExplainerAgent{Runtime: rt}
	ctx := context.Background()

	rejectedFastCount := 0
	for i := 0; i < 25; i++ {
		in, err := json.Marshal(agent.ConceptExplainerInput{FullText: fmt.Sprintf("distinct text body %d", i)})
		if err != nil {
			t.Fatalf("marshal input %d: %v", i, err)
		}
		task := &corekit.AgentTask{ID: fmt.Sprintf("breaker-task-%d", i), AgentID: corekit.StageConceptExplainer, Input: in, Status: corekit.TaskPending}
		if err := rt.Store.Create(ctx, task); err != nil {
			t.Fatalf("create task %d: %v", i, err)
		}
		if _, err := a.Process(ctx, task); err != nil && corekit.KindOf(err) == corekit.KindProviderUnavail {
			rejectedFastCount++
		}
	}
	if rejectedFastCount == 0 {
		t.Fatal("expected at least one attempt to be fast-rejected with provider-unavailable once the breaker tripped")
	}
	if client.providerCalls() >= 25 {
		t.Errorf("provider called on every attempt (%d of 25); breaker never tripped", client.providerCalls())
	}
}

// countedFlakyClient fails its first failCount calls with
// provider-transient, then succeeds, so the breaker's sliding window
// trips open partway through a burst of sequential calls.
type countedFlakyClient struct {
	failCount int32
	calls     int32
}

func (c *countedFlakyClient) Name() string { return "flaky" }

func (c *countedFlakyClient) Complete(ctx context.Context, prompt string, opts *corekit.AIOptions) (*corekit.AIResponse, error) {
	n := atomic.AddInt32(&c.calls, 1)
	if n <= c.failCount {
		return nil, corekit.NewStageError(corekit.KindProviderTransient, "flaky failure", nil)
	}
	return &corekit.AIResponse{Content: `{"explanations":[]}`, Model: "flaky"}, nil
}

func (c *countedFlakyClient) providerCalls() int { return int(atomic.LoadInt32(&c.calls)) }

// blockingClient never completes on its own; it only returns once ctx is
// cancelled or its deadline passes, mirroring how a real HTTP client's
// Do call unblocks on request-context cancellation.
type blockingClient struct{}

func (c *blockingClient) Name() string { return "blocking" }

func (c *blockingClient) Complete(ctx context.Context, prompt string, opts *corekit.AIOptions) (*corekit.AIResponse, error) {
	<-ctx.Done()
	return nil, corekit.NewStageError(corekit.KindCancelled, "request cancelled", ctx.Err())
}
