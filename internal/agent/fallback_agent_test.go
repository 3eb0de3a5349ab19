package agent

import (
	"context"
	"testing"

	"github.com/answer42/agentcore/internal/corekit"
)

func TestLocalFallbackAgentStampsProcessingNote(t *testing.T) {
	local := &stubClient{name: "local", responses: []string{
		`{"title":"Fallback Title","authors":[],"venue":"","year":0,"identifiers":[]}`,
	}}
	fb := NewLocalFallbackAgent(local, corekit.NoOpLogger{}, 0)

	result, err := fb.Run(corekit.StageMetadataEnhancer, "extract metadata from: some very long text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload, ok := result.Payload.(MetadataEnhancerOutput)
	if !ok {
		t.Fatalf("payload type = %T", result.Payload)
	}
	if payload.Title != "Fallback Title" {
		t.Errorf("title = %v", payload.Title)
	}
	if payload.ProcessingNote == "" {
		t.Error("expected ProcessingNote to be stamped")
	}
}

func TestLocalFallbackAgentRejectsNonStringInput(t *testing.T) {
	fb := NewLocalFallbackAgent(&stubClient{name: "local"}, corekit.NoOpLogger{}, 0)
	_, err := fb.Run(corekit.StageMetadataEnhancer, 42)
	if corekit.KindOf(err) != corekit.KindInvalidInput {
		t.Fatalf("kind = %v, want invalid-input", corekit.KindOf(err))
	}
}

func TestLocalFallbackAgentReturnsAIResponseForSummarizer(t *testing.T) {
	local := &stubClient{name: "local", responses: []string{"a degraded-mode summary"}}
	fb := NewLocalFallbackAgent(local, corekit.NoOpLogger{}, 0)

	result, err := fb.Run(corekit.StageSummarizer, "write a brief summary")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, ok := result.Payload.(*corekit.AIResponse)
	if !ok {
		t.Fatalf("payload type = %T, want *corekit.AIResponse", result.Payload)
	}
	if resp.Content != "a degraded-mode summary" {
		t.Errorf("Content = %q", resp.Content)
	}
}

func TestRuntimeUsesFallbackWhenPrimaryExhausted(t *testing.T) {
	primary := &stubClient{name: "primary", genResponse: func(string) (string, error) {
		return "", corekit.NewStageError(corekit.KindProviderTransient, "primary down", nil)
	}}
	local := &stubClient{name: "local", responses: []string{
		`{"title":"From Fallback","authors":[],"venue":"","year":0,"identifiers":[]}`,
	}}
	fbAgent := NewLocalFallbackAgent(local, corekit.NoOpLogger{}, 0)

	fbRegistry := newFallbackRegistryWithAgent(corekit.StageMetadataEnhancer, fbAgent)
	rt := newTestRuntime(primary, fbRegistry)
	ctx := context.Background()

	task := newTestTask(ctx, rt, "fb1", corekit.StageMetadataEnhancer, mustJSON(MetadataEnhancerInput{FullText: "text"}))
	a := &MetadataEnhancerAgent{Runtime: rt}
	result, err := a.Process(ctx, task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload, ok := result.Payload.(MetadataEnhancerOutput)
	if !ok {
		t.Fatalf("payload type = %T", result.Payload)
	}
	if payload.Title != "From Fallback" {
		t.Errorf("title = %v, want fallback's value", payload.Title)
	}
}
