package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/answer42/agentcore/internal/corekit"
)

func TestMetadataEnhancerParsesProviderJSON(t *testing.T) {
	client := &stubClient{name: "stub", responses: []string{
		`{"title":"Attention Is All You Need","authors":["A. Vaswani"],"venue":"NeurIPS","year":2017,"doi":"10.0/x","identifiers":["arXiv:1706.03762"]}`,
	}}
	rt := newTestRuntime(client, nil)
	ctx := context.Background()
	in, _ := json.Marshal(MetadataEnhancerInput{FullText: "some paper text", TitleHint: "Attention"})
	task := newTestTask(ctx, rt, "t1", corekit.StageMetadataEnhancer, in)

	a := &MetadataEnhancerAgent{Runtime: rt}
	result, err := a.Process(ctx, task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, ok := result.Payload.(MetadataEnhancerOutput)
	if !ok {
		t.Fatalf("payload type = %T, want MetadataEnhancerOutput", result.Payload)
	}
	if out.Title != "Attention Is All You Need" {
		t.Errorf("Title = %q", out.Title)
	}
}

func TestMetadataEnhancerRejectsInvalidInput(t *testing.T) {
	rt := newTestRuntime(&stubClient{name: "stub"}, nil)
	ctx := context.Background()
	task := &corekit.AgentTask{ID: "bad", AgentID: corekit.StageMetadataEnhancer, Input: []byte("not json")}

	a := &MetadataEnhancerAgent{Runtime: rt}
	_, err := a.Process(ctx, task)
	if corekit.KindOf(err) != corekit.KindInvalidInput {
		t.Fatalf("kind = %v, want invalid-input", corekit.KindOf(err))
	}
}

func TestConceptExplainerPreservesOrder(t *testing.T) {
	client := &stubClient{name: "stub", responses: []string{
		`{"explanations":[{"term":"attention","explanation":"a weighting mechanism"},{"term":"transformer","explanation":"a sequence model"}]}`,
	}}
	rt := newTestRuntime(client, nil)
	ctx := context.Background()
	in, _ := json.Marshal(ConceptExplainerInput{FullText: "text", KeyTerms: []string{"attention", "transformer"}})
	task := newTestTask(ctx, rt, "t2", corekit.StageConceptExplainer, in)

	a := &ConceptExplainerAgent{Runtime: rt}
	result, err := a.Process(ctx, task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := result.Payload.(ConceptExplainerOutput)
	if len(out.Explanations) != 2 || out.Explanations[0].Term != "attention" {
		t.Fatalf("unexpected explanations: %+v", out.Explanations)
	}
}

func TestQualityCheckerWarnsBelowFloorButSucceeds(t *testing.T) {
	client := &stubClient{name: "stub", responses: []string{
		`{"score":0.2,"issues":["missing citation for claim X"]}`,
	}}
	rt := newTestRuntime(client, nil)
	ctx := context.Background()
	in, _ := json.Marshal(QualityCheckerInput{Summary: "brief", FullText: "full"})
	task := newTestTask(ctx, rt, "t3", corekit.StageQualityChecker, in)

	a := &QualityCheckerAgent{Runtime: rt}
	result, err := a.Process(ctx, task)
	if err != nil {
		t.Fatalf("low score must not fail the stage: %v", err)
	}
	out := result.Payload.(QualityCheckerOutput)
	if out.Score != 0.2 {
		t.Errorf("Score = %v", out.Score)
	}
}

func TestCitationFormatterRequiresEveryStyle(t *testing.T) {
	client := &stubClient{name: "stub", responses: []string{
		`{"citations":[{"authors":["A"],"title":"T","year":2020,"venue":"V"}],"formatted_bibliography":{"APA":"A (2020). T. V."}}`,
	}}
	rt := newTestRuntime(client, nil)
	ctx := context.Background()
	in, _ := json.Marshal(CitationFormatterInput{FullText: "references..."})
	task := newTestTask(ctx, rt, "t4", corekit.StageCitationFormatter, in)

	a := &CitationFormatterAgent{Runtime: rt}
	_, err := a.Process(ctx, task)
	if corekit.KindOf(err) != corekit.KindInvalidResponse {
		t.Fatalf("kind = %v, want invalid-response for missing styles", corekit.KindOf(err))
	}
}

func TestDiscovererDedupesByDOI(t *testing.T) {
	client := &stubClient{name: "stub", responses: []string{
		`{"discovered_papers":[
			{"title":"Paper A","doi":"10.1/a","relationship":"citing","relevance":0.9},
			{"title":"Paper A (dup)","doi":"10.1/a","relationship":"semantic","relevance":0.5},
			{"title":"Paper B","doi":"","relationship":"cited-by","relevance":0.7}
		]}`,
	}}
	rt := newTestRuntime(client, nil)
	ctx := context.Background()
	in, _ := json.Marshal(DiscovererInput{Metadata: MetadataEnhancerOutput{Title: "Source Paper"}})
	task := newTestTask(ctx, rt, "t5", corekit.StageDiscoverer, in)

	a := &DiscovererAgent{Runtime: rt}
	result, err := a.Process(ctx, task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := result.Payload.(DiscovererOutput)
	if len(out.DiscoveredPapers) != 2 {
		t.Fatalf("expected 2 deduped papers, got %d: %+v", len(out.DiscoveredPapers), out.DiscoveredPapers)
	}
}
