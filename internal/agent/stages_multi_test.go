package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/answer42/agentcore/internal/corekit"
)

func TestTextExtractorBuildsFullTextAndSections(t *testing.T) {
	client := &stubClient{name: "stub", responses: []string{
		`{"cleaned_text":"Introduction. This paper studies attention.","sections":[{"title":"Introduction","start_offset":0}]}`,
	}}
	rt := newTestRuntime(client, nil)
	ctx := context.Background()
	in, _ := json.Marshal(TextExtractorInput{PaperID: "p1", RawText: "raw ocr noise Introduction. This paper studies attention."})
	task := newTestTask(ctx, rt, "te1", corekit.StageTextExtractor, in)

	a := &TextExtractorAgent{Runtime: rt}
	result, err := a.Process(ctx, task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := result.Payload.(TextExtractorOutput)
	if !strings.Contains(out.FullText, "attention") {
		t.Errorf("FullText = %q", out.FullText)
	}
	if len(out.SectionIndex) != 1 || out.SectionIndex[0].Title != "Introduction" {
		t.Fatalf("unexpected sections: %+v", out.SectionIndex)
	}
	if out.TokenCount <= 0 {
		t.Errorf("TokenCount = %d, want > 0", out.TokenCount)
	}
}

func TestTextExtractorIsIdempotentOnReplay(t *testing.T) {
	client := &stubClient{name: "stub", responses: []string{
		`{"cleaned_text":"first pass","sections":[]}`,
		`{"cleaned_text":"SHOULD NOT BE CALLED","sections":[]}`,
	}}
	rt := newTestRuntime(client, nil)
	ctx := context.Background()
	in, _ := json.Marshal(TextExtractorInput{PaperID: "p1", RawText: "some raw text"})
	task := newTestTask(ctx, rt, "te2", corekit.StageTextExtractor, in)

	a := &TextExtractorAgent{Runtime: rt}
	if _, err := a.Process(ctx, task); err != nil {
		t.Fatalf("first run: %v", err)
	}
	result, err := a.Process(ctx, task)
	if err != nil {
		t.Fatalf("replay run: %v", err)
	}
	out := result.Payload.(TextExtractorOutput)
	if out.FullText != "first pass" {
		t.Fatalf("replay should reuse first result, got %q", out.FullText)
	}
}

func TestSummarizerEnforcesTokenTierInvariant(t *testing.T) {
	client := &stubClient{name: "stub", genResponse: func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "2-3 sentence"):
			return "A short brief summary of the paper.", nil
		case strings.Contains(prompt, "one-paragraph"):
			return strings.Repeat("A standard-length summary paragraph with more detail. ", 5), nil
		default:
			return strings.Repeat("A much longer, thorough, multi-paragraph summary with extensive detail. ", 15), nil
		}
	}}
	rt := newTestRuntime(client, nil)
	ctx := context.Background()
	in, _ := json.Marshal(SummarizerInput{FullText: "full paper text", Metadata: MetadataEnhancerOutput{Title: "A Paper"}})
	task := newTestTask(ctx, rt, "s1", corekit.StageSummarizer, in)

	a := &SummarizerAgent{Runtime: rt}
	result, err := a.Process(ctx, task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := result.Payload.(SummarizerOutput)
	if !(CountTokens(out.Brief) <= CountTokens(out.Standard) && CountTokens(out.Standard) <= CountTokens(out.Detailed)) {
		t.Fatalf("token tier invariant violated: brief=%d standard=%d detailed=%d",
			CountTokens(out.Brief), CountTokens(out.Standard), CountTokens(out.Detailed))
	}
}

func TestSummarizerFailsStageOnInvariantViolation(t *testing.T) {
	client := &stubClient{name: "stub", genResponse: func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "2-3 sentence"):
			return strings.Repeat("this brief is suspiciously long for a brief summary ", 50), nil
		case strings.Contains(prompt, "one-paragraph"):
			return "short standard.", nil
		default:
			return "short detailed.", nil
		}
	}}
	rt := newTestRuntime(client, nil)
	ctx := context.Background()
	in, _ := json.Marshal(SummarizerInput{FullText: "full paper text", Metadata: MetadataEnhancerOutput{Title: "A Paper"}})
	task := newTestTask(ctx, rt, "s2", corekit.StageSummarizer, in)

	a := &SummarizerAgent{Runtime: rt}
	_, err := a.Process(ctx, task)
	if corekit.KindOf(err) != corekit.KindInvalidResponse {
		t.Fatalf("kind = %v, want invalid-response", corekit.KindOf(err))
	}
}
