// This file holds the two stage agents that need more than one provider
// round-trip per task and therefore bypass Runtime.Run's single-op
// bookkeeping in favor of Runtime.CompleteText plus their own
// replay/memoization/settlement: TextExtractor and Summarizer.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/answer42/agentcore/internal/corekit"
)

// extractorChunkMaxTokens/extractorChunkOverlap bound how much raw text
// one provider call sees per chunk: TextExtractor is the one stage
// expected to run over arbitrarily large raw input.
const (
	extractorChunkMaxTokens = 3000
	extractorChunkOverlap   = 200
)

// chunkExtraction is one chunk's parsed provider response.
type chunkExtraction struct {
	CleanedText string       `json:"cleaned_text" validate:"required"`
	Sections    []SectionRef `json:"sections"`
}

// TextExtractorAgent cleans raw paper text and builds a section index,
// chunking through the tokenizer when the input exceeds one provider
// call's comfortable window.
type TextExtractorAgent struct{ Runtime *Runtime }

func (a *TextExtractorAgent) Stage() corekit.StageKind { return corekit.StageTextExtractor }

func (a *TextExtractorAgent) Process(ctx context.Context, task *corekit.AgentTask) (*corekit.StageResult, error) {
	var in TextExtractorInput
	if err := json.Unmarshal(task.Input, &in); err != nil {
		return nil, corekit.NewStageError(corekit.KindInvalidInput, "invalid TextExtractor input", err)
	}

	start := time.Now()

	if existing, err := a.Runtime.Store.Get(ctx, task.ID); err == nil && existing.Status == corekit.TaskCompleted {
		var out TextExtractorOutput
		_ = json.Unmarshal(existing.Result, &out)
		return &corekit.StageResult{Kind: corekit.StageTextExtractor, Success: true, Payload: out, Elapsed: time.Since(start)}, nil
	}

	fp := Fingerprint("extract:" + in.RawText)
	if memo, err := a.Runtime.Store.MemoGet(ctx, fp); err == nil {
		var out TextExtractorOutput
		if jsonErr := json.Unmarshal(memo.Data, &out); jsonErr == nil {
			if cerr := a.Runtime.create(ctx, task); cerr != nil {
				return nil, cerr
			}
			_ = a.Runtime.Settle(ctx, task, corekit.TaskCompleted, memo.Data, "")
			return &corekit.StageResult{Kind: corekit.StageTextExtractor, Success: true, Payload: out, Elapsed: time.Since(start)}, nil
		}
	}

	if err := a.Runtime.MarkRunning(ctx, task); err != nil {
		return nil, err
	}

	chunks := ChunkText(in.RawText, extractorChunkMaxTokens, extractorChunkOverlap)

	var fullText strings.Builder
	var sections []SectionRef
	opts := &corekit.AIOptions{SystemPrompt: "You clean raw extracted paper text and identify section headings. Reply with JSON only."}

	for i, chunk := range chunks {
		prompt := fmt.Sprintf(
			"Clean up OCR/extraction noise in the following paper text fragment (chunk %d of %d) "+
				"and identify any section headings it contains. Respond as JSON with fields "+
				"cleaned_text and sections (array of {title, start_offset}, start_offset relative "+
				"to cleaned_text).\n\n%s", i+1, len(chunks), chunk)

		resp, err := a.Runtime.CompleteText(ctx, corekit.StageTextExtractor, prompt, opts)
		if err != nil {
			stageErr := err
			_ = a.Runtime.Settle(ctx, task, corekit.TaskFailed, nil, stageErr.Error())
			return &corekit.StageResult{Kind: corekit.StageTextExtractor, Success: false, Err: stageErr, Elapsed: time.Since(start)}, stageErr
		}
		parsed, err := parseAndValidate[chunkExtraction](resp.Content)
		if err != nil {
			_ = a.Runtime.Settle(ctx, task, corekit.TaskFailed, nil, err.Error())
			return &corekit.StageResult{Kind: corekit.StageTextExtractor, Success: false, Err: err, Elapsed: time.Since(start)}, err
		}

		offset := fullText.Len()
		for _, s := range parsed.Sections {
			sections = append(sections, SectionRef{Title: s.Title, StartOffset: offset + s.StartOffset})
		}
		if fullText.Len() > 0 {
			fullText.WriteString("\n\n")
		}
		fullText.WriteString(parsed.CleanedText)
	}

	out := TextExtractorOutput{
		FullText:     fullText.String(),
		SectionIndex: sections,
		TokenCount:   CountTokens(fullText.String()),
	}

	resultJSON, err := json.Marshal(out)
	if err != nil {
		stageErr := corekit.NewStageError(corekit.KindInvalidResponse, "failed to serialize TextExtractor output", err)
		_ = a.Runtime.Settle(ctx, task, corekit.TaskFailed, nil, stageErr.Error())
		return &corekit.StageResult{Kind: corekit.StageTextExtractor, Success: false, Err: stageErr, Elapsed: time.Since(start)}, stageErr
	}
	now := time.Now()
	_ = a.Runtime.Store.MemoPut(ctx, &corekit.MemoryEntry{Key: fp, Data: resultJSON, CreatedAt: now, UpdatedAt: now})
	_ = a.Runtime.Settle(ctx, task, corekit.TaskCompleted, resultJSON, "")

	return &corekit.StageResult{Kind: corekit.StageTextExtractor, Success: true, Payload: out, Elapsed: time.Since(start)}, nil
}

// SummarizerAgent produces brief, standard, and detailed summaries,
// enforcing the brief≤standard≤detailed token-count invariant across
// three independent provider calls. Each call spends its
// own rate-limiter permit and retry/fallback budget, same as any other
// stage's single call.
type SummarizerAgent struct{ Runtime *Runtime }

func (a *SummarizerAgent) Stage() corekit.StageKind { return corekit.StageSummarizer }

type summaryTier struct {
	name   string
	prompt string
}

func (a *SummarizerAgent) Process(ctx context.Context, task *corekit.AgentTask) (*corekit.StageResult, error) {
	var in SummarizerInput
	if err := json.Unmarshal(task.Input, &in); err != nil {
		return nil, corekit.NewStageError(corekit.KindInvalidInput, "invalid Summarizer input", err)
	}

	start := time.Now()

	if existing, err := a.Runtime.Store.Get(ctx, task.ID); err == nil && existing.Status == corekit.TaskCompleted {
		var out SummarizerOutput
		_ = json.Unmarshal(existing.Result, &out)
		return &corekit.StageResult{Kind: corekit.StageSummarizer, Success: true, Payload: out, Elapsed: time.Since(start)}, nil
	}

	fp := Fingerprint("summarize:" + in.FullText)
	if memo, err := a.Runtime.Store.MemoGet(ctx, fp); err == nil {
		var out SummarizerOutput
		if jsonErr := json.Unmarshal(memo.Data, &out); jsonErr == nil {
			if cerr := a.Runtime.create(ctx, task); cerr != nil {
				return nil, cerr
			}
			_ = a.Runtime.Settle(ctx, task, corekit.TaskCompleted, memo.Data, "")
			return &corekit.StageResult{Kind: corekit.StageSummarizer, Success: true, Payload: out, Elapsed: time.Since(start)}, nil
		}
	}

	if err := a.Runtime.MarkRunning(ctx, task); err != nil {
		return nil, err
	}

	tiers := []summaryTier{
		{name: "brief", prompt: fmt.Sprintf(
			"Write a 2-3 sentence summary of the following paper titled %q. Respond with plain text, no JSON.\n\n%s",
			in.Metadata.Title, in.FullText)},
		{name: "standard", prompt: fmt.Sprintf(
			"Write a one-paragraph summary (roughly 150 words) of the following paper titled %q. "+
				"Respond with plain text, no JSON.\n\n%s", in.Metadata.Title, in.FullText)},
		{name: "detailed", prompt: fmt.Sprintf(
			"Write a thorough multi-paragraph summary covering motivation, method, and findings of "+
				"the following paper titled %q. Respond with plain text, no JSON.\n\n%s",
			in.Metadata.Title, in.FullText)},
	}
	opts := &corekit.AIOptions{SystemPrompt: "You are a research paper summarizer."}

	texts := make(map[string]string, len(tiers))
	for _, tier := range tiers {
		resp, err := a.Runtime.CompleteText(ctx, corekit.StageSummarizer, tier.prompt, opts)
		if err != nil {
			_ = a.Runtime.Settle(ctx, task, corekit.TaskFailed, nil, err.Error())
			return &corekit.StageResult{Kind: corekit.StageSummarizer, Success: false, Err: err, Elapsed: time.Since(start)}, err
		}
		texts[tier.name] = resp.Content
	}

	out := SummarizerOutput{Brief: texts["brief"], Standard: texts["standard"], Detailed: texts["detailed"]}

	briefTokens := CountTokens(out.Brief)
	standardTokens := CountTokens(out.Standard)
	detailedTokens := CountTokens(out.Detailed)
	if !(briefTokens <= standardTokens && standardTokens <= detailedTokens) {
		stageErr := corekit.NewStageError(corekit.KindInvalidResponse,
			fmt.Sprintf("summary tiers violate brief<=standard<=detailed token invariant (%d, %d, %d)",
				briefTokens, standardTokens, detailedTokens), nil)
		_ = a.Runtime.Settle(ctx, task, corekit.TaskFailed, nil, stageErr.Error())
		return &corekit.StageResult{Kind: corekit.StageSummarizer, Success: false, Err: stageErr, Elapsed: time.Since(start)}, stageErr
	}

	resultJSON, err := json.Marshal(out)
	if err != nil {
		stageErr := corekit.NewStageError(corekit.KindInvalidResponse, "failed to serialize Summarizer output", err)
		_ = a.Runtime.Settle(ctx, task, corekit.TaskFailed, nil, stageErr.Error())
		return &corekit.StageResult{Kind: corekit.StageSummarizer, Success: false, Err: stageErr, Elapsed: time.Since(start)}, stageErr
	}
	now := time.Now()
	_ = a.Runtime.Store.MemoPut(ctx, &corekit.MemoryEntry{Key: fp, Data: resultJSON, CreatedAt: now, UpdatedAt: now})
	_ = a.Runtime.Settle(ctx, task, corekit.TaskCompleted, resultJSON, "")

	return &corekit.StageResult{Kind: corekit.StageSummarizer, Success: true, Payload: out, Elapsed: time.Since(start)}, nil
}
