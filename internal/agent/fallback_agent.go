// LocalFallbackAgent implements fallback.Agent, routing a stage's prompt
// to the local (Ollama) provider instead of the primary one once the
// retry budget is exhausted. It lives in this package
// rather than internal/fallback because it needs the stage output types
// and parseAndValidate defined here; internal/fallback only defines the
// Agent interface the retry policy calls through, so there is no import
// cycle.
package agent

import (
	"context"

	"github.com/answer42/agentcore/internal/corekit"
	"github.com/answer42/agentcore/internal/fallback"
)

// LocalFallbackAgent is registered once per eligible stage, all sharing
// the same underlying local provider client.
type LocalFallbackAgent struct {
	Provider        corekit.AIClient
	Logger          corekit.Logger
	InputTruncation int
}

// NewLocalFallbackAgent builds a LocalFallbackAgent. truncation <= 0 uses
// fallback.DefaultInputTruncation.
func NewLocalFallbackAgent(provider corekit.AIClient, logger corekit.Logger, truncation int) *LocalFallbackAgent {
	if logger == nil {
		logger = corekit.NoOpLogger{}
	}
	if truncation <= 0 {
		truncation = fallback.DefaultInputTruncation
	}
	return &LocalFallbackAgent{Provider: provider, Logger: logger, InputTruncation: truncation}
}

// Run satisfies fallback.Agent. input is the same prompt string the
// primary provider would have received; it is truncated before being
// sent to the local model, which typically carries a far smaller
// context window.
func (a *LocalFallbackAgent) Run(stage corekit.StageKind, input interface{}) (*corekit.StageResult, error) {
	prompt, ok := input.(string)
	if !ok {
		return nil, corekit.NewStageError(corekit.KindInvalidInput, "fallback agent requires a string prompt", nil)
	}
	prompt = fallback.TruncateInput(prompt, a.InputTruncation)

	ctx := context.Background()
	resp, err := a.Provider.Complete(ctx, prompt, &corekit.AIOptions{
		SystemPrompt: "You are a local degraded-mode assistant standing in for a remote model. Follow the response format requested in the prompt as closely as possible.",
	})
	if err != nil {
		return nil, err
	}

	a.Logger.Warn("serving stage from local fallback provider", map[string]interface{}{
		"stage": string(stage),
	})

	// Summarizer's per-tier calls go through Runtime.CompleteText, which
	// expects an *AIResponse payload it can use directly; every other
	// eligible stage goes through Runtime.Run and expects a typed,
	// schema-validated payload it can persist as the task's result.
	if stage == corekit.StageSummarizer {
		return &corekit.StageResult{
			Kind:    stage,
			Success: true,
			Payload: &corekit.AIResponse{Content: resp.Content, Model: resp.Model},
		}, nil
	}

	payload, err := parseFallbackPayload(stage, resp.Content)
	if err != nil {
		return nil, err
	}
	return &corekit.StageResult{Kind: stage, Success: true, Payload: payload}, nil
}

// parseFallbackPayload validates resp against the same schema the
// primary provider's response would have to satisfy, then stamps the
// result's ProcessingNote field so downstream consumers — and anything
// reading the typed struct directly, as the orchestrator does when
// wiring one stage's output into the next stage's input — can tell the
// stage ran in degraded mode without a type assertion surprise.
func parseFallbackPayload(stage corekit.StageKind, raw string) (interface{}, error) {
	switch stage {
	case corekit.StageMetadataEnhancer:
		out, err := parseAndValidate[MetadataEnhancerOutput](raw)
		if err != nil {
			return nil, err
		}
		out.ProcessingNote = fallback.ProcessingNote
		return *out, nil
	case corekit.StageConceptExplainer:
		out, err := parseAndValidate[ConceptExplainerOutput](raw)
		if err != nil {
			return nil, err
		}
		out.ProcessingNote = fallback.ProcessingNote
		return *out, nil
	case corekit.StageQualityChecker:
		out, err := parseAndValidate[QualityCheckerOutput](raw)
		if err != nil {
			return nil, err
		}
		out.ProcessingNote = fallback.ProcessingNote
		return *out, nil
	case corekit.StageCitationFormatter:
		out, err := parseAndValidate[CitationFormatterOutput](raw)
		if err != nil {
			return nil, err
		}
		out.ProcessingNote = fallback.ProcessingNote
		return *out, nil
	default:
		return nil, corekit.NewStageError(corekit.KindInvalidInput, "stage has no registered fallback parser", nil)
	}
}
