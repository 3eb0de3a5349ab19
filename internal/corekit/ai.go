package corekit

import "context"

// AIOptions configures a single completion request to a provider adapter.
type AIOptions struct {
	Model        string
	Temperature  float32
	MaxTokens    int
	SystemPrompt string
	// Timeout bounds this single call; it is the innermost of three
	// nested timeout budgets (per-provider-call, per-stage, per-pipeline).
	Timeout int64 // milliseconds; 0 means "use the adapter default"
}

// AIResponse is what a provider adapter hands back on success.
type AIResponse struct {
	Content string
	Model   string
	Usage   TokenUsage
}

// TokenUsage reports how many tokens a single call consumed.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// AIClient is the uniform contract every Provider Adapter implements.
// Errors returned here are expected to already be classified via the
// ErrorKind taxonomy (see errors.go) so callers can branch on errors.As
// without inspecting provider-specific status codes.
type AIClient interface {
	Complete(ctx context.Context, prompt string, opts *AIOptions) (*AIResponse, error)
	// Name identifies the provider for logging, metrics, and rate
	// limiter/circuit breaker bucket selection.
	Name() string
}
