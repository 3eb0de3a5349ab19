// Package local adapts an Ollama-compatible chat API to corekit.AIClient.
// It backs the Fallback Registry's "local provider" for
// requests whose primary cloud provider has exhausted its retry budget.
//
// Grounded on AntTheLimey-imagineer's internal/llm/ollama.go: same
// host/model environment-variable defaults and /api/chat request shape,
// rewired onto providers.BaseClient and the shared error taxonomy.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/answer42/agentcore/internal/corekit"
	"github.com/answer42/agentcore/internal/providers"
)

const (
	// DefaultHost is Ollama's default in-cluster address.
	DefaultHost = "http://ollama:11434"
	// DefaultModel is the local model used absent an override.
	DefaultModel = "llama3.2"
)

// Client implements corekit.AIClient against a local Ollama-compatible
// server. Local models have tighter context windows, which is why
// fallback agents additionally truncate their input (see
// internal/fallback.TruncateInput) before calling this adapter.
type Client struct {
	*providers.BaseClient
	host  string
	model string
}

// NewClient builds a local adapter. host/model default to
// OLLAMA_HOST/OLLAMA_MODEL env vars, then DefaultHost/DefaultModel.
func NewClient(host, model string, logger corekit.Logger) *Client {
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = DefaultHost
	}
	if model == "" {
		model = os.Getenv("OLLAMA_MODEL")
	}
	if model == "" {
		model = DefaultModel
	}
	base := providers.NewBaseClient(300*time.Second, logger)
	base.DefaultModel = model
	return &Client{BaseClient: base, host: host, model: model}
}

// Name identifies this adapter for rate limiter/breaker bucket selection.
func (c *Client) Name() string { return "local" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	EvalCount       int `json:"eval_count"`
	PromptEvalCount int `json:"prompt_eval_count"`
}

// Complete sends a single-turn chat request to the local server.
func (c *Client) Complete(ctx context.Context, prompt string, opts *corekit.AIOptions) (*corekit.AIResponse, error) {
	opts = c.ApplyDefaults(opts)
	model := opts.Model
	if model == "" {
		model = c.model
	}
	c.LogRequest("local", model, len(prompt))
	start := time.Now()

	messages := []chatMessage{}
	if opts.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: opts.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	reqBody := chatRequest{Model: model, Messages: messages, Stream: false}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, corekit.NewStageError(corekit.KindInvalidInput, "failed to marshal local request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, corekit.NewStageError(corekit.KindInvalidInput, "failed to build local request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(httpReq)
	if err != nil {
		return nil, err
	}
	body, err := providers.ReadAndClose(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.HandleError("local", resp.StatusCode, body, nil)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, corekit.NewStageError(corekit.KindInvalidResponse, "failed to parse local response", err)
	}
	if parsed.Message.Content == "" {
		return nil, corekit.NewStageError(corekit.KindInvalidResponse, "local response had no content", nil)
	}

	result := &corekit.AIResponse{
		Content: parsed.Message.Content,
		Model:   model,
		Usage: corekit.TokenUsage{
			PromptTokens:     parsed.PromptEvalCount,
			CompletionTokens: parsed.EvalCount,
			TotalTokens:      parsed.PromptEvalCount + parsed.EvalCount,
		},
	}
	c.LogResponse("local", result.Model, result.Usage, time.Since(start))
	return result, nil
}
