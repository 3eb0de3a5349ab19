// Package openai adapts OpenAI's Chat Completions API to corekit.AIClient.
//
// Embeds providers.BaseClient and uses a generous default timeout
// (reasoning-capable models can run long), rewired onto the five-way
// error taxonomy with an OpenAI-specific quota sniff for the
// "insufficient_quota" error code.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/answer42/agentcore/internal/corekit"
	"github.com/answer42/agentcore/internal/providers"
)

// DefaultBaseURL is OpenAI's default Chat Completions endpoint root.
const DefaultBaseURL = "https://api.openai.com/v1"

// Client implements corekit.AIClient for OpenAI chat models.
type Client struct {
	*providers.BaseClient
	apiKey  string
	baseURL string
}

// NewClient builds an OpenAI adapter. baseURL defaults to DefaultBaseURL
// when empty, which also lets OpenAI-compatible gateways be targeted.
func NewClient(apiKey, baseURL string, logger corekit.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base := providers.NewBaseClient(180*time.Second, logger)
	base.DefaultModel = "gpt-4o"
	return &Client{BaseClient: base, apiKey: apiKey, baseURL: baseURL}
}

// Name identifies this adapter for rate limiter/breaker bucket selection.
func (c *Client) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// quotaSniff detects OpenAI's insufficient_quota error code.
func quotaSniff(statusCode int, body []byte) bool {
	if statusCode != http.StatusTooManyRequests && statusCode != http.StatusForbidden {
		return false
	}
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return false
	}
	return env.Error.Code == "insufficient_quota"
}

// Complete sends a single-turn chat completion request.
func (c *Client) Complete(ctx context.Context, prompt string, opts *corekit.AIOptions) (*corekit.AIResponse, error) {
	if c.apiKey == "" {
		return nil, corekit.NewStageError(corekit.KindInvalidInput, "openai API key not configured", nil)
	}
	opts = c.ApplyDefaults(opts)
	c.LogRequest("openai", opts.Model, len(prompt))
	start := time.Now()

	messages := []chatMessage{}
	if opts.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: opts.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	reqBody := chatRequest{
		Model:       opts.Model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, corekit.NewStageError(corekit.KindInvalidInput, "failed to marshal openai request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, corekit.NewStageError(corekit.KindInvalidInput, "failed to build openai request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.Do(httpReq)
	if err != nil {
		return nil, err
	}
	body, err := providers.ReadAndClose(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.HandleError("openai", resp.StatusCode, body, quotaSniff)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, corekit.NewStageError(corekit.KindInvalidResponse, "failed to parse openai response", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return nil, corekit.NewStageError(corekit.KindInvalidResponse, "openai response had no choices", nil)
	}

	result := &corekit.AIResponse{
		Content: parsed.Choices[0].Message.Content,
		Model:   parsed.Model,
		Usage: corekit.TokenUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}
	c.LogResponse("openai", result.Model, result.Usage, time.Since(start))
	return result, nil
}
