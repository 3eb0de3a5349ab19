// Package anthropic adapts Anthropic's Messages API to corekit.AIClient.
//
// Streaming is left out, since this core's complete contract is
// synchronous; errors are classified through providers.BaseClient's
// five-way error classification.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/answer42/agentcore/internal/corekit"
	"github.com/answer42/agentcore/internal/providers"
)

const (
	// DefaultBaseURL is the default Anthropic API endpoint.
	DefaultBaseURL = "https://api.anthropic.com/v1"
	// APIVersion is the required Anthropic API version header.
	APIVersion = "2023-06-01"
)

// Client implements corekit.AIClient for Anthropic's Claude models.
type Client struct {
	*providers.BaseClient
	apiKey  string
	baseURL string
}

// NewClient builds an Anthropic adapter. baseURL defaults to
// DefaultBaseURL when empty.
func NewClient(apiKey, baseURL string, logger corekit.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base := providers.NewBaseClient(30*time.Second, logger)
	base.DefaultModel = "claude-3-5-sonnet-20241022"
	base.DefaultMaxTokens = 1000
	return &Client{BaseClient: base, apiKey: apiKey, baseURL: baseURL}
}

// Name identifies this adapter for rate limiter/breaker bucket selection.
func (c *Client) Name() string { return "anthropic" }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float32   `json:"temperature,omitempty"`
	System      string    `json:"system,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type response struct {
	Model   string         `json:"model"`
	Content []contentBlock `json:"content"`
	Usage   usage          `json:"usage"`
}

type errorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// quotaSniff detects Anthropic's billing-period-exhaustion signal layered
// under the generic 429 rate_limit_error.
func quotaSniff(statusCode int, body []byte) bool {
	if statusCode != http.StatusTooManyRequests {
		return false
	}
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return false
	}
	return env.Error.Type == "rate_limit_error" && strings.Contains(strings.ToLower(env.Error.Message), "billing")
}

// Complete sends a single-turn completion request to the Messages API.
func (c *Client) Complete(ctx context.Context, prompt string, opts *corekit.AIOptions) (*corekit.AIResponse, error) {
	if c.apiKey == "" {
		return nil, corekit.NewStageError(corekit.KindInvalidInput, "anthropic API key not configured", nil)
	}
	opts = c.ApplyDefaults(opts)
	c.LogRequest("anthropic", opts.Model, len(prompt))
	start := time.Now()

	reqBody := request{
		Model:       opts.Model,
		Messages:    []message{{Role: "user", Content: prompt}},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		System:      opts.SystemPrompt,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, corekit.NewStageError(corekit.KindInvalidInput, "failed to marshal anthropic request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, corekit.NewStageError(corekit.KindInvalidInput, "failed to build anthropic request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", APIVersion)

	resp, err := c.Do(httpReq)
	if err != nil {
		return nil, err
	}
	body, err := providers.ReadAndClose(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.HandleError("anthropic", resp.StatusCode, body, quotaSniff)
	}

	var parsed response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, corekit.NewStageError(corekit.KindInvalidResponse, "failed to parse anthropic response", err)
	}

	var content strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	if content.Len() == 0 {
		return nil, corekit.NewStageError(corekit.KindInvalidResponse, "anthropic response had no text content", nil)
	}

	result := &corekit.AIResponse{
		Content: content.String(),
		Model:   parsed.Model,
		Usage: corekit.TokenUsage{
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
			TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
	}
	c.LogResponse("anthropic", result.Model, result.Usage, time.Since(start))
	return result, nil
}
