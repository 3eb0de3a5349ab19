// Package gemini adapts Google's Generative Language API to
// corekit.AIClient.
//
// Uses API-key-as-query-parameter authentication and the
// generateContent request shape, rewired onto the five-way error
// taxonomy. Gemini has no publicly documented quota-exhaustion payload
// distinct from its generic 429, so its quota sniff always reports
// false — 429 is treated as rate-limited by default when no such signal
// exists.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/answer42/agentcore/internal/corekit"
	"github.com/answer42/agentcore/internal/providers"
)

// DefaultBaseURL is Gemini's default Generative Language API root.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Client implements corekit.AIClient for Gemini models.
type Client struct {
	*providers.BaseClient
	apiKey  string
	baseURL string
}

// NewClient builds a Gemini adapter.
func NewClient(apiKey, baseURL string, logger corekit.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base := providers.NewBaseClient(60*time.Second, logger)
	base.DefaultModel = "gemini-1.5-pro"
	return &Client{BaseClient: base, apiKey: apiKey, baseURL: baseURL}
}

// Name identifies this adapter for rate limiter/breaker bucket selection.
func (c *Client) Name() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type generationConfig struct {
	Temperature     float32 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent   `json:"contents"`
	SystemInstruction *geminiContent    `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata usageMetadata     `json:"usageMetadata"`
}

func noQuotaSignal(int, []byte) bool { return false }

// Complete sends a single-turn generateContent request.
func (c *Client) Complete(ctx context.Context, prompt string, opts *corekit.AIOptions) (*corekit.AIResponse, error) {
	if c.apiKey == "" {
		return nil, corekit.NewStageError(corekit.KindInvalidInput, "gemini API key not configured", nil)
	}
	opts = c.ApplyDefaults(opts)
	c.LogRequest("gemini", opts.Model, len(prompt))
	start := time.Now()

	reqBody := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: &generationConfig{
			Temperature:     opts.Temperature,
			MaxOutputTokens: opts.MaxTokens,
		},
	}
	if opts.SystemPrompt != "" {
		reqBody.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: opts.SystemPrompt}}}
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, corekit.NewStageError(corekit.KindInvalidInput, "failed to marshal gemini request", err)
	}

	url := c.baseURL + "/models/" + opts.Model + ":generateContent?key=" + c.apiKey
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, corekit.NewStageError(corekit.KindInvalidInput, "failed to build gemini request", err)
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
		return nil, c.HandleError("gemini", resp.StatusCode, body, noQuotaSignal)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, corekit.NewStageError(corekit.KindInvalidResponse, "failed to parse gemini response", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, corekit.NewStageError(corekit.KindInvalidResponse, "gemini response had no candidates", nil)
	}

	var content string
	for _, part := range parsed.Candidates[0].Content.Parts {
		content += part.Text
	}

	result := &corekit.AIResponse{
		Content: content,
		Model:   opts.Model,
		Usage: corekit.TokenUsage{
			PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
			CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      parsed.UsageMetadata.TotalTokenCount,
		},
	}
	c.LogResponse("gemini", result.Model, result.Usage, time.Since(start))
	return result, nil
}
