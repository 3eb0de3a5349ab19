// Package providers supplies the shared HTTP plumbing every external
// adapter (anthropic, openai, gemini, local) embeds, and a five-way
// error classification shared across all of them.
//
// The HTTP client with timeout, default-option application, and
// structured request/response logging stay close to a conventional
// provider-client shape; HandleError goes beyond a simple three-way
// classification (unauthorized/rate-limited/generic) into five
// ErrorKinds, and quota detection is layered on top of the HTTP status
// via a pluggable per-provider payload sniff.
package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/answer42/agentcore/internal/corekit"
)

// BaseClient holds what every provider adapter needs to issue a request
// and apply shared defaults.
type BaseClient struct {
	HTTPClient *http.Client
	Logger     corekit.Logger

	DefaultModel       string
	DefaultTemperature float32
	DefaultMaxTokens   int
}

// NewBaseClient builds a BaseClient with conventional defaults:
// temperature 0.7, max tokens 1000.
func NewBaseClient(timeout time.Duration, logger corekit.Logger) *BaseClient {
	if logger == nil {
		logger = corekit.NoOpLogger{}
	}
	return &BaseClient{
		HTTPClient:         &http.Client{Timeout: timeout},
		Logger:             logger,
		DefaultTemperature: 0.7,
		DefaultMaxTokens:   1000,
	}
}

// ApplyDefaults fills unset AIOptions fields from the client's defaults.
func (b *BaseClient) ApplyDefaults(opts *corekit.AIOptions) *corekit.AIOptions {
	if opts == nil {
		opts = &corekit.AIOptions{}
	}
	if opts.Model == "" {
		opts.Model = b.DefaultModel
	}
	if opts.Temperature == 0 {
		opts.Temperature = b.DefaultTemperature
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = b.DefaultMaxTokens
	}
	return opts
}

// QuotaSniffer inspects a non-2xx response body for a provider-specific
// quota-exhaustion signal (e.g. Anthropic's "rate_limit_error" with a
// billing-period hint, OpenAI's "insufficient_quota" code). Adapters that
// have no such signal pass a sniffer that always returns false.
type QuotaSniffer func(statusCode int, body []byte) bool

// HandleError classifies an HTTP response into the five-way
// error taxonomy: invalid-request, rate-limited, quota-exhausted,
// transient, or provider-unavailable.
func (b *BaseClient) HandleError(provider string, statusCode int, body []byte, quota QuotaSniffer) error {
	if quota != nil && quota(statusCode, body) {
		return corekit.NewStageError(corekit.KindProviderQuota,
			fmt.Sprintf("%s: quota exhausted for this billing period", provider), nil)
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return corekit.NewStageError(corekit.KindInvalidInput,
			fmt.Sprintf("%s: invalid or missing API key", provider), nil)
	case statusCode == http.StatusTooManyRequests:
		return corekit.NewStageError(corekit.KindProviderRateLimit,
			fmt.Sprintf("%s: rate limited", provider), nil)
	case statusCode == http.StatusBadRequest:
		return corekit.NewStageError(corekit.KindInvalidInput,
			fmt.Sprintf("%s: invalid request - %s", provider, string(body)), nil)
	case statusCode >= 500:
		return corekit.NewStageError(corekit.KindProviderTransient,
			fmt.Sprintf("%s: service temporarily unavailable (status %d)", provider, statusCode), nil)
	default:
		return corekit.NewStageError(corekit.KindProviderUnavail,
			fmt.Sprintf("%s: unexpected status %d - %s", provider, statusCode, string(body)), nil)
	}
}

// ClassifyTransportError turns a network-level failure (dial/timeout/
// context) into a StageError, per §4.8's "network, timeout — retryable".
func ClassifyTransportError(err error) error {
	if err == nil {
		return nil
	}
	if err == context.DeadlineExceeded {
		return corekit.NewStageError(corekit.KindDeadlineExceeded, "provider request deadline exceeded", err)
	}
	if err == context.Canceled {
		return corekit.NewStageError(corekit.KindCancelled, "provider request cancelled", err)
	}
	return corekit.NewStageError(corekit.KindProviderTransient, "provider request transport failure", err)
}

// Do executes req and returns the response, or a classified StageError
// if the transport itself failed (distinct from a non-2xx status, which
// callers classify via HandleError once they've read the body).
func (b *BaseClient) Do(req *http.Request) (*http.Response, error) {
	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		return nil, ClassifyTransportError(err)
	}
	return resp, nil
}

// ReadAndClose drains and closes resp.Body, wrapping read failures as
// provider-unavailable since the body is needed to classify the error.
func ReadAndClose(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, corekit.NewStageError(corekit.KindProviderUnavail, "failed to read provider response body", err)
	}
	return body, nil
}

// LogRequest logs an outgoing request at debug level.
func (b *BaseClient) LogRequest(provider, model string, promptLen int) {
	b.Logger.Debug("ai request", map[string]interface{}{
		"provider": provider, "model": model, "prompt_length": promptLen,
	})
}

// LogResponse logs a completed response at debug level.
func (b *BaseClient) LogResponse(provider, model string, usage corekit.TokenUsage, elapsed time.Duration) {
	b.Logger.Debug("ai response", map[string]interface{}{
		"provider": provider, "model": model,
		"prompt_tokens": usage.PromptTokens, "completion_tokens": usage.CompletionTokens,
		"total_tokens": usage.TotalTokens, "elapsed": elapsed.String(),
	})
}
