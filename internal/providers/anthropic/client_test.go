package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/answer42/agentcore/internal/corekit"
)

func TestCompleteParsesSuccessResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Fatalf("expected api key header to be set")
		}
		_ = json.NewEncoder(w).Encode(response{
			Model:   "claude-3-5-sonnet-20241022",
			Content: []contentBlock{{Type: "text", Text: "hello"}},
			Usage:   usage{InputTokens: 10, OutputTokens: 5},
		})
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL, nil)
	resp, err := c.Complete(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hello" || resp.Usage.TotalTokens != 15 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCompleteClassifiesRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"too many requests"}}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL, nil)
	_, err := c.Complete(context.Background(), "hi", nil)
	if corekit.KindOf(err) != corekit.KindProviderRateLimit {
		t.Fatalf("expected rate-limited, got %v", err)
	}
}

func TestCompleteClassifiesQuotaExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"exceeded your billing-period quota"}}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL, nil)
	_, err := c.Complete(context.Background(), "hi", nil)
	if corekit.KindOf(err) != corekit.KindProviderQuota {
		t.Fatalf("expected quota-exhausted, got %v", err)
	}
}

func TestCompleteRejectsMissingAPIKey(t *testing.T) {
	c := NewClient("", "http://unused", nil)
	_, err := c.Complete(context.Background(), "hi", nil)
	if corekit.KindOf(err) != corekit.KindInvalidInput {
		t.Fatalf("expected invalid-input for missing key, got %v", err)
	}
}
