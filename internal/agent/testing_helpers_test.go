package agent

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/answer42/agentcore/internal/breaker"
	"github.com/answer42/agentcore/internal/corekit"
	"github.com/answer42/agentcore/internal/fallback"
	"github.com/answer42/agentcore/internal/ratelimit"
	"github.com/answer42/agentcore/internal/retrypolicy"
	"github.com/answer42/agentcore/internal/taskstore"
)

// stubClient is a corekit.AIClient test double that serves a fixed queue
// of responses, or synthesizes one from genResponse when the queue is
// exhausted.
type stubClient struct {
	name      string
	responses []string
	calls     int32
	genResponse func(prompt string) (string, error)
}

func (c *stubClient) Name() string { return c.name }

func (c *stubClient) Complete(ctx context.Context, prompt string, opts *corekit.AIOptions) (*corekit.AIResponse, error) {
	n := atomic.AddInt32(&c.calls, 1)
	if int(n) <= len(c.responses) {
		return &corekit.AIResponse{Content: c.responses[n-1], Model: "stub"}, nil
	}
	if c.genResponse != nil {
		content, err := c.genResponse(prompt)
		if err != nil {
			return nil, err
		}
		return &corekit.AIResponse{Content: content, Model: "stub"}, nil
	}
	return &corekit.AIResponse{Content: "{}", Model: "stub"}, nil
}

func newTestRuntime(client corekit.AIClient, fb *fallback.Registry) *Runtime {
	limiter := ratelimit.New(ratelimit.Config{Capacity: 100, RefillPerSec: 1000})
	brk := breaker.New(breaker.Config{Name: "test"})
	retry := retrypolicy.New(retrypolicy.Config{MaxAttempts: 2, BaseDelay: time.Millisecond})
	store := taskstore.NewMemoryStore(1 << 20)
	if fb == nil {
		fb = fallback.New(false)
	}
	return NewRuntime(client, limiter, brk, retry, store, fb, corekit.NoOpLogger{})
}

func newFallbackRegistryWithAgent(stage corekit.StageKind, a fallback.Agent) *fallback.Registry {
	r := fallback.New(true)
	r.Register(stage, a)
	return r
}

func mustJSON(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// newTestTask builds a task and registers it with rt's store up front;
// Runtime.MarkRunning tolerates the resulting duplicate-id Create call
// when a stage agent processes it.
func newTestTask(ctx context.Context, rt *Runtime, id string, stage corekit.StageKind, input []byte) *corekit.AgentTask {
	task := &corekit.AgentTask{ID: id, AgentID: stage, Input: input, Status: corekit.TaskPending, CreatedAt: time.Now()}
	if err := rt.Store.Create(ctx, task); err != nil {
		panic(err)
	}
	return task
}
