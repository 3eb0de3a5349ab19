package telemetry

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresServiceName(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestStartSpanWritesToConfiguredWriter(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(Config{ServiceName: "agentcore-test", Writer: &buf})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	ctx, span := p.StartSpan(context.Background(), "ai.agent.process")
	span.SetAttribute("agent.stage", "summarizer")
	span.RecordError(errors.New("boom"))
	span.End()

	require.NoError(t, p.tp.ForceFlush(ctx))
	assert.Contains(t, buf.String(), "ai.agent.process")
	assert.Contains(t, buf.String(), "boom")
}

func TestRecordMetricDoesNotPanicWithoutExporter(t *testing.T) {
	p, err := New(Config{ServiceName: "agentcore-test"})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	assert.NotPanics(t, func() {
		p.RecordMetric("agentcore.stage.duration_ms", 42, map[string]string{"stage": "summarizer"})
	})
}
