package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/answer42/agentcore/internal/corekit"
)

func TestParseStagesDefaultsToEveryStage(t *testing.T) {
	stages, err := parseStages("")
	require.NoError(t, err)
	assert.Equal(t, corekit.AllStages, stages)
}

func TestParseStagesSplitsOnComma(t *testing.T) {
	stages, err := parseStages("text_extractor,summarizer")
	require.NoError(t, err)
	assert.Equal(t, []corekit.StageKind{corekit.StageTextExtractor, corekit.StageSummarizer}, stages)
}

func TestParseStagesTrimsTrailingComma(t *testing.T) {
	stages, err := parseStages("text_extractor,")
	require.NoError(t, err)
	assert.Equal(t, []corekit.StageKind{corekit.StageTextExtractor}, stages)
}

func TestParseStagesRejectsUnknownStage(t *testing.T) {
	_, err := parseStages("not_a_real_stage")
	assert.Error(t, err)
}

func TestRootCommandRegistersEverySubcommand(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"submit", "status", "watch", "cancel"} {
		assert.True(t, names[want], "expected %s to be registered", want)
	}
}
