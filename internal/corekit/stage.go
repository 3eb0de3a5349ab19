package corekit

import "time"

// StageKind enumerates the seven pipeline stages.
type StageKind string

const (
	StageTextExtractor     StageKind = "text_extractor"
	StageMetadataEnhancer  StageKind = "metadata_enhancer"
	StageSummarizer        StageKind = "summarizer"
	StageConceptExplainer  StageKind = "concept_explainer"
	StageQualityChecker    StageKind = "quality_checker"
	StageCitationFormatter StageKind = "citation_formatter"
	StageDiscoverer        StageKind = "discoverer"
)

// AllStages lists every known stage kind in a stable order.
var AllStages = []StageKind{
	StageTextExtractor,
	StageMetadataEnhancer,
	StageSummarizer,
	StageConceptExplainer,
	StageQualityChecker,
	StageCitationFormatter,
	StageDiscoverer,
}

// StageDependencies is the canonical stage dependency graph. It is the
// single source of truth the Orchestrator consults to build a
// per-request DAG and the single source agents consult to know what
// upstream output they may assume is available.
var StageDependencies = map[StageKind][]StageKind{
	StageTextExtractor:     {},
	StageMetadataEnhancer:  {StageTextExtractor},
	StageSummarizer:        {StageTextExtractor, StageMetadataEnhancer},
	StageConceptExplainer:  {StageSummarizer},
	StageQualityChecker:    {StageSummarizer},
	StageCitationFormatter: {StageTextExtractor},
	StageDiscoverer:        {StageMetadataEnhancer},
}

// StageDescriptor is one node in the per-request DAG.
type StageDescriptor struct {
	Kind            StageKind
	Dependencies    []StageKind
	Timeout         time.Duration
	RetryBudget     int
	FallbackAllowed bool
}

// StageResult is the transient, in-memory outcome of executing one
// stage. It is what agents hand back to the Orchestrator; only its
// JSON-able Payload is what eventually reaches PaperStore.SaveResults.
type StageResult struct {
	Kind                 StageKind
	Success              bool
	Payload              interface{}
	UsedFallback         bool
	PrimaryFailureReason ErrorKind
	Elapsed              time.Duration
	Err                  error
}
