package orchestrator

import (
	"encoding/json"
	"fmt"

	"github.com/answer42/agentcore/internal/agent"
	"github.com/answer42/agentcore/internal/corekit"
)

// buildStageInput assembles a stage's typed input out of the paper's raw
// bytes (for TextExtractor) or upstream stage payloads (everything else),
// per the dependency graph in corekit.StageDependencies.
func buildStageInput(stage corekit.StageKind, paperID string, rawText []byte, titleHint string, results map[corekit.StageKind]interface{}) ([]byte, error) {
	switch stage {
	case corekit.StageTextExtractor:
		return json.Marshal(agent.TextExtractorInput{PaperID: paperID, RawText: string(rawText)})

	case corekit.StageMetadataEnhancer:
		extracted, err := textExtractorOutput(results)
		if err != nil {
			return nil, err
		}
		return json.Marshal(agent.MetadataEnhancerInput{FullText: extracted.FullText, TitleHint: titleHint})

	case corekit.StageSummarizer:
		extracted, err := textExtractorOutput(results)
		if err != nil {
			return nil, err
		}
		meta, err := metadataEnhancerOutput(results)
		if err != nil {
			return nil, err
		}
		return json.Marshal(agent.SummarizerInput{FullText: extracted.FullText, Metadata: meta})

	case corekit.StageConceptExplainer:
		extracted, err := textExtractorOutput(results)
		if err != nil {
			return nil, err
		}
		return json.Marshal(agent.ConceptExplainerInput{FullText: extracted.FullText})

	case corekit.StageQualityChecker:
		extracted, err := textExtractorOutput(results)
		if err != nil {
			return nil, err
		}
		summary, ok := results[corekit.StageSummarizer].(agent.SummarizerOutput)
		if !ok {
			return nil, fmt.Errorf("quality_checker requires a settled summarizer result")
		}
		return json.Marshal(agent.QualityCheckerInput{Summary: summary.Standard, FullText: extracted.FullText})

	case corekit.StageCitationFormatter:
		extracted, err := textExtractorOutput(results)
		if err != nil {
			return nil, err
		}
		return json.Marshal(agent.CitationFormatterInput{FullText: extracted.FullText})

	case corekit.StageDiscoverer:
		meta, err := metadataEnhancerOutput(results)
		if err != nil {
			return nil, err
		}
		return json.Marshal(agent.DiscovererInput{Metadata: meta})

	default:
		return nil, fmt.Errorf("unknown stage kind %q", stage)
	}
}

func textExtractorOutput(results map[corekit.StageKind]interface{}) (agent.TextExtractorOutput, error) {
	out, ok := results[corekit.StageTextExtractor].(agent.TextExtractorOutput)
	if !ok {
		return agent.TextExtractorOutput{}, fmt.Errorf("stage requires a settled text_extractor result")
	}
	return out, nil
}

func metadataEnhancerOutput(results map[corekit.StageKind]interface{}) (agent.MetadataEnhancerOutput, error) {
	out, ok := results[corekit.StageMetadataEnhancer].(agent.MetadataEnhancerOutput)
	if !ok {
		return agent.MetadataEnhancerOutput{}, fmt.Errorf("stage requires a settled metadata_enhancer result")
	}
	return out, nil
}
