// This file holds the five stage agents whose process() makes exactly
// one provider round-trip and can ride Runtime.Run's common seven-step
// behavior unchanged: MetadataEnhancer, ConceptExplainer, QualityChecker,
// CitationFormatter, Discoverer.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/answer42/agentcore/internal/corekit"
)

// MetadataEnhancerAgent extracts title/authors/venue/year/identifiers
// from extracted full text.
type MetadataEnhancerAgent struct{ Runtime *Runtime }

func (a *MetadataEnhancerAgent) Stage() corekit.StageKind { return corekit.StageMetadataEnhancer }

func (a *MetadataEnhancerAgent) Process(ctx context.Context, task *corekit.AgentTask) (*corekit.StageResult, error) {
	var in MetadataEnhancerInput
	if err := json.Unmarshal(task.Input, &in); err != nil {
		return nil, corekit.NewStageError(corekit.KindInvalidInput, "invalid MetadataEnhancer input", err)
	}

	prompt := fmt.Sprintf(
		"Extract bibliographic metadata from the following paper text. "+
			"Respond as JSON with fields title, authors, venue, year, doi, identifiers.\n"+
			"Title hint: %s\n\n%s", in.TitleHint, in.FullText)

	return a.Runtime.Run(ctx, task, StageWork{
		Stage:            corekit.StageMetadataEnhancer,
		FingerprintInput: "metadata:" + in.FullText,
		Prompt:           prompt,
		Options:          &corekit.AIOptions{SystemPrompt: "You are a bibliographic metadata extractor. Reply with JSON only."},
		ParseAndValidate: func(raw string) (interface{}, error) {
			out, err := parseAndValidate[MetadataEnhancerOutput](raw)
			if err != nil {
				return nil, err
			}
			return *out, nil
		},
	})
}

// ConceptExplainerAgent produces term→explanation pairs for key concepts
// in the paper.
type ConceptExplainerAgent struct{ Runtime *Runtime }

func (a *ConceptExplainerAgent) Stage() corekit.StageKind { return corekit.StageConceptExplainer }

func (a *ConceptExplainerAgent) Process(ctx context.Context, task *corekit.AgentTask) (*corekit.StageResult, error) {
	var in ConceptExplainerInput
	if err := json.Unmarshal(task.Input, &in); err != nil {
		return nil, corekit.NewStageError(corekit.KindInvalidInput, "invalid ConceptExplainer input", err)
	}

	prompt := fmt.Sprintf(
		"Identify the key technical concepts in the following paper and explain each "+
			"in 1-2 sentences for a non-specialist reader. Respond as JSON with field "+
			"explanations, an array of {term, explanation} in the order the terms first "+
			"appear in the text.\nKey terms hint: %s\n\n%s",
		strings.Join(in.KeyTerms, ", "), in.FullText)

	return a.Runtime.Run(ctx, task, StageWork{
		Stage:            corekit.StageConceptExplainer,
		FingerprintInput: "concepts:" + in.FullText,
		Prompt:           prompt,
		Options:          &corekit.AIOptions{SystemPrompt: "You are a technical concept explainer. Reply with JSON only."},
		ParseAndValidate: func(raw string) (interface{}, error) {
			out, err := parseAndValidate[ConceptExplainerOutput](raw)
			if err != nil {
				return nil, err
			}
			return *out, nil
		},
	})
}

// QualityCheckerAgent scores the summary's faithfulness to the source
// text. A score below DefaultQualityFloor is a soft
// warning logged by the agent; it never fails the stage.
type QualityCheckerAgent struct {
	Runtime      *Runtime
	QualityFloor float64
}

func (a *QualityCheckerAgent) Stage() corekit.StageKind { return corekit.StageQualityChecker }

func (a *QualityCheckerAgent) Process(ctx context.Context, task *corekit.AgentTask) (*corekit.StageResult, error) {
	var in QualityCheckerInput
	if err := json.Unmarshal(task.Input, &in); err != nil {
		return nil, corekit.NewStageError(corekit.KindInvalidInput, "invalid QualityChecker input", err)
	}
	floor := a.QualityFloor
	if floor <= 0 {
		floor = DefaultQualityFloor
	}

	prompt := fmt.Sprintf(
		"Score how faithfully the summary represents the source text, from 0.0 to 1.0, "+
			"and list any factual issues. Respond as JSON with fields score and issues.\n\n"+
			"Summary:\n%s\n\nSource:\n%s", in.Summary, in.FullText)

	result, err := a.Runtime.Run(ctx, task, StageWork{
		Stage:            corekit.StageQualityChecker,
		FingerprintInput: "quality:" + in.Summary + "|" + in.FullText,
		Prompt:           prompt,
		Options:          &corekit.AIOptions{SystemPrompt: "You are a summary quality auditor. Reply with JSON only."},
		ParseAndValidate: func(raw string) (interface{}, error) {
			out, err := parseAndValidate[QualityCheckerOutput](raw)
			if err != nil {
				return nil, err
			}
			return *out, nil
		},
	})
	if err == nil && result.Success {
		if out, ok := result.Payload.(QualityCheckerOutput); ok && out.Score < floor {
			a.Runtime.Logger.Warn("quality score below floor", map[string]interface{}{
				"task_id": task.ID, "score": out.Score, "floor": floor,
			})
		}
	}
	return result, err
}

// CitationFormatterAgent extracts structured citations and renders them
// in every canonical style.
type CitationFormatterAgent struct{ Runtime *Runtime }

func (a *CitationFormatterAgent) Stage() corekit.StageKind { return corekit.StageCitationFormatter }

func (a *CitationFormatterAgent) Process(ctx context.Context, task *corekit.AgentTask) (*corekit.StageResult, error) {
	var in CitationFormatterInput
	if err := json.Unmarshal(task.Input, &in); err != nil {
		return nil, corekit.NewStageError(corekit.KindInvalidInput, "invalid CitationFormatter input", err)
	}

	prompt := fmt.Sprintf(
		"Extract every citation from the following paper's reference list and render "+
			"the full bibliography in APA, MLA, Chicago, and IEEE styles. Respond as JSON "+
			"with fields citations (array of {authors, title, year, venue}) and "+
			"formatted_bibliography (object keyed by style name).\n\n%s", in.FullText)

	return a.Runtime.Run(ctx, task, StageWork{
		Stage:            corekit.StageCitationFormatter,
		FingerprintInput: "citations:" + in.FullText,
		Prompt:           prompt,
		Options:          &corekit.AIOptions{SystemPrompt: "You are a citation formatter. Reply with JSON only."},
		ParseAndValidate: func(raw string) (interface{}, error) {
			out, err := parseAndValidate[CitationFormatterOutput](raw)
			if err != nil {
				return nil, err
			}
			for _, style := range AllCitationStyles {
				if _, ok := out.FormattedBibliography[style]; !ok {
					return nil, corekit.NewStageError(corekit.KindInvalidResponse,
						fmt.Sprintf("missing required citation style %s", style), nil)
				}
			}
			return *out, nil
		},
	})
}

// DiscovererAgent finds related papers across citation, semantic, and
// network relationships. It has no fallback: an external
// network catalog is not something a local model can substitute for.
type DiscovererAgent struct{ Runtime *Runtime }

func (a *DiscovererAgent) Stage() corekit.StageKind { return corekit.StageDiscoverer }

func (a *DiscovererAgent) Process(ctx context.Context, task *corekit.AgentTask) (*corekit.StageResult, error) {
	var in DiscovererInput
	if err := json.Unmarshal(task.Input, &in); err != nil {
		return nil, corekit.NewStageError(corekit.KindInvalidInput, "invalid Discoverer input", err)
	}

	prompt := fmt.Sprintf(
		"Given the metadata below, find related papers across every relationship kind: "+
			"citing, cited-by, semantic, author-network, venue-network, topic-network. "+
			"Respond as JSON with field discovered_papers, an array of "+
			"{title, doi, relationship, relevance}.\n\nTitle: %s\nAuthors: %s\nVenue: %s\nYear: %d\nDOI: %s",
		in.Metadata.Title, strings.Join(in.Metadata.Authors, ", "), in.Metadata.Venue, in.Metadata.Year, in.Metadata.DOI)

	return a.Runtime.Run(ctx, task, StageWork{
		Stage:            corekit.StageDiscoverer,
		FingerprintInput: "discover:" + in.Metadata.Title + "|" + in.Metadata.DOI,
		Prompt:           prompt,
		Options:          &corekit.AIOptions{SystemPrompt: "You are a research paper discovery agent. Reply with JSON only."},
		ParseAndValidate: func(raw string) (interface{}, error) {
			out, err := parseAndValidate[DiscovererOutput](raw)
			if err != nil {
				return nil, err
			}
			out.DiscoveredPapers = dedupeDiscovered(out.DiscoveredPapers)
			return *out, nil
		},
	})
}

// dedupeDiscovered removes duplicate discovered papers: by DOI when
// present, else by a normalized-title fingerprint.
func dedupeDiscovered(papers []DiscoveredPaper) []DiscoveredPaper {
	return lo.UniqBy(papers, func(p DiscoveredPaper) string {
		if p.DOI != "" {
			return "doi:" + strings.ToLower(strings.TrimSpace(p.DOI))
		}
		return "title:" + strings.ToLower(strings.Join(strings.Fields(p.Title), " "))
	})
}
