package agent

import (
	"github.com/go-playground/validator/v10"
)

// validate is a single shared validator instance, as recommended by
// go-playground/validator/v10 (construction is expensive; the validator
// itself is safe for concurrent use once built).
var validate = validator.New()

// SectionRef locates one section inside extracted full text.
type SectionRef struct {
	Title       string `json:"title"`
	StartOffset int    `json:"start_offset"`
}

// TextExtractorInput is TextExtractor's typed input.
type TextExtractorInput struct {
	PaperID string `json:"paper_id" validate:"required"`
	RawText string `json:"raw_text" validate:"required"`
}

// TextExtractorOutput is TextExtractor's typed output.
type TextExtractorOutput struct {
	FullText     string       `json:"full_text" validate:"required"`
	SectionIndex []SectionRef `json:"section_index"`
	TokenCount   int          `json:"token_count" validate:"min=0"`
}

// MetadataEnhancerInput is MetadataEnhancer's typed input.
type MetadataEnhancerInput struct {
	FullText  string `json:"full_text" validate:"required"`
	TitleHint string `json:"title_hint"`
}

// MetadataEnhancerOutput is MetadataEnhancer's typed output.
// ProcessingNote is set only when a LocalFallbackAgent produced this
// result; it is empty on the primary-provider path.
type MetadataEnhancerOutput struct {
	Title          string   `json:"title" validate:"required"`
	Authors        []string `json:"authors"`
	Venue          string   `json:"venue"`
	Year           int      `json:"year"`
	DOI            string   `json:"doi,omitempty"`
	Identifiers    []string `json:"identifiers"`
	ProcessingNote string   `json:"processing_note,omitempty"`
}

// SummarizerInput is Summarizer's typed input.
type SummarizerInput struct {
	FullText string                 `json:"full_text" validate:"required"`
	Metadata MetadataEnhancerOutput `json:"metadata"`
}

// SummarizerOutput is Summarizer's typed output; invariant
// len(Brief) ≤ len(Standard) ≤ len(Detailed) in token count is checked
// separately since validator/v10 has no built-in cross-field token-count
// comparator.
type SummarizerOutput struct {
	Brief    string `json:"brief" validate:"required"`
	Standard string `json:"standard" validate:"required"`
	Detailed string `json:"detailed" validate:"required"`
}

// ConceptExplainerInput is ConceptExplainer's typed input.
type ConceptExplainerInput struct {
	FullText string   `json:"full_text" validate:"required"`
	KeyTerms []string `json:"key_terms,omitempty"`
}

// ConceptExplainerOutput is ConceptExplainer's typed output. Explanations
// is a slice rather than a map to guarantee deterministic iteration order
// on identical input.
type ConceptExplainerOutput struct {
	Explanations   []TermExplanation `json:"explanations"`
	ProcessingNote string            `json:"processing_note,omitempty"`
}

// TermExplanation is one entry of ConceptExplainer's output.
type TermExplanation struct {
	Term        string `json:"term" validate:"required"`
	Explanation string `json:"explanation" validate:"required"`
}

// QualityCheckerInput is QualityChecker's typed input.
type QualityCheckerInput struct {
	Summary  string `json:"summary" validate:"required"`
	FullText string `json:"full_text" validate:"required"`
}

// QualityCheckerOutput is QualityChecker's typed output.
type QualityCheckerOutput struct {
	Score          float64  `json:"score" validate:"min=0,max=1"`
	Issues         []string `json:"issues"`
	ProcessingNote string   `json:"processing_note,omitempty"`
}

// DefaultQualityFloor is the default soft-warning threshold.
const DefaultQualityFloor = 0.5

// CitationStyle enumerates the canonical citation styles supported.
type CitationStyle string

const (
	CitationAPA     CitationStyle = "APA"
	CitationMLA     CitationStyle = "MLA"
	CitationChicago CitationStyle = "Chicago"
	CitationIEEE    CitationStyle = "IEEE"
)

// AllCitationStyles lists every style CitationFormatter must produce.
var AllCitationStyles = []CitationStyle{CitationAPA, CitationMLA, CitationChicago, CitationIEEE}

// CitationFormatterInput is CitationFormatter's typed input.
type CitationFormatterInput struct {
	FullText string `json:"full_text" validate:"required"`
}

// Citation is one structured reference extracted from the paper.
type Citation struct {
	Authors []string `json:"authors"`
	Title   string   `json:"title" validate:"required"`
	Year    int      `json:"year"`
	Venue   string   `json:"venue"`
}

// CitationFormatterOutput is CitationFormatter's typed output.
type CitationFormatterOutput struct {
	Citations             []Citation               `json:"citations"`
	FormattedBibliography map[CitationStyle]string `json:"formatted_bibliography"`
	ProcessingNote        string                   `json:"processing_note,omitempty"`
}

// RelationshipKind enumerates how a discovered paper relates to the
// source paper.
type RelationshipKind string

const (
	RelationCiting       RelationshipKind = "citing"
	RelationCitedBy      RelationshipKind = "cited-by"
	RelationSemantic     RelationshipKind = "semantic"
	RelationAuthorNet    RelationshipKind = "author-network"
	RelationVenueNet     RelationshipKind = "venue-network"
	RelationTopicNet     RelationshipKind = "topic-network"
)

// DiscovererInput is Discoverer's typed input.
type DiscovererInput struct {
	Metadata MetadataEnhancerOutput `json:"metadata"`
}

// DiscoveredPaper is one entry of Discoverer's output.
type DiscoveredPaper struct {
	Title        string           `json:"title" validate:"required"`
	DOI          string           `json:"doi,omitempty"`
	Relationship RelationshipKind `json:"relationship" validate:"required"`
	Relevance    float64          `json:"relevance" validate:"min=0,max=1"`
}

// DiscovererOutput is Discoverer's typed output.
type DiscovererOutput struct {
	DiscoveredPapers []DiscoveredPaper `json:"discovered_papers"`
}
