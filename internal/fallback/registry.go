// Package fallback is a declarative mapping from stage kind to an
// alternate agent instance backed by the local provider.
//
// The registry is built once, at core construction, from configuration
// (fallback.enabled plus whether a local provider is wired at all); when
// the local provider is absent the registry is empty and the retry
// policy simply finds no fallback for any stage. It is a name-keyed map
// guarded by a mutex for safe concurrent Lookup during live registration.
package fallback

import (
	"sync"

	"github.com/answer42/agentcore/internal/corekit"
)

// Agent is the minimal shape the retry policy needs from a fallback: run
// the degraded stage and produce a StageResult.
type Agent interface {
	Run(stage corekit.StageKind, input interface{}) (*corekit.StageResult, error)
}

// Registry holds at most one fallback Agent per stage kind.
type Registry struct {
	mu      sync.RWMutex
	enabled bool
	byStage map[corekit.StageKind]Agent
}

// stagesEligibleForFallback lists every stage with a registered fallback.
// Discoverer is deliberately absent: it depends on external network
// catalogs a local model cannot substitute for.
var stagesEligibleForFallback = map[corekit.StageKind]bool{
	corekit.StageTextExtractor:    false,
	corekit.StageMetadataEnhancer: true,
	corekit.StageSummarizer:       true,
	corekit.StageConceptExplainer: true,
	corekit.StageQualityChecker:   true,
	corekit.StageCitationFormatter: true,
	corekit.StageDiscoverer:       false,
}

// New builds an empty Registry. enabled mirrors fallback.enabled from
// config; when false, Register is a no-op and Lookup always misses,
// matching "when the local provider is not configured, the mapping is
// empty".
func New(enabled bool) *Registry {
	return &Registry{enabled: enabled, byStage: make(map[corekit.StageKind]Agent)}
}

// Register installs agent as the fallback for stage. It is silently
// ignored if the registry is disabled or the stage is not eligible
// (Discoverer, TextExtractor — every other stage depends transitively on
// TextExtractor's output and can be served locally instead).
func (r *Registry) Register(stage corekit.StageKind, agent Agent) {
	if !r.enabled || !stagesEligibleForFallback[stage] {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byStage[stage] = agent
}

// Lookup returns the registered fallback Agent for stage, if any.
func (r *Registry) Lookup(stage corekit.StageKind) (Agent, bool) {
	if !r.enabled {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byStage[stage]
	return a, ok
}

// Enabled reports whether this registry was constructed with a local
// provider configured.
func (r *Registry) Enabled() bool {
	return r.enabled
}

// DefaultInputTruncation is the default cap (8 000 characters) on
// text handed to a fallback agent, since local models have tighter
// context windows.
const DefaultInputTruncation = 8000

// TruncateInput clamps s to maxChars runes, appending nothing; callers
// combine this with setting the processingNote marker field on the
// resulting payload.
func TruncateInput(s string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultInputTruncation
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}

// ProcessingNote is the fixed marker text fallback agents attach to
// their output, explaining that a degraded path was taken.
const ProcessingNote = "degraded: produced by local fallback provider after primary exhausted its retry budget"
