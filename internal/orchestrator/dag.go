// Package orchestrator implements the scheduler: building a per-request
// stage DAG out of corekit.StageDependencies, partitioning it into waves,
// and dispatching each wave's stages concurrently through the agent pool
// with deadline enforcement, progress emission, and downstream-failure
// propagation.
package orchestrator

import (
	"sort"

	"github.com/answer42/agentcore/internal/corekit"
)

// buildWaves partitions requested (plus their transitive dependencies)
// into waves: wave i contains every stage whose dependencies all settled
// in an earlier wave. Stages are included even if
// not explicitly requested when a requested stage depends on them —
// callers are expected to pass the closure already (see closure below).
//
// Output is deterministic: stages within a wave are sorted by
// corekit.AllStages order so dispatch order (and therefore progress event
// order, per the "dispatch order within a wave") is stable
// across runs with the same stage set.
func buildWaves(stages []corekit.StageKind) [][]corekit.StageKind {
	want := make(map[corekit.StageKind]bool, len(stages))
	for _, s := range stages {
		want[s] = true
	}

	settled := make(map[corekit.StageKind]bool, len(stages))
	var waves [][]corekit.StageKind

	for len(settled) < len(want) {
		var wave []corekit.StageKind
		for _, s := range corekit.AllStages {
			if !want[s] || settled[s] {
				continue
			}
			ready := true
			for _, dep := range corekit.StageDependencies[s] {
				if want[dep] && !settled[dep] {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, s)
			}
		}
		if len(wave) == 0 {
			// A requested stage depends on one that was never requested
			// and therefore never settles; nothing further can progress.
			break
		}
		sort.Slice(wave, func(i, j int) bool { return stageOrder(wave[i]) < stageOrder(wave[j]) })
		for _, s := range wave {
			settled[s] = true
		}
		waves = append(waves, wave)
	}
	return waves
}

func stageOrder(s corekit.StageKind) int {
	for i, k := range corekit.AllStages {
		if k == s {
			return i
		}
	}
	return len(corekit.AllStages)
}

// closure returns stages plus every stage they transitively depend on, so
// buildWaves always sees a self-contained dependency set even when the
// caller requested only leaf stages (e.g. {Summarizer} implies
// {TextExtractor, MetadataEnhancer, Summarizer}).
func closure(stages []corekit.StageKind) []corekit.StageKind {
	seen := make(map[corekit.StageKind]bool)
	var out []corekit.StageKind
	var visit func(s corekit.StageKind)
	visit = func(s corekit.StageKind) {
		if seen[s] {
			return
		}
		seen[s] = true
		for _, dep := range corekit.StageDependencies[s] {
			visit(dep)
		}
		out = append(out, s)
	}
	for _, s := range stages {
		visit(s)
	}
	return out
}

// downstreamOf returns every stage in all (transitively) depending on
// root, used to fail the downstream closure immediately when root fails.
func downstreamOf(root corekit.StageKind, all []corekit.StageKind) []corekit.StageKind {
	wanted := make(map[corekit.StageKind]bool, len(all))
	for _, s := range all {
		wanted[s] = true
	}
	var out []corekit.StageKind
	var dependsOn func(s, target corekit.StageKind, visiting map[corekit.StageKind]bool) bool
	dependsOn = func(s, target corekit.StageKind, visiting map[corekit.StageKind]bool) bool {
		if visiting[s] {
			return false
		}
		visiting[s] = true
		for _, dep := range corekit.StageDependencies[s] {
			if dep == target || dependsOn(dep, target, visiting) {
				return true
			}
		}
		return false
	}
	for _, s := range all {
		if s == root {
			continue
		}
		if dependsOn(s, root, map[corekit.StageKind]bool{}) {
			out = append(out, s)
		}
	}
	return out
}
