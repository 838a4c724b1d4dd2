// Package router decides what the pipeline does with an aggregated review.
package router

import "masthead.app/newsroom/internal/model"

type Outcome string

const (
	// Publish: every role approved, hand off to finishing.
	Publish Outcome = "publish"
	// AugmentResearch: gather targeted research, then revise.
	AugmentResearch Outcome = "augment_research_then_revise"
	// ReviseDirectly: revise from existing research.
	ReviseDirectly Outcome = "revise_directly"
	// Abandon: revision cap reached without approval; keep the best
	// version and finish with a warning.
	Abandon Outcome = "abandon_with_warning"
)

type Decision struct {
	Outcome Outcome
	// Gaps carries the research gaps when Outcome is AugmentResearch.
	Gaps []string
}

// Decide maps an aggregated review to the pipeline's next step. It is a
// pure function of its inputs and returns an outcome for every possible
// input. The revision cap is checked before the research signal: once the
// cap is hit no further work happens regardless of what reviewers asked
// for.
func Decide(agg model.AggregatedDecision, revisionCount, maxRevisions int) Decision {
	if agg.AllApproved {
		return Decision{Outcome: Publish}
	}

	if revisionCount >= maxRevisions {
		return Decision{Outcome: Abandon}
	}

	if agg.NeedsResearch {
		return Decision{Outcome: AugmentResearch, Gaps: agg.ResearchGaps}
	}

	return Decision{Outcome: ReviseDirectly}
}
