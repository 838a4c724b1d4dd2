package model

import (
	"fmt"
	"time"
)

// RunStatus is the controller's top-level state.
type RunStatus string

const (
	RunStatusQueued               RunStatus = "queued"
	RunStatusResearching          RunStatus = "researching"
	RunStatusDrafting             RunStatus = "drafting"
	RunStatusReviewing            RunStatus = "reviewing"
	RunStatusAwaitingAugmentation RunStatus = "awaiting_research_augmentation"
	RunStatusRevising             RunStatus = "revising"
	RunStatusHumanizing           RunStatus = "humanizing"
	RunStatusDone                 RunStatus = "done"
	RunStatusAbandoned            RunStatus = "abandoned"
)

// Terminal reports whether the run has finished, successfully or not.
func (s RunStatus) Terminal() bool {
	return s == RunStatusDone || s == RunStatusAbandoned
}

// Cycle is one completed review pass: a document version plus the verdicts
// it received.
type Cycle struct {
	Version  DocumentVersion `json:"version"`
	Verdicts []Verdict       `json:"verdicts"`
}

// Run is one pipeline execution.
type Run struct {
	ID         int64      `json:"id"`
	Topic      string     `json:"topic"`
	Status     RunStatus  `json:"status"`
	Error      *string    `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunState is the controller's working state for a run. It has a single
// owner (the controller driving the run); everything else sees snapshots
// via the store.
type RunState struct {
	Run      Run
	Current  DocumentVersion
	History  []Cycle
	Research ResearchState
}

// RevisionCount is the number of revisions performed so far. The initial
// draft is version 1 and does not count as a revision, so the count is
// always len(history) - 1 once a draft exists.
func (s *RunState) RevisionCount() int {
	if len(s.History) == 0 {
		return 0
	}
	return len(s.History) - 1
}

// BestCycle returns the cycle with the highest combined verdict score,
// falling back to the latest cycle. Abandoned runs report this as the best
// version produced.
func (s *RunState) BestCycle() (Cycle, error) {
	if len(s.History) == 0 {
		return Cycle{}, fmt.Errorf("run %d has no reviewed versions", s.Run.ID)
	}

	best := s.History[len(s.History)-1]
	bestScore := cycleScore(best)
	for _, c := range s.History {
		if sc := cycleScore(c); sc > bestScore {
			best, bestScore = c, sc
		}
	}
	return best, nil
}

func cycleScore(c Cycle) float64 {
	var total float64
	for _, v := range c.Verdicts {
		if v.Score != nil {
			total += *v.Score
		}
		if v.Approved {
			total += 100
		}
	}
	return total
}
