package model

import "time"

// Finding is a single piece of evidence gathered from one source.
// Findings are immutable once recorded and are only ever appended to a
// run's research cache, never deleted or rewritten.
type Finding struct {
	ID           int64     `json:"id"`
	Source       string    `json:"source"`
	Title        string    `json:"title,omitempty"`
	URL          string    `json:"url,omitempty"`
	Content      string    `json:"content"`
	Contribution string    `json:"contribution,omitempty"`
	RelatedClaim string    `json:"related_claim,omitempty"`
	GatheredAt   time.Time `json:"gathered_at"`
}

// ResearchState is the cumulative output of the research loop.
// Owned by the loop; callers treat it as a value.
type ResearchState struct {
	Topic          string    `json:"topic"`
	Findings       []Finding `json:"findings"`
	IterationCount int       `json:"iteration_count"`
	Confidence     float64   `json:"confidence"`

	// CapReached is set when the loop stopped at the iteration cap without
	// crossing the confidence threshold. A warning condition, not an error.
	CapReached bool `json:"cap_reached"`
}

// SourceDiversity counts the distinct sources represented in the findings.
func (s ResearchState) SourceDiversity() int {
	seen := make(map[string]struct{}, len(s.Findings))
	for _, f := range s.Findings {
		seen[f.Source] = struct{}{}
	}
	return len(seen)
}
