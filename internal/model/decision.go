package model

// AggregatedDecision merges all role verdicts for one document version.
// It is derived state: recomputable from the verdict set at any time, and
// never persisted on its own.
type AggregatedDecision struct {
	VersionNumber int      `json:"version_number"`
	AllApproved   bool     `json:"all_approved"`
	MergedIssues  []Issue  `json:"merged_issues"`
	NeedsResearch bool     `json:"needs_research"`
	ResearchGaps  []string `json:"research_gaps,omitempty"`
}
