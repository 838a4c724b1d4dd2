package model

import "time"

// Role identifies one reviewer desk. New roles are added by registering a
// reviewer for the role, not by extending this list.
type Role string

const (
	RoleEditor       Role = "editor"
	RoleFactChecker  Role = "fact_checker"
	RoleAuthenticity Role = "authenticity"

	// RoleUser tags issues injected from user feedback on resume. No
	// reviewer is registered for it; it appears only on issues.
	RoleUser Role = "user"
)

// IssueSeverity orders merged issues: correctness problems outrank style.
type IssueSeverity string

const (
	SeverityCritical IssueSeverity = "critical"
	SeverityHigh     IssueSeverity = "high"
	SeverityMedium   IssueSeverity = "medium"
	SeverityLow      IssueSeverity = "low"
)

// Rank returns a sort key for severity, lower is more urgent.
func (s IssueSeverity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	default:
		return 3
	}
}

// Issue is one problem a reviewer wants fixed.
type Issue struct {
	Role     Role          `json:"role"`
	Severity IssueSeverity `json:"severity"`
	Type     string        `json:"type,omitempty"`
	Text     string        `json:"text"`
	Location string        `json:"location,omitempty"`
}

// LineEdit is a suggested in-place rewrite.
type LineEdit struct {
	Location   string `json:"location"`
	Suggestion string `json:"suggestion"`
	Reason     string `json:"reason,omitempty"`
}

// Verdict is one role's structured judgment of one document version.
// Exactly one verdict exists per (role, version) pair within a run.
type Verdict struct {
	ID            int64      `json:"id"`
	RunID         int64      `json:"run_id"`
	VersionNumber int        `json:"version_number"`
	Role          Role       `json:"role"`
	Approved      bool       `json:"approved"`
	Grade         string     `json:"grade,omitempty"`
	Score         *float64   `json:"score,omitempty"`
	Issues        []Issue    `json:"issues,omitempty"`
	LineEdits     []LineEdit `json:"line_edits,omitempty"`
	SourceIssue   bool       `json:"source_issue"`
	Malformed     bool       `json:"malformed"`
	CreatedAt     time.Time  `json:"created_at"`
}
