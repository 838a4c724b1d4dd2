package dto

import "time"

type StartRunRequest struct {
	Topic string `json:"topic" binding:"required"`
}

type ResumeRunRequest struct {
	UserFeedback string `json:"user_feedback,omitempty"`
}

type RunResponse struct {
	ID         int64      `json:"id"`
	Topic      string     `json:"topic"`
	Status     string     `json:"status"`
	Error      *string    `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type RunListResponse struct {
	Runs []RunResponse `json:"runs"`
}

type VersionResponse struct {
	Number      int       `json:"number"`
	CreatedFrom string    `json:"created_from"`
	CreatedAt   time.Time `json:"created_at"`
	Length      int       `json:"length"`
}

type VerdictResponse struct {
	Role      string   `json:"role"`
	Approved  bool     `json:"approved"`
	Grade     string   `json:"grade,omitempty"`
	Score     *float64 `json:"score,omitempty"`
	Issues    int      `json:"issues"`
	Malformed bool     `json:"malformed,omitempty"`
}

type CycleResponse struct {
	Version  VersionResponse   `json:"version"`
	Verdicts []VerdictResponse `json:"verdicts"`
}

type RunStateResponse struct {
	Run            RunResponse     `json:"run"`
	CurrentVersion int             `json:"current_version"`
	RevisionCount  int             `json:"revision_count"`
	Confidence     float64         `json:"research_confidence"`
	Findings       int             `json:"research_findings"`
	History        []CycleResponse `json:"history"`
}
