package model

import "time"

// CreatedFromInitial marks the first draft of a run, which has no parent
// version.
const CreatedFromInitial = "initial"

// DocumentVersion is one immutable revision of the article. Version numbers
// start at 1 and are strictly monotonic within a run; a revision always
// produces a new version.
type DocumentVersion struct {
	ID          int64     `json:"id"`
	RunID       int64     `json:"run_id"`
	Number      int       `json:"number"`
	Text        string    `json:"text"`
	CreatedFrom string    `json:"created_from"`
	CreatedAt   time.Time `json:"created_at"`
}
