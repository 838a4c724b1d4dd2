package arangodb

// FindingDoc is a research finding as stored in the findings collection.
// Findings are append-only: once written for a run they are never updated
// or removed.
type FindingDoc struct {
	Key          string `json:"_key,omitempty"`
	RunID        int64  `json:"run_id"`
	Source       string `json:"source"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	Content      string `json:"content"`
	Contribution string `json:"contribution,omitempty"`
	RelatedClaim string `json:"related_claim,omitempty"`
	GatheredAt   int64  `json:"gathered_at"` // unix millis
}

// FeedbackEvent records one reviewer verdict as an event. Events accumulate
// per run so later revisions can see the full feedback history.
type FeedbackEvent struct {
	Key           string `json:"_key,omitempty"`
	RunID         int64  `json:"run_id"`
	Role          string `json:"role"`
	VersionNumber int    `json:"version_number"`
	Payload       string `json:"payload"` // serialized verdict JSON
	RecordedAt    int64  `json:"recorded_at"`
}

// KnowledgeChunk is a reusable piece of background material in the shared
// knowledge base, searchable across runs.
type KnowledgeChunk struct {
	Key     string `json:"_key,omitempty"`
	Topic   string `json:"topic"`
	Title   string `json:"title"`
	URL     string `json:"url,omitempty"`
	Content string `json:"content"`
}
