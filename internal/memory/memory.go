// Package memory is the append-only research memory backing a run. Findings
// gathered during research and reviewer feedback are recorded as events in
// ArangoDB so a resumed run can replay everything that was learned before.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"masthead.app/newsroom/common/arangodb"
	"masthead.app/newsroom/internal/model"
)

type Memory struct {
	db arangodb.Client
}

func New(db arangodb.Client) *Memory {
	return &Memory{db: db}
}

// RecordFindings appends findings for a run. Re-recording the same finding
// is a no-op; nothing already stored is ever modified.
func (m *Memory) RecordFindings(ctx context.Context, runID int64, findings []model.Finding) error {
	docs := make([]arangodb.FindingDoc, 0, len(findings))
	for _, f := range findings {
		docs = append(docs, arangodb.FindingDoc{
			RunID:        runID,
			Source:       f.Source,
			Title:        f.Title,
			URL:          f.URL,
			Content:      f.Content,
			Contribution: f.Contribution,
			RelatedClaim: f.RelatedClaim,
			GatheredAt:   f.GatheredAt.UnixMilli(),
		})
	}

	if err := m.db.AppendFindings(ctx, docs); err != nil {
		return fmt.Errorf("recording findings: %w", err)
	}
	return nil
}

// Findings returns all findings recorded for a run in gathering order.
func (m *Memory) Findings(ctx context.Context, runID int64) ([]model.Finding, error) {
	docs, err := m.db.FindingsByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("loading findings: %w", err)
	}

	findings := make([]model.Finding, 0, len(docs))
	for _, d := range docs {
		findings = append(findings, model.Finding{
			Source:       d.Source,
			Title:        d.Title,
			URL:          d.URL,
			Content:      d.Content,
			Contribution: d.Contribution,
			RelatedClaim: d.RelatedClaim,
			GatheredAt:   time.UnixMilli(d.GatheredAt),
		})
	}
	return findings, nil
}

// RecordVerdict stores a reviewer verdict as a feedback event.
func (m *Memory) RecordVerdict(ctx context.Context, v model.Verdict) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling verdict: %w", err)
	}

	ev := arangodb.FeedbackEvent{
		RunID:         v.RunID,
		Role:          string(v.Role),
		VersionNumber: v.VersionNumber,
		Payload:       string(payload),
		RecordedAt:    time.Now().UnixMilli(),
	}

	if err := m.db.AppendFeedback(ctx, ev); err != nil {
		return fmt.Errorf("recording verdict: %w", err)
	}
	return nil
}

// VerdictHistory returns all recorded verdicts for a run, oldest first.
// Pass an empty role to get every role's feedback.
func (m *Memory) VerdictHistory(ctx context.Context, runID int64, role model.Role) ([]model.Verdict, error) {
	events, err := m.db.FeedbackByRun(ctx, runID, string(role))
	if err != nil {
		return nil, fmt.Errorf("loading feedback: %w", err)
	}

	verdicts := make([]model.Verdict, 0, len(events))
	for _, ev := range events {
		var v model.Verdict
		if err := json.Unmarshal([]byte(ev.Payload), &v); err != nil {
			return nil, fmt.Errorf("unmarshaling verdict for run %d: %w", runID, err)
		}
		verdicts = append(verdicts, v)
	}
	return verdicts, nil
}
