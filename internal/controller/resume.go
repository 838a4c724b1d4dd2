package controller

import (
	"context"
	"fmt"
	"log/slog"

	"masthead.app/newsroom/common/logger"
	"masthead.app/newsroom/internal/model"
	"masthead.app/newsroom/internal/review"
)

// Resume picks a run back up from persisted state. The document history and
// verdicts come from the run store, findings from research memory. Optional
// user feedback is injected as one immediate revision before the normal
// review loop continues; it is applied exactly once and never re-applied on
// a later resume.
func (c *Controller) Resume(ctx context.Context, runID int64, userFeedback string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RunDeadline)
	defer cancel()

	state, err := c.store.LoadState(ctx, runID)
	if err != nil {
		return err
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RunID:     logger.Ptr(runID),
		Topic:     logger.Ptr(state.Run.Topic),
		Component: "newsroom.controller",
	})

	if state.Run.Status.Terminal() && userFeedback == "" {
		return fmt.Errorf("run %d already finished with status %s", runID, state.Run.Status)
	}

	findings, err := c.memory.Findings(ctx, runID)
	if err != nil {
		return fmt.Errorf("loading research memory: %w", err)
	}
	state.Research = model.ResearchState{
		Topic:    state.Run.Topic,
		Findings: findings,
	}

	slog.InfoContext(ctx, "run resumed",
		"status", state.Run.Status,
		"versions", state.Current.Number,
		"findings", len(findings),
		"user_feedback", userFeedback != "")

	if state.Current.Number == 0 {
		// Crashed before the first draft; start over from research.
		if err := c.runPipeline(ctx, state); err != nil {
			c.failRun(ctx, state, err)
			return err
		}
		return nil
	}

	if userFeedback != "" {
		if err := c.applyUserFeedback(ctx, state, userFeedback); err != nil {
			c.failRun(ctx, state, err)
			return err
		}
	}

	if err := c.reviewLoop(ctx, state); err != nil {
		c.failRun(ctx, state, err)
		return err
	}
	return nil
}

// applyUserFeedback revises the current version against the user's notes.
// The feedback rides along as a high-severity issue merged with whatever
// the last review cycle raised, so one revision addresses both.
func (c *Controller) applyUserFeedback(ctx context.Context, state *model.RunState, feedback string) error {
	if err := c.transition(ctx, state, model.RunStatusRevising); err != nil {
		return err
	}

	issues := []model.Issue{{
		Role:     model.RoleUser,
		Severity: model.SeverityHigh,
		Type:     "user_feedback",
		Text:     feedback,
	}}

	var lineEdits []model.LineEdit
	if cycle, ok := lastCycleFor(state, state.Current.Number); ok {
		agg := review.Fold(cycle.Version.Number, cycle.Verdicts)
		issues = append(issues, agg.MergedIssues...)
		for _, v := range cycle.Verdicts {
			lineEdits = append(lineEdits, v.LineEdits...)
		}
	}

	var revised string
	err := c.workflow.Do(ctx, func(ctx context.Context) error {
		var err error
		revised, err = c.writer.Revise(ctx, state.Run.Topic, state.Current.Text, issues, lineEdits, &state.Research)
		return err
	})
	if err != nil {
		return fmt.Errorf("applying user feedback: %w", err)
	}

	return c.addVersion(ctx, state, revised, fmt.Sprintf("user_feedback_on_v%d", state.Current.Number))
}
