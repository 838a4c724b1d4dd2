// Package controller drives a run end to end: research, draft, the
// review/revision loop, and the finishing passes. The controller is the
// single owner of a run's state; everything it persists goes through the
// run store so a crashed run can resume from the last completed step.
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"masthead.app/newsroom/common/id"
	"masthead.app/newsroom/common/logger"
	"masthead.app/newsroom/internal/model"
	"masthead.app/newsroom/internal/retry"
	"masthead.app/newsroom/internal/review"
	"masthead.app/newsroom/internal/router"
	"masthead.app/newsroom/internal/store"
)

// Writer drafts and revises article versions.
type Writer interface {
	GenerateDraft(ctx context.Context, topic string, research *model.ResearchState) (string, error)
	Revise(ctx context.Context, topic, draft string, issues []model.Issue, lineEdits []model.LineEdit, research *model.ResearchState) (string, error)
}

// Finisher applies the post-approval passes. Humanize runs before Layout.
type Finisher interface {
	Humanize(ctx context.Context, topic string, version model.DocumentVersion) (string, error)
	Layout(ctx context.Context, topic string, version model.DocumentVersion) (string, error)
}

// Evaluator runs all reviewers against a version and folds the verdicts.
type Evaluator interface {
	Evaluate(ctx context.Context, topic string, version model.DocumentVersion) (model.AggregatedDecision, []model.Verdict, error)
}

// Researcher is the research loop.
type Researcher interface {
	Run(ctx context.Context, runID int64, topic string) (*model.ResearchState, error)
	Augment(ctx context.Context, runID int64, state *model.ResearchState, gaps []string) error
}

// Renderer converts the finished markdown to publishable HTML.
type Renderer interface {
	ToHTML(markdown string) (string, error)
}

// Memory is the append-only research and feedback memory for a run.
type Memory interface {
	RecordVerdict(ctx context.Context, v model.Verdict) error
	Findings(ctx context.Context, runID int64) ([]model.Finding, error)
}

type Config struct {
	MaxRevisions int
	RunDeadline  time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRevisions <= 0 {
		c.MaxRevisions = 10
	}
	if c.RunDeadline <= 0 {
		c.RunDeadline = 2 * time.Hour
	}
	return c
}

// WorkflowRetryPolicy wraps whole pipeline stages. It sits outside the
// per-call agent layer, so a stage gets a fresh agent budget on each
// workflow attempt. Fatal errors from the inner layer are not retried.
func WorkflowRetryPolicy(maxAttempts int, baseDelay time.Duration, multiplier float64) retry.Policy {
	return retry.Policy{
		Name:        "workflow",
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		Multiplier:  multiplier,
	}
}

type Controller struct {
	store     store.RunStore
	artifacts store.ArtifactStore
	memory    Memory
	research  Researcher
	writer    Writer
	evaluator Evaluator
	finisher  Finisher
	renderer  Renderer
	workflow  *retry.Executor
	cfg       Config
}

func New(
	runStore store.RunStore,
	artifacts store.ArtifactStore,
	mem Memory,
	researcher Researcher,
	writer Writer,
	evaluator Evaluator,
	finisher Finisher,
	renderer Renderer,
	workflow *retry.Executor,
	cfg Config,
) *Controller {
	return &Controller{
		store:     runStore,
		artifacts: artifacts,
		memory:    mem,
		research:  researcher,
		writer:    writer,
		evaluator: evaluator,
		finisher:  finisher,
		renderer:  renderer,
		workflow:  workflow,
		cfg:       cfg.withDefaults(),
	}
}

// Run executes a fresh run: research, draft, then the review loop.
func (c *Controller) Run(ctx context.Context, run *model.Run) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RunDeadline)
	defer cancel()

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RunID:     logger.Ptr(run.ID),
		Topic:     logger.Ptr(run.Topic),
		Component: "newsroom.controller",
	})

	state := &model.RunState{Run: *run}

	if err := c.runPipeline(ctx, state); err != nil {
		c.failRun(ctx, state, err)
		return err
	}
	return nil
}

func (c *Controller) runPipeline(ctx context.Context, state *model.RunState) error {
	runID := state.Run.ID
	topic := state.Run.Topic

	if err := c.transition(ctx, state, model.RunStatusResearching); err != nil {
		return err
	}

	var researchState *model.ResearchState
	err := c.workflow.Do(ctx, func(ctx context.Context) error {
		var err error
		researchState, err = c.research.Run(ctx, runID, topic)
		return err
	})
	if err != nil {
		return fmt.Errorf("research: %w", err)
	}
	state.Research = *researchState

	if err := c.transition(ctx, state, model.RunStatusDrafting); err != nil {
		return err
	}

	var draft string
	err = c.workflow.Do(ctx, func(ctx context.Context) error {
		var err error
		draft, err = c.writer.GenerateDraft(ctx, topic, &state.Research)
		return err
	})
	if err != nil {
		return fmt.Errorf("drafting: %w", err)
	}

	if err := c.addVersion(ctx, state, draft, model.CreatedFromInitial); err != nil {
		return err
	}

	return c.reviewLoop(ctx, state)
}

// reviewLoop drives review cycles until the router publishes or abandons.
func (c *Controller) reviewLoop(ctx context.Context, state *model.RunState) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		decision, err := c.reviewCurrent(ctx, state)
		if err != nil {
			return err
		}

		switch decision.Outcome {
		case router.Publish:
			return c.finish(ctx, state)

		case router.Abandon:
			return c.abandon(ctx, state)

		case router.AugmentResearch:
			if err := c.transition(ctx, state, model.RunStatusAwaitingAugmentation); err != nil {
				return err
			}
			err := c.workflow.Do(ctx, func(ctx context.Context) error {
				return c.research.Augment(ctx, state.Run.ID, &state.Research, decision.Gaps)
			})
			if err != nil {
				return fmt.Errorf("augmenting research: %w", err)
			}
			if err := c.revise(ctx, state); err != nil {
				return err
			}

		case router.ReviseDirectly:
			if err := c.revise(ctx, state); err != nil {
				return err
			}
		}
	}
}

// reviewCurrent evaluates the current version (once; a version already in
// history keeps its recorded verdicts) and routes the aggregate.
func (c *Controller) reviewCurrent(ctx context.Context, state *model.RunState) (router.Decision, error) {
	current := state.Current

	var agg model.AggregatedDecision
	if cycle, ok := lastCycleFor(state, current.Number); ok {
		// Already reviewed (e.g. resumed run); recompute the aggregate
		// from the stored verdicts instead of reviewing again.
		agg = review.Fold(cycle.Version.Number, cycle.Verdicts)
	} else {
		if err := c.transition(ctx, state, model.RunStatusReviewing); err != nil {
			return router.Decision{}, err
		}

		var verdicts []model.Verdict
		err := c.workflow.Do(ctx, func(ctx context.Context) error {
			var err error
			agg, verdicts, err = c.evaluator.Evaluate(ctx, state.Run.Topic, current)
			return err
		})
		if err != nil {
			return router.Decision{}, fmt.Errorf("reviewing version %d: %w", current.Number, err)
		}

		if err := c.recordCycle(ctx, state, current, verdicts); err != nil {
			return router.Decision{}, err
		}
	}

	decision := router.Decide(agg, state.RevisionCount(), c.cfg.MaxRevisions)

	slog.InfoContext(ctx, "review routed",
		"version", current.Number,
		"outcome", decision.Outcome,
		"revision_count", state.RevisionCount())

	return decision, nil
}

func (c *Controller) revise(ctx context.Context, state *model.RunState) error {
	if err := c.transition(ctx, state, model.RunStatusRevising); err != nil {
		return err
	}

	cycle, ok := lastCycleFor(state, state.Current.Number)
	if !ok {
		return fmt.Errorf("revising version %d with no recorded review", state.Current.Number)
	}
	agg := review.Fold(cycle.Version.Number, cycle.Verdicts)

	var lineEdits []model.LineEdit
	for _, v := range cycle.Verdicts {
		lineEdits = append(lineEdits, v.LineEdits...)
	}

	var revised string
	err := c.workflow.Do(ctx, func(ctx context.Context) error {
		var err error
		revised, err = c.writer.Revise(ctx, state.Run.Topic, state.Current.Text, agg.MergedIssues, lineEdits, &state.Research)
		return err
	})
	if err != nil {
		return fmt.Errorf("revising version %d: %w", state.Current.Number, err)
	}

	return c.addVersion(ctx, state, revised, fmt.Sprintf("revision_of_v%d", state.Current.Number))
}

func (c *Controller) finish(ctx context.Context, state *model.RunState) error {
	return c.finishVersion(ctx, state, state.Current, model.RunStatusDone, nil)
}

// abandon keeps the best reviewed version and finishes it with a warning.
// The finishing passes run the same as on publication, so an abandoned run
// yields a humanized, laid-out article rather than a raw draft.
func (c *Controller) abandon(ctx context.Context, state *model.RunState) error {
	best, err := state.BestCycle()
	if err != nil {
		return err
	}

	warning := fmt.Sprintf("revision cap (%d) reached without full approval; publishing best version v%d",
		c.cfg.MaxRevisions, best.Version.Number)
	slog.WarnContext(ctx, "run abandoned at revision cap",
		"best_version", best.Version.Number,
		"revisions", state.RevisionCount())

	return c.finishVersion(ctx, state, best.Version, model.RunStatusAbandoned, &warning)
}

// finishVersion runs the humanize then layout passes on the given version,
// renders HTML, and finishes the run in the given terminal status.
func (c *Controller) finishVersion(ctx context.Context, state *model.RunState, version model.DocumentVersion, status model.RunStatus, warning *string) error {
	if err := c.transition(ctx, state, model.RunStatusHumanizing); err != nil {
		return err
	}

	topic := state.Run.Topic
	final := version

	var humanized string
	err := c.workflow.Do(ctx, func(ctx context.Context) error {
		var err error
		humanized, err = c.finisher.Humanize(ctx, topic, final)
		return err
	})
	if err != nil {
		return fmt.Errorf("humanizing: %w", err)
	}
	final.Text = humanized

	var laidOut string
	err = c.workflow.Do(ctx, func(ctx context.Context) error {
		var err error
		laidOut, err = c.finisher.Layout(ctx, topic, final)
		return err
	})
	if err != nil {
		return fmt.Errorf("layout: %w", err)
	}

	return c.complete(ctx, state, laidOut, status, warning)
}

func (c *Controller) complete(ctx context.Context, state *model.RunState, finalText string, status model.RunStatus, warning *string) error {
	runID := state.Run.ID
	topic := state.Run.Topic

	if _, err := c.artifacts.WriteFinal(ctx, runID, topic, "article_final.md", finalText); err != nil {
		return fmt.Errorf("writing final article: %w", err)
	}

	html, err := c.renderer.ToHTML(finalText)
	if err != nil {
		slog.ErrorContext(ctx, "rendering html failed, markdown artifact still written", "error", err)
	} else {
		if _, err := c.artifacts.WriteFinal(ctx, runID, topic, "article_final.html", html); err != nil {
			slog.ErrorContext(ctx, "writing html artifact failed", "error", err)
		}
	}

	if err := c.store.FinishRun(ctx, runID, status, warning); err != nil {
		return err
	}
	state.Run.Status = status

	slog.InfoContext(ctx, "run finished",
		"status", status,
		"versions", len(state.History),
		"revisions", state.RevisionCount())

	return nil
}

// addVersion appends a new document version: numbers are strictly
// monotonic, starting at 1 for the initial draft.
func (c *Controller) addVersion(ctx context.Context, state *model.RunState, text, createdFrom string) error {
	version := model.DocumentVersion{
		ID:          id.New(),
		RunID:       state.Run.ID,
		Number:      state.Current.Number + 1,
		Text:        text,
		CreatedFrom: createdFrom,
		CreatedAt:   time.Now(),
	}

	if err := c.store.SaveVersion(ctx, &version); err != nil {
		return err
	}

	if _, err := c.artifacts.WriteArticle(ctx, state.Run.ID, state.Run.Topic, version.Number, text); err != nil {
		slog.ErrorContext(ctx, "writing article artifact failed", "version", version.Number, "error", err)
	}

	state.Current = version
	return nil
}

// recordCycle persists a completed review cycle: verdicts to the store,
// feedback events to memory, and per-role feedback artifacts.
func (c *Controller) recordCycle(ctx context.Context, state *model.RunState, version model.DocumentVersion, verdicts []model.Verdict) error {
	if err := c.store.SaveVerdicts(ctx, verdicts); err != nil {
		return err
	}

	for _, v := range verdicts {
		if err := c.memory.RecordVerdict(ctx, v); err != nil {
			slog.ErrorContext(ctx, "recording verdict to memory failed",
				"role", v.Role, "error", err)
		}

		payload, err := json.Marshal(v)
		if err == nil {
			if _, err := c.artifacts.WriteFeedback(ctx, state.Run.ID, state.Run.Topic, string(v.Role), version.Number, payload); err != nil {
				slog.ErrorContext(ctx, "writing feedback artifact failed",
					"role", v.Role, "error", err)
			}
		}
	}

	state.History = append(state.History, model.Cycle{Version: version, Verdicts: verdicts})
	return nil
}

func (c *Controller) transition(ctx context.Context, state *model.RunState, status model.RunStatus) error {
	if err := c.store.UpdateStatus(ctx, state.Run.ID, status); err != nil {
		return fmt.Errorf("transitioning to %s: %w", status, err)
	}
	state.Run.Status = status

	slog.DebugContext(ctx, "run status changed", "status", status)
	return nil
}

// failRun marks the run abandoned after a pipeline failure. When the run
// deadline expired, the best reviewed version is still written out so the
// timed-out run keeps its strongest draft. The store and artifact writes use
// an uncancelled context since the run context is usually dead by now.
func (c *Controller) failRun(ctx context.Context, state *model.RunState, runErr error) {
	ctx = context.WithoutCancel(ctx)

	if errors.Is(runErr, context.DeadlineExceeded) {
		if best, err := state.BestCycle(); err == nil {
			if _, err := c.artifacts.WriteFinal(ctx, state.Run.ID, state.Run.Topic, "article_final.md", best.Version.Text); err != nil {
				slog.ErrorContext(ctx, "writing final artifact failed", "error", err)
			}
		}
	}

	msg := runErr.Error()
	if err := c.store.FinishRun(ctx, state.Run.ID, model.RunStatusAbandoned, &msg); err != nil {
		slog.ErrorContext(ctx, "marking run failed also failed", "error", err)
	}
	state.Run.Status = model.RunStatusAbandoned
}

func lastCycleFor(state *model.RunState, versionNumber int) (model.Cycle, bool) {
	for i := len(state.History) - 1; i >= 0; i-- {
		if state.History[i].Version.Number == versionNumber {
			return state.History[i], true
		}
	}
	return model.Cycle{}, false
}
