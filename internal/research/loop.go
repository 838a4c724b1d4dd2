// Package research runs the bounded pre-draft research loop and the
// targeted augmentation pass the router requests after failed fact checks.
package research

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"masthead.app/newsroom/internal/model"
	"masthead.app/newsroom/internal/search"
)

// Analyst plans each iteration's questions and judges coverage.
type Analyst interface {
	Questions(ctx context.Context, topic string, state *model.ResearchState, gaps []string) ([]string, error)
	Assess(ctx context.Context, topic string, state *model.ResearchState) (float64, []string, error)
}

// Recorder persists findings as they are gathered. Findings are append-only;
// recording the same finding twice is a no-op.
type Recorder interface {
	RecordFindings(ctx context.Context, runID int64, findings []model.Finding) error
}

type Config struct {
	MaxIterations       int
	ConfidenceThreshold float64
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 6
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 0.8
	}
	return c
}

type Loop struct {
	analyst  Analyst
	searcher search.Searcher
	memory   Recorder
	cfg      Config
}

func NewLoop(analyst Analyst, searcher search.Searcher, memory Recorder, cfg Config) *Loop {
	return &Loop{
		analyst:  analyst,
		searcher: searcher,
		memory:   memory,
		cfg:      cfg.withDefaults(),
	}
}

// Run gathers research for a topic until confidence reaches the threshold
// or the iteration cap is hit. Hitting the cap is not an error: the state
// is returned with CapReached set and the pipeline drafts from what was
// gathered.
func (l *Loop) Run(ctx context.Context, runID int64, topic string) (*model.ResearchState, error) {
	state := &model.ResearchState{Topic: topic}

	var gaps []string
	for state.IterationCount < l.cfg.MaxIterations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := l.iterate(ctx, runID, state, gaps); err != nil {
			return nil, err
		}

		confidence, newGaps, err := l.analyst.Assess(ctx, state.Topic, state)
		if err != nil {
			return nil, fmt.Errorf("research iteration %d: %w", state.IterationCount, err)
		}

		// Findings only accumulate, so coverage never regresses; keep the
		// high-water confidence even if a later assessment reads lower.
		if confidence > state.Confidence {
			state.Confidence = confidence
		}
		gaps = newGaps

		slog.InfoContext(ctx, "research iteration completed",
			"iteration", state.IterationCount,
			"findings", len(state.Findings),
			"confidence", state.Confidence,
			"gaps", len(gaps))

		if state.Confidence >= l.cfg.ConfidenceThreshold {
			return state, nil
		}
	}

	state.CapReached = true
	slog.WarnContext(ctx, "research iteration cap reached below confidence threshold, proceeding with gathered findings",
		"iterations", state.IterationCount,
		"confidence", state.Confidence,
		"threshold", l.cfg.ConfidenceThreshold)

	return state, nil
}

// Augment runs one extra research iteration targeted at the given gaps.
// Used after a failed fact check; it ignores the iteration cap since the
// router decided more research is worth one more pass.
func (l *Loop) Augment(ctx context.Context, runID int64, state *model.ResearchState, gaps []string) error {
	if err := l.iterate(ctx, runID, state, gaps); err != nil {
		return err
	}

	confidence, _, err := l.analyst.Assess(ctx, state.Topic, state)
	if err != nil {
		return fmt.Errorf("research augmentation: %w", err)
	}
	if confidence > state.Confidence {
		state.Confidence = confidence
	}

	slog.InfoContext(ctx, "research augmented",
		"gaps", len(gaps),
		"findings", len(state.Findings),
		"confidence", state.Confidence)

	return nil
}

// iterate runs one round: plan questions, search them concurrently, fold in
// whatever came back. A question whose searches all fail is skipped; the
// iteration fails only when planning or persistence fails.
func (l *Loop) iterate(ctx context.Context, runID int64, state *model.ResearchState, gaps []string) error {
	questions, err := l.analyst.Questions(ctx, state.Topic, state, gaps)
	if err != nil {
		return fmt.Errorf("planning research questions: %w", err)
	}
	if len(questions) == 0 {
		questions = []string{state.Topic}
	}

	start := time.Now()
	results := make([][]model.Finding, len(questions))
	var wg sync.WaitGroup
	for i, q := range questions {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			findings, err := l.searcher.Search(ctx, q, 5)
			if err != nil {
				slog.WarnContext(ctx, "research question search failed, skipping",
					"question", q,
					"error", err)
				return
			}
			results[i] = findings
		}(i, q)
	}
	wg.Wait()

	fresh := l.merge(state, questions, results)
	state.IterationCount++

	if len(fresh) > 0 {
		if err := l.memory.RecordFindings(ctx, runID, fresh); err != nil {
			return fmt.Errorf("recording findings: %w", err)
		}
	}

	slog.DebugContext(ctx, "research round searched",
		"questions", len(questions),
		"new_findings", len(fresh),
		"duration_ms", time.Since(start).Milliseconds())

	return nil
}

// merge appends findings not already in the state, keyed by URL (or title
// for findings without one), and returns the newly added ones.
func (l *Loop) merge(state *model.ResearchState, questions []string, results [][]model.Finding) []model.Finding {
	seen := make(map[string]bool, len(state.Findings))
	for _, f := range state.Findings {
		seen[findingKey(f)] = true
	}

	var fresh []model.Finding
	for i, findings := range results {
		for _, f := range findings {
			key := findingKey(f)
			if seen[key] {
				continue
			}
			seen[key] = true
			if f.Contribution == "" {
				f.Contribution = questions[i]
			}
			state.Findings = append(state.Findings, f)
			fresh = append(fresh, f)
		}
	}
	return fresh
}

func findingKey(f model.Finding) string {
	if f.URL != "" {
		return f.URL
	}
	return f.Source + ":" + f.Title
}
