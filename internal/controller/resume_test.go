package controller_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"masthead.app/newsroom/internal/model"
)

var _ = Describe("Resume", func() {
	var (
		ctx context.Context
		f   *fixture
	)

	const runID = int64(77)

	stateWith := func(status model.RunStatus, current model.DocumentVersion, history []model.Cycle) *model.RunState {
		return &model.RunState{
			Run:     model.Run{ID: runID, Topic: "quantum error correction", Status: status},
			Current: current,
			History: history,
		}
	}

	cycleFor := func(version model.DocumentVersion, verdicts []model.Verdict) model.Cycle {
		for i := range verdicts {
			verdicts[i].RunID = version.RunID
			verdicts[i].VersionNumber = version.Number
		}
		return model.Cycle{Version: version, Verdicts: verdicts}
	}

	BeforeEach(func() {
		ctx = context.Background()
		f = newFixture()
	})

	It("publishes an already-approved version without re-reviewing it", func() {
		v1 := model.DocumentVersion{RunID: runID, Number: 1, Text: "draft v1"}
		f.store.loadStateFn = func(ctx context.Context, id int64) (*model.RunState, error) {
			return stateWith(model.RunStatusReviewing, v1, []model.Cycle{cycleFor(v1, approvedVerdicts())}), nil
		}

		Expect(f.build().Resume(ctx, runID, "")).To(Succeed())

		Expect(f.evaluator.calls).To(BeZero())
		Expect(f.finisher.calls).To(Equal([]string{"humanize", "layout"}))
		Expect(f.store.finishedStatus).To(Equal(model.RunStatusDone))
	})

	It("restarts from research when the run crashed before the first draft", func() {
		f.store.loadStateFn = func(ctx context.Context, id int64) (*model.RunState, error) {
			return stateWith(model.RunStatusResearching, model.DocumentVersion{}, nil), nil
		}
		f.evaluator.rounds = [][]model.Verdict{approvedVerdicts()}

		Expect(f.build().Resume(ctx, runID, "")).To(Succeed())

		Expect(f.store.statuses).To(ContainElement(model.RunStatusResearching))
		Expect(f.store.versions).To(HaveLen(1))
		Expect(f.store.versions[0].Number).To(Equal(1))
		Expect(f.store.finishedStatus).To(Equal(model.RunStatusDone))
	})

	It("continues the review loop for an unreviewed current version", func() {
		v1 := model.DocumentVersion{RunID: runID, Number: 1, Text: "draft v1"}
		f.store.loadStateFn = func(ctx context.Context, id int64) (*model.RunState, error) {
			return stateWith(model.RunStatusReviewing, v1, nil), nil
		}
		f.evaluator.rounds = [][]model.Verdict{approvedVerdicts()}

		Expect(f.build().Resume(ctx, runID, "")).To(Succeed())

		Expect(f.evaluator.calls).To(Equal(1))
		Expect(f.store.finishedStatus).To(Equal(model.RunStatusDone))
	})

	It("rejects a finished run resumed without feedback", func() {
		f.store.loadStateFn = func(ctx context.Context, id int64) (*model.RunState, error) {
			return stateWith(model.RunStatusDone, model.DocumentVersion{RunID: runID, Number: 1, Text: "final"}, nil), nil
		}

		err := f.build().Resume(ctx, runID, "")

		Expect(err).To(MatchError(ContainSubstring("already finished")))
		Expect(f.store.finishCalls).To(BeZero())
	})

	Describe("user feedback on a finished run", func() {
		var v1 model.DocumentVersion

		BeforeEach(func() {
			v1 = model.DocumentVersion{RunID: runID, Number: 1, Text: "published article"}
			f.store.loadStateFn = func(ctx context.Context, id int64) (*model.RunState, error) {
				return stateWith(model.RunStatusDone, v1, []model.Cycle{cycleFor(v1, rejectedVerdicts())}), nil
			}
			f.evaluator.rounds = [][]model.Verdict{approvedVerdicts()}
		})

		It("revises once with the feedback as a high-severity issue", func() {
			Expect(f.build().Resume(ctx, runID, "add a section on costs")).To(Succeed())

			Expect(f.writer.reviseCalls).To(HaveLen(1))
			call := f.writer.reviseCalls[0]
			Expect(call.draft).To(Equal("published article"))
			Expect(call.issues[0].Role).To(Equal(model.RoleUser))
			Expect(call.issues[0].Severity).To(Equal(model.SeverityHigh))
			Expect(call.issues[0].Type).To(Equal("user_feedback"))
			Expect(call.issues[0].Text).To(Equal("add a section on costs"))
		})

		It("carries the last cycle's issues into the same revision", func() {
			Expect(f.build().Resume(ctx, runID, "add a section on costs")).To(Succeed())

			issueTexts := make([]string, 0)
			for _, issue := range f.writer.reviseCalls[0].issues {
				issueTexts = append(issueTexts, issue.Text)
			}
			Expect(issueTexts).To(ContainElement("conclusion is missing"))
		})

		It("records the new version against the feedback and re-reviews it", func() {
			Expect(f.build().Resume(ctx, runID, "add a section on costs")).To(Succeed())

			Expect(f.store.versions).To(HaveLen(1))
			Expect(f.store.versions[0].Number).To(Equal(2))
			Expect(f.store.versions[0].CreatedFrom).To(Equal("user_feedback_on_v1"))
			Expect(f.evaluator.calls).To(Equal(1))
			Expect(f.store.finishedStatus).To(Equal(model.RunStatusDone))
		})

		It("loads findings from research memory for the revision", func() {
			f.memory.findingsFn = func(ctx context.Context, id int64) ([]model.Finding, error) {
				return []model.Finding{{Title: "cost survey", URL: "https://example.org/costs"}}, nil
			}

			Expect(f.build().Resume(ctx, runID, "add a section on costs")).To(Succeed())

			Expect(f.store.finishedStatus).To(Equal(model.RunStatusDone))
		})
	})
})
