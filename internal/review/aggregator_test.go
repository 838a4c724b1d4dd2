package review_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"masthead.app/newsroom/internal/model"
	"masthead.app/newsroom/internal/review"
)

type mockReviewer struct {
	role     model.Role
	reviewFn func(ctx context.Context, topic string, version model.DocumentVersion) (model.Verdict, error)
}

func (m *mockReviewer) Role() model.Role { return m.role }

func (m *mockReviewer) Review(ctx context.Context, topic string, version model.DocumentVersion) (model.Verdict, error) {
	if m.reviewFn != nil {
		return m.reviewFn(ctx, topic, version)
	}
	return model.Verdict{Role: m.role, VersionNumber: version.Number, Approved: true}, nil
}

func approving(role model.Role) *mockReviewer {
	return &mockReviewer{role: role}
}

func rejecting(role model.Role, issues ...model.Issue) *mockReviewer {
	return &mockReviewer{
		role: role,
		reviewFn: func(ctx context.Context, topic string, version model.DocumentVersion) (model.Verdict, error) {
			return model.Verdict{Role: role, VersionNumber: version.Number, Approved: false, Issues: issues}, nil
		},
	}
}

var _ = Describe("Aggregator", func() {
	var (
		ctx     context.Context
		version model.DocumentVersion
	)

	BeforeEach(func() {
		ctx = context.Background()
		version = model.DocumentVersion{RunID: 42, Number: 1, Text: "draft text"}
	})

	It("approves only when every role approves", func() {
		agg := review.NewAggregator(time.Second,
			approving(model.RoleEditor),
			approving(model.RoleFactChecker),
			approving(model.RoleAuthenticity),
		)

		decision, verdicts, err := agg.Evaluate(ctx, "topic", version)

		Expect(err).NotTo(HaveOccurred())
		Expect(decision.AllApproved).To(BeTrue())
		Expect(verdicts).To(HaveLen(3))
	})

	It("rejects when any single role rejects", func() {
		agg := review.NewAggregator(time.Second,
			approving(model.RoleEditor),
			rejecting(model.RoleFactChecker, model.Issue{
				Role: model.RoleFactChecker, Severity: model.SeverityHigh, Text: "unsupported claim",
			}),
			approving(model.RoleAuthenticity),
		)

		decision, _, err := agg.Evaluate(ctx, "topic", version)

		Expect(err).NotTo(HaveOccurred())
		Expect(decision.AllApproved).To(BeFalse())
		Expect(decision.MergedIssues).To(HaveLen(1))
	})

	It("turns a reviewer failure into a rejection, never an approval", func() {
		agg := review.NewAggregator(time.Second,
			approving(model.RoleEditor),
			&mockReviewer{
				role: model.RoleAuthenticity,
				reviewFn: func(ctx context.Context, topic string, version model.DocumentVersion) (model.Verdict, error) {
					return model.Verdict{}, errors.New("model returned garbage")
				},
			},
		)

		decision, verdicts, err := agg.Evaluate(ctx, "topic", version)

		Expect(err).NotTo(HaveOccurred())
		Expect(decision.AllApproved).To(BeFalse())

		var failed model.Verdict
		for _, v := range verdicts {
			if v.Role == model.RoleAuthenticity {
				failed = v
			}
		}
		Expect(failed.Malformed).To(BeTrue())
		Expect(failed.Approved).To(BeFalse())
		Expect(failed.Issues).To(HaveLen(1))
		Expect(failed.Issues[0].Severity).To(Equal(model.SeverityCritical))
	})

	It("errors when no reviewers are registered", func() {
		agg := review.NewAggregator(time.Second)

		_, _, err := agg.Evaluate(ctx, "topic", version)

		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Fold", func() {
	score := func(s float64) *float64 { return &s }

	It("never approves an empty verdict set", func() {
		decision := review.Fold(1, nil)
		Expect(decision.AllApproved).To(BeFalse())
	})

	It("flags research when the fact checker saw a source issue", func() {
		decision := review.Fold(1, []model.Verdict{
			{Role: model.RoleFactChecker, Approved: false, SourceIssue: true, Score: score(85)},
		})

		Expect(decision.NeedsResearch).To(BeTrue())
	})

	It("flags research on a low fact score without approval", func() {
		decision := review.Fold(1, []model.Verdict{
			{Role: model.RoleFactChecker, Approved: false, Score: score(60)},
		})

		Expect(decision.NeedsResearch).To(BeTrue())
	})

	It("does not flag research when the fact checker approved", func() {
		decision := review.Fold(1, []model.Verdict{
			{Role: model.RoleFactChecker, Approved: true, Score: score(90)},
			{Role: model.RoleEditor, Approved: false},
		})

		Expect(decision.NeedsResearch).To(BeFalse())
	})

	It("extracts research gaps from fact-checker source and citation issues", func() {
		decision := review.Fold(1, []model.Verdict{
			{
				Role: model.RoleFactChecker, Approved: false, SourceIssue: true, Score: score(50),
				Issues: []model.Issue{
					{Role: model.RoleFactChecker, Severity: model.SeverityHigh, Type: "source", Text: "no source for the revenue figure"},
					{Role: model.RoleFactChecker, Severity: model.SeverityLow, Type: "style", Text: "awkward phrasing"},
				},
			},
			{
				Role: model.RoleEditor, Approved: false,
				Issues: []model.Issue{
					{Role: model.RoleEditor, Severity: model.SeverityHigh, Type: "structure", Text: "intro buries the lede"},
				},
			},
		})

		Expect(decision.NeedsResearch).To(BeTrue())
		Expect(decision.ResearchGaps).To(ConsistOf("no source for the revenue figure"))
	})

	It("includes editor notes that ask for sourcing work in the gaps", func() {
		decision := review.Fold(1, []model.Verdict{
			{
				Role: model.RoleFactChecker, Approved: false, SourceIssue: true, Score: score(50),
				Issues: []model.Issue{
					{Role: model.RoleFactChecker, Severity: model.SeverityCritical, Type: "accuracy", Text: "the market size figure is wrong"},
				},
			},
			{
				Role: model.RoleEditor, Approved: false,
				Issues: []model.Issue{
					{Role: model.RoleEditor, Severity: model.SeverityMedium, Type: "depth", Text: "needs more research on the regulatory angle"},
					{Role: model.RoleEditor, Severity: model.SeverityHigh, Type: "structure", Text: "intro buries the lede"},
				},
			},
		})

		Expect(decision.ResearchGaps).To(ConsistOf(
			"the market size figure is wrong",
			"needs more research on the regulatory angle",
		))
	})

	It("excludes low-severity source issues from the gaps", func() {
		decision := review.Fold(1, []model.Verdict{
			{
				Role: model.RoleFactChecker, Approved: false, SourceIssue: true, Score: score(50),
				Issues: []model.Issue{
					{Role: model.RoleFactChecker, Severity: model.SeverityHigh, Type: "source", Text: "no source for the revenue figure"},
					{Role: model.RoleFactChecker, Severity: model.SeverityLow, Type: "source", Text: "a second citation would not hurt"},
					{Role: model.RoleFactChecker, Severity: model.SeverityMedium, Type: "citation", Text: "citation formatting is loose"},
				},
			},
		})

		Expect(decision.ResearchGaps).To(ConsistOf("no source for the revenue figure"))
	})
})

var _ = Describe("MergeIssues", func() {
	It("deduplicates by normalized text and keeps the more severe copy", func() {
		merged := review.MergeIssues([]model.Issue{
			{Role: model.RoleEditor, Severity: model.SeverityLow, Text: "The  Conclusion repeats the INTRO"},
			{Role: model.RoleAuthenticity, Severity: model.SeverityHigh, Text: "the conclusion repeats the intro"},
		})

		Expect(merged).To(HaveLen(1))
		Expect(merged[0].Severity).To(Equal(model.SeverityHigh))
		Expect(merged[0].Role).To(Equal(model.RoleAuthenticity))
	})

	It("keeps the first copy when severities tie", func() {
		merged := review.MergeIssues([]model.Issue{
			{Role: model.RoleEditor, Severity: model.SeverityMedium, Text: "weak transitions"},
			{Role: model.RoleAuthenticity, Severity: model.SeverityMedium, Text: "weak transitions"},
		})

		Expect(merged).To(HaveLen(1))
		Expect(merged[0].Role).To(Equal(model.RoleEditor))
	})

	It("drops issues with empty text", func() {
		merged := review.MergeIssues([]model.Issue{
			{Role: model.RoleEditor, Severity: model.SeverityHigh, Text: "   "},
			{Role: model.RoleEditor, Severity: model.SeverityHigh, Text: "real issue"},
		})

		Expect(merged).To(HaveLen(1))
		Expect(merged[0].Text).To(Equal("real issue"))
	})

	It("orders factual problems before voice before editorial quality", func() {
		merged := review.MergeIssues([]model.Issue{
			{Role: model.RoleEditor, Severity: model.SeverityMedium, Text: "section order is odd"},
			{Role: model.RoleAuthenticity, Severity: model.SeverityHigh, Text: "formulaic transitions throughout"},
			{Role: model.RoleFactChecker, Severity: model.SeverityCritical, Text: "the launch date is wrong"},
			{Role: model.RoleEditor, Severity: model.SeverityCritical, Text: "missing the counterargument entirely"},
			{Role: model.RoleAuthenticity, Severity: model.SeverityCritical, Text: "reads like a press release"},
		})

		texts := make([]string, len(merged))
		for i, issue := range merged {
			texts[i] = issue.Text
		}
		Expect(texts).To(Equal([]string{
			"the launch date is wrong",
			"reads like a press release",
			"formulaic transitions throughout",
			"missing the counterargument entirely",
			"section order is odd",
		}))
	})

	It("ranks unknown roles after every known pairing", func() {
		merged := review.MergeIssues([]model.Issue{
			{Role: model.RoleUser, Severity: model.SeverityHigh, Text: "tighten the intro"},
			{Role: model.RoleEditor, Severity: model.SeverityLow, Text: "comma splice in paragraph two"},
		})

		Expect(merged[0].Role).To(Equal(model.RoleEditor))
		Expect(merged[1].Role).To(Equal(model.RoleUser))
	})
})
