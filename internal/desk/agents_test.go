package desk_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"masthead.app/newsroom/internal/desk"
	"masthead.app/newsroom/internal/model"
)

var _ = Describe("Writer", func() {
	var (
		ctx      context.Context
		research *model.ResearchState
	)

	BeforeEach(func() {
		ctx = context.Background()
		research = &model.ResearchState{Findings: []model.Finding{
			{Title: "Primary study", URL: "https://example.org/study", Content: "The effect replicates."},
		}}
	})

	It("returns the drafted article", func() {
		writer := desk.NewWriter(&mockLLM{payload: `{"article":"# Title\n\nThe effect replicates. [Source: https://example.org/study]"}`}, agentExec())

		article, err := writer.GenerateDraft(ctx, "replication crisis", research)

		Expect(err).NotTo(HaveOccurred())
		Expect(article).To(ContainSubstring("[Source: https://example.org/study]"))
	})

	It("rejects an empty draft", func() {
		writer := desk.NewWriter(&mockLLM{payload: `{"article":""}`}, agentExec())

		_, err := writer.GenerateDraft(ctx, "replication crisis", research)

		Expect(err).To(MatchError(ContainSubstring("empty article")))
	})

	It("wraps model failures with the drafting stage", func() {
		writer := desk.NewWriter(&mockLLM{err: errors.New("model offline")}, agentExec())

		_, err := writer.GenerateDraft(ctx, "replication crisis", research)

		Expect(err).To(MatchError(ContainSubstring("generating draft")))
		Expect(err).To(MatchError(ContainSubstring("model offline")))
	})

	It("returns the revised article", func() {
		writer := desk.NewWriter(&mockLLM{payload: `{"article":"# Title\n\nRevised body."}`}, agentExec())

		issues := []model.Issue{{Role: model.RoleEditor, Severity: model.SeverityHigh, Text: "conclusion missing"}}
		edits := []model.LineEdit{{Location: "very unique", Suggestion: "unique"}}

		article, err := writer.Revise(ctx, "replication crisis", "# Title\n\nOld body.", issues, edits, research)

		Expect(err).NotTo(HaveOccurred())
		Expect(article).To(Equal("# Title\n\nRevised body."))
	})

	It("rejects an empty revision", func() {
		writer := desk.NewWriter(&mockLLM{payload: `{"article":""}`}, agentExec())

		_, err := writer.Revise(ctx, "replication crisis", "draft", nil, nil, research)

		Expect(err).To(MatchError(ContainSubstring("revising draft")))
	})
})

var _ = Describe("Analyst", func() {
	var (
		ctx   context.Context
		state *model.ResearchState
	)

	BeforeEach(func() {
		ctx = context.Background()
		state = &model.ResearchState{}
	})

	Describe("Questions", func() {
		It("returns the proposed questions", func() {
			analyst := desk.NewAnalyst(&mockLLM{payload: `{"questions":["what changed in 2024?","who are the main vendors?"]}`}, agentExec())

			questions, err := analyst.Questions(ctx, "topic", state, nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(questions).To(Equal([]string{"what changed in 2024?", "who are the main vendors?"}))
		})

		It("caps the question list at five", func() {
			analyst := desk.NewAnalyst(&mockLLM{payload: `{"questions":["q1","q2","q3","q4","q5","q6","q7"]}`}, agentExec())

			questions, err := analyst.Questions(ctx, "topic", state, []string{"pricing is uncovered"})

			Expect(err).NotTo(HaveOccurred())
			Expect(questions).To(HaveLen(5))
			Expect(questions[4]).To(Equal("q5"))
		})

		It("propagates model failures", func() {
			analyst := desk.NewAnalyst(&mockLLM{err: errors.New("model offline")}, agentExec())

			_, err := analyst.Questions(ctx, "topic", state, nil)

			Expect(err).To(MatchError(ContainSubstring("generating research questions")))
		})
	})

	Describe("Assess", func() {
		It("returns confidence and gaps", func() {
			analyst := desk.NewAnalyst(&mockLLM{payload: `{"confidence":0.65,"gaps":["no primary sources"]}`}, agentExec())

			confidence, gaps, err := analyst.Assess(ctx, "topic", state)

			Expect(err).NotTo(HaveOccurred())
			Expect(confidence).To(Equal(0.65))
			Expect(gaps).To(Equal([]string{"no primary sources"}))
		})

		It("clamps confidence above one", func() {
			analyst := desk.NewAnalyst(&mockLLM{payload: `{"confidence":1.7,"gaps":[]}`}, agentExec())

			confidence, _, err := analyst.Assess(ctx, "topic", state)

			Expect(err).NotTo(HaveOccurred())
			Expect(confidence).To(Equal(1.0))
		})

		It("clamps confidence below zero", func() {
			analyst := desk.NewAnalyst(&mockLLM{payload: `{"confidence":-0.2,"gaps":[]}`}, agentExec())

			confidence, _, err := analyst.Assess(ctx, "topic", state)

			Expect(err).NotTo(HaveOccurred())
			Expect(confidence).To(Equal(0.0))
		})
	})
})

var _ = Describe("Humanizer", func() {
	var (
		ctx     context.Context
		version model.DocumentVersion
	)

	BeforeEach(func() {
		ctx = context.Background()
		version = model.DocumentVersion{RunID: 7, Number: 3, Text: "# Title\n\nApproved body."}
	})

	It("returns the humanized article", func() {
		humanizer := desk.NewHumanizer(&mockLLM{payload: `{"article":"# Title\n\nLooser, human body."}`}, agentExec())

		article, err := humanizer.Humanize(ctx, "topic", version)

		Expect(err).NotTo(HaveOccurred())
		Expect(article).To(Equal("# Title\n\nLooser, human body."))
	})

	It("returns the laid-out article", func() {
		humanizer := desk.NewHumanizer(&mockLLM{payload: `{"article":"# Title\n\nFormatted body."}`}, agentExec())

		article, err := humanizer.Layout(ctx, "topic", version)

		Expect(err).NotTo(HaveOccurred())
		Expect(article).To(Equal("# Title\n\nFormatted body."))
	})

	It("names the failing pass on an empty result", func() {
		humanizer := desk.NewHumanizer(&mockLLM{payload: `{"article":""}`}, agentExec())

		_, err := humanizer.Humanize(ctx, "topic", version)
		Expect(err).To(MatchError(ContainSubstring("humanize pass: empty article")))

		_, err = humanizer.Layout(ctx, "topic", version)
		Expect(err).To(MatchError(ContainSubstring("layout pass: empty article")))
	})
})
