package research_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"masthead.app/newsroom/internal/model"
	"masthead.app/newsroom/internal/research"
)

type mockAnalyst struct {
	questionsFn func(ctx context.Context, topic string, state *model.ResearchState, gaps []string) ([]string, error)
	assessFn    func(ctx context.Context, topic string, state *model.ResearchState) (float64, []string, error)
}

func (m *mockAnalyst) Questions(ctx context.Context, topic string, state *model.ResearchState, gaps []string) ([]string, error) {
	if m.questionsFn != nil {
		return m.questionsFn(ctx, topic, state, gaps)
	}
	return []string{"what is " + topic}, nil
}

func (m *mockAnalyst) Assess(ctx context.Context, topic string, state *model.ResearchState) (float64, []string, error) {
	if m.assessFn != nil {
		return m.assessFn(ctx, topic, state)
	}
	return 1.0, nil, nil
}

type mockSearcher struct {
	searchFn func(ctx context.Context, query string, maxResults int) ([]model.Finding, error)
}

func (m *mockSearcher) Name() string { return "mock" }

func (m *mockSearcher) Search(ctx context.Context, query string, maxResults int) ([]model.Finding, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query, maxResults)
	}
	return nil, nil
}

type mockRecorder struct {
	mu       sync.Mutex
	recorded []model.Finding
	err      error
}

func (m *mockRecorder) RecordFindings(ctx context.Context, runID int64, findings []model.Finding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.recorded = append(m.recorded, findings...)
	return nil
}

func finding(url string) model.Finding {
	return model.Finding{Source: "mock", Title: "t", URL: url, Content: "body"}
}

var _ = Describe("Loop", func() {
	var (
		ctx      context.Context
		recorder *mockRecorder
	)

	BeforeEach(func() {
		ctx = context.Background()
		recorder = &mockRecorder{}
	})

	Describe("Run", func() {
		It("stops as soon as confidence crosses the threshold", func() {
			iterations := 0
			analyst := &mockAnalyst{
				assessFn: func(ctx context.Context, topic string, state *model.ResearchState) (float64, []string, error) {
					iterations++
					if iterations >= 3 {
						return 0.9, nil, nil
					}
					return 0.4, []string{"still missing numbers"}, nil
				},
			}
			searcher := &mockSearcher{
				searchFn: func(ctx context.Context, query string, maxResults int) ([]model.Finding, error) {
					return []model.Finding{finding(fmt.Sprintf("https://example.com/%d", iterations))}, nil
				},
			}

			loop := research.NewLoop(analyst, searcher, recorder, research.Config{MaxIterations: 6, ConfidenceThreshold: 0.8})
			state, err := loop.Run(ctx, 1, "container networking")

			Expect(err).NotTo(HaveOccurred())
			Expect(state.IterationCount).To(Equal(3))
			Expect(state.CapReached).To(BeFalse())
			Expect(state.Confidence).To(BeNumerically(">=", 0.8))
		})

		It("treats the iteration cap as a warning, not an error", func() {
			analyst := &mockAnalyst{
				assessFn: func(ctx context.Context, topic string, state *model.ResearchState) (float64, []string, error) {
					return 0.3, []string{"thin coverage"}, nil
				},
			}

			loop := research.NewLoop(analyst, &mockSearcher{}, recorder, research.Config{MaxIterations: 4, ConfidenceThreshold: 0.8})
			state, err := loop.Run(ctx, 1, "topic")

			Expect(err).NotTo(HaveOccurred())
			Expect(state.CapReached).To(BeTrue())
			Expect(state.IterationCount).To(Equal(4))
		})

		It("keeps the high-water confidence when a later assessment reads lower", func() {
			readings := []float64{0.6, 0.4, 0.9}
			call := 0
			analyst := &mockAnalyst{
				assessFn: func(ctx context.Context, topic string, state *model.ResearchState) (float64, []string, error) {
					c := readings[call]
					call++
					return c, nil, nil
				},
			}

			loop := research.NewLoop(analyst, &mockSearcher{}, recorder, research.Config{MaxIterations: 3, ConfidenceThreshold: 0.8})
			state, err := loop.Run(ctx, 1, "topic")

			Expect(err).NotTo(HaveOccurred())
			// After the second iteration, confidence must still read 0.6.
			Expect(state.Confidence).To(BeNumerically(">=", 0.8))
			Expect(state.IterationCount).To(Equal(3))
		})

		It("deduplicates findings by URL across iterations", func() {
			searcher := &mockSearcher{
				searchFn: func(ctx context.Context, query string, maxResults int) ([]model.Finding, error) {
					return []model.Finding{finding("https://example.com/same"), finding("https://example.com/same")}, nil
				},
			}
			analyst := &mockAnalyst{
				assessFn: func(ctx context.Context, topic string, state *model.ResearchState) (float64, []string, error) {
					return 0.1, nil, nil
				},
			}

			loop := research.NewLoop(analyst, searcher, recorder, research.Config{MaxIterations: 3, ConfidenceThreshold: 0.8})
			state, err := loop.Run(ctx, 1, "topic")

			Expect(err).NotTo(HaveOccurred())
			Expect(state.Findings).To(HaveLen(1))
			Expect(recorder.recorded).To(HaveLen(1))
		})

		It("stamps each finding with the question that produced it", func() {
			analyst := &mockAnalyst{
				questionsFn: func(ctx context.Context, topic string, state *model.ResearchState, gaps []string) ([]string, error) {
					return []string{"how fast is it"}, nil
				},
			}
			searcher := &mockSearcher{
				searchFn: func(ctx context.Context, query string, maxResults int) ([]model.Finding, error) {
					return []model.Finding{finding("https://example.com/a")}, nil
				},
			}

			loop := research.NewLoop(analyst, searcher, recorder, research.Config{MaxIterations: 1, ConfidenceThreshold: 0.8})
			state, err := loop.Run(ctx, 1, "topic")

			Expect(err).NotTo(HaveOccurred())
			Expect(state.Findings[0].Contribution).To(Equal("how fast is it"))
		})

		It("continues when every search for a question fails", func() {
			searcher := &mockSearcher{
				searchFn: func(ctx context.Context, query string, maxResults int) ([]model.Finding, error) {
					return nil, errors.New("upstream down")
				},
			}

			loop := research.NewLoop(&mockAnalyst{}, searcher, recorder, research.Config{MaxIterations: 2, ConfidenceThreshold: 0.8})
			state, err := loop.Run(ctx, 1, "topic")

			Expect(err).NotTo(HaveOccurred())
			Expect(state.Findings).To(BeEmpty())
		})

		It("fails when planning questions fails", func() {
			analyst := &mockAnalyst{
				questionsFn: func(ctx context.Context, topic string, state *model.ResearchState, gaps []string) ([]string, error) {
					return nil, errors.New("planner unavailable")
				},
			}

			loop := research.NewLoop(analyst, &mockSearcher{}, recorder, research.Config{})
			_, err := loop.Run(ctx, 1, "topic")

			Expect(err).To(HaveOccurred())
		})

		It("fails when persisting findings fails", func() {
			recorder.err = errors.New("memory unavailable")
			searcher := &mockSearcher{
				searchFn: func(ctx context.Context, query string, maxResults int) ([]model.Finding, error) {
					return []model.Finding{finding("https://example.com/a")}, nil
				},
			}

			loop := research.NewLoop(&mockAnalyst{}, searcher, recorder, research.Config{})
			_, err := loop.Run(ctx, 1, "topic")

			Expect(err).To(HaveOccurred())
		})

		It("stops on a cancelled context", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			loop := research.NewLoop(&mockAnalyst{}, &mockSearcher{}, recorder, research.Config{})
			_, err := loop.Run(cancelled, 1, "topic")

			Expect(err).To(MatchError(context.Canceled))
		})
	})

	Describe("Augment", func() {
		It("runs exactly one iteration even past the cap", func() {
			var seenGaps []string
			analyst := &mockAnalyst{
				questionsFn: func(ctx context.Context, topic string, state *model.ResearchState, gaps []string) ([]string, error) {
					seenGaps = gaps
					return []string{"verify the revenue figure"}, nil
				},
				assessFn: func(ctx context.Context, topic string, state *model.ResearchState) (float64, []string, error) {
					return 0.5, nil, nil
				},
			}
			searcher := &mockSearcher{
				searchFn: func(ctx context.Context, query string, maxResults int) ([]model.Finding, error) {
					return []model.Finding{finding("https://example.com/revenue")}, nil
				},
			}

			loop := research.NewLoop(analyst, searcher, recorder, research.Config{MaxIterations: 2, ConfidenceThreshold: 0.8})
			state := &model.ResearchState{Topic: "topic", IterationCount: 2}

			err := loop.Augment(ctx, 1, state, []string{"no source for the revenue figure"})

			Expect(err).NotTo(HaveOccurred())
			Expect(state.IterationCount).To(Equal(3))
			Expect(state.Findings).To(HaveLen(1))
			Expect(seenGaps).To(ConsistOf("no source for the revenue figure"))
		})

		It("never lowers the existing confidence", func() {
			analyst := &mockAnalyst{
				assessFn: func(ctx context.Context, topic string, state *model.ResearchState) (float64, []string, error) {
					return 0.2, nil, nil
				},
			}

			loop := research.NewLoop(analyst, &mockSearcher{}, recorder, research.Config{})
			state := &model.ResearchState{Topic: "topic", Confidence: 0.7}

			Expect(loop.Augment(ctx, 1, state, nil)).To(Succeed())
			Expect(state.Confidence).To(Equal(0.7))
		})
	})
})
