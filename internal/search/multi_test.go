package search_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"masthead.app/newsroom/internal/model"
	"masthead.app/newsroom/internal/retry"
	"masthead.app/newsroom/internal/search"
)

// fakeSource fails its first failUntil calls, then serves findings.
type fakeSource struct {
	name      string
	findings  []model.Finding
	failUntil int
	calls     int
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) Search(ctx context.Context, query string, maxResults int) ([]model.Finding, error) {
	s.calls++
	if s.calls <= s.failUntil {
		return nil, errors.New("429 too many requests")
	}
	return s.findings, nil
}

func transportExec() *retry.Executor {
	return retry.New(retry.Policy{
		Name:        "search",
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Multiplier:  2,
	})
}

var _ = Describe("Multi", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("merges findings from every source", func() {
		a := &fakeSource{name: "knowledge", findings: []model.Finding{{Title: "background"}}}
		b := &fakeSource{name: "tavily", findings: []model.Finding{{Title: "fresh coverage"}}}

		findings, err := search.NewMulti(transportExec(), a, b).Search(ctx, "solid state batteries", 5)

		Expect(err).NotTo(HaveOccurred())
		Expect(findings).To(HaveLen(2))
	})

	It("retries a source through a transient failure", func() {
		flaky := &fakeSource{name: "tavily", failUntil: 2, findings: []model.Finding{{Title: "recovered"}}}

		findings, err := search.NewMulti(transportExec(), flaky).Search(ctx, "solid state batteries", 5)

		Expect(err).NotTo(HaveOccurred())
		Expect(flaky.calls).To(Equal(3))
		Expect(findings).To(HaveLen(1))
		Expect(findings[0].Title).To(Equal("recovered"))
	})

	It("skips a source that keeps failing and keeps the rest", func() {
		dead := &fakeSource{name: "tavily", failUntil: 10}
		alive := &fakeSource{name: "knowledge", findings: []model.Finding{{Title: "background"}}}

		findings, err := search.NewMulti(transportExec(), dead, alive).Search(ctx, "solid state batteries", 5)

		Expect(err).NotTo(HaveOccurred())
		Expect(dead.calls).To(Equal(3))
		Expect(findings).To(HaveLen(1))
	})

	It("returns an error only when every source fails", func() {
		dead := &fakeSource{name: "tavily", failUntil: 10}

		_, err := search.NewMulti(transportExec(), dead).Search(ctx, "solid state batteries", 5)

		Expect(err).To(MatchError(ContainSubstring("429")))
	})

	It("returns nothing when no sources are configured", func() {
		findings, err := search.NewMulti(transportExec()).Search(ctx, "solid state batteries", 5)

		Expect(err).NotTo(HaveOccurred())
		Expect(findings).To(BeEmpty())
	})
})
