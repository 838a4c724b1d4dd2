package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// fastExecutor swaps the real sleep for one that records requested delays.
func fastExecutor(policy Policy) (*Executor, *[]time.Duration) {
	exec := New(policy)
	var delays []time.Duration
	exec.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return exec, &delays
}

var _ = Describe("Executor", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("returns immediately on first-try success", func() {
		exec, delays := fastExecutor(Policy{Name: "test", MaxAttempts: 3, BaseDelay: 10 * time.Millisecond})

		calls := 0
		err := exec.Do(ctx, func(ctx context.Context) error {
			calls++
			return nil
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal(1))
		Expect(*delays).To(BeEmpty())
	})

	It("retries transient failures with exponential backoff", func() {
		exec, delays := fastExecutor(Policy{Name: "test", MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, Multiplier: 2})

		calls := 0
		err := exec.Do(ctx, func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal(3))
		Expect(*delays).To(Equal([]time.Duration{10 * time.Millisecond, 20 * time.Millisecond}))
	})

	It("wraps the final error as fatal when attempts are exhausted", func() {
		exec, _ := fastExecutor(Policy{Name: "test", MaxAttempts: 3, BaseDelay: time.Millisecond})

		calls := 0
		err := exec.Do(ctx, func(ctx context.Context) error {
			calls++
			return errors.New("always failing")
		})

		Expect(err).To(HaveOccurred())
		Expect(calls).To(Equal(3))
		Expect(IsFatal(err)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("exhausted 3 attempts"))
	})

	It("does not retry errors the classifier rejects", func() {
		exec, delays := fastExecutor(Policy{
			Name:        "test",
			MaxAttempts: 5,
			BaseDelay:   time.Millisecond,
			Classify: func(ctx context.Context, err error) bool {
				return false
			},
		})

		calls := 0
		err := exec.Do(ctx, func(ctx context.Context) error {
			calls++
			return errors.New("permanent")
		})

		Expect(err).To(HaveOccurred())
		Expect(calls).To(Equal(1))
		Expect(IsFatal(err)).To(BeTrue())
		Expect(*delays).To(BeEmpty())
	})

	It("gives up immediately on an error already marked fatal", func() {
		exec, _ := fastExecutor(Policy{Name: "outer", MaxAttempts: 3, BaseDelay: time.Millisecond})

		inner := Fatal(errors.New("inner layer gave up"))
		calls := 0
		err := exec.Do(ctx, func(ctx context.Context) error {
			calls++
			return inner
		})

		Expect(err).To(HaveOccurred())
		Expect(calls).To(Equal(1))
		Expect(IsFatal(err)).To(BeTrue())
	})

	It("does not retry context cancellation", func() {
		exec, _ := fastExecutor(Policy{Name: "test", MaxAttempts: 5, BaseDelay: time.Millisecond})

		cancelled, cancel := context.WithCancel(ctx)
		calls := 0
		err := exec.Do(cancelled, func(ctx context.Context) error {
			calls++
			cancel()
			return context.Canceled
		})

		Expect(err).To(HaveOccurred())
		Expect(calls).To(Equal(1))
		Expect(IsFatal(err)).To(BeTrue())
	})

	It("stops retrying when the layer deadline expires", func() {
		exec := New(Policy{
			Name:        "test",
			MaxAttempts: 10,
			BaseDelay:   50 * time.Millisecond,
			Deadline:    10 * time.Millisecond,
		})

		calls := 0
		err := exec.Do(ctx, func(ctx context.Context) error {
			calls++
			return errors.New("transient")
		})

		Expect(err).To(HaveOccurred())
		Expect(calls).To(BeNumerically("<", 10))
		Expect(IsFatal(err)).To(BeTrue())
		Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
	})

	It("applies jitter within the backoff window", func() {
		exec, delays := fastExecutor(Policy{Name: "test", MaxAttempts: 4, BaseDelay: 100 * time.Millisecond, Multiplier: 2, Jitter: true})

		_ = exec.Do(ctx, func(ctx context.Context) error {
			return errors.New("transient")
		})

		Expect(*delays).To(HaveLen(3))
		for i, d := range *delays {
			ceiling := 100 * time.Millisecond * (1 << i)
			Expect(d).To(BeNumerically("<", ceiling))
			Expect(d).To(BeNumerically(">=", 0))
		}
	})
})

var _ = Describe("Execute", func() {
	It("returns the operation's value on success", func() {
		exec, _ := fastExecutor(Policy{Name: "test", MaxAttempts: 3, BaseDelay: time.Millisecond})

		calls := 0
		out, err := Execute(context.Background(), exec, func(ctx context.Context) (string, error) {
			calls++
			if calls < 2 {
				return "", errors.New("transient")
			}
			return "done", nil
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("done"))
	})

	It("returns the zero value alongside a fatal error", func() {
		exec, _ := fastExecutor(Policy{Name: "test", MaxAttempts: 2, BaseDelay: time.Millisecond})

		out, err := Execute(context.Background(), exec, func(ctx context.Context) (int, error) {
			return 0, errors.New("always failing")
		})

		Expect(err).To(HaveOccurred())
		Expect(out).To(BeZero())
	})
})

var _ = Describe("Fatal", func() {
	It("returns nil for nil", func() {
		Expect(Fatal(nil)).To(BeNil())
	})

	It("is detectable through wrapping", func() {
		err := fmt.Errorf("stage: %w", Fatal(errors.New("boom")))
		Expect(IsFatal(err)).To(BeTrue())
	})

	It("is false for ordinary errors", func() {
		Expect(IsFatal(errors.New("boom"))).To(BeFalse())
	})
})
