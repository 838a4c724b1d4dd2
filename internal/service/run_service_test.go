package service_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"masthead.app/newsroom/internal/model"
	"masthead.app/newsroom/internal/queue"
	"masthead.app/newsroom/internal/service"
	"masthead.app/newsroom/internal/store"
)

var _ = Describe("RunService", func() {
	var (
		ctx      context.Context
		runs     *mockRunStore
		producer *mockProducer
		svc      service.RunService
	)

	BeforeEach(func() {
		ctx = context.Background()
		runs = &mockRunStore{}
		producer = &mockProducer{}
		svc = service.NewRunService(runs, producer, nil)
	})

	Describe("StartRun", func() {
		It("creates a queued run and enqueues the pipeline task", func() {
			run, err := svc.StartRun(ctx, service.StartRunParams{Topic: "quantum error correction"})

			Expect(err).NotTo(HaveOccurred())
			Expect(run.ID).NotTo(BeZero())
			Expect(run.Status).To(Equal(model.RunStatusQueued))
			Expect(run.CreatedAt).NotTo(BeZero())

			Expect(runs.created).To(HaveLen(1))
			Expect(producer.enqueued).To(HaveLen(1))
			Expect(producer.enqueued[0].TaskType).To(Equal(queue.TaskTypeRunPipeline))
			Expect(producer.enqueued[0].RunID).To(Equal(run.ID))
			Expect(producer.enqueued[0].Topic).To(Equal("quantum error correction"))
		})

		It("trims the topic", func() {
			run, err := svc.StartRun(ctx, service.StartRunParams{Topic: "  spaced out  "})

			Expect(err).NotTo(HaveOccurred())
			Expect(run.Topic).To(Equal("spaced out"))
		})

		It("rejects an empty topic", func() {
			_, err := svc.StartRun(ctx, service.StartRunParams{Topic: "   "})

			Expect(err).To(MatchError(service.ErrEmptyTopic))
			Expect(runs.created).To(BeEmpty())
			Expect(producer.enqueued).To(BeEmpty())
		})

		It("forwards an explicit trace id", func() {
			tid := "0af7651916cd43dd8448eb211c80319c"
			_, err := svc.StartRun(ctx, service.StartRunParams{Topic: "t", TraceID: &tid})

			Expect(err).NotTo(HaveOccurred())
			Expect(producer.enqueued[0].TraceID).NotTo(BeNil())
			Expect(*producer.enqueued[0].TraceID).To(Equal(tid))
		})

		It("surfaces enqueue failures", func() {
			producer.err = errors.New("stream unavailable")

			_, err := svc.StartRun(ctx, service.StartRunParams{Topic: "t"})

			Expect(err).To(MatchError(ContainSubstring("enqueueing run")))
		})
	})

	Describe("ResumeRun", func() {
		It("enqueues a resume task for an interrupted run", func() {
			runs.getRunFn = func(ctx context.Context, runID int64) (*model.Run, error) {
				return &model.Run{ID: runID, Status: model.RunStatusReviewing}, nil
			}

			run, err := svc.ResumeRun(ctx, service.ResumeRunParams{RunID: 42})

			Expect(err).NotTo(HaveOccurred())
			Expect(run.ID).To(Equal(int64(42)))
			Expect(producer.enqueued).To(HaveLen(1))
			Expect(producer.enqueued[0].TaskType).To(Equal(queue.TaskTypeResumeRun))
			Expect(producer.enqueued[0].UserFeedback).To(BeEmpty())
		})

		It("lets a finished run move again on user feedback", func() {
			runs.getRunFn = func(ctx context.Context, runID int64) (*model.Run, error) {
				return &model.Run{ID: runID, Status: model.RunStatusDone}, nil
			}

			_, err := svc.ResumeRun(ctx, service.ResumeRunParams{RunID: 42, UserFeedback: "add a section on costs"})

			Expect(err).NotTo(HaveOccurred())
			Expect(producer.enqueued[0].UserFeedback).To(Equal("add a section on costs"))
		})

		It("rejects a finished run without feedback", func() {
			runs.getRunFn = func(ctx context.Context, runID int64) (*model.Run, error) {
				return &model.Run{ID: runID, Status: model.RunStatusAbandoned}, nil
			}

			_, err := svc.ResumeRun(ctx, service.ResumeRunParams{RunID: 42, UserFeedback: "   "})

			Expect(err).To(MatchError(service.ErrRunFinished))
			Expect(producer.enqueued).To(BeEmpty())
		})

		It("maps a missing run to the service sentinel", func() {
			runs.getRunFn = func(ctx context.Context, runID int64) (*model.Run, error) {
				return nil, store.ErrRunNotFound
			}

			_, err := svc.ResumeRun(ctx, service.ResumeRunParams{RunID: 42})

			Expect(err).To(MatchError(service.ErrRunNotFound))
		})
	})

	Describe("ListRuns", func() {
		var requested int

		BeforeEach(func() {
			runs.listFn = func(ctx context.Context, limit int) ([]model.Run, error) {
				requested = limit
				return nil, nil
			}
		})

		It("defaults the limit", func() {
			_, err := svc.ListRuns(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(requested).To(Equal(50))
		})

		It("caps oversized limits", func() {
			_, err := svc.ListRuns(ctx, 1000)
			Expect(err).NotTo(HaveOccurred())
			Expect(requested).To(Equal(50))
		})

		It("passes a reasonable limit through", func() {
			_, err := svc.ListRuns(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(requested).To(Equal(10))
		})
	})

	Describe("GetState", func() {
		It("maps a missing run to the service sentinel", func() {
			runs.loadStateFn = func(ctx context.Context, runID int64) (*model.RunState, error) {
				return nil, store.ErrRunNotFound
			}

			_, err := svc.GetState(ctx, 42)

			Expect(err).To(MatchError(service.ErrRunNotFound))
		})
	})
})
