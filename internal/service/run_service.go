package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"masthead.app/newsroom/common/id"
	"masthead.app/newsroom/common/logger"
	"masthead.app/newsroom/internal/model"
	"masthead.app/newsroom/internal/queue"
	"masthead.app/newsroom/internal/store"
)

var (
	ErrRunNotFound = errors.New("run not found")
	ErrRunFinished = errors.New("run already finished")
	ErrEmptyTopic  = errors.New("topic is required")
)

type StartRunParams struct {
	Topic   string
	TraceID *string
}

type ResumeRunParams struct {
	RunID        int64
	UserFeedback string
	TraceID      *string
}

// RunService accepts editorial work over the API and hands it to the
// worker via the runs stream. It never executes the pipeline itself.
type RunService interface {
	StartRun(ctx context.Context, params StartRunParams) (*model.Run, error)
	ResumeRun(ctx context.Context, params ResumeRunParams) (*model.Run, error)
	GetRun(ctx context.Context, runID int64) (*model.Run, error)
	GetState(ctx context.Context, runID int64) (*model.RunState, error)
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
}

type runService struct {
	runs     store.RunStore
	producer queue.Producer
	logger   *slog.Logger
}

func NewRunService(runs store.RunStore, producer queue.Producer, log *slog.Logger) RunService {
	if log == nil {
		log = slog.Default()
	}
	return &runService{runs: runs, producer: producer, logger: log}
}

func (s *runService) StartRun(ctx context.Context, params StartRunParams) (*model.Run, error) {
	topic := strings.TrimSpace(params.Topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	run := &model.Run{
		ID:        id.New(),
		Topic:     topic,
		Status:    model.RunStatusQueued,
		CreatedAt: time.Now(),
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}

	msg := queue.RunMessage{
		TaskType: queue.TaskTypeRunPipeline,
		RunID:    run.ID,
		Topic:    run.Topic,
		TraceID:  traceID(ctx, params.TraceID),
	}
	if err := s.producer.Enqueue(ctx, msg); err != nil {
		return nil, fmt.Errorf("enqueueing run %d: %w", run.ID, err)
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{RunID: &run.ID, Topic: &run.Topic})
	s.logger.InfoContext(ctx, "run accepted")
	return run, nil
}

func (s *runService) ResumeRun(ctx context.Context, params ResumeRunParams) (*model.Run, error) {
	run, err := s.runs.GetRun(ctx, params.RunID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("fetching run %d: %w", params.RunID, err)
	}

	// A finished run can only move again on new user feedback, which spawns
	// a fresh revision of the final version. Resuming an unfinished run with
	// no feedback picks up where an interrupted worker left off.
	feedback := strings.TrimSpace(params.UserFeedback)
	if run.Status.Terminal() && feedback == "" {
		return nil, ErrRunFinished
	}

	msg := queue.RunMessage{
		TaskType:     queue.TaskTypeResumeRun,
		RunID:        run.ID,
		UserFeedback: feedback,
		TraceID:      traceID(ctx, params.TraceID),
	}
	if err := s.producer.Enqueue(ctx, msg); err != nil {
		return nil, fmt.Errorf("enqueueing resume for run %d: %w", run.ID, err)
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{RunID: &run.ID})
	s.logger.InfoContext(ctx, "resume accepted", slog.Bool("with_feedback", feedback != ""))
	return run, nil
}

func (s *runService) GetRun(ctx context.Context, runID int64) (*model.Run, error) {
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("fetching run %d: %w", runID, err)
	}
	return run, nil
}

func (s *runService) GetState(ctx context.Context, runID int64) (*model.RunState, error) {
	state, err := s.runs.LoadState(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("loading state for run %d: %w", runID, err)
	}
	return state, nil
}

func (s *runService) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	runs, err := s.runs.ListRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

func traceID(ctx context.Context, explicit *string) *string {
	if explicit != nil && *explicit != "" {
		return explicit
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		tid := sc.TraceID().String()
		return &tid
	}
	return nil
}
