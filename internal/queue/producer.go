package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type RunMessage struct {
	TaskType     TaskType
	RunID        int64
	Topic        string
	UserFeedback string
	TraceID      *string
	Attempt      int
}

type Producer interface {
	Enqueue(ctx context.Context, msg RunMessage) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, msg RunMessage) error {
	attempt := msg.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	taskType := msg.TaskType
	if taskType == "" {
		taskType = TaskTypeRunPipeline
	}

	fields := map[string]any{
		"task_type": string(taskType),
		"run_id":    msg.RunID,
		"attempt":   attempt,
	}

	if msg.Topic != "" {
		fields["topic"] = msg.Topic
	}
	if msg.UserFeedback != "" {
		fields["user_feedback"] = msg.UserFeedback
	}
	if msg.TraceID != nil && *msg.TraceID != "" {
		fields["trace_id"] = *msg.TraceID
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Err(); err != nil {
		return fmt.Errorf("enqueue run task: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued run task", "task_type", taskType, "run_id", msg.RunID, "attempt", attempt)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
