package worker

import (
	"context"
	"errors"
	"fmt"

	"masthead.app/newsroom/internal/controller"
	"masthead.app/newsroom/internal/model"
	"masthead.app/newsroom/internal/queue"
	"masthead.app/newsroom/internal/retry"
	"masthead.app/newsroom/internal/store"
)

// PipelineProcessor dispatches queue tasks to the run controller.
type PipelineProcessor struct {
	controller *controller.Controller
	runs       store.RunStore
}

func NewPipelineProcessor(ctrl *controller.Controller, runs store.RunStore) *PipelineProcessor {
	return &PipelineProcessor{controller: ctrl, runs: runs}
}

func (p *PipelineProcessor) Process(ctx context.Context, msg queue.Message) error {
	switch msg.TaskType {
	case queue.TaskTypeRunPipeline:
		return p.processRun(ctx, msg)
	case queue.TaskTypeResumeRun:
		return p.controller.Resume(ctx, msg.RunID, msg.UserFeedback)
	default:
		// Unknown types never succeed on retry.
		return retry.Fatal(fmt.Errorf("unknown task type %q", msg.TaskType))
	}
}

func (p *PipelineProcessor) processRun(ctx context.Context, msg queue.Message) error {
	run, err := p.runs.GetRun(ctx, msg.RunID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return retry.Fatal(err)
		}
		return err
	}

	if run.Status.Terminal() {
		// Redelivered message for a finished run; nothing to do.
		return nil
	}

	if run.Status != model.RunStatusQueued {
		// Redelivered message for a run that already started; resume it
		// from persisted state rather than starting over.
		return p.controller.Resume(ctx, run.ID, "")
	}

	return p.controller.Run(ctx, run)
}
