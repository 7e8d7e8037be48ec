package usecase

import (
	"context"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/usecase/shared"
)

// FailTaskInput contains the parameters for failing a task.
type FailTaskInput struct {
	TaskID       string
	ErrorMessage string // Required
	Actor        string
}

// FailTaskOutput contains the failed task.
type FailTaskOutput struct {
	Task        *domain.Task
	RetriesLeft int
}

// FailTask is the use case for marking an in-progress task as failed.
type FailTask struct {
	engine *shared.Engine
}

// NewFailTask creates a new FailTask use case.
func NewFailTask(engine *shared.Engine) *FailTask {
	return &FailTask{engine: engine}
}

// Execute records the failure. The error message is required.
func (uc *FailTask) Execute(ctx context.Context, in FailTaskInput) (*FailTaskOutput, error) {
	msg := in.ErrorMessage
	task, err := uc.engine.Apply(ctx, in.TaskID, shared.Change{
		To:           domain.StatusFailed,
		Trigger:      domain.TriggerUpdate,
		ErrorMessage: &msg,
		Actor:        in.Actor,
	})
	if err != nil {
		return nil, err
	}
	return &FailTaskOutput{Task: task, RetriesLeft: task.RetriesLeft()}, nil
}
