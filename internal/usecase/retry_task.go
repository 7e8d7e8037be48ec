package usecase

import (
	"context"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/usecase/shared"
)

// RetryTaskInput contains the parameters for retrying a task.
type RetryTaskInput struct {
	TaskID string
	Actor  string
}

// RetryTaskOutput contains the re-queued task.
type RetryTaskOutput struct {
	Task *domain.Task
}

// RetryTask is the use case for re-queueing a failed task.
// It only resets state; re-running the work is up to the caller.
type RetryTask struct {
	engine *shared.Engine
}

// NewRetryTask creates a new RetryTask use case.
func NewRetryTask(engine *shared.Engine) *RetryTask {
	return &RetryTask{engine: engine}
}

// Execute moves a failed task back to pending, consuming one retry.
func (uc *RetryTask) Execute(ctx context.Context, in RetryTaskInput) (*RetryTaskOutput, error) {
	task, err := uc.engine.Apply(ctx, in.TaskID, shared.Change{
		To:      domain.StatusPending,
		Trigger: domain.TriggerRetry,
		Actor:   in.Actor,
		Check: func(t *domain.Task) error {
			if t.Status != domain.StatusFailed {
				return domain.NewTaskError(domain.ErrInvalidState, t.ID,
					"only failed tasks can be retried (status is "+string(t.Status)+")")
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return &RetryTaskOutput{Task: task}, nil
}
