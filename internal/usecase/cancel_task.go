package usecase

import (
	"context"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/usecase/shared"
)

// CancelTaskInput contains the parameters for cancelling a task.
type CancelTaskInput struct {
	TaskID string
	Actor  string
	Reason string
}

// CancelTaskOutput contains the cancelled task.
type CancelTaskOutput struct {
	Task *domain.Task
}

// CancelTask is the use case for cancelling a pending or in-progress task.
// Dependents are not cancelled; they stay blocked.
type CancelTask struct {
	engine *shared.Engine
}

// NewCancelTask creates a new CancelTask use case.
func NewCancelTask(engine *shared.Engine) *CancelTask {
	return &CancelTask{engine: engine}
}

// Execute cancels the task. Cancelling an already cancelled task is an
// invalid transition; any other status outside pending and in_progress is
// an invalid state.
func (uc *CancelTask) Execute(ctx context.Context, in CancelTaskInput) (*CancelTaskOutput, error) {
	task, err := uc.engine.Apply(ctx, in.TaskID, shared.Change{
		To:      domain.StatusCancelled,
		Trigger: domain.TriggerUpdate,
		Actor:   in.Actor,
		Reason:  in.Reason,
		Check: func(t *domain.Task) error {
			switch t.Status {
			case domain.StatusPending, domain.StatusInProgress, domain.StatusCancelled:
				return nil
			default:
				return domain.NewTaskError(domain.ErrInvalidState, t.ID,
					"only pending or in-progress tasks can be cancelled (status is "+string(t.Status)+")")
			}
		},
	})
	if err != nil {
		return nil, err
	}
	return &CancelTaskOutput{Task: task}, nil
}
