package usecase

import (
	"context"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/usecase/shared"
)

// UpdateProgressInput contains the parameters for reporting progress.
type UpdateProgressInput struct {
	CurrentStep *string // New current step (optional)
	TaskID      string
	Progress    int // New progress in [0,100]
}

// UpdateProgressOutput contains the updated task.
type UpdateProgressOutput struct {
	Task *domain.Task
}

// UpdateProgress is the use case for reporting progress without a status change.
// It refreshes the staleness clock and writes no audit entry.
type UpdateProgress struct {
	engine *shared.Engine
}

// NewUpdateProgress creates a new UpdateProgress use case.
func NewUpdateProgress(engine *shared.Engine) *UpdateProgress {
	return &UpdateProgress{engine: engine}
}

// Execute records progress on an in-progress or waiting task.
func (uc *UpdateProgress) Execute(ctx context.Context, in UpdateProgressInput) (*UpdateProgressOutput, error) {
	if err := shared.ValidateProgress(in.TaskID, in.Progress); err != nil {
		return nil, err
	}

	task, err := uc.engine.Update(ctx, in.TaskID, func(t *domain.Task) error {
		if t.Status != domain.StatusInProgress && t.Status != domain.StatusWaitingUser {
			return domain.NewTaskError(domain.ErrInvalidState, t.ID,
				"progress can only be reported while in_progress or waiting_user (status is "+string(t.Status)+")")
		}
		t.Progress = in.Progress
		if in.CurrentStep != nil {
			t.CurrentStep = *in.CurrentStep
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &UpdateProgressOutput{Task: task}, nil
}
