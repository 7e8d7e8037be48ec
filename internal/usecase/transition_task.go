package usecase

import (
	"context"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/usecase/shared"
)

// TransitionTaskInput contains the parameters for a status update.
// Fields are ordered to minimize memory padding.
type TransitionTaskInput struct {
	Progress     *int          // New progress in [0,100] (optional)
	CurrentStep  *string       // New current step (optional)
	ErrorMessage *string       // Required when Status is failed
	TaskID       string        // Task to update
	Status       domain.Status // Target status
	Actor        string        // Recorded in the audit entry (default "system")
	Reason       string        // Recorded in the audit entry (optional)
}

// TransitionTaskOutput contains the result of a status update.
// When the task completed, Ready lists successors that became ready and
// ResolveErr reports successors that could not be evaluated.
type TransitionTaskOutput struct {
	ResolveErr error
	Task       *domain.Task
	Ready      []*domain.Task
}

// TransitionTask is the use case for moving a task to a new status.
// Retry and sweep edges are reserved for RetryTask and MarkStale.
type TransitionTask struct {
	engine   *shared.Engine
	resolver *shared.Resolver
}

// NewTransitionTask creates a new TransitionTask use case.
func NewTransitionTask(engine *shared.Engine, resolver *shared.Resolver) *TransitionTask {
	return &TransitionTask{engine: engine, resolver: resolver}
}

// Execute applies the status update.
func (uc *TransitionTask) Execute(ctx context.Context, in TransitionTaskInput) (*TransitionTaskOutput, error) {
	task, err := uc.engine.Apply(ctx, in.TaskID, shared.Change{
		To:           in.Status,
		Trigger:      domain.TriggerUpdate,
		Progress:     in.Progress,
		CurrentStep:  in.CurrentStep,
		ErrorMessage: in.ErrorMessage,
		Actor:        in.Actor,
		Reason:       in.Reason,
	})
	if err != nil {
		return nil, err
	}

	out := &TransitionTaskOutput{Task: task}
	if task.Status == domain.StatusCompleted {
		out.Ready, out.ResolveErr = uc.resolver.OnTaskCompleted(ctx, task.ID)
	}
	return out, nil
}
