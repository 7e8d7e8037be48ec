package usecase

import (
	"context"
	"encoding/json"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/usecase/shared"
)

// CompleteTaskInput contains the parameters for completing a task.
type CompleteTaskInput struct {
	ResultData json.RawMessage // Opaque result payload (optional, must be JSON)
	TaskID     string
	Actor      string
	Reason     string
}

// CompleteTaskOutput contains the completed task and the successors it unblocked.
type CompleteTaskOutput struct {
	ResolveErr error          // Successors that could not be evaluated
	Task       *domain.Task   // The completed task
	Ready      []*domain.Task // Pending successors whose dependencies are now satisfied
}

// CompleteTask is the use case for completing a task with its result.
type CompleteTask struct {
	engine   *shared.Engine
	resolver *shared.Resolver
}

// NewCompleteTask creates a new CompleteTask use case.
func NewCompleteTask(engine *shared.Engine, resolver *shared.Resolver) *CompleteTask {
	return &CompleteTask{engine: engine, resolver: resolver}
}

// Execute completes the task, attaching the result, and reports the
// successors that may now be started. Successors are not transitioned.
func (uc *CompleteTask) Execute(ctx context.Context, in CompleteTaskInput) (*CompleteTaskOutput, error) {
	task, err := uc.engine.Apply(ctx, in.TaskID, shared.Change{
		To:         domain.StatusCompleted,
		Trigger:    domain.TriggerUpdate,
		ResultData: in.ResultData,
		Actor:      in.Actor,
		Reason:     in.Reason,
	})
	if err != nil {
		return nil, err
	}

	ready, resolveErr := uc.resolver.OnTaskCompleted(ctx, task.ID)
	return &CompleteTaskOutput{
		Task:       task,
		Ready:      ready,
		ResolveErr: resolveErr,
	}, nil
}
