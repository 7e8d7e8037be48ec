package usecase

import (
	"context"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/usecase/shared"
)

// ShowTaskInput contains the parameters for showing a task.
type ShowTaskInput struct {
	TaskID string
}

// ShowTaskOutput contains the task with its audit history.
// Fields are ordered to minimize memory padding.
type ShowTaskOutput struct {
	Task              *domain.Task
	History           []domain.AuditEntry // Oldest first
	UnmetDependencies []string            // Predecessors not yet completed
}

// ShowTask is the use case for displaying task details.
type ShowTask struct {
	tasks    domain.TaskRepository
	audit    domain.AuditLog
	resolver *shared.Resolver
	timeout  time.Duration
}

// NewShowTask creates a new ShowTask use case.
func NewShowTask(tasks domain.TaskRepository, audit domain.AuditLog, resolver *shared.Resolver, timeout time.Duration) *ShowTask {
	return &ShowTask{
		tasks:    tasks,
		audit:    audit,
		resolver: resolver,
		timeout:  timeout,
	}
}

// Execute retrieves the task, its history and its unmet dependencies.
func (uc *ShowTask) Execute(ctx context.Context, in ShowTaskInput) (*ShowTaskOutput, error) {
	task, err := shared.GetTask(ctx, uc.tasks, in.TaskID, uc.timeout)
	if err != nil {
		return nil, err
	}

	sctx, cancel := shared.StoreContext(ctx, uc.timeout)
	history, err := uc.audit.ListAudit(sctx, task.ID)
	cancel()
	if err != nil {
		return nil, domain.NewTaskError(domain.StorageFailure("list audit", err), task.ID, "")
	}

	unmet, err := uc.resolver.UnmetDependencies(ctx, task)
	if err != nil {
		return nil, err
	}

	return &ShowTaskOutput{
		Task:              task,
		History:           history,
		UnmetDependencies: unmet,
	}, nil
}
