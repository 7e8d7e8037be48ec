package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/usecase/shared"
)

// DeleteTaskInput contains the parameters for deleting a task.
type DeleteTaskInput struct {
	TaskID string
}

// DeleteTask is the use case for deleting a single task.
// Its audit history is kept. Dependents that still reference it stay blocked.
type DeleteTask struct {
	tasks   domain.TaskRepository
	sync    *shared.SessionSync
	locks   *shared.KeyedLocker
	logger  domain.Logger
	timeout time.Duration
}

// NewDeleteTask creates a new DeleteTask use case.
func NewDeleteTask(
	tasks domain.TaskRepository,
	sync *shared.SessionSync,
	locks *shared.KeyedLocker,
	logger domain.Logger,
	timeout time.Duration,
) *DeleteTask {
	return &DeleteTask{
		tasks:   tasks,
		sync:    sync,
		locks:   locks,
		logger:  logger,
		timeout: timeout,
	}
}

// Execute deletes the task and refreshes its session.
func (uc *DeleteTask) Execute(ctx context.Context, in DeleteTaskInput) error {
	unlock, err := uc.locks.Lock(ctx, shared.TaskKey(in.TaskID))
	if err != nil {
		return domain.StorageFailure("lock task", err)
	}

	task, err := shared.GetTask(ctx, uc.tasks, in.TaskID, uc.timeout)
	if err != nil {
		unlock()
		return err
	}

	sctx, cancel := shared.StoreContext(ctx, uc.timeout)
	err = uc.tasks.Delete(sctx, task.ID)
	cancel()
	unlock()
	if err != nil {
		return domain.NewTaskError(domain.StorageFailure("delete task", err), task.ID, "")
	}

	uc.logger.Info(task.ID, "task", fmt.Sprintf("deleted from session %s", task.SessionID))
	if err := uc.sync.Detach(ctx, task.SessionID, task.ID); err != nil {
		uc.logger.Error(task.ID, "session", fmt.Sprintf("detach from session %s: %v", task.SessionID, err))
	}
	return nil
}
