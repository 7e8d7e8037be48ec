package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/usecase/shared"
)

// AddDependencyInput contains the parameters for adding a dependency edge.
type AddDependencyInput struct {
	TaskID    string // Task that will wait
	DependsOn string // Predecessor in the same session
}

// AddDependencyOutput contains the updated task.
type AddDependencyOutput struct {
	Task *domain.Task
}

// AddDependency is the use case for adding a predecessor to a pending task.
type AddDependency struct {
	tasks        domain.TaskRepository
	engine       *shared.Engine
	locks        *shared.KeyedLocker
	logger       domain.Logger
	timeout      time.Duration
	rejectCycles bool
}

// NewAddDependency creates a new AddDependency use case.
func NewAddDependency(
	tasks domain.TaskRepository,
	engine *shared.Engine,
	locks *shared.KeyedLocker,
	logger domain.Logger,
	timeout time.Duration,
	rejectCycles bool,
) *AddDependency {
	return &AddDependency{
		tasks:        tasks,
		engine:       engine,
		locks:        locks,
		logger:       logger,
		timeout:      timeout,
		rejectCycles: rejectCycles,
	}
}

// Execute adds the edge after checking that it keeps the graph acyclic.
func (uc *AddDependency) Execute(ctx context.Context, in AddDependencyInput) (*AddDependencyOutput, error) {
	if in.TaskID == in.DependsOn {
		return nil, domain.NewTaskError(domain.ErrDependencyCycle, in.TaskID, "a task cannot depend on itself")
	}

	task, err := shared.GetTask(ctx, uc.tasks, in.TaskID, uc.timeout)
	if err != nil {
		return nil, err
	}

	unlock, err := uc.locks.Lock(ctx, shared.SessionKey(task.SessionID))
	if err != nil {
		return nil, domain.StorageFailure("lock session", err)
	}
	defer unlock()

	pred, err := shared.GetTask(ctx, uc.tasks, in.DependsOn, uc.timeout)
	if err != nil {
		return nil, err
	}
	if pred.SessionID != task.SessionID {
		return nil, domain.NewTaskError(domain.ErrValidation, task.ID,
			fmt.Sprintf("dependency %s belongs to another session", pred.ID))
	}

	if uc.rejectCycles {
		sctx, cancel := shared.StoreContext(ctx, uc.timeout)
		siblings, err := uc.tasks.ListBySession(sctx, task.SessionID)
		cancel()
		if err != nil {
			return nil, domain.NewSessionError(domain.StorageFailure("list session tasks", err), task.SessionID, "")
		}
		graph := domain.NewDependencyGraph(siblings)
		graph[task.ID] = append(graph[task.ID], pred.ID)
		if cycle := graph.DetectCycle(); cycle != nil {
			return nil, domain.NewTaskError(domain.ErrDependencyCycle, task.ID, strings.Join(cycle, " -> "))
		}
	}

	updated, err := uc.engine.Update(ctx, task.ID, func(t *domain.Task) error {
		if t.Status != domain.StatusPending {
			return domain.NewTaskError(domain.ErrInvalidState, t.ID,
				"dependencies can only be added to pending tasks (status is "+string(t.Status)+")")
		}
		if !t.DependsOnTask(pred.ID) {
			t.DependsOn = append(t.DependsOn, pred.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info(task.ID, "task", fmt.Sprintf("now depends on %s", pred.ID))
	return &AddDependencyOutput{Task: updated}, nil
}
