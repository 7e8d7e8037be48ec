package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
)

// Resolver decides whether a task's predecessors are satisfied.
// Predecessors are always read fresh from the store.
type Resolver struct {
	tasks   domain.TaskRepository
	timeout time.Duration
}

// NewResolver creates a new Resolver.
func NewResolver(tasks domain.TaskRepository, timeout time.Duration) *Resolver {
	return &Resolver{tasks: tasks, timeout: timeout}
}

// UnmetDependencies returns the predecessor ids of task that are not completed.
// A missing predecessor counts as unmet.
func (r *Resolver) UnmetDependencies(ctx context.Context, task *domain.Task) ([]string, error) {
	var unmet []string
	for _, id := range task.DependsOn {
		sctx, cancel := StoreContext(ctx, r.timeout)
		pred, err := r.tasks.Get(sctx, id)
		cancel()
		if err != nil {
			return nil, domain.NewTaskError(domain.StorageFailure("get predecessor "+id, err), task.ID, "")
		}
		if pred == nil || pred.Status != domain.StatusCompleted {
			unmet = append(unmet, id)
		}
	}
	return unmet, nil
}

// IsReady returns true if every predecessor of task is completed.
// A task without dependencies is always ready.
func (r *Resolver) IsReady(ctx context.Context, task *domain.Task) (bool, error) {
	if len(task.DependsOn) == 0 {
		return true, nil
	}
	unmet, err := r.UnmetDependencies(ctx, task)
	if err != nil {
		return false, err
	}
	return len(unmet) == 0, nil
}

// OnTaskCompleted returns the successors of taskID that are pending and now ready.
// It does not transition them. Per-successor failures are joined into the
// returned error alongside the successors that could be evaluated.
func (r *Resolver) OnTaskCompleted(ctx context.Context, taskID string) ([]*domain.Task, error) {
	sctx, cancel := StoreContext(ctx, r.timeout)
	successors, err := r.tasks.ListByPredecessor(sctx, taskID)
	cancel()
	if err != nil {
		return nil, domain.NewTaskError(domain.StorageFailure("list successors", err), taskID, "")
	}

	ready := []*domain.Task{}
	var errs []error
	for _, succ := range successors {
		if succ.Status != domain.StatusPending {
			continue
		}
		ok, err := r.IsReady(ctx, succ)
		if err != nil {
			errs = append(errs, fmt.Errorf("evaluate successor %s: %w", succ.ID, err))
			continue
		}
		if ok {
			ready = append(ready, succ)
		}
	}
	return ready, errors.Join(errs...)
}

// ReadyInSession returns the pending tasks of a session whose dependencies are satisfied.
func (r *Resolver) ReadyInSession(ctx context.Context, sessionID string) ([]*domain.Task, error) {
	sctx, cancel := StoreContext(ctx, r.timeout)
	tasks, err := r.tasks.ListBySession(sctx, sessionID)
	cancel()
	if err != nil {
		return nil, domain.NewSessionError(domain.StorageFailure("list session tasks", err), sessionID, "")
	}

	ready := []*domain.Task{}
	var errs []error
	for _, t := range tasks {
		if t.Status != domain.StatusPending {
			continue
		}
		ok, err := r.IsReady(ctx, t)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			ready = append(ready, t)
		}
	}
	return ready, errors.Join(errs...)
}
