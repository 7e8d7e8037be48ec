package shared

import (
	"context"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
)

// GetTask retrieves a task by ID and returns domain.ErrTaskNotFound if not found.
// This centralizes the common pattern of:
//
//	task, err := repo.Get(ctx, taskID)
//	if err != nil { return nil, domain.StorageFailure("get task", err) }
//	if task == nil { return nil, domain.ErrTaskNotFound }
//
// The store call is bounded by timeout.
func GetTask(ctx context.Context, repo domain.TaskRepository, taskID string, timeout time.Duration) (*domain.Task, error) {
	sctx, cancel := StoreContext(ctx, timeout)
	defer cancel()

	task, err := repo.Get(sctx, taskID)
	if err != nil {
		return nil, domain.NewTaskError(domain.StorageFailure("get task", err), taskID, "")
	}
	if task == nil {
		return nil, domain.NewTaskError(domain.ErrTaskNotFound, taskID, "")
	}
	return task, nil
}

// GetSession retrieves a session by ID and returns domain.ErrSessionNotFound if not found.
func GetSession(ctx context.Context, repo domain.SessionRepository, sessionID string, timeout time.Duration) (*domain.Session, error) {
	sctx, cancel := StoreContext(ctx, timeout)
	defer cancel()

	session, err := repo.GetSession(sctx, sessionID)
	if err != nil {
		return nil, domain.NewSessionError(domain.StorageFailure("get session", err), sessionID, "")
	}
	if session == nil {
		return nil, domain.NewSessionError(domain.ErrSessionNotFound, sessionID, "")
	}
	return session, nil
}

// StoreContext derives the context for a single store call.
// A non-positive timeout only adds cancellation.
func StoreContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
