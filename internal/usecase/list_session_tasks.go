package usecase

import (
	"context"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/usecase/shared"
)

// ListSessionTasksInput contains the parameters for listing a session's tasks.
type ListSessionTasksInput struct {
	SessionID string
	Statuses  []domain.Status // Filter (empty = all)
}

// ListSessionTasksOutput contains the session and its tasks in creation order.
type ListSessionTasksOutput struct {
	Session *domain.Session
	Tasks   []*domain.Task
}

// ListSessionTasks is the use case for listing the tasks of a session.
type ListSessionTasks struct {
	tasks    domain.TaskRepository
	sessions domain.SessionRepository
	timeout  time.Duration
}

// NewListSessionTasks creates a new ListSessionTasks use case.
func NewListSessionTasks(tasks domain.TaskRepository, sessions domain.SessionRepository, timeout time.Duration) *ListSessionTasks {
	return &ListSessionTasks{tasks: tasks, sessions: sessions, timeout: timeout}
}

// Execute returns the session's tasks, optionally filtered by status.
func (uc *ListSessionTasks) Execute(ctx context.Context, in ListSessionTasksInput) (*ListSessionTasksOutput, error) {
	session, tasks, err := loadSessionTasks(ctx, uc.sessions, uc.tasks, in.SessionID, uc.timeout)
	if err != nil {
		return nil, err
	}

	if len(in.Statuses) > 0 {
		filtered := make([]*domain.Task, 0, len(tasks))
		for _, t := range tasks {
			for _, s := range in.Statuses {
				if t.Status == s {
					filtered = append(filtered, t)
					break
				}
			}
		}
		tasks = filtered
	}

	return &ListSessionTasksOutput{Session: session, Tasks: tasks}, nil
}

// loadSessionTasks fetches a session and all of its tasks.
func loadSessionTasks(
	ctx context.Context,
	sessions domain.SessionRepository,
	tasks domain.TaskRepository,
	sessionID string,
	timeout time.Duration,
) (*domain.Session, []*domain.Task, error) {
	session, err := shared.GetSession(ctx, sessions, sessionID, timeout)
	if err != nil {
		return nil, nil, err
	}

	sctx, cancel := shared.StoreContext(ctx, timeout)
	defer cancel()
	list, err := tasks.ListBySession(sctx, sessionID)
	if err != nil {
		return nil, nil, domain.NewSessionError(domain.StorageFailure("list session tasks", err), sessionID, "")
	}
	if list == nil {
		list = []*domain.Task{}
	}
	return session, list, nil
}
