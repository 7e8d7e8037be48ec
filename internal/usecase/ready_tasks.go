package usecase

import (
	"context"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/usecase/shared"
)

// ReadyTasksInput contains the parameters for listing ready tasks.
type ReadyTasksInput struct {
	SessionID string
}

// ReadyTasksOutput contains the pending tasks whose dependencies are satisfied.
// Err reports tasks that could not be evaluated.
type ReadyTasksOutput struct {
	Err   error
	Tasks []*domain.Task
}

// ReadyTasks is the use case for listing tasks that may be started.
type ReadyTasks struct {
	sessions domain.SessionRepository
	resolver *shared.Resolver
	timeout  time.Duration
}

// NewReadyTasks creates a new ReadyTasks use case.
func NewReadyTasks(sessions domain.SessionRepository, resolver *shared.Resolver, timeout time.Duration) *ReadyTasks {
	return &ReadyTasks{sessions: sessions, resolver: resolver, timeout: timeout}
}

// Execute evaluates every pending task of the session.
func (uc *ReadyTasks) Execute(ctx context.Context, in ReadyTasksInput) (*ReadyTasksOutput, error) {
	if _, err := shared.GetSession(ctx, uc.sessions, in.SessionID, uc.timeout); err != nil {
		return nil, err
	}

	tasks, err := uc.resolver.ReadyInSession(ctx, in.SessionID)
	if tasks == nil {
		return nil, err
	}
	return &ReadyTasksOutput{Tasks: tasks, Err: err}, nil
}
