package usecase

import (
	"context"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
)

// SessionProgressInput contains the parameters for computing session progress.
type SessionProgressInput struct {
	SessionID string
}

// SessionProgressOutput contains the aggregated progress.
type SessionProgressOutput struct {
	SessionID string
	Progress  domain.Progress
}

// SessionProgress is the use case for aggregating a session's progress.
// It always recomputes from the current tasks.
type SessionProgress struct {
	tasks    domain.TaskRepository
	sessions domain.SessionRepository
	timeout  time.Duration
}

// NewSessionProgress creates a new SessionProgress use case.
func NewSessionProgress(tasks domain.TaskRepository, sessions domain.SessionRepository, timeout time.Duration) *SessionProgress {
	return &SessionProgress{tasks: tasks, sessions: sessions, timeout: timeout}
}

// Execute computes completion percentage and overall status.
func (uc *SessionProgress) Execute(ctx context.Context, in SessionProgressInput) (*SessionProgressOutput, error) {
	_, tasks, err := loadSessionTasks(ctx, uc.sessions, uc.tasks, in.SessionID, uc.timeout)
	if err != nil {
		return nil, err
	}
	return &SessionProgressOutput{
		SessionID: in.SessionID,
		Progress:  domain.ComputeProgress(tasks),
	}, nil
}
