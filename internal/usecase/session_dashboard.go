package usecase

import (
	"context"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
)

// SessionDashboardInput contains the parameters for building a dashboard.
type SessionDashboardInput struct {
	SessionID  string
	StaleAfter time.Duration // Inactivity threshold (0 = configured default)
}

// SessionDashboard is the use case for the comprehensive status view of a session.
type SessionDashboard struct {
	tasks      domain.TaskRepository
	sessions   domain.SessionRepository
	clock      domain.Clock
	timeout    time.Duration
	staleAfter time.Duration
}

// NewSessionDashboard creates a new SessionDashboard use case.
func NewSessionDashboard(
	tasks domain.TaskRepository,
	sessions domain.SessionRepository,
	clock domain.Clock,
	timeout time.Duration,
	staleAfter time.Duration,
) *SessionDashboard {
	return &SessionDashboard{
		tasks:      tasks,
		sessions:   sessions,
		clock:      clock,
		timeout:    timeout,
		staleAfter: staleAfter,
	}
}

// Execute builds the dashboard from the session's current tasks.
func (uc *SessionDashboard) Execute(ctx context.Context, in SessionDashboardInput) (*domain.Dashboard, error) {
	session, tasks, err := loadSessionTasks(ctx, uc.sessions, uc.tasks, in.SessionID, uc.timeout)
	if err != nil {
		return nil, err
	}

	staleAfter := in.StaleAfter
	if staleAfter <= 0 {
		staleAfter = uc.staleAfter
	}
	return domain.BuildDashboard(session, tasks, uc.clock.Now(), staleAfter), nil
}
