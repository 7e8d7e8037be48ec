package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
)

// SessionSync keeps a session's derived status and progress in step with its tasks.
type SessionSync struct {
	sessions domain.SessionRepository
	tasks    domain.TaskRepository
	locks    *KeyedLocker
	clock    domain.Clock
	logger   domain.Logger
	timeout  time.Duration
}

// NewSessionSync creates a new SessionSync.
func NewSessionSync(
	sessions domain.SessionRepository,
	tasks domain.TaskRepository,
	locks *KeyedLocker,
	clock domain.Clock,
	logger domain.Logger,
	timeout time.Duration,
) *SessionSync {
	if logger == nil {
		logger = domain.NopLogger{}
	}
	return &SessionSync{
		sessions: sessions,
		tasks:    tasks,
		locks:    locks,
		clock:    clock,
		logger:   logger,
		timeout:  timeout,
	}
}

// Attach registers taskID in its session and refreshes the session.
func (s *SessionSync) Attach(ctx context.Context, sessionID, taskID string) error {
	return s.update(ctx, sessionID, func(session *domain.Session) {
		session.AddTask(taskID)
	})
}

// Detach removes taskID from its session and refreshes the session.
func (s *SessionSync) Detach(ctx context.Context, sessionID, taskID string) error {
	return s.update(ctx, sessionID, func(session *domain.Session) {
		session.RemoveTask(taskID)
	})
}

// Refresh recomputes the session's status and progress from its tasks.
func (s *SessionSync) Refresh(ctx context.Context, sessionID string) error {
	return s.update(ctx, sessionID, nil)
}

// RefreshQuietly refreshes the session and logs a failure instead of returning it.
// It is used after a task change was already committed.
func (s *SessionSync) RefreshQuietly(ctx context.Context, sessionID, taskID string) {
	if err := s.Refresh(ctx, sessionID); err != nil {
		s.logger.Error(taskID, "session", fmt.Sprintf("refresh session %s: %v", sessionID, err))
	}
}

func (s *SessionSync) update(ctx context.Context, sessionID string, mutate func(*domain.Session)) error {
	unlock, err := s.locks.Lock(ctx, SessionKey(sessionID))
	if err != nil {
		return domain.StorageFailure("lock session", err)
	}
	defer unlock()

	session, err := GetSession(ctx, s.sessions, sessionID, s.timeout)
	if err != nil {
		return err
	}

	sctx, cancel := StoreContext(ctx, s.timeout)
	tasks, err := s.tasks.ListBySession(sctx, sessionID)
	cancel()
	if err != nil {
		return domain.StorageFailure("list session tasks", err)
	}

	changed := false
	if mutate != nil {
		mutate(session)
		session.UpdatedAt = s.clock.Now()
		changed = true
	}
	if session.Refresh(tasks, s.clock.Now()) {
		changed = true
	}
	if !changed {
		return nil
	}

	sctx, cancel = StoreContext(ctx, s.timeout)
	defer cancel()
	if err := s.sessions.SaveSession(sctx, session); err != nil {
		return domain.StorageFailure("save session", err)
	}
	return nil
}
