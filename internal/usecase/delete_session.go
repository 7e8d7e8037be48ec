package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/usecase/shared"
)

// DeleteSessionInput contains the parameters for deleting a session.
type DeleteSessionInput struct {
	SessionID string
}

// DeleteSession is the use case for deleting a session with all of its tasks.
type DeleteSession struct {
	sessions domain.SessionRepository
	locks    *shared.KeyedLocker
	logger   domain.Logger
	timeout  time.Duration
}

// NewDeleteSession creates a new DeleteSession use case.
func NewDeleteSession(sessions domain.SessionRepository, locks *shared.KeyedLocker, logger domain.Logger, timeout time.Duration) *DeleteSession {
	return &DeleteSession{sessions: sessions, locks: locks, logger: logger, timeout: timeout}
}

// Execute deletes the session. Its tasks are removed by the store; their
// audit history is kept.
func (uc *DeleteSession) Execute(ctx context.Context, in DeleteSessionInput) error {
	unlock, err := uc.locks.Lock(ctx, shared.SessionKey(in.SessionID))
	if err != nil {
		return domain.StorageFailure("lock session", err)
	}
	defer unlock()

	if _, err := shared.GetSession(ctx, uc.sessions, in.SessionID, uc.timeout); err != nil {
		return err
	}

	sctx, cancel := shared.StoreContext(ctx, uc.timeout)
	defer cancel()
	if err := uc.sessions.DeleteSession(sctx, in.SessionID); err != nil {
		return domain.NewSessionError(domain.StorageFailure("delete session", err), in.SessionID, "")
	}

	uc.logger.Info("", "session", fmt.Sprintf("deleted session %s", in.SessionID))
	return nil
}
