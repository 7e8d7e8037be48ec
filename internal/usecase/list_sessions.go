package usecase

import (
	"context"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/usecase/shared"
)

// ListSessionsOutput contains all sessions.
type ListSessionsOutput struct {
	Sessions []*domain.Session
}

// ListSessions is the use case for listing sessions.
type ListSessions struct {
	sessions domain.SessionRepository
	timeout  time.Duration
}

// NewListSessions creates a new ListSessions use case.
func NewListSessions(sessions domain.SessionRepository, timeout time.Duration) *ListSessions {
	return &ListSessions{sessions: sessions, timeout: timeout}
}

// Execute returns all sessions ordered by creation time.
func (uc *ListSessions) Execute(ctx context.Context) (*ListSessionsOutput, error) {
	sctx, cancel := shared.StoreContext(ctx, uc.timeout)
	defer cancel()
	sessions, err := uc.sessions.ListSessions(sctx)
	if err != nil {
		return nil, domain.StorageFailure("list sessions", err)
	}
	return &ListSessionsOutput{Sessions: sessions}, nil
}
