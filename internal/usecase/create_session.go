// Package usecase contains the application use cases.
package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/usecase/shared"
)

// CreateSessionInput contains the parameters for creating a session.
type CreateSessionInput struct {
	Name         string // Session name (required)
	ResearchType string // Kind of research (optional)
	Target       string // Research subject (optional)
}

// CreateSessionOutput contains the result of creating a session.
type CreateSessionOutput struct {
	Session *domain.Session
}

// CreateSession is the use case for creating a research session.
type CreateSession struct {
	sessions domain.SessionRepository
	ids      domain.IDGenerator
	clock    domain.Clock
	logger   domain.Logger
	timeout  time.Duration
}

// NewCreateSession creates a new CreateSession use case.
func NewCreateSession(
	sessions domain.SessionRepository,
	ids domain.IDGenerator,
	clock domain.Clock,
	logger domain.Logger,
	timeout time.Duration,
) *CreateSession {
	return &CreateSession{
		sessions: sessions,
		ids:      ids,
		clock:    clock,
		logger:   logger,
		timeout:  timeout,
	}
}

// Execute creates a new planned session.
func (uc *CreateSession) Execute(ctx context.Context, in CreateSessionInput) (*CreateSessionOutput, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: session name cannot be empty", domain.ErrValidation)
	}

	now := uc.clock.Now()
	session := &domain.Session{
		ID:           uc.ids.NewID(),
		Name:         name,
		ResearchType: in.ResearchType,
		Target:       in.Target,
		Status:       domain.SessionPlanned,
		TaskIDs:      []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	sctx, cancel := shared.StoreContext(ctx, uc.timeout)
	defer cancel()
	if err := uc.sessions.SaveSession(sctx, session); err != nil {
		return nil, domain.StorageFailure("save session", err)
	}

	uc.logger.Info("", "session", fmt.Sprintf("created session %s: %q", session.ID, session.Name))
	return &CreateSessionOutput{Session: session}, nil
}
