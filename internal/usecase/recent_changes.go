package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/usecase/shared"
)

// DefaultRecentWindow is the look-back window of RecentChanges.
const DefaultRecentWindow = 24 * time.Hour

// RecentChangesInput contains the parameters for listing recent transitions.
type RecentChangesInput struct {
	Window time.Duration // Look-back window (0 = 24h)
}

// RecentChangesOutput contains audit entries, newest first.
type RecentChangesOutput struct {
	Since   time.Time
	Entries []domain.AuditEntry
}

// RecentChanges is the use case for listing status changes across all tasks.
type RecentChanges struct {
	audit   domain.AuditLog
	clock   domain.Clock
	timeout time.Duration
}

// NewRecentChanges creates a new RecentChanges use case.
func NewRecentChanges(audit domain.AuditLog, clock domain.Clock, timeout time.Duration) *RecentChanges {
	return &RecentChanges{audit: audit, clock: clock, timeout: timeout}
}

// Execute lists the audit entries written within the window.
func (uc *RecentChanges) Execute(ctx context.Context, in RecentChangesInput) (*RecentChangesOutput, error) {
	if in.Window < 0 {
		return nil, fmt.Errorf("%w: window must not be negative", domain.ErrValidation)
	}
	window := in.Window
	if window == 0 {
		window = DefaultRecentWindow
	}
	since := uc.clock.Now().Add(-window)

	sctx, cancel := shared.StoreContext(ctx, uc.timeout)
	defer cancel()
	entries, err := uc.audit.ListAuditSince(sctx, since)
	if err != nil {
		return nil, domain.StorageFailure("list audit", err)
	}
	return &RecentChangesOutput{Since: since, Entries: entries}, nil
}
