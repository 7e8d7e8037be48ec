package shared

import (
	"context"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
)

// staleWatched lists the statuses scanned by the detector.
var staleWatched = []domain.Status{domain.StatusPending, domain.StatusInProgress}

// Detector finds tasks inactive for longer than a threshold.
// It is read-only; flagging tasks as stale is a separate transition.
type Detector struct {
	tasks   domain.TaskRepository
	clock   domain.Clock
	timeout time.Duration
}

// NewDetector creates a new Detector.
func NewDetector(tasks domain.TaskRepository, clock domain.Clock, timeout time.Duration) *Detector {
	return &Detector{tasks: tasks, clock: clock, timeout: timeout}
}

// FindStale returns pending and in-progress tasks whose updated_at is older
// than now minus threshold. A non-positive threshold uses the 24h default.
func (d *Detector) FindStale(ctx context.Context, threshold time.Duration) ([]*domain.Task, error) {
	if threshold <= 0 {
		threshold = domain.DefaultStaleAfter
	}
	cutoff := d.clock.Now().Add(-threshold)

	sctx, cancel := StoreContext(ctx, d.timeout)
	defer cancel()
	tasks, err := d.tasks.ListStaleCandidates(sctx, staleWatched, cutoff)
	if err != nil {
		return nil, domain.StorageFailure("list stale candidates", err)
	}
	if tasks == nil {
		tasks = []*domain.Task{}
	}
	return tasks, nil
}
