package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/usecase/shared"
)

// errNoLongerStale reports a task that was updated after the scan.
var errNoLongerStale = errors.New("task is no longer stale")

// MarkStaleInput contains the parameters for a staleness sweep.
type MarkStaleInput struct {
	Threshold time.Duration // Inactivity threshold (0 = configured default)
}

// MarkStaleOutput contains the result of a sweep.
// Err joins the per-task failures; the other tasks were still processed.
type MarkStaleOutput struct {
	Err     error
	Marked  []*domain.Task
	Skipped []string // Tasks updated between the scan and the transition
}

// MarkStale is the use case for flagging inactive tasks as stale.
type MarkStale struct {
	detector  *shared.Detector
	engine    *shared.Engine
	clock     domain.Clock
	logger    domain.Logger
	threshold time.Duration
}

// NewMarkStale creates a new MarkStale use case.
func NewMarkStale(
	detector *shared.Detector,
	engine *shared.Engine,
	clock domain.Clock,
	logger domain.Logger,
	threshold time.Duration,
) *MarkStale {
	return &MarkStale{
		detector:  detector,
		engine:    engine,
		clock:     clock,
		logger:    logger,
		threshold: threshold,
	}
}

// Execute applies the sweep transition to every task the detector reports.
// Each task is re-checked under its lock, so a task updated after the scan
// is skipped rather than flagged.
func (uc *MarkStale) Execute(ctx context.Context, in MarkStaleInput) (*MarkStaleOutput, error) {
	threshold := in.Threshold
	if threshold <= 0 {
		threshold = uc.threshold
	}
	if threshold <= 0 {
		threshold = domain.DefaultStaleAfter
	}

	candidates, err := uc.detector.FindStale(ctx, threshold)
	if err != nil {
		return nil, err
	}

	out := &MarkStaleOutput{Marked: []*domain.Task{}, Skipped: []string{}}
	var errs []error
	for _, c := range candidates {
		cutoff := uc.clock.Now().Add(-threshold)
		task, err := uc.engine.Apply(ctx, c.ID, shared.Change{
			To:      domain.StatusStale,
			Trigger: domain.TriggerSweep,
			Actor:   domain.ActorSweep,
			Reason:  fmt.Sprintf("inactive for more than %s", threshold),
			Check: func(t *domain.Task) error {
				if !t.Status.IsActive() || !t.UpdatedAt.Before(cutoff) {
					return errNoLongerStale
				}
				return nil
			},
		})
		switch {
		case errors.Is(err, errNoLongerStale):
			out.Skipped = append(out.Skipped, c.ID)
		case err != nil:
			errs = append(errs, err)
		default:
			out.Marked = append(out.Marked, task)
		}
	}

	out.Err = errors.Join(errs...)
	if len(out.Marked) > 0 {
		uc.logger.Info("", "sweep", fmt.Sprintf("marked %d task(s) stale", len(out.Marked)))
	}
	if out.Err != nil {
		uc.logger.Warn("", "sweep", fmt.Sprintf("%d task(s) could not be marked: %v", len(errs), out.Err))
	}
	return out, nil
}
