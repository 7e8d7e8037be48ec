package usecase

import (
	"context"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/usecase/shared"
)

// FindStaleInput contains the parameters for the staleness report.
type FindStaleInput struct {
	Threshold time.Duration // Inactivity threshold (0 = configured default)
	SessionID string        // Restrict to one session (optional)
}

// FindStaleOutput contains the stale tasks and their report entries.
type FindStaleOutput struct {
	Tasks []*domain.Task
	Items []domain.StaleItem
}

// FindStale is the read-only staleness report.
type FindStale struct {
	detector  *shared.Detector
	clock     domain.Clock
	threshold time.Duration
}

// NewFindStale creates a new FindStale use case.
func NewFindStale(detector *shared.Detector, clock domain.Clock, threshold time.Duration) *FindStale {
	return &FindStale{detector: detector, clock: clock, threshold: threshold}
}

// Execute lists pending and in-progress tasks inactive for longer than the threshold.
func (uc *FindStale) Execute(ctx context.Context, in FindStaleInput) (*FindStaleOutput, error) {
	threshold := in.Threshold
	if threshold <= 0 {
		threshold = uc.threshold
	}

	tasks, err := uc.detector.FindStale(ctx, threshold)
	if err != nil {
		return nil, err
	}

	now := uc.clock.Now()
	out := &FindStaleOutput{
		Tasks: make([]*domain.Task, 0, len(tasks)),
		Items: make([]domain.StaleItem, 0, len(tasks)),
	}
	for _, t := range tasks {
		if in.SessionID != "" && t.SessionID != in.SessionID {
			continue
		}
		out.Tasks = append(out.Tasks, t)
		out.Items = append(out.Items, domain.NewStaleItem(t, now))
	}
	return out, nil
}
