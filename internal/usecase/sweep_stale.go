package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// DefaultSweepInterval is the pause between sweeps.
const DefaultSweepInterval = 10 * time.Minute

// SweepStaleInput contains the parameters for the sweep loop.
type SweepStaleInput struct {
	Interval  time.Duration // Pause between sweeps (0 = 10m)
	Threshold time.Duration // Inactivity threshold (0 = configured default)
	Once      bool          // Run a single sweep and return
}

// SweepStaleOutput summarizes the sweeps that ran.
type SweepStaleOutput struct {
	Sweeps int
	Marked int
}

// SweepStale runs MarkStale periodically until the context is cancelled.
type SweepStale struct {
	mark   *MarkStale
	stdout io.Writer
}

// NewSweepStale creates a new SweepStale use case.
func NewSweepStale(mark *MarkStale, stdout io.Writer) *SweepStale {
	return &SweepStale{mark: mark, stdout: stdout}
}

// Execute sweeps immediately, then on every tick.
// Per-task failures are reported and do not stop the loop; a failed scan does.
func (uc *SweepStale) Execute(ctx context.Context, in SweepStaleInput) (*SweepStaleOutput, error) {
	interval := in.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	out := &SweepStaleOutput{}
	if err := uc.sweep(ctx, in.Threshold, out); err != nil {
		return out, err
	}
	if in.Once {
		return out, nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Context canceled is a normal exit
			if errors.Is(ctx.Err(), context.Canceled) {
				return out, nil
			}
			return out, ctx.Err()
		case <-ticker.C:
			if err := uc.sweep(ctx, in.Threshold, out); err != nil {
				return out, err
			}
		}
	}
}

func (uc *SweepStale) sweep(ctx context.Context, threshold time.Duration, out *SweepStaleOutput) error {
	res, err := uc.mark.Execute(ctx, MarkStaleInput{Threshold: threshold})
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	out.Sweeps++
	out.Marked += len(res.Marked)

	for _, t := range res.Marked {
		_, _ = fmt.Fprintf(uc.stdout, "stale %s %s\n", t.ID, t.Title)
	}
	if res.Err != nil {
		_, _ = fmt.Fprintf(uc.stdout, "warning: %v\n", res.Err)
	}
	return nil
}
