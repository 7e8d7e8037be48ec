package usecase

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepStale_Execute_Once(t *testing.T) {
	f := newFixture(t)
	f.put("a", domain.StatusPending, func(t *domain.Task) {
		t.Title = "Scrape website"
		t.UpdatedAt = testNow.Add(-25 * time.Hour)
	})
	var stdout bytes.Buffer
	uc := NewSweepStale(NewMarkStale(f.detector, f.engine, f.clock, f.logger, 24*time.Hour), &stdout)

	out, err := uc.Execute(context.Background(), SweepStaleInput{Once: true})

	require.NoError(t, err)
	assert.Equal(t, 1, out.Sweeps)
	assert.Equal(t, 1, out.Marked)
	assert.Equal(t, "stale a Scrape website\n", stdout.String())
}

func TestSweepStale_Execute_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	var stdout bytes.Buffer
	uc := NewSweepStale(NewMarkStale(f.detector, f.engine, f.clock, f.logger, 24*time.Hour), &stdout)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := uc.Execute(ctx, SweepStaleInput{Interval: time.Hour})

	require.NoError(t, err)
	assert.Equal(t, 1, out.Sweeps)
	assert.Empty(t, stdout.String())
}

func TestSweepStale_Execute_Ticks(t *testing.T) {
	f := newFixture(t)
	var stdout bytes.Buffer
	uc := NewSweepStale(NewMarkStale(f.detector, f.engine, f.clock, f.logger, 24*time.Hour), &stdout)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	out, err := uc.Execute(ctx, SweepStaleInput{Interval: 5 * time.Millisecond})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, out.Sweeps, 2)
}

func TestSweepStale_Execute_ScanFailureStops(t *testing.T) {
	f := newFixture(t)
	f.store.ListErr = errors.New("connection reset")
	var stdout bytes.Buffer
	uc := NewSweepStale(NewMarkStale(f.detector, f.engine, f.clock, f.logger, 24*time.Hour), &stdout)

	out, err := uc.Execute(context.Background(), SweepStaleInput{Interval: time.Millisecond})

	require.ErrorIs(t, err, domain.ErrStorage)
	assert.Equal(t, 0, out.Sweeps)
}
