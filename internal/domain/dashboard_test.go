package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDashboard_Empty(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	session := &Session{ID: "s1", Name: "Acme", Status: SessionPlanned}

	d := BuildDashboard(session, nil, now, 0)

	assert.Equal(t, 0, d.Progress.Percentage)
	for _, b := range BucketOrder {
		assert.NotNil(t, d.Breakdown[b], b)
		assert.Empty(t, d.Breakdown[b], b)
	}
	assert.NotNil(t, d.StaleItems)
	assert.Equal(t, []string{"No tasks in progress - consider starting new tasks"}, d.NextActions)
}

func TestBuildDashboard_Buckets(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	completedAt := now.Add(-time.Hour)
	startedAt := now.Add(-3 * time.Hour)
	tasks := []*Task{
		{ID: "a", Status: StatusInProgress, UpdatedAt: now},
		{ID: "b", Status: StatusCompleted, StartedAt: &startedAt, CompletedAt: &completedAt, UpdatedAt: now},
		{ID: "c", Status: StatusStale, UpdatedAt: now.Add(-72 * time.Hour)},
		{ID: "d", Status: StatusPending, UpdatedAt: now.Add(-25 * time.Hour)},
		{ID: "e", Status: StatusCancelled, UpdatedAt: now.Add(-72 * time.Hour)},
	}

	d := BuildDashboard(&Session{ID: "s1"}, tasks, now, 24*time.Hour)

	assert.Len(t, d.Breakdown[BucketWaitingSystem], 1)
	assert.Len(t, d.Breakdown[BucketStale], 1)
	assert.Len(t, d.Breakdown[BucketPending], 1)
	assert.Len(t, d.Breakdown[BucketCancelled], 1)
	require.Len(t, d.Breakdown[BucketCompleted], 1)
	require.NotNil(t, d.Breakdown[BucketCompleted][0].Duration)
	assert.Equal(t, int64(2*3600), *d.Breakdown[BucketCompleted][0].Duration)

	// Only active tasks are reported as stale items
	require.Len(t, d.StaleItems, 1)
	assert.Equal(t, "d", d.StaleItems[0].TaskID)
	assert.Equal(t, 25, d.StaleItems[0].HoursStale)
	assert.Equal(t, StaleRecommendation(StatusPending), d.StaleItems[0].RecommendedAction)

	assert.Equal(t, []string{"Review 2 stale items requiring attention"}, d.NextActions)
}

func TestBuildDashboard_ProcessingAction(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tasks := []*Task{{ID: "a", Status: StatusInProgress, UpdatedAt: now}}

	d := BuildDashboard(&Session{ID: "s1"}, tasks, now, 24*time.Hour)

	assert.Equal(t, []string{"System is processing tasks - check back soon"}, d.NextActions)
}

func TestBucketFor(t *testing.T) {
	tests := map[Status]string{
		StatusPending:     BucketPending,
		StatusInProgress:  BucketWaitingSystem,
		StatusWaitingUser: BucketWaitingUser,
		StatusCompleted:   BucketCompleted,
		StatusFailed:      BucketFailed,
		StatusCancelled:   BucketCancelled,
		StatusStale:       BucketStale,
	}
	for status, want := range tests {
		assert.Equal(t, want, BucketFor(status), string(status))
	}
}
