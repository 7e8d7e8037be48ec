package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetector_FindStale(t *testing.T) {
	tests := []struct {
		name    string
		status  domain.Status
		age     time.Duration
		isStale bool
	}{
		{"pending 25h ago", domain.StatusPending, 25 * time.Hour, true},
		{"pending 1h ago", domain.StatusPending, time.Hour, false},
		{"in_progress 30h ago", domain.StatusInProgress, 30 * time.Hour, true},
		{"waiting_user 48h ago", domain.StatusWaitingUser, 48 * time.Hour, false},
		{"completed 48h ago", domain.StatusCompleted, 48 * time.Hour, false},
		{"already stale", domain.StatusStale, 48 * time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMockStore()
			store.Put(&domain.Task{ID: "t1", Status: tt.status, UpdatedAt: testNow.Add(-tt.age)})
			d := NewDetector(store, testutil.NewMockClock(testNow), time.Second)

			got, err := d.FindStale(context.Background(), 24*time.Hour)

			require.NoError(t, err)
			if tt.isStale {
				require.Len(t, got, 1)
				assert.Equal(t, "t1", got[0].ID)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestDetector_FindStale_DefaultThreshold(t *testing.T) {
	store := testutil.NewMockStore()
	store.Put(&domain.Task{ID: "old", Status: domain.StatusPending, UpdatedAt: testNow.Add(-25 * time.Hour)})
	store.Put(&domain.Task{ID: "recent", Status: domain.StatusPending, UpdatedAt: testNow.Add(-23 * time.Hour)})
	d := NewDetector(store, testutil.NewMockClock(testNow), time.Second)

	got, err := d.FindStale(context.Background(), 0)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "old", got[0].ID)
}

func TestDetector_FindStale_Empty(t *testing.T) {
	d := NewDetector(testutil.NewMockStore(), testutil.NewMockClock(testNow), time.Second)

	got, err := d.FindStale(context.Background(), time.Hour)

	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestDetector_FindStale_StoreError(t *testing.T) {
	store := testutil.NewMockStore()
	store.ListErr = errors.New("boom")
	d := NewDetector(store, testutil.NewMockClock(testNow), time.Second)

	_, err := d.FindStale(context.Background(), time.Hour)

	require.ErrorIs(t, err, domain.ErrStorage)
}
