package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionProgress_Execute(t *testing.T) {
	tests := []struct {
		name     string
		statuses []domain.Status
		want     domain.Progress
	}{
		{
			name: "empty session",
			want: domain.Progress{Status: domain.OverallCompleted, Percentage: 0},
		},
		{
			name:     "all completed",
			statuses: []domain.Status{domain.StatusCompleted, domain.StatusCompleted},
			want:     domain.Progress{Status: domain.OverallCompleted, Percentage: 100, CompletedCount: 2, TotalCount: 2},
		},
		{
			name:     "failure wins",
			statuses: []domain.Status{domain.StatusFailed, domain.StatusWaitingUser, domain.StatusInProgress, domain.StatusCompleted},
			want:     domain.Progress{Status: domain.OverallHasFailures, Percentage: 25, CompletedCount: 1, TotalCount: 4},
		},
		{
			name:     "waiting user before in progress",
			statuses: []domain.Status{domain.StatusWaitingUser, domain.StatusInProgress, domain.StatusPending},
			want:     domain.Progress{Status: domain.OverallWaitingUser, TotalCount: 3},
		},
		{
			name:     "rounds down",
			statuses: []domain.Status{domain.StatusCompleted, domain.StatusPending, domain.StatusPending},
			want:     domain.Progress{Status: domain.OverallPending, Percentage: 33, CompletedCount: 1, TotalCount: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			for i, s := range tt.statuses {
				f.put(string(rune('a'+i)), s)
			}

			out, err := NewSessionProgress(f.store, f.store, time.Second).Execute(context.Background(), SessionProgressInput{SessionID: "s1"})

			require.NoError(t, err)
			assert.Equal(t, "s1", out.SessionID)
			assert.Equal(t, tt.want, out.Progress)
		})
	}
}

func TestSessionProgress_Execute_UnknownSession(t *testing.T) {
	f := newFixture(t)

	_, err := NewSessionProgress(f.store, f.store, time.Second).Execute(context.Background(), SessionProgressInput{SessionID: "nope"})

	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}
