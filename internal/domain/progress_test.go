package domain

import "testing"

func TestComputeProgress(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Progress
	}{
		{"empty", nil, Progress{Status: OverallCompleted}},
		{"all completed", []Status{StatusCompleted, StatusCompleted, StatusCompleted}, Progress{Status: OverallCompleted, Percentage: 100, CompletedCount: 3, TotalCount: 3}},
		{"failed first", []Status{StatusPending, StatusFailed, StatusWaitingUser}, Progress{Status: OverallHasFailures, TotalCount: 3}},
		{"waiting before running", []Status{StatusInProgress, StatusWaitingUser}, Progress{Status: OverallWaitingUser, TotalCount: 2}},
		{"running before pending", []Status{StatusPending, StatusInProgress, StatusCompleted}, Progress{Status: OverallInProgress, Percentage: 33, CompletedCount: 1, TotalCount: 3}},
		{"stale counts as pending", []Status{StatusStale, StatusCompleted}, Progress{Status: OverallPending, Percentage: 50, CompletedCount: 1, TotalCount: 2}},
		{"cancelled only", []Status{StatusCancelled}, Progress{Status: OverallCompleted, TotalCount: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks := make([]*Task, 0, len(tt.statuses))
			for _, s := range tt.statuses {
				tasks = append(tasks, &Task{Status: s})
			}
			if got := ComputeProgress(tasks); got != tt.want {
				t.Errorf("ComputeProgress() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
