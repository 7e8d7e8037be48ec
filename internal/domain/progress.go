package domain

// OverallStatus is the aggregated status of a session's tasks.
type OverallStatus string

const (
	OverallHasFailures OverallStatus = "has_failures"
	OverallWaitingUser OverallStatus = "waiting_user"
	OverallInProgress  OverallStatus = "in_progress"
	OverallPending     OverallStatus = "pending"
	OverallCompleted   OverallStatus = "completed"
)

// Progress summarizes completion of a set of tasks.
type Progress struct {
	Status         OverallStatus `json:"status"`
	Percentage     int           `json:"percentage"`
	CompletedCount int           `json:"completed_count"`
	TotalCount     int           `json:"total_count"`
}

// ComputeProgress derives completion percentage and overall status from tasks.
//
// Overall status precedence: any failed, then any waiting_user, then any
// in_progress, then any pending, else completed. A stale task counts as
// pending because it is an inactive pending/in_progress task. Cancelled tasks
// count toward the total but never toward the overall status.
func ComputeProgress(tasks []*Task) Progress {
	var failed, waiting, running, pending, completed int
	for _, t := range tasks {
		switch t.Status {
		case StatusFailed:
			failed++
		case StatusWaitingUser:
			waiting++
		case StatusInProgress:
			running++
		case StatusPending, StatusStale:
			pending++
		case StatusCompleted:
			completed++
		case StatusCancelled:
		}
	}

	p := Progress{
		CompletedCount: completed,
		TotalCount:     len(tasks),
	}
	if p.TotalCount > 0 {
		p.Percentage = 100 * completed / p.TotalCount
	}

	switch {
	case failed > 0:
		p.Status = OverallHasFailures
	case waiting > 0:
		p.Status = OverallWaitingUser
	case running > 0:
		p.Status = OverallInProgress
	case pending > 0:
		p.Status = OverallPending
	default:
		p.Status = OverallCompleted
	}
	return p
}
