package domain

import (
	"fmt"
	"time"
)

// DefaultStaleAfter is the inactivity threshold used when none is configured.
const DefaultStaleAfter = 24 * time.Hour

// Bucket names used in the dashboard task breakdown.
const (
	BucketWaitingSystem = "waiting_system"
	BucketWaitingUser   = "waiting_user"
	BucketCompleted     = "completed"
	BucketFailed        = "failed"
	BucketPending       = "pending"
	BucketCancelled     = "cancelled"
	BucketStale         = "stale"
)

// BucketOrder lists breakdown buckets in display order.
var BucketOrder = []string{
	BucketWaitingSystem,
	BucketWaitingUser,
	BucketFailed,
	BucketPending,
	BucketStale,
	BucketCompleted,
	BucketCancelled,
}

// BucketFor returns the dashboard bucket of a status.
func BucketFor(s Status) string {
	switch s {
	case StatusInProgress:
		return BucketWaitingSystem
	case StatusWaitingUser:
		return BucketWaitingUser
	case StatusCompleted:
		return BucketCompleted
	case StatusFailed:
		return BucketFailed
	case StatusCancelled:
		return BucketCancelled
	case StatusStale:
		return BucketStale
	default:
		return BucketPending
	}
}

// TaskSummary is the dashboard view of a single task.
type TaskSummary struct {
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Duration    *int64     `json:"duration_seconds,omitempty"`
	TaskID      string     `json:"task_id"`
	Title       string     `json:"title"`
	TaskType    string     `json:"type"`
	Status      Status     `json:"status"`
	CurrentStep string     `json:"current_step,omitempty"`
	Error       string     `json:"error,omitempty"`
	Progress    int        `json:"progress"`
}

// StaleItem describes a task inactive for longer than the threshold.
type StaleItem struct {
	StaleSince        time.Time `json:"stale_since"`
	TaskID            string    `json:"task_id"`
	Title             string    `json:"title"`
	Status            Status    `json:"status"`
	RecommendedAction string    `json:"recommended_action"`
	HoursStale        int       `json:"hours_stale"`
}

// Dashboard is the comprehensive status view of a session.
type Dashboard struct {
	LastUpdated   time.Time                `json:"last_updated"`
	Breakdown     map[string][]TaskSummary `json:"task_breakdown"`
	SessionID     string                   `json:"session_id"`
	SessionName   string                   `json:"session_name"`
	ResearchType  string                   `json:"research_type,omitempty"`
	Target        string                   `json:"target,omitempty"`
	StaleItems    []StaleItem              `json:"stale_items"`
	NextActions   []string                 `json:"next_actions"`
	Progress      Progress                 `json:"progress"`
	SessionStatus SessionStatus            `json:"session_status"`
}

// Summarize builds the dashboard summary of a task.
func Summarize(t *Task, now time.Time) TaskSummary {
	s := TaskSummary{
		TaskID:      t.ID,
		Title:       t.Title,
		TaskType:    t.TaskType,
		Status:      t.Status,
		Progress:    t.Progress,
		CurrentStep: t.CurrentStep,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		CompletedAt: t.CompletedAt,
	}
	if t.Status == StatusFailed {
		s.Error = t.ErrorMessage
	}
	if d, ok := t.Duration(now); ok {
		secs := int64(d / time.Second)
		s.Duration = &secs
	}
	return s
}

// StaleRecommendation returns the suggested follow-up for a stale task.
func StaleRecommendation(s Status) string {
	switch s {
	case StatusPending:
		return "Review dependencies and initiate task if ready"
	case StatusInProgress:
		return "Check for system issues or stuck processing"
	case StatusWaitingUser:
		return "Follow up on required user action"
	default:
		return "Review task status and take appropriate action"
	}
}

// NewStaleItem builds the stale report entry for a task.
func NewStaleItem(t *Task, now time.Time) StaleItem {
	return StaleItem{
		TaskID:            t.ID,
		Title:             t.Title,
		Status:            t.Status,
		StaleSince:        t.UpdatedAt,
		HoursStale:        int(t.InactiveFor(now) / time.Hour),
		RecommendedAction: StaleRecommendation(t.Status),
	}
}

// BuildDashboard assembles the dashboard view of a session.
func BuildDashboard(session *Session, tasks []*Task, now time.Time, staleAfter time.Duration) *Dashboard {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}

	d := &Dashboard{
		SessionID:     session.ID,
		SessionName:   session.Name,
		ResearchType:  session.ResearchType,
		Target:        session.Target,
		SessionStatus: session.Status,
		Progress:      ComputeProgress(tasks),
		Breakdown:     make(map[string][]TaskSummary, len(BucketOrder)),
		StaleItems:    []StaleItem{},
		LastUpdated:   now,
	}
	for _, b := range BucketOrder {
		d.Breakdown[b] = []TaskSummary{}
	}

	threshold := now.Add(-staleAfter)
	for _, t := range tasks {
		bucket := BucketFor(t.Status)
		d.Breakdown[bucket] = append(d.Breakdown[bucket], Summarize(t, now))
		if t.Status.IsActive() && t.UpdatedAt.Before(threshold) {
			d.StaleItems = append(d.StaleItems, NewStaleItem(t, now))
		}
	}

	d.NextActions = nextActions(d)
	return d
}

// nextActions derives recommended follow-ups from the dashboard state.
func nextActions(d *Dashboard) []string {
	actions := []string{}

	if n := len(d.StaleItems) + len(d.Breakdown[BucketStale]); n > 0 {
		actions = append(actions, fmt.Sprintf("Review %d stale items requiring attention", n))
	}
	if n := len(d.Breakdown[BucketWaitingUser]); n > 0 {
		actions = append(actions, fmt.Sprintf("Complete %d pending user actions", n))
	}
	if n := len(d.Breakdown[BucketFailed]); n > 0 {
		actions = append(actions, fmt.Sprintf("Address %d failed tasks", n))
	}
	if len(actions) == 0 && len(d.Breakdown[BucketWaitingSystem]) > 0 {
		actions = append(actions, "System is processing tasks - check back soon")
	}
	if len(actions) == 0 && len(d.Breakdown[BucketCompleted]) == 0 {
		actions = append(actions, "No tasks in progress - consider starting new tasks")
	}
	return actions
}
