package domain

import (
	"slices"
	"time"
)

// SessionStatus represents the lifecycle of a research session.
type SessionStatus string

const (
	SessionPlanned    SessionStatus = "planned"     // No task has started yet
	SessionInProgress SessionStatus = "in_progress" // At least one task started, not all terminal
	SessionCompleted  SessionStatus = "completed"   // Every task finished; failed ones have no retries left
)

// Session is a named unit of research owning an ordered set of tasks.
// Fields are ordered to minimize memory padding.
type Session struct {
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	ResearchType string        `json:"research_type,omitempty"` // e.g. company_profile, market_analysis
	Target       string        `json:"target,omitempty"`        // Research subject (company, market, ...)
	Status       SessionStatus `json:"status"`
	TaskIDs      []string      `json:"task_ids"`
	Progress     int           `json:"progress"`
}

// AddTask appends a task id, ignoring duplicates.
func (s *Session) AddTask(id string) {
	if !slices.Contains(s.TaskIDs, id) {
		s.TaskIDs = append(s.TaskIDs, id)
	}
}

// RemoveTask removes a task id if present.
func (s *Session) RemoveTask(id string) {
	s.TaskIDs = slices.DeleteFunc(s.TaskIDs, func(v string) bool { return v == id })
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.CompletedAt != nil {
		v := *s.CompletedAt
		c.CompletedAt = &v
	}
	c.TaskIDs = slices.Clone(s.TaskIDs)
	return &c
}

// Refresh recomputes status and progress from the session's tasks.
// It returns true if anything changed.
func (s *Session) Refresh(tasks []*Task, now time.Time) bool {
	p := ComputeProgress(tasks)

	status := SessionPlanned
	started := false
	allTerminal := len(tasks) > 0
	for _, t := range tasks {
		if t.Status != StatusPending {
			started = true
		}
		// A failed task that can still be retried keeps the session open.
		if !t.Status.IsTerminal() || (t.Status == StatusFailed && !t.IsExhausted()) {
			allTerminal = false
		}
	}
	switch {
	case allTerminal:
		status = SessionCompleted
	case started:
		status = SessionInProgress
	}

	if status == s.Status && p.Percentage == s.Progress {
		return false
	}
	s.Status = status
	s.Progress = p.Percentage
	s.UpdatedAt = now
	if status == SessionCompleted {
		if s.CompletedAt == nil {
			s.CompletedAt = &now
		}
	} else {
		s.CompletedAt = nil
	}
	return true
}
