// Package domain contains core business entities and interfaces.
package domain

import (
	"encoding/json"
	"slices"
	"time"
)

// DefaultMaxRetries is the retry budget given to new tasks.
const DefaultMaxRetries = 3

// Step markers written to CurrentStep by lifecycle operations.
const (
	StepCancelled     = "Task cancelled by user"
	StepQueuedOnRetry = "Task queued for retry"
)

// Task represents a unit of research work.
// Fields are ordered to minimize memory padding.
type Task struct {
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`             // Staleness clock
	StartedAt    *time.Time      `json:"started_at,omitempty"`   // First entry into in_progress
	CompletedAt  *time.Time      `json:"completed_at,omitempty"` // Set on completion
	ResultData   json.RawMessage `json:"result_data,omitempty"`  // Opaque payload attached on completion
	ID           string          `json:"id"`
	SessionID    string          `json:"session_id"`
	TaskType     string          `json:"task_type"`
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	CurrentStep  string          `json:"current_step,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Status       Status          `json:"status"`
	DependsOn    []string        `json:"depends_on,omitempty"`
	Progress     int             `json:"progress"`
	RetryCount   int             `json:"retry_count"`
	MaxRetries   int             `json:"max_retries"`
	Version      int             `json:"version"` // Optimistic-lock version, incremented on every save
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.StartedAt != nil {
		v := *t.StartedAt
		c.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	if t.ResultData != nil {
		c.ResultData = slices.Clone(t.ResultData)
	}
	if t.DependsOn != nil {
		c.DependsOn = slices.Clone(t.DependsOn)
	}
	return &c
}

// DependsOnTask returns true if id is one of the task's predecessors.
func (t *Task) DependsOnTask(id string) bool {
	return slices.Contains(t.DependsOn, id)
}

// RetriesLeft returns how many retries remain.
func (t *Task) RetriesLeft() int {
	if n := t.MaxRetries - t.RetryCount; n > 0 {
		return n
	}
	return 0
}

// IsExhausted returns true for a failed task with no retries left.
func (t *Task) IsExhausted() bool {
	return t.Status == StatusFailed && t.RetryCount >= t.MaxRetries
}

// Duration returns the time spent since the task started,
// up to completion or now. ok is false if the task never started.
func (t *Task) Duration(now time.Time) (d time.Duration, ok bool) {
	if t.StartedAt == nil {
		return 0, false
	}
	end := now
	if t.CompletedAt != nil {
		end = *t.CompletedAt
	}
	return end.Sub(*t.StartedAt), true
}

// InactiveFor returns the time elapsed since the last update.
func (t *Task) InactiveFor(now time.Time) time.Duration {
	return now.Sub(t.UpdatedAt)
}
