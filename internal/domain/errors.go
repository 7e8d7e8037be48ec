package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors.
var (
	ErrTaskNotFound           = errors.New("task not found")
	ErrSessionNotFound        = errors.New("session not found")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrInvalidState           = errors.New("invalid task state")
	ErrValidation             = errors.New("validation error")
	ErrRetryLimitExceeded     = errors.New("retry limit exceeded")
	ErrStorage                = errors.New("storage error")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrDependencyCycle        = errors.New("dependency cycle detected")
	ErrInvalidStatus          = errors.New("invalid status")
	ErrNotInitialized         = errors.New("store not initialized (run 'rcrew init' first)")
	ErrConfigExists           = errors.New("config file already exists")
	ErrUnknownBackend         = errors.New("unknown store backend")
)

// TaskError describes a rejected operation on a task or session.
// It carries the identifiers involved and the rule that was violated,
// and unwraps to one of the sentinel errors above.
type TaskError struct {
	Err       error  // Sentinel error (ErrInvalidTransition, ErrValidation, ...)
	TaskID    string // Task involved (may be empty for session-level errors)
	SessionID string // Session involved (may be empty)
	Rule      string // Human-readable description of the violated rule
}

// Error implements error.
func (e *TaskError) Error() string {
	var b strings.Builder
	switch {
	case e.TaskID != "":
		b.WriteString("task ")
		b.WriteString(e.TaskID)
	case e.SessionID != "":
		b.WriteString("session ")
		b.WriteString(e.SessionID)
	}
	if b.Len() > 0 {
		b.WriteString(": ")
	}
	b.WriteString(e.Err.Error())
	if e.Rule != "" {
		b.WriteString(": ")
		b.WriteString(e.Rule)
	}
	return b.String()
}

// Unwrap returns the sentinel error.
func (e *TaskError) Unwrap() error {
	return e.Err
}

// NewTaskError builds a TaskError for a task-scoped rule violation.
func NewTaskError(err error, taskID, rule string) *TaskError {
	return &TaskError{Err: err, TaskID: taskID, Rule: rule}
}

// NewSessionError builds a TaskError for a session-scoped rule violation.
func NewSessionError(err error, sessionID, rule string) *TaskError {
	return &TaskError{Err: err, SessionID: sessionID, Rule: rule}
}

// StorageFailure wraps a backend failure as ErrStorage.
// ErrConcurrentModification and ErrNotInitialized pass through unchanged.
func StorageFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrStorage) || errors.Is(err, ErrNotInitialized) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// IsTransient reports whether err is an infrastructure failure that the caller may retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrStorage) || errors.Is(err, ErrConcurrentModification)
}
