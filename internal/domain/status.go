package domain

import "fmt"

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending     Status = "pending"      // Created or re-queued, waiting to start
	StatusInProgress  Status = "in_progress"  // Worker is processing
	StatusWaitingUser Status = "waiting_user" // Blocked on a user action
	StatusCompleted   Status = "completed"    // Finished with a result
	StatusFailed      Status = "failed"       // Finished with an error (retryable)
	StatusCancelled   Status = "cancelled"    // Cancelled by a caller (terminal)
	StatusStale       Status = "stale"        // Flagged by the staleness sweep
)

// AllStatuses returns all valid status values.
func AllStatuses() []Status {
	return []Status{
		StatusPending,
		StatusInProgress,
		StatusWaitingUser,
		StatusCompleted,
		StatusFailed,
		StatusCancelled,
		StatusStale,
	}
}

// Trigger identifies which operation is requesting a transition.
// Some edges of the state machine are reserved for a specific trigger.
type Trigger int

const (
	TriggerUpdate Trigger = iota // Regular status update from a worker or user
	TriggerRetry                 // Explicit retry of a failed task
	TriggerSweep                 // Staleness sweep
)

// String returns the trigger name.
func (t Trigger) String() string {
	switch t {
	case TriggerUpdate:
		return "update"
	case TriggerRetry:
		return "retry"
	case TriggerSweep:
		return "sweep"
	default:
		return fmt.Sprintf("trigger(%d)", int(t))
	}
}

// transitions defines the allowed status transitions and the trigger each edge requires.
// This table is the only place allowed transitions are defined.
//
//	pending      → in_progress, cancelled
//	in_progress  → completed, failed, waiting_user, cancelled
//	waiting_user → in_progress, cancelled
//	failed       → pending (retry only)
//	pending, in_progress → stale (sweep only) → pending, in_progress
var transitions = map[Status]map[Status]Trigger{
	StatusPending: {
		StatusInProgress: TriggerUpdate,
		StatusCancelled:  TriggerUpdate,
		StatusStale:      TriggerSweep,
	},
	StatusInProgress: {
		StatusCompleted:   TriggerUpdate,
		StatusFailed:      TriggerUpdate,
		StatusWaitingUser: TriggerUpdate,
		StatusCancelled:   TriggerUpdate,
		StatusStale:       TriggerSweep,
	},
	StatusWaitingUser: {
		StatusInProgress: TriggerUpdate,
		StatusCancelled:  TriggerUpdate,
	},
	StatusFailed: {
		StatusPending: TriggerRetry,
	},
	StatusStale: {
		StatusPending:    TriggerUpdate,
		StatusInProgress: TriggerUpdate,
	},
	StatusCompleted: {},
	StatusCancelled: {},
}

// CanTransitionTo returns true if the status can move to target using the given trigger.
func (s Status) CanTransitionTo(target Status, via Trigger) bool {
	allowed, ok := transitions[s]
	if !ok {
		return false
	}
	required, ok := allowed[target]
	return ok && required == via
}

// RequiredTrigger returns the trigger needed for the edge s → target, if the edge exists.
func (s Status) RequiredTrigger(target Status) (Trigger, bool) {
	t, ok := transitions[s][target]
	return t, ok
}

// IsTerminal returns true if no regular update can move a task out of this status.
// Failed is terminal for session completion even though a retry can revive it.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsActive returns true for statuses watched by the staleness detector.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusInProgress
}

// IsValid returns true if the status is a known valid value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusWaitingUser, StatusCompleted,
		StatusFailed, StatusCancelled, StatusStale:
		return true
	default:
		return false
	}
}

// ParseStatus converts a string into a Status, rejecting unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

// Display returns a human-readable representation of the status.
func (s Status) Display() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusInProgress:
		return "In Progress"
	case StatusWaitingUser:
		return "Waiting User"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusCancelled:
		return "Cancelled"
	case StatusStale:
		return "Stale"
	default:
		return string(s)
	}
}
