package domain

import "time"

// Actors recorded in the audit trail.
const (
	ActorSystem = "system"
	ActorSweep  = "staleness-sweep"
	ActorUser   = "user"
)

// AuditEntry is an immutable record of one status transition.
// An empty OldStatus marks task creation.
// Fields are ordered to minimize memory padding.
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	TaskID    string    `json:"task_id" yaml:"task_id"`
	OldStatus Status    `json:"old_status,omitempty" yaml:"old_status,omitempty"`
	NewStatus Status    `json:"new_status" yaml:"new_status"`
	ChangedBy string    `json:"changed_by" yaml:"changed_by"`
	Reason    string    `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// IsCreation returns true for the entry written when the task was created.
func (e AuditEntry) IsCreation() bool {
	return e.OldStatus == ""
}
