package domain

import (
	"context"
	"time"
)

// StoreInitializer initializes the data store.
type StoreInitializer interface {
	// Initialize creates the store (files, refs, tables) if it doesn't exist.
	Initialize(ctx context.Context) error
}

// TaskRepository manages task persistence.
// Every call may fail with an error wrapping ErrStorage.
type TaskRepository interface {
	// Get retrieves a task by ID. Returns nil if not found.
	Get(ctx context.Context, id string) (*Task, error)

	// ListBySession retrieves the tasks of a session in creation order.
	ListBySession(ctx context.Context, sessionID string) ([]*Task, error)

	// ListByPredecessor retrieves tasks whose DependsOn contains taskID.
	ListByPredecessor(ctx context.Context, taskID string) ([]*Task, error)

	// ListStaleCandidates retrieves tasks in one of statuses last updated before updatedBefore.
	ListStaleCandidates(ctx context.Context, statuses []Status, updatedBefore time.Time) ([]*Task, error)

	// Save creates or replaces a task and appends entry (if non-nil) to the
	// audit log as a single unit of work.
	// expectedVersion is the version the caller read (0 = task must not exist).
	// A mismatch fails with ErrConcurrentModification and writes nothing.
	// On success task.Version is expectedVersion+1.
	Save(ctx context.Context, task *Task, expectedVersion int, entry *AuditEntry) error

	// Delete removes a task. Its audit history is kept.
	Delete(ctx context.Context, id string) error
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// GetSession retrieves a session by ID. Returns nil if not found.
	GetSession(ctx context.Context, id string) (*Session, error)

	// ListSessions retrieves all sessions ordered by creation time.
	ListSessions(ctx context.Context) ([]*Session, error)

	// SaveSession creates or replaces a session.
	SaveSession(ctx context.Context, session *Session) error

	// DeleteSession removes a session and all of its tasks.
	DeleteSession(ctx context.Context, id string) error
}

// AuditLog is the read side of the append-only audit trail.
// Entries are only ever written through TaskRepository.Save;
// no update or delete operation exists.
type AuditLog interface {
	// ListAudit retrieves the entries of a task in insertion order.
	ListAudit(ctx context.Context, taskID string) ([]AuditEntry, error)

	// ListAuditSince retrieves entries of all tasks written at or after since, newest first.
	ListAuditSince(ctx context.Context, since time.Time) ([]AuditEntry, error)
}

// Store is the full persistence surface opened by the process entry point.
type Store interface {
	TaskRepository
	SessionRepository
	AuditLog
	StoreInitializer

	// Close releases the backend's resources.
	Close() error
}

// Logger writes operational logs, optionally scoped to a task.
type Logger interface {
	Info(taskID, category, msg string)
	Debug(taskID, category, msg string)
	Warn(taskID, category, msg string)
	Error(taskID, category, msg string)
}

// NopLogger discards all log entries.
type NopLogger struct{}

func (NopLogger) Info(_, _, _ string)  {}
func (NopLogger) Debug(_, _, _ string) {}
func (NopLogger) Warn(_, _, _ string)  {}
func (NopLogger) Error(_, _, _ string) {}

// ConfigLoader loads configuration from files.
type ConfigLoader interface {
	// Load returns the merged configuration (defaults <- global <- data dir).
	Load() (*Config, error)

	// LoadGlobal returns only the global configuration.
	LoadGlobal() (*Config, error)
}

// ConfigManager writes configuration files.
type ConfigManager interface {
	// GetConfigInfo returns the paths and contents of known config files.
	GetConfigInfo() ConfigInfo

	// InitConfig writes the default config template to the data directory.
	InitConfig() error
}

// ConfigInfo describes a config file location.
type ConfigInfo struct {
	GlobalPath    string
	LocalPath     string
	GlobalContent string
	LocalContent  string
	GlobalExists  bool
	LocalExists   bool
}

// Clock provides time operations for testability.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// RealClock implements Clock using the system clock.
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// IDGenerator produces unique identifiers for tasks and sessions.
type IDGenerator interface {
	NewID() string
}
