// Package jsonstore provides a JSON file-based implementation of domain.Store.
package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"syscall"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
)

// lockPollInterval is the pause between attempts to take a busy file lock.
const lockPollInterval = 10 * time.Millisecond

// storeData represents the JSON file structure.
// Fields are ordered to minimize memory padding.
type storeData struct {
	Tasks    map[string]*domain.Task    `json:"tasks"`
	Sessions map[string]*domain.Session `json:"sessions"`
	Order    []string                   `json:"order"` // Task ids in creation order
	Audit    []domain.AuditEntry        `json:"audit"` // Append-only
	Meta     meta                       `json:"meta"`
}

// meta contains store metadata.
type meta struct {
	SchemaVersion int `json:"schemaVersion"`
}

const schemaVersion = 1

// Store implements domain.Store using a single JSON file.
// Every operation holds an flock on a sibling lock file, so several
// processes can share the file. Writes go through a temp file and rename.
type Store struct {
	path     string
	lockPath string
}

// New creates a new Store for the given file path.
// The file does not need to exist; Initialize creates it.
func New(path string) *Store {
	return &Store{
		path:     path,
		lockPath: path + ".lock",
	}
}

// Get retrieves a task by ID. Returns nil if not found.
func (s *Store) Get(ctx context.Context, id string) (*domain.Task, error) {
	var task *domain.Task
	err := s.withLock(ctx, func(data *storeData) error {
		task = data.Tasks[id].Clone()
		return nil
	})
	return task, err
}

// ListBySession retrieves the tasks of a session in creation order.
func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]*domain.Task, error) {
	return s.listTasks(ctx, func(t *domain.Task) bool {
		return t.SessionID == sessionID
	})
}

// ListByPredecessor retrieves tasks whose DependsOn contains taskID.
func (s *Store) ListByPredecessor(ctx context.Context, taskID string) ([]*domain.Task, error) {
	return s.listTasks(ctx, func(t *domain.Task) bool {
		return t.DependsOnTask(taskID)
	})
}

// ListStaleCandidates retrieves tasks in one of statuses last updated before updatedBefore.
func (s *Store) ListStaleCandidates(ctx context.Context, statuses []domain.Status, updatedBefore time.Time) ([]*domain.Task, error) {
	return s.listTasks(ctx, func(t *domain.Task) bool {
		return slices.Contains(statuses, t.Status) && t.UpdatedAt.Before(updatedBefore)
	})
}

func (s *Store) listTasks(ctx context.Context, match func(*domain.Task) bool) ([]*domain.Task, error) {
	tasks := []*domain.Task{}
	err := s.withLock(ctx, func(data *storeData) error {
		for _, id := range data.Order {
			if t, ok := data.Tasks[id]; ok && match(t) {
				tasks = append(tasks, t.Clone())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// Save creates or replaces a task and appends entry under one exclusive
// lock and one file write.
func (s *Store) Save(ctx context.Context, task *domain.Task, expectedVersion int, entry *domain.AuditEntry) error {
	return s.withLockWrite(ctx, func(data *storeData) error {
		current := 0
		existing, exists := data.Tasks[task.ID]
		if exists {
			current = existing.Version
		}
		if current != expectedVersion {
			return fmt.Errorf("task %s: expected version %d, found %d: %w",
				task.ID, expectedVersion, current, domain.ErrConcurrentModification)
		}

		saved := task.Clone()
		saved.Version = expectedVersion + 1
		data.Tasks[task.ID] = saved
		if !exists {
			data.Order = append(data.Order, task.ID)
		}
		if entry != nil {
			data.Audit = append(data.Audit, *entry)
		}
		task.Version = saved.Version
		return nil
	})
}

// Delete removes a task. Its audit entries are kept.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.withLockWrite(ctx, func(data *storeData) error {
		delete(data.Tasks, id)
		data.Order = slices.DeleteFunc(data.Order, func(v string) bool { return v == id })
		return nil
	})
}

// GetSession retrieves a session by ID. Returns nil if not found.
func (s *Store) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	var session *domain.Session
	err := s.withLock(ctx, func(data *storeData) error {
		session = data.Sessions[id].Clone()
		return nil
	})
	return session, err
}

// ListSessions retrieves all sessions ordered by creation time.
func (s *Store) ListSessions(ctx context.Context) ([]*domain.Session, error) {
	sessions := []*domain.Session{}
	err := s.withLock(ctx, func(data *storeData) error {
		for _, session := range data.Sessions {
			sessions = append(sessions, session.Clone())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// SaveSession creates or replaces a session.
func (s *Store) SaveSession(ctx context.Context, session *domain.Session) error {
	return s.withLockWrite(ctx, func(data *storeData) error {
		data.Sessions[session.ID] = session.Clone()
		return nil
	})
}

// DeleteSession removes a session and all of its tasks.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return s.withLockWrite(ctx, func(data *storeData) error {
		delete(data.Sessions, id)
		for taskID, t := range data.Tasks {
			if t.SessionID == id {
				delete(data.Tasks, taskID)
			}
		}
		data.Order = slices.DeleteFunc(data.Order, func(v string) bool {
			_, ok := data.Tasks[v]
			return !ok
		})
		return nil
	})
}

// ListAudit retrieves the entries of a task in insertion order.
func (s *Store) ListAudit(ctx context.Context, taskID string) ([]domain.AuditEntry, error) {
	entries := []domain.AuditEntry{}
	err := s.withLock(ctx, func(data *storeData) error {
		for _, e := range data.Audit {
			if e.TaskID == taskID {
				entries = append(entries, e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ListAuditSince retrieves entries written at or after since, newest first.
func (s *Store) ListAuditSince(ctx context.Context, since time.Time) ([]domain.AuditEntry, error) {
	entries := []domain.AuditEntry{}
	err := s.withLock(ctx, func(data *storeData) error {
		for i := len(data.Audit) - 1; i >= 0; i-- {
			if !data.Audit[i].Timestamp.Before(since) {
				entries = append(entries, data.Audit[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// IsInitialized checks if the store file exists.
func (s *Store) IsInitialized() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Initialize creates an empty store file if it doesn't exist.
func (s *Store) Initialize(ctx context.Context) error {
	// Ensure parent directory exists
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	lock, err := s.acquireLock(ctx, syscall.LOCK_EX)
	if err != nil {
		return err
	}
	defer s.releaseLock(lock)

	if _, err := os.Stat(s.path); err == nil {
		return nil // Already exists
	}
	return s.write(newStoreData())
}

// Close is a no-op; the file is only open while an operation runs.
func (s *Store) Close() error {
	return nil
}

func newStoreData() *storeData {
	return &storeData{
		Meta:     meta{SchemaVersion: schemaVersion},
		Tasks:    make(map[string]*domain.Task),
		Sessions: make(map[string]*domain.Session),
		Order:    []string{},
		Audit:    []domain.AuditEntry{},
	}
}

// withLock executes fn with a shared (read) lock.
func (s *Store) withLock(ctx context.Context, fn func(*storeData) error) error {
	lock, err := s.acquireLock(ctx, syscall.LOCK_SH)
	if err != nil {
		return err
	}
	defer s.releaseLock(lock)

	data, err := s.read()
	if err != nil {
		return err
	}

	return fn(data)
}

// withLockWrite executes fn with an exclusive (write) lock and writes the result.
// Nothing is written if fn fails.
func (s *Store) withLockWrite(ctx context.Context, fn func(*storeData) error) error {
	lock, err := s.acquireLock(ctx, syscall.LOCK_EX)
	if err != nil {
		return err
	}
	defer s.releaseLock(lock)

	data, err := s.read()
	if err != nil {
		return err
	}

	if err := fn(data); err != nil {
		return err
	}

	return s.write(data)
}

// acquireLock takes the file lock without blocking past ctx.
func (s *Store) acquireLock(ctx context.Context, lockType int) (*os.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Ensure lock file directory exists
	dir := filepath.Dir(s.lockPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	lock, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	for {
		err := syscall.Flock(int(lock.Fd()), lockType|syscall.LOCK_NB)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, syscall.EWOULDBLOCK) {
			_ = lock.Close()
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		select {
		case <-ctx.Done():
			_ = lock.Close()
			return nil, fmt.Errorf("acquire lock: %w", ctx.Err())
		case <-time.After(lockPollInterval):
		}
	}
}

func (s *Store) releaseLock(lock *os.File) {
	_ = syscall.Flock(int(lock.Fd()), syscall.LOCK_UN)
	_ = lock.Close()
}

func (s *Store) read() (*storeData, error) {
	content, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotInitialized
		}
		return nil, fmt.Errorf("read store file: %w", err)
	}

	var data storeData
	if err := json.Unmarshal(content, &data); err != nil {
		return nil, fmt.Errorf("parse store file: %w", err)
	}

	// Ensure maps are initialized
	if data.Tasks == nil {
		data.Tasks = make(map[string]*domain.Task)
	}
	if data.Sessions == nil {
		data.Sessions = make(map[string]*domain.Session)
	}

	return &data, nil
}

func (s *Store) write(data *storeData) error {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store data: %w", err)
	}

	// Write to temp file first, then rename for atomicity
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath) // Clean up
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

// Ensure Store implements domain.Store.
var _ domain.Store = (*Store)(nil)
