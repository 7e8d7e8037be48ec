// Package sqlitestore provides a SQLite implementation of domain.Store.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/runoshun/research-crew/internal/domain"
)

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schemaVersion = 1

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		research_type TEXT NOT NULL DEFAULT '',
		target        TEXT NOT NULL DEFAULT '',
		status        TEXT NOT NULL,
		task_ids      TEXT NOT NULL DEFAULT '[]',
		progress      INTEGER NOT NULL DEFAULT 0,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL,
		completed_at  TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		seq           INTEGER PRIMARY KEY AUTOINCREMENT,
		id            TEXT NOT NULL UNIQUE,
		session_id    TEXT NOT NULL,
		task_type     TEXT NOT NULL DEFAULT '',
		title         TEXT NOT NULL,
		description   TEXT NOT NULL DEFAULT '',
		status        TEXT NOT NULL,
		current_step  TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		progress      INTEGER NOT NULL DEFAULT 0,
		retry_count   INTEGER NOT NULL DEFAULT 0,
		max_retries   INTEGER NOT NULL DEFAULT 0,
		version       INTEGER NOT NULL,
		depends_on    TEXT NOT NULL DEFAULT '[]',
		result_data   TEXT,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL,
		started_at    TEXT,
		completed_at  TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_session ON tasks (session_id, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status_updated ON tasks (status, updated_at)`,
	`CREATE TABLE IF NOT EXISTS task_status_log (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id    TEXT NOT NULL,
		old_status TEXT NOT NULL DEFAULT '',
		new_status TEXT NOT NULL,
		changed_by TEXT NOT NULL,
		reason     TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_task_status_log_task ON task_status_log (task_id, id)`,
	`CREATE INDEX IF NOT EXISTS idx_task_status_log_created ON task_status_log (created_at)`,
}

const taskColumns = `id, session_id, task_type, title, description, status, current_step,
	error_message, progress, retry_count, max_retries, version, depends_on, result_data,
	created_at, updated_at, started_at, completed_at`

const sessionColumns = `id, name, research_type, target, status, task_ids, progress,
	created_at, updated_at, completed_at`

// Store implements domain.Store on a SQLite database file.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path. Call Initialize to create the schema.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on&_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Store{db: db}, nil
}

// Initialize creates the schema if it doesn't exist.
func (s *Store) Initialize(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get retrieves a task by ID. Returns nil if not found.
func (s *Store) Get(ctx context.Context, id string) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get task", err)
	}
	return task, nil
}

// ListBySession retrieves the tasks of a session in creation order.
func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]*domain.Task, error) {
	return s.queryTasks(ctx, "list session tasks",
		`SELECT `+taskColumns+` FROM tasks WHERE session_id = ? ORDER BY seq`, sessionID)
}

// ListByPredecessor retrieves tasks whose DependsOn contains taskID.
func (s *Store) ListByPredecessor(ctx context.Context, taskID string) ([]*domain.Task, error) {
	return s.queryTasks(ctx, "list successors",
		`SELECT `+taskColumns+` FROM tasks
		WHERE EXISTS (SELECT 1 FROM json_each(tasks.depends_on) WHERE json_each.value = ?)
		ORDER BY seq`, taskID)
}

// ListStaleCandidates retrieves tasks in one of statuses last updated before updatedBefore.
func (s *Store) ListStaleCandidates(ctx context.Context, statuses []domain.Status, updatedBefore time.Time) ([]*domain.Task, error) {
	if len(statuses) == 0 {
		return []*domain.Task{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, 0, len(statuses)+1)
	for _, st := range statuses {
		args = append(args, string(st))
	}
	args = append(args, formatTime(updatedBefore))

	return s.queryTasks(ctx, "list stale candidates",
		`SELECT `+taskColumns+` FROM tasks
		WHERE status IN (`+placeholders+`) AND updated_at < ?
		ORDER BY seq`, args...)
}

// Save creates or replaces a task and appends entry in one transaction.
func (s *Store) Save(ctx context.Context, task *domain.Task, expectedVersion int, entry *domain.AuditEntry) error {
	deps, err := json.Marshal(nonNil(task.DependsOn))
	if err != nil {
		return fmt.Errorf("marshal dependencies: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	current := 0
	err = tx.QueryRowContext(ctx, `SELECT version FROM tasks WHERE id = ?`, task.ID).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return wrap("read task version", err)
	}
	if current != expectedVersion {
		return fmt.Errorf("task %s: expected version %d, found %d: %w",
			task.ID, expectedVersion, current, domain.ErrConcurrentModification)
	}

	next := expectedVersion + 1
	values := []any{
		task.SessionID, task.TaskType, task.Title, task.Description, string(task.Status),
		task.CurrentStep, task.ErrorMessage, task.Progress, task.RetryCount, task.MaxRetries,
		next, string(deps), nullableRaw(task.ResultData),
		formatTime(task.CreatedAt), formatTime(task.UpdatedAt),
		nullableTime(task.StartedAt), nullableTime(task.CompletedAt),
	}

	if expectedVersion == 0 {
		_, err = tx.ExecContext(ctx, `INSERT INTO tasks (`+taskColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			append([]any{task.ID}, values...)...)
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE tasks SET
			session_id = ?, task_type = ?, title = ?, description = ?, status = ?,
			current_step = ?, error_message = ?, progress = ?, retry_count = ?, max_retries = ?,
			version = ?, depends_on = ?, result_data = ?,
			created_at = ?, updated_at = ?, started_at = ?, completed_at = ?
			WHERE id = ?`,
			append(values, task.ID)...)
	}
	if err != nil {
		return wrap("write task", err)
	}

	if entry != nil {
		if err := insertAudit(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return wrap("commit tx", err)
	}
	task.Version = next
	return nil
}

// Delete removes a task. Its audit entries are kept.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return wrap("delete task", err)
	}
	return nil
}

// GetSession retrieves a session by ID. Returns nil if not found.
func (s *Store) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get session", err)
	}
	return session, nil
}

// ListSessions retrieves all sessions ordered by creation time.
func (s *Store) ListSessions(ctx context.Context) ([]*domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY created_at, id`)
	if err != nil {
		return nil, wrap("list sessions", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := []*domain.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, wrap("scan session", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list sessions", err)
	}
	return sessions, nil
}

// SaveSession creates or replaces a session.
func (s *Store) SaveSession(ctx context.Context, session *domain.Session) error {
	taskIDs, err := json.Marshal(nonNil(session.TaskIDs))
	if err != nil {
		return fmt.Errorf("marshal task ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			research_type = excluded.research_type,
			target = excluded.target,
			status = excluded.status,
			task_ids = excluded.task_ids,
			progress = excluded.progress,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at`,
		session.ID, session.Name, session.ResearchType, session.Target, string(session.Status),
		string(taskIDs), session.Progress,
		formatTime(session.CreatedAt), formatTime(session.UpdatedAt), nullableTime(session.CompletedAt),
	)
	if err != nil {
		return wrap("save session", err)
	}
	return nil
}

// DeleteSession removes a session and all of its tasks.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE session_id = ?`, id); err != nil {
		return wrap("delete session tasks", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return wrap("delete session", err)
	}
	if err := tx.Commit(); err != nil {
		return wrap("commit tx", err)
	}
	return nil
}

// ListAudit retrieves the entries of a task in insertion order.
func (s *Store) ListAudit(ctx context.Context, taskID string) ([]domain.AuditEntry, error) {
	return s.queryAudit(ctx, `SELECT task_id, old_status, new_status, changed_by, reason, created_at
		FROM task_status_log WHERE task_id = ? ORDER BY id`, taskID)
}

// ListAuditSince retrieves entries written at or after since, newest first.
func (s *Store) ListAuditSince(ctx context.Context, since time.Time) ([]domain.AuditEntry, error) {
	return s.queryAudit(ctx, `SELECT task_id, old_status, new_status, changed_by, reason, created_at
		FROM task_status_log WHERE created_at >= ? ORDER BY id DESC`, formatTime(since))
}

func (s *Store) queryTasks(ctx context.Context, op, query string, args ...any) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer func() { _ = rows.Close() }()

	tasks := []*domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, wrap("scan task", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}
	return tasks, nil
}

func (s *Store) queryAudit(ctx context.Context, query string, args ...any) ([]domain.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list audit", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []domain.AuditEntry{}
	for rows.Next() {
		var (
			e                    domain.AuditEntry
			oldStatus, newStatus string
			createdAt            string
		)
		if err := rows.Scan(&e.TaskID, &oldStatus, &newStatus, &e.ChangedBy, &e.Reason, &createdAt); err != nil {
			return nil, wrap("scan audit entry", err)
		}
		e.OldStatus = domain.Status(oldStatus)
		e.NewStatus = domain.Status(newStatus)
		if e.Timestamp, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list audit", err)
	}
	return entries, nil
}

func insertAudit(ctx context.Context, tx *sql.Tx, e *domain.AuditEntry) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO task_status_log
		(task_id, old_status, new_status, changed_by, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.TaskID, string(e.OldStatus), string(e.NewStatus), e.ChangedBy, e.Reason, formatTime(e.Timestamp))
	if err != nil {
		return wrap("append audit entry", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		t                      domain.Task
		status, deps           string
		result                 sql.NullString
		createdAt, updatedAt   string
		startedAt, completedAt sql.NullString
	)
	err := row.Scan(
		&t.ID, &t.SessionID, &t.TaskType, &t.Title, &t.Description, &status, &t.CurrentStep,
		&t.ErrorMessage, &t.Progress, &t.RetryCount, &t.MaxRetries, &t.Version, &deps, &result,
		&createdAt, &updatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = domain.Status(status)
	if err := json.Unmarshal([]byte(deps), &t.DependsOn); err != nil {
		return nil, fmt.Errorf("decode dependencies of %s: %w", t.ID, err)
	}
	if len(t.DependsOn) == 0 {
		t.DependsOn = nil
	}
	if result.Valid {
		t.ResultData = json.RawMessage(result.String)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if t.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, err
	}
	if t.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s                    domain.Session
		status, taskIDs      string
		createdAt, updatedAt string
		completedAt          sql.NullString
	)
	err := row.Scan(&s.ID, &s.Name, &s.ResearchType, &s.Target, &status, &taskIDs, &s.Progress,
		&createdAt, &updatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	s.Status = domain.SessionStatus(status)
	if err := json.Unmarshal([]byte(taskIDs), &s.TaskIDs); err != nil {
		return nil, fmt.Errorf("decode task ids of %s: %w", s.ID, err)
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if s.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// wrap maps a missing schema to ErrNotInitialized.
func wrap(op string, err error) error {
	if strings.Contains(err.Error(), "no such table") {
		return domain.ErrNotInitialized
	}
	return fmt.Errorf("%s: %w", op, err)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", v, err)
	}
	return t, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	t, err := parseTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullableRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// Ensure Store implements domain.Store.
var _ domain.Store = (*Store)(nil)
