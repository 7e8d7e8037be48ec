// Package pgstore provides the Postgres-backed implementation of domain.Store.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/runoshun/research-crew/internal/domain"
)

const (
	tasksTable    = "tasks"
	sessionsTable = "sessions"
	auditTable    = "task_status_log"
)

// undefinedTable is the Postgres error code for a missing relation.
const undefinedTable = "42P01"

const taskColumns = `id, session_id, task_type, title, description, status, current_step,
	error_message, progress, retry_count, max_retries, version, depends_on, result_data,
	created_at, updated_at, started_at, completed_at`

const sessionColumns = `id, name, research_type, target, status, task_ids, progress,
	created_at, updated_at, completed_at`

// Store implements domain.Store backed by Postgres.
// All tables live in one schema, selected through the connection's search_path.
type Store struct {
	pool   *pgxpool.Pool
	schema string
}

// Open connects to dsn. A non-empty schema isolates the tables in that
// Postgres schema; Initialize creates it.
func Open(ctx context.Context, dsn, schema string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if schema != "" {
		cfg.ConnConfig.RuntimeParams["search_path"] = schema
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, schema: schema}, nil
}

// Initialize creates the schema and tables if they don't exist.
func (s *Store) Initialize(ctx context.Context) error {
	var statements []string
	if s.schema != "" {
		statements = append(statements, `CREATE SCHEMA IF NOT EXISTS `+pgx.Identifier{s.schema}.Sanitize())
	}
	statements = append(statements,
		`CREATE TABLE IF NOT EXISTS `+sessionsTable+` (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    research_type TEXT NOT NULL DEFAULT '',
    target        TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL,
    task_ids      TEXT[] NOT NULL DEFAULT '{}',
    progress      INTEGER NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL,
    completed_at  TIMESTAMPTZ
)`,
		`CREATE TABLE IF NOT EXISTS `+tasksTable+` (
    seq           BIGSERIAL,
    id            TEXT PRIMARY KEY,
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
    depends_on    TEXT[] NOT NULL DEFAULT '{}',
    result_data   JSONB,
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL,
    started_at    TIMESTAMPTZ,
    completed_at  TIMESTAMPTZ
)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_session ON `+tasksTable+` (session_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status_updated ON `+tasksTable+` (status, updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_depends_on ON `+tasksTable+` USING GIN (depends_on)`,
		`CREATE TABLE IF NOT EXISTS `+auditTable+` (
    id         BIGSERIAL PRIMARY KEY,
    task_id    TEXT NOT NULL,
    old_status TEXT NOT NULL DEFAULT '',
    new_status TEXT NOT NULL,
    changed_by TEXT NOT NULL,
    reason     TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_task_status_log_task ON `+auditTable+` (task_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_task_status_log_created ON `+auditTable+` (created_at)`,
	)

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Get retrieves a task by ID. Returns nil if not found.
func (s *Store) Get(ctx context.Context, id string) (*domain.Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM `+tasksTable+` WHERE id = $1`, id)
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
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
		`SELECT `+taskColumns+` FROM `+tasksTable+` WHERE session_id = $1 ORDER BY seq`, sessionID)
}

// ListByPredecessor retrieves tasks whose DependsOn contains taskID.
func (s *Store) ListByPredecessor(ctx context.Context, taskID string) ([]*domain.Task, error) {
	return s.queryTasks(ctx, "list successors",
		`SELECT `+taskColumns+` FROM `+tasksTable+` WHERE $1 = ANY(depends_on) ORDER BY seq`, taskID)
}

// ListStaleCandidates retrieves tasks in one of statuses last updated before updatedBefore.
func (s *Store) ListStaleCandidates(ctx context.Context, statuses []domain.Status, updatedBefore time.Time) ([]*domain.Task, error) {
	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		names = append(names, string(st))
	}
	return s.queryTasks(ctx, "list stale candidates",
		`SELECT `+taskColumns+` FROM `+tasksTable+`
WHERE status = ANY($1) AND updated_at < $2
ORDER BY seq`, names, updatedBefore)
}

// Save creates or replaces a task and appends entry in one transaction.
// The current row is locked with FOR UPDATE while its version is checked.
func (s *Store) Save(ctx context.Context, task *domain.Task, expectedVersion int, entry *domain.AuditEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return wrap("begin tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current := 0
	err = tx.QueryRow(ctx, `SELECT version FROM `+tasksTable+` WHERE id = $1 FOR UPDATE`, task.ID).Scan(&current)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return wrap("read task version", err)
	}
	if current != expectedVersion {
		return conflict(task.ID, expectedVersion, current)
	}

	next := expectedVersion + 1
	deps := task.DependsOn
	if deps == nil {
		deps = []string{}
	}
	args := []any{
		task.ID, task.SessionID, task.TaskType, task.Title, task.Description, string(task.Status),
		task.CurrentStep, task.ErrorMessage, task.Progress, task.RetryCount, task.MaxRetries,
		next, deps, nullableRaw(task.ResultData),
		task.CreatedAt, task.UpdatedAt, task.StartedAt, task.CompletedAt,
	}

	var tag pgconn.CommandTag
	if expectedVersion == 0 {
		tag, err = tx.Exec(ctx, `INSERT INTO `+tasksTable+` (`+taskColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
ON CONFLICT (id) DO NOTHING`, args...)
	} else {
		tag, err = tx.Exec(ctx, `UPDATE `+tasksTable+` SET
    session_id = $2, task_type = $3, title = $4, description = $5, status = $6,
    current_step = $7, error_message = $8, progress = $9, retry_count = $10, max_retries = $11,
    version = $12, depends_on = $13, result_data = $14,
    created_at = $15, updated_at = $16, started_at = $17, completed_at = $18
WHERE id = $1 AND version = $19`, append(args, expectedVersion)...)
	}
	if err != nil {
		return wrap("write task", err)
	}
	if tag.RowsAffected() != 1 {
		// A concurrent insert of the same id won the race.
		return conflict(task.ID, expectedVersion, -1)
	}

	if entry != nil {
		_, err = tx.Exec(ctx, `INSERT INTO `+auditTable+`
    (task_id, old_status, new_status, changed_by, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
			entry.TaskID, string(entry.OldStatus), string(entry.NewStatus), entry.ChangedBy, entry.Reason, entry.Timestamp)
		if err != nil {
			return wrap("append audit entry", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return wrap("commit tx", err)
	}
	task.Version = next
	return nil
}

// Delete removes a task. Its audit entries are kept.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM `+tasksTable+` WHERE id = $1`, id); err != nil {
		return wrap("delete task", err)
	}
	return nil
}

// GetSession retrieves a session by ID. Returns nil if not found.
func (s *Store) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM `+sessionsTable+` WHERE id = $1`, id)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get session", err)
	}
	return session, nil
}

// ListSessions retrieves all sessions ordered by creation time.
func (s *Store) ListSessions(ctx context.Context) ([]*domain.Session, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+sessionColumns+` FROM `+sessionsTable+` ORDER BY created_at, id`)
	if err != nil {
		return nil, wrap("list sessions", err)
	}
	defer rows.Close()

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
	taskIDs := session.TaskIDs
	if taskIDs == nil {
		taskIDs = []string{}
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO `+sessionsTable+` (`+sessionColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    research_type = EXCLUDED.research_type,
    target = EXCLUDED.target,
    status = EXCLUDED.status,
    task_ids = EXCLUDED.task_ids,
    progress = EXCLUDED.progress,
    created_at = EXCLUDED.created_at,
    updated_at = EXCLUDED.updated_at,
    completed_at = EXCLUDED.completed_at`,
		session.ID, session.Name, session.ResearchType, session.Target, string(session.Status),
		taskIDs, session.Progress, session.CreatedAt, session.UpdatedAt, session.CompletedAt,
	)
	if err != nil {
		return wrap("save session", err)
	}
	return nil
}

// DeleteSession removes a session and all of its tasks.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return wrap("begin tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM `+tasksTable+` WHERE session_id = $1`, id); err != nil {
		return wrap("delete session tasks", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM `+sessionsTable+` WHERE id = $1`, id); err != nil {
		return wrap("delete session", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return wrap("commit tx", err)
	}
	return nil
}

// ListAudit retrieves the entries of a task in insertion order.
func (s *Store) ListAudit(ctx context.Context, taskID string) ([]domain.AuditEntry, error) {
	return s.queryAudit(ctx, `SELECT task_id, old_status, new_status, changed_by, reason, created_at
FROM `+auditTable+` WHERE task_id = $1 ORDER BY id`, taskID)
}

// ListAuditSince retrieves entries written at or after since, newest first.
func (s *Store) ListAuditSince(ctx context.Context, since time.Time) ([]domain.AuditEntry, error) {
	return s.queryAudit(ctx, `SELECT task_id, old_status, new_status, changed_by, reason, created_at
FROM `+auditTable+` WHERE created_at >= $1 ORDER BY id DESC`, since)
}

func (s *Store) queryTasks(ctx context.Context, op, query string, args ...any) ([]*domain.Task, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	tasks, err := collectTasks(rows)
	if err != nil {
		return nil, wrap(op, err)
	}
	return tasks, nil
}

func (s *Store) queryAudit(ctx context.Context, query string, args ...any) ([]domain.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap("list audit", err)
	}
	defer rows.Close()

	entries := []domain.AuditEntry{}
	for rows.Next() {
		var (
			e                    domain.AuditEntry
			oldStatus, newStatus string
		)
		if err := rows.Scan(&e.TaskID, &oldStatus, &newStatus, &e.ChangedBy, &e.Reason, &e.Timestamp); err != nil {
			return nil, wrap("scan audit entry", err)
		}
		e.OldStatus = domain.Status(oldStatus)
		e.NewStatus = domain.Status(newStatus)
		e.Timestamp = e.Timestamp.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list audit", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		t      domain.Task
		status string
		result []byte
	)
	err := row.Scan(
		&t.ID, &t.SessionID, &t.TaskType, &t.Title, &t.Description, &status, &t.CurrentStep,
		&t.ErrorMessage, &t.Progress, &t.RetryCount, &t.MaxRetries, &t.Version, &t.DependsOn, &result,
		&t.CreatedAt, &t.UpdatedAt, &t.StartedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = domain.Status(status)
	if len(t.DependsOn) == 0 {
		t.DependsOn = nil
	}
	if result != nil {
		t.ResultData = json.RawMessage(result)
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	t.StartedAt = utcPtr(t.StartedAt)
	t.CompletedAt = utcPtr(t.CompletedAt)
	return &t, nil
}

func collectTasks(rows pgx.Rows) ([]*domain.Task, error) {
	defer rows.Close()

	tasks := []*domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s      domain.Session
		status string
	)
	err := row.Scan(&s.ID, &s.Name, &s.ResearchType, &s.Target, &status, &s.TaskIDs, &s.Progress,
		&s.CreatedAt, &s.UpdatedAt, &s.CompletedAt)
	if err != nil {
		return nil, err
	}
	s.Status = domain.SessionStatus(status)
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	s.CompletedAt = utcPtr(s.CompletedAt)
	return &s, nil
}

func conflict(taskID string, expected, current int) error {
	if current < 0 {
		return fmt.Errorf("task %s: expected version %d: %w", taskID, expected, domain.ErrConcurrentModification)
	}
	return fmt.Errorf("task %s: expected version %d, found %d: %w",
		taskID, expected, current, domain.ErrConcurrentModification)
}

// wrap maps a missing table to ErrNotInitialized.
func wrap(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
		return domain.ErrNotInitialized
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullableRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

// Ensure Store implements domain.Store.
var _ domain.Store = (*Store)(nil)
