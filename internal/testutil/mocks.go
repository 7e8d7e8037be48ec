// Package testutil provides shared test utilities and mock implementations.
package testutil

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
)

// MockClock is a test double for domain.Clock.
type MockClock struct {
	NowTime time.Time
	mu      sync.Mutex
}

// NewMockClock creates a clock fixed at now.
func NewMockClock(now time.Time) *MockClock {
	return &MockClock{NowTime: now}
}

// Now returns the configured time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.NowTime
}

// Advance moves the clock forward by d.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NowTime = m.NowTime.Add(d)
}

// MockStore is an in-memory test double for domain.Store.
// Records are cloned on the way in and out so callers never share memory
// with the store, like a real backend.
// Fields are ordered to minimize memory padding.
type MockStore struct {
	Tasks     map[string]*domain.Task
	Sessions  map[string]*domain.Session
	GetErrFor map[string]error // Get fails for specific task ids
	GetErr    error
	SaveErr   error
	AuditErr  error // Simulates a failed audit append; the task write is rolled back
	ListErr   error
	DeleteErr error
	SessErr   error
	InitErr   error
	Audit     []domain.AuditEntry
	order     []string
	// SaveFailures makes the next N saves fail with ErrStorage.
	SaveFailures int
	// LostAcks makes the next N saves commit and still fail with ErrStorage,
	// like a write whose acknowledgement was lost.
	LostAcks     int
	SaveCalls    int
	mu           sync.Mutex
	Initialized  bool
	Closed       bool
}

// NewMockStore creates a new MockStore with initialized maps.
func NewMockStore() *MockStore {
	return &MockStore{
		Tasks:     make(map[string]*domain.Task),
		Sessions:  make(map[string]*domain.Session),
		GetErrFor: make(map[string]error),
	}
}

// Initialize marks the store initialized.
func (m *MockStore) Initialize(_ context.Context) error {
	if m.InitErr != nil {
		return m.InitErr
	}
	m.Initialized = true
	return nil
}

// Close marks the store closed.
func (m *MockStore) Close() error {
	m.Closed = true
	return nil
}

// Put stores a task directly, bypassing version checks and audit.
// It is meant for test setup.
func (m *MockStore) Put(task *domain.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Tasks[task.ID]; !ok {
		m.order = append(m.order, task.ID)
	}
	if task.Version == 0 {
		task.Version = 1
	}
	m.Tasks[task.ID] = task.Clone()
}

// PutSession stores a session directly. It is meant for test setup.
func (m *MockStore) PutSession(session *domain.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sessions[session.ID] = session.Clone()
}

// Task returns the stored copy of a task, or nil.
func (m *MockStore) Task(id string) *domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Tasks[id].Clone()
}

// AuditFor returns the audit entries of a task.
func (m *MockStore) AuditFor(taskID string) []domain.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range m.Audit {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out
}

// Get retrieves a task by ID.
func (m *MockStore) Get(ctx context.Context, id string) (*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	if err := m.GetErrFor[id]; err != nil {
		return nil, err
	}
	return m.Tasks[id].Clone(), nil
}

// ListBySession returns the tasks of a session in creation order.
func (m *MockStore) ListBySession(_ context.Context, sessionID string) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var tasks []*domain.Task
	for _, id := range m.order {
		if t, ok := m.Tasks[id]; ok && t.SessionID == sessionID {
			tasks = append(tasks, t.Clone())
		}
	}
	return tasks, nil
}

// ListByPredecessor returns tasks depending on taskID.
func (m *MockStore) ListByPredecessor(_ context.Context, taskID string) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var tasks []*domain.Task
	for _, id := range m.order {
		if t, ok := m.Tasks[id]; ok && t.DependsOnTask(taskID) {
			tasks = append(tasks, t.Clone())
		}
	}
	return tasks, nil
}

// ListStaleCandidates returns tasks in statuses updated before updatedBefore.
func (m *MockStore) ListStaleCandidates(_ context.Context, statuses []domain.Status, updatedBefore time.Time) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var tasks []*domain.Task
	for _, id := range m.order {
		t, ok := m.Tasks[id]
		if !ok {
			continue
		}
		if slices.Contains(statuses, t.Status) && t.UpdatedAt.Before(updatedBefore) {
			tasks = append(tasks, t.Clone())
		}
	}
	return tasks, nil
}

// Save creates or replaces a task and appends entry, checking expectedVersion.
func (m *MockStore) Save(ctx context.Context, task *domain.Task, expectedVersion int, entry *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls++
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if m.SaveFailures > 0 {
		m.SaveFailures--
		return domain.StorageFailure("save task", fmt.Errorf("injected failure"))
	}

	current := 0
	if existing, ok := m.Tasks[task.ID]; ok {
		current = existing.Version
	}
	if current != expectedVersion {
		return fmt.Errorf("task %s: expected version %d, found %d: %w",
			task.ID, expectedVersion, current, domain.ErrConcurrentModification)
	}
	if entry != nil && m.AuditErr != nil {
		return domain.StorageFailure("append audit", m.AuditErr)
	}

	if current == 0 {
		m.order = append(m.order, task.ID)
	}
	task.Version = expectedVersion + 1
	m.Tasks[task.ID] = task.Clone()
	if entry != nil {
		m.Audit = append(m.Audit, *entry)
	}
	if m.LostAcks > 0 {
		m.LostAcks--
		return domain.StorageFailure("save task", fmt.Errorf("connection reset after commit"))
	}
	return nil
}

// Delete removes a task.
func (m *MockStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.Tasks, id)
	m.order = slices.DeleteFunc(m.order, func(v string) bool { return v == id })
	return nil
}

// GetSession retrieves a session by ID.
func (m *MockStore) GetSession(_ context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SessErr != nil {
		return nil, m.SessErr
	}
	return m.Sessions[id].Clone(), nil
}

// ListSessions returns sessions ordered by creation time.
func (m *MockStore) ListSessions(_ context.Context) ([]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SessErr != nil {
		return nil, m.SessErr
	}
	sessions := make([]*domain.Session, 0, len(m.Sessions))
	for _, s := range m.Sessions {
		sessions = append(sessions, s.Clone())
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
func (m *MockStore) SaveSession(_ context.Context, session *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SessErr != nil {
		return m.SessErr
	}
	m.Sessions[session.ID] = session.Clone()
	return nil
}

// DeleteSession removes a session and its tasks.
func (m *MockStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SessErr != nil {
		return m.SessErr
	}
	delete(m.Sessions, id)
	for tid, t := range m.Tasks {
		if t.SessionID == id {
			delete(m.Tasks, tid)
		}
	}
	m.order = slices.DeleteFunc(m.order, func(v string) bool {
		_, ok := m.Tasks[v]
		return !ok
	})
	return nil
}

// ListAudit returns the entries of a task in insertion order.
func (m *MockStore) ListAudit(_ context.Context, taskID string) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := []domain.AuditEntry{}
	for _, e := range m.Audit {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListAuditSince returns entries written at or after since, newest first.
func (m *MockStore) ListAuditSince(_ context.Context, since time.Time) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := []domain.AuditEntry{}
	for i := len(m.Audit) - 1; i >= 0; i-- {
		if !m.Audit[i].Timestamp.Before(since) {
			out = append(out, m.Audit[i])
		}
	}
	return out, nil
}

// LogEntry is one message captured by MockLogger.
type LogEntry struct {
	Level    string
	TaskID   string
	Category string
	Msg      string
}

// MockLogger is a test double for domain.Logger recording every entry.
type MockLogger struct {
	Entries []LogEntry
	mu      sync.Mutex
}

func (m *MockLogger) record(level, taskID, category, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, LogEntry{Level: level, TaskID: taskID, Category: category, Msg: msg})
}

// Info records an info entry.
func (m *MockLogger) Info(taskID, category, msg string) { m.record("INFO", taskID, category, msg) }

// Debug records a debug entry.
func (m *MockLogger) Debug(taskID, category, msg string) { m.record("DEBUG", taskID, category, msg) }

// Warn records a warning entry.
func (m *MockLogger) Warn(taskID, category, msg string) { m.record("WARN", taskID, category, msg) }

// Error records an error entry.
func (m *MockLogger) Error(taskID, category, msg string) { m.record("ERROR", taskID, category, msg) }

// HasLevel returns true if any entry was recorded at level.
func (m *MockLogger) HasLevel(level string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Entries {
		if e.Level == level {
			return true
		}
	}
	return false
}

// MockConfigLoader is a test double for domain.ConfigLoader.
type MockConfigLoader struct {
	Config       *domain.Config
	GlobalConfig *domain.Config
	LoadErr      error
}

// NewMockConfigLoader creates a loader returning default configs.
func NewMockConfigLoader() *MockConfigLoader {
	return &MockConfigLoader{
		Config:       domain.NewDefaultConfig(),
		GlobalConfig: domain.NewDefaultConfig(),
	}
}

// Load returns the configured config.
func (m *MockConfigLoader) Load() (*domain.Config, error) {
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	return m.Config, nil
}

// LoadGlobal returns the configured global config.
func (m *MockConfigLoader) LoadGlobal() (*domain.Config, error) {
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	return m.GlobalConfig, nil
}

// MockConfigManager is a test double for domain.ConfigManager.
type MockConfigManager struct {
	InitErr    error
	Info       domain.ConfigInfo
	InitCalled bool
}

// GetConfigInfo returns the configured info.
func (m *MockConfigManager) GetConfigInfo() domain.ConfigInfo {
	return m.Info
}

// InitConfig records the call.
func (m *MockConfigManager) InitConfig() error {
	m.InitCalled = true
	return m.InitErr
}

// SequenceIDs is a test double for domain.IDGenerator returning
// prefix-1, prefix-2, ... in order.
type SequenceIDs struct {
	Prefix string
	next   int
	mu     sync.Mutex
}

// NewID returns the next id of the sequence.
func (s *SequenceIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	prefix := s.Prefix
	if prefix == "" {
		prefix = "id"
	}
	return fmt.Sprintf("%s-%d", prefix, s.next)
}
