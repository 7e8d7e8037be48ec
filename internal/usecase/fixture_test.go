package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/testutil"
	"github.com/runoshun/research-crew/internal/usecase/shared"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fixture wires the use cases over an in-memory store with session s1.
type fixture struct {
	store    *testutil.MockStore
	clock    *testutil.MockClock
	logger   *testutil.MockLogger
	ids      *testutil.SequenceIDs
	locks    *shared.KeyedLocker
	resolver *shared.Resolver
	sync     *shared.SessionSync
	engine   *shared.Engine
	detector *shared.Detector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  testutil.NewMockStore(),
		clock:  testutil.NewMockClock(testNow),
		logger: &testutil.MockLogger{},
		ids:    &testutil.SequenceIDs{Prefix: "task"},
		locks:  shared.NewKeyedLocker(),
	}
	f.resolver = shared.NewResolver(f.store, time.Second)
	f.sync = shared.NewSessionSync(f.store, f.store, f.locks, f.clock, f.logger, time.Second)
	f.engine = shared.NewEngine(f.store, f.resolver, f.sync, f.locks, f.clock, f.logger, shared.EngineOptions{
		StoreTimeout: time.Second,
		Retry:        shared.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	})
	f.detector = shared.NewDetector(f.store, f.clock, time.Second)
	f.store.PutSession(&domain.Session{
		ID:        "s1",
		Name:      "Acme Corp profile",
		Status:    domain.SessionPlanned,
		TaskIDs:   []string{},
		CreatedAt: testNow.Add(-48 * time.Hour),
		UpdatedAt: testNow.Add(-48 * time.Hour),
	})
	return f
}

func (f *fixture) createTask() *CreateTask {
	return NewCreateTask(f.store, f.store, f.sync, f.locks, f.ids, f.clock, f.logger, CreateTaskOptions{
		StoreTimeout: time.Second,
		MaxRetries:   domain.DefaultMaxRetries,
		RejectCycles: true,
	})
}

func (f *fixture) transition() *TransitionTask {
	return NewTransitionTask(f.engine, f.resolver)
}

// newTask creates a task in s1 through CreateTask.
func (f *fixture) newTask(t *testing.T, title string, deps ...string) *domain.Task {
	t.Helper()
	out, err := f.createTask().Execute(context.Background(), CreateTaskInput{
		SessionID: "s1",
		Title:     title,
		DependsOn: deps,
	})
	require.NoError(t, err)
	return out.Task
}

// put stores a task directly in s1.
func (f *fixture) put(id string, status domain.Status, mutate ...func(*domain.Task)) {
	task := &domain.Task{
		ID:         id,
		SessionID:  "s1",
		Title:      "Task " + id,
		TaskType:   "research",
		Status:     status,
		MaxRetries: domain.DefaultMaxRetries,
		CreatedAt:  testNow.Add(-time.Hour),
		UpdatedAt:  testNow.Add(-time.Hour),
	}
	for _, m := range mutate {
		m(task)
	}
	f.store.Put(task)
}

// setStatus moves a task through TransitionTask and fails the test on error.
func (f *fixture) setStatus(t *testing.T, id string, to domain.Status) *domain.Task {
	t.Helper()
	out, err := f.transition().Execute(context.Background(), TransitionTaskInput{TaskID: id, Status: to})
	require.NoError(t, err)
	return out.Task
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func taskIDs(tasks []*domain.Task) []string {
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	return ids
}
