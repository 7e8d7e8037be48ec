// Package storetest holds the behaviour every domain.Store backend must share.
// Backends call Run from their own tests with a constructor for a fresh,
// initialized store.
package storetest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Base is the reference time used for stored timestamps.
var Base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Opener returns a fresh, initialized store. It registers its own cleanup.
type Opener func(t *testing.T) domain.Store

// Run executes the shared store behaviour tests against open.
func Run(t *testing.T, open Opener) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, open(t)) })
	t.Run("SaveAndGet", func(t *testing.T) { testSaveAndGet(t, open(t)) })
	t.Run("SaveVersionConflict", func(t *testing.T) { testSaveVersionConflict(t, open(t)) })
	t.Run("ConcurrentSave", func(t *testing.T) { testConcurrentSave(t, open(t)) })
	t.Run("ListBySession", func(t *testing.T) { testListBySession(t, open(t)) })
	t.Run("ListByPredecessor", func(t *testing.T) { testListByPredecessor(t, open(t)) })
	t.Run("ListStaleCandidates", func(t *testing.T) { testListStaleCandidates(t, open(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, open(t)) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, open(t)) })
	t.Run("DeleteSessionCascades", func(t *testing.T) { testDeleteSessionCascades(t, open(t)) })
	t.Run("AuditOrder", func(t *testing.T) { testAuditOrder(t, open(t)) })
	t.Run("AuditSince", func(t *testing.T) { testAuditSince(t, open(t)) })
	t.Run("InitializeIdempotent", func(t *testing.T) { testInitializeIdempotent(t, open(t)) })
}

// NewTask returns a pending task owned by sessionID.
func NewTask(id, sessionID string, deps ...string) *domain.Task {
	return &domain.Task{
		ID:         id,
		SessionID:  sessionID,
		TaskType:   "web_scrape",
		Title:      "Task " + id,
		Status:     domain.StatusPending,
		DependsOn:  deps,
		MaxRetries: domain.DefaultMaxRetries,
		CreatedAt:  Base,
		UpdatedAt:  Base,
	}
}

// Created returns the audit entry written when id is created.
func Created(id string, at time.Time) *domain.AuditEntry {
	return &domain.AuditEntry{
		Timestamp: at,
		TaskID:    id,
		NewStatus: domain.StatusPending,
		ChangedBy: domain.ActorUser,
		Reason:    "task created",
	}
}

func mustCreate(t *testing.T, s domain.Store, task *domain.Task) {
	t.Helper()
	require.NoError(t, s.Save(context.Background(), task, 0, Created(task.ID, task.CreatedAt)))
}

func testGetMissing(t *testing.T, s domain.Store) {
	ctx := context.Background()

	task, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, task)

	session, err := s.GetSession(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, session)
}

func testSaveAndGet(t *testing.T, s domain.Store) {
	ctx := context.Background()
	started := Base.Add(time.Minute)
	task := NewTask("t1", "s1", "t0")
	task.Description = "Collect the public pages"
	task.StartedAt = &started
	task.ResultData = json.RawMessage(`{"pages":3}`)
	task.Progress = 40

	require.NoError(t, s.Save(ctx, task, 0, Created("t1", Base)))
	assert.Equal(t, 1, task.Version)

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "Task t1", got.Title)
	assert.Equal(t, "Collect the public pages", got.Description)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, []string{"t0"}, got.DependsOn)
	assert.Equal(t, 40, got.Progress)
	assert.Equal(t, 1, got.Version)
	assert.True(t, got.CreatedAt.Equal(Base))
	require.NotNil(t, got.StartedAt)
	assert.True(t, got.StartedAt.Equal(started))
	assert.Nil(t, got.CompletedAt)
	assert.JSONEq(t, `{"pages":3}`, string(got.ResultData))

	got.Status = domain.StatusInProgress
	entry := &domain.AuditEntry{
		Timestamp: Base.Add(time.Minute),
		TaskID:    "t1",
		OldStatus: domain.StatusPending,
		NewStatus: domain.StatusInProgress,
		ChangedBy: domain.ActorSystem,
	}
	require.NoError(t, s.Save(ctx, got, 1, entry))
	assert.Equal(t, 2, got.Version)

	again, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, again.Status)
	assert.Equal(t, 2, again.Version)
}

func testSaveVersionConflict(t *testing.T, s domain.Store) {
	ctx := context.Background()
	mustCreate(t, s, NewTask("t1", "s1"))

	tests := []struct {
		name     string
		task     *domain.Task
		expected int
	}{
		{"create existing", NewTask("t1", "s1"), 0},
		{"stale version", NewTask("t1", "s1"), 2},
		{"update missing", NewTask("t2", "s1"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &domain.AuditEntry{Timestamp: Base, TaskID: tt.task.ID, NewStatus: domain.StatusFailed, ChangedBy: "test"}
			err := s.Save(ctx, tt.task, tt.expected, entry)
			require.ErrorIs(t, err, domain.ErrConcurrentModification)
		})
	}

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)

	entries, err := s.ListAudit(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "rejected saves must not append audit entries")

	missing, err := s.Get(ctx, "t2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testConcurrentSave(t *testing.T, s domain.Store) {
	ctx := context.Background()
	mustCreate(t, s, NewTask("t1", "s1"))

	const writers = 5
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task := NewTask("t1", "s1")
			task.Status = domain.StatusInProgress
			entry := &domain.AuditEntry{
				Timestamp: Base,
				TaskID:    "t1",
				OldStatus: domain.StatusPending,
				NewStatus: domain.StatusInProgress,
				ChangedBy: "writer",
			}
			if err := s.Save(ctx, task, 1, entry); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	entries, err := s.ListAudit(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func testListBySession(t *testing.T, s domain.Store) {
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		mustCreate(t, s, NewTask(id, "s1"))
	}
	mustCreate(t, s, NewTask("other", "s2"))

	tasks, err := s.ListBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, ids(tasks))

	empty, err := s.ListBySession(ctx, "none")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testListByPredecessor(t *testing.T, s domain.Store) {
	ctx := context.Background()
	mustCreate(t, s, NewTask("a", "s1"))
	mustCreate(t, s, NewTask("b", "s1", "a"))
	mustCreate(t, s, NewTask("c", "s1", "b", "a"))
	mustCreate(t, s, NewTask("d", "s1", "b"))

	tasks, err := s.ListByPredecessor(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids(tasks))

	none, err := s.ListByPredecessor(ctx, "d")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testListStaleCandidates(t *testing.T, s domain.Store) {
	ctx := context.Background()
	cutoff := Base.Add(-24 * time.Hour)

	put := func(id string, status domain.Status, updated time.Time) {
		task := NewTask(id, "s1")
		task.Status = status
		task.UpdatedAt = updated
		mustCreate(t, s, task)
	}
	put("old-running", domain.StatusInProgress, cutoff.Add(-time.Hour))
	put("old-waiting", domain.StatusWaitingUser, cutoff.Add(-time.Minute))
	put("old-pending", domain.StatusPending, cutoff.Add(-time.Hour))
	put("fresh-running", domain.StatusInProgress, cutoff.Add(time.Minute))
	put("at-cutoff", domain.StatusInProgress, cutoff)

	tasks, err := s.ListStaleCandidates(ctx,
		[]domain.Status{domain.StatusInProgress, domain.StatusWaitingUser}, cutoff)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"old-running", "old-waiting"}, ids(tasks))
}

func testDelete(t *testing.T, s domain.Store) {
	ctx := context.Background()
	mustCreate(t, s, NewTask("t1", "s1"))
	mustCreate(t, s, NewTask("t2", "s1"))

	require.NoError(t, s.Delete(ctx, "t1"))
	require.NoError(t, s.Delete(ctx, "missing"))

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, got)

	tasks, err := s.ListBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, ids(tasks))

	entries, err := s.ListAudit(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "audit history survives task deletion")

	// The id can be reused after deletion.
	require.NoError(t, s.Save(ctx, NewTask("t1", "s1"), 0, nil))
}

func testSessions(t *testing.T, s domain.Store) {
	ctx := context.Background()
	completed := Base.Add(3 * time.Hour)
	sessions := []*domain.Session{
		{ID: "late", Name: "Market scan", Status: domain.SessionPlanned, CreatedAt: Base.Add(time.Hour), UpdatedAt: Base.Add(time.Hour)},
		{ID: "early", Name: "Acme Corp profile", ResearchType: "company_profile", Target: "acme.example",
			Status: domain.SessionCompleted, TaskIDs: []string{"t1", "t2"}, Progress: 100,
			CreatedAt: Base, UpdatedAt: completed, CompletedAt: &completed},
	}
	for _, session := range sessions {
		require.NoError(t, s.SaveSession(ctx, session))
	}

	got, err := s.GetSession(ctx, "early")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Acme Corp profile", got.Name)
	assert.Equal(t, "company_profile", got.ResearchType)
	assert.Equal(t, "acme.example", got.Target)
	assert.Equal(t, domain.SessionCompleted, got.Status)
	assert.Equal(t, []string{"t1", "t2"}, got.TaskIDs)
	assert.Equal(t, 100, got.Progress)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(completed))

	got.Name = "Acme profile"
	require.NoError(t, s.SaveSession(ctx, got))

	list, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "early", list[0].ID)
	assert.Equal(t, "Acme profile", list[0].Name)
	assert.Equal(t, "late", list[1].ID)
}

func testDeleteSessionCascades(t *testing.T, s domain.Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveSession(ctx, &domain.Session{ID: "s1", Name: "one", CreatedAt: Base}))
	require.NoError(t, s.SaveSession(ctx, &domain.Session{ID: "s2", Name: "two", CreatedAt: Base}))
	mustCreate(t, s, NewTask("a", "s1"))
	mustCreate(t, s, NewTask("b", "s1"))
	mustCreate(t, s, NewTask("c", "s2"))

	require.NoError(t, s.DeleteSession(ctx, "s1"))

	session, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, session)

	gone, err := s.ListBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, gone)

	kept, err := s.ListBySession(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(kept))
}

func testAuditOrder(t *testing.T, s domain.Store) {
	ctx := context.Background()
	task := NewTask("t1", "s1")
	mustCreate(t, s, task)

	steps := []domain.Status{domain.StatusInProgress, domain.StatusFailed, domain.StatusPending}
	prev := domain.StatusPending
	for i, next := range steps {
		task.Status = next
		entry := &domain.AuditEntry{
			Timestamp: Base.Add(time.Duration(i+1) * time.Minute),
			TaskID:    "t1",
			OldStatus: prev,
			NewStatus: next,
			ChangedBy: domain.ActorSystem,
			Reason:    "step",
		}
		require.NoError(t, s.Save(ctx, task, task.Version, entry))
		prev = next
	}
	// A save without an entry leaves the trail untouched.
	task.Progress = 10
	require.NoError(t, s.Save(ctx, task, task.Version, nil))

	entries, err := s.ListAudit(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.True(t, entries[0].IsCreation())
	assert.Equal(t, "task created", entries[0].Reason)
	assert.Equal(t, domain.ActorUser, entries[0].ChangedBy)
	for i, next := range steps {
		assert.Equal(t, next, entries[i+1].NewStatus)
		assert.True(t, entries[i+1].Timestamp.Equal(Base.Add(time.Duration(i+1)*time.Minute)))
	}
	assert.Equal(t, domain.StatusFailed, entries[3].OldStatus)

	none, err := s.ListAudit(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testAuditSince(t *testing.T, s domain.Store) {
	ctx := context.Background()
	mustCreate(t, s, NewTask("old", "s1"))
	for i, id := range []string{"a", "b", "c"} {
		task := NewTask(id, "s1")
		require.NoError(t, s.Save(ctx, task, 0, Created(id, Base.Add(time.Duration(i+1)*time.Hour))))
	}

	entries, err := s.ListAuditSince(ctx, Base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].TaskID)
	assert.Equal(t, "b", entries[1].TaskID)

	all, err := s.ListAuditSince(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func testInitializeIdempotent(t *testing.T, s domain.Store) {
	ctx := context.Background()
	mustCreate(t, s, NewTask("t1", "s1"))

	require.NoError(t, s.Initialize(ctx))

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.NotNil(t, got, "re-initializing must keep existing data")
}

func ids(tasks []*domain.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}
