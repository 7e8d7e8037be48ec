package gitstore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/infra/storetest"
)

func setupTestRepo(t *testing.T) *git.Repository {
	t.Helper()

	repo, err := git.Init(memory.NewStorage(), nil)
	require.NoError(t, err)
	return repo
}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store := NewWithRepo(setupTestRepo(t), "rcrew-test")
	require.NoError(t, store.Initialize(context.Background()))
	return store
}

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.Store {
		return newTestStore(t)
	})
}

func TestStore_NotInitialized(t *testing.T) {
	store := NewWithRepo(setupTestRepo(t), "rcrew-test")
	assert.False(t, store.IsInitialized())

	_, err := store.Get(context.Background(), "t1")
	require.ErrorIs(t, err, domain.ErrNotInitialized)

	require.NoError(t, store.Initialize(context.Background()))
	assert.True(t, store.IsInitialized())
}

func TestStore_DefaultNamespace(t *testing.T) {
	store := NewWithRepo(setupTestRepo(t), "")

	assert.Equal(t, "refs/rcrew/", store.refPrefix())
}

func TestStore_RefLayout(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveSession(ctx, &domain.Session{ID: "s1", Name: "Acme"}))
	require.NoError(t, store.Save(ctx, storetest.NewTask("t1", "s1"), 0, storetest.Created("t1", storetest.Base)))

	for _, name := range []string{
		"refs/rcrew-test/initialized",
		"refs/rcrew-test/meta",
		"refs/rcrew-test/tasks/t1",
		"refs/rcrew-test/sessions/s1",
		"refs/rcrew-test/audit",
	} {
		_, err := store.repo.Reference(plumbing.ReferenceName(name), true)
		assert.NoError(t, err, name)
	}
}

func TestStore_AuditChain(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	task := storetest.NewTask("t1", "s1")
	require.NoError(t, store.Save(ctx, task, 0, storetest.Created("t1", storetest.Base)))

	task.Status = domain.StatusInProgress
	require.NoError(t, store.Save(ctx, task, 1, &domain.AuditEntry{
		Timestamp: storetest.Base,
		TaskID:    "t1",
		OldStatus: domain.StatusPending,
		NewStatus: domain.StatusInProgress,
		ChangedBy: domain.ActorSystem,
	}))

	ref, err := store.repo.Reference(store.auditRef(), true)
	require.NoError(t, err)
	tip, err := store.repo.CommitObject(ref.Hash())
	require.NoError(t, err)
	assert.Equal(t, "t1: pending -> in_progress\n", tip.Message)
	require.Equal(t, 1, tip.NumParents())

	first, err := store.repo.CommitObject(tip.ParentHashes[0])
	require.NoError(t, err)
	assert.Equal(t, "t1: created -> pending\n", first.Message)
	assert.Equal(t, 0, first.NumParents())
}

func TestStore_NamespacesAreIsolated(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	a := NewWithRepo(repo, "team-a")
	b := NewWithRepo(repo, "team-b")
	require.NoError(t, a.Initialize(ctx))
	require.NoError(t, b.Initialize(ctx))

	require.NoError(t, a.Save(ctx, storetest.NewTask("t1", "s1"), 0, nil))

	got, err := b.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, got)

	tasks, err := a.ListBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestStore_CancelledContext(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.ListSessions(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

// faultyRefStorage rejects audit ref updates and, with failRollback, the
// task ref restore that follows.
type faultyRefStorage struct {
	*memory.Storage
	failRollback bool
	auditFailed  bool
}

func (s *faultyRefStorage) CheckAndSetReference(ref, old *plumbing.Reference) error {
	name := ref.Name().String()
	if strings.HasSuffix(name, "/audit") {
		s.auditFailed = true
		return errors.New("audit ref locked")
	}
	if s.failRollback && s.auditFailed && strings.Contains(name, "/tasks/") {
		return errors.New("task ref locked")
	}
	return s.Storage.CheckAndSetReference(ref, old)
}

func (s *faultyRefStorage) RemoveReference(name plumbing.ReferenceName) error {
	if s.failRollback && s.auditFailed && strings.Contains(name.String(), "/tasks/") {
		return errors.New("task ref locked")
	}
	return s.Storage.RemoveReference(name)
}

func newFaultyStore(t *testing.T, failRollback bool) (*Store, *faultyRefStorage) {
	t.Helper()

	mem := memory.NewStorage()
	_, err := git.Init(mem, nil)
	require.NoError(t, err)
	storage := &faultyRefStorage{Storage: mem, failRollback: failRollback}
	repo, err := git.Open(storage, nil)
	require.NoError(t, err)

	store := NewWithRepo(repo, "rcrew-test")
	require.NoError(t, store.Initialize(context.Background()))
	return store, storage
}

func TestStore_Save_AuditFailure(t *testing.T) {
	tests := []struct {
		name         string
		failRollback bool
	}{
		{name: "task ref restored", failRollback: false},
		{name: "restore fails", failRollback: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newFaultyStore(t, tt.failRollback)
			ctx := context.Background()

			err := store.Save(ctx, storetest.NewTask("t1", "s1"), 0, storetest.Created("t1", storetest.Base))

			require.Error(t, err)
			assert.Contains(t, err.Error(), "set audit ref")
			got, getErr := store.Get(ctx, "t1")
			require.NoError(t, getErr)
			if tt.failRollback {
				assert.Contains(t, err.Error(), "roll back task ref")
				assert.NotNil(t, got, "the task ref is left behind")
			} else {
				assert.NotContains(t, err.Error(), "roll back task ref")
				assert.Nil(t, got)
			}
		})
	}
}

func TestStore_Save_AuditFailureRestoresPreviousVersion(t *testing.T) {
	store, storage := newFaultyStore(t, true)
	ctx := context.Background()
	task := storetest.NewTask("t1", "s1")
	require.NoError(t, store.Save(ctx, task, 0, nil))

	task.Status = domain.StatusInProgress
	err := store.Save(ctx, task, 1, &domain.AuditEntry{
		Timestamp: storetest.Base,
		TaskID:    "t1",
		OldStatus: domain.StatusPending,
		NewStatus: domain.StatusInProgress,
		ChangedBy: domain.ActorSystem,
	})

	require.Error(t, err)
	assert.True(t, storage.auditFailed)
	assert.Contains(t, err.Error(), "roll back task ref")
}
