package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolverStore(statuses map[string]domain.Status, deps map[string][]string) *testutil.MockStore {
	store := testutil.NewMockStore()
	for _, id := range []string{"a", "b", "c", "d"} {
		status, ok := statuses[id]
		if !ok {
			continue
		}
		store.Put(&domain.Task{ID: id, SessionID: "s1", Status: status, DependsOn: deps[id]})
	}
	return store
}

func TestResolver_IsReady(t *testing.T) {
	tests := []struct {
		name      string
		predState domain.Status
		want      bool
	}{
		{"predecessor pending", domain.StatusPending, false},
		{"predecessor in_progress", domain.StatusInProgress, false},
		{"predecessor failed", domain.StatusFailed, false},
		{"predecessor cancelled", domain.StatusCancelled, false},
		{"predecessor completed", domain.StatusCompleted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newResolverStore(
				map[string]domain.Status{"a": tt.predState, "b": domain.StatusPending},
				map[string][]string{"b": {"a"}},
			)
			r := NewResolver(store, time.Second)

			ready, err := r.IsReady(context.Background(), store.Task("b"))

			require.NoError(t, err)
			assert.Equal(t, tt.want, ready)
		})
	}
}

func TestResolver_IsReady_NoDependencies(t *testing.T) {
	store := testutil.NewMockStore()
	store.GetErr = errors.New("not consulted")
	r := NewResolver(store, time.Second)

	ready, err := r.IsReady(context.Background(), &domain.Task{ID: "a"})

	require.NoError(t, err)
	assert.True(t, ready)
}

func TestResolver_IsReady_MissingPredecessorFailsClosed(t *testing.T) {
	store := testutil.NewMockStore()
	r := NewResolver(store, time.Second)

	ready, err := r.IsReady(context.Background(), &domain.Task{ID: "b", DependsOn: []string{"deleted"}})

	require.NoError(t, err)
	assert.False(t, ready)
}

func TestResolver_IsReady_StoreError(t *testing.T) {
	store := testutil.NewMockStore()
	store.GetErr = errors.New("connection reset")
	r := NewResolver(store, time.Second)

	_, err := r.IsReady(context.Background(), &domain.Task{ID: "b", DependsOn: []string{"a"}})

	require.ErrorIs(t, err, domain.ErrStorage)
}

func TestResolver_UnmetDependencies(t *testing.T) {
	store := newResolverStore(
		map[string]domain.Status{"a": domain.StatusCompleted, "b": domain.StatusInProgress, "c": domain.StatusPending},
		map[string][]string{"c": {"a", "b", "gone"}},
	)
	r := NewResolver(store, time.Second)

	unmet, err := r.UnmetDependencies(context.Background(), store.Task("c"))

	require.NoError(t, err)
	assert.Equal(t, []string{"b", "gone"}, unmet)
}

func TestResolver_OnTaskCompleted(t *testing.T) {
	store := newResolverStore(
		map[string]domain.Status{"a": domain.StatusInProgress, "b": domain.StatusPending},
		map[string][]string{"b": {"a"}},
	)
	r := NewResolver(store, time.Second)

	ready, err := r.OnTaskCompleted(context.Background(), "a")
	require.NoError(t, err)
	assert.Empty(t, ready, "nothing is ready before a completes")

	a := store.Task("a")
	a.Status = domain.StatusCompleted
	store.Put(a)

	ready, err = r.OnTaskCompleted(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "b", ready[0].ID)
}

func TestResolver_OnTaskCompleted_PartialDependencies(t *testing.T) {
	store := newResolverStore(
		map[string]domain.Status{
			"a": domain.StatusCompleted,
			"b": domain.StatusPending,
			"c": domain.StatusPending,
			"d": domain.StatusCancelled,
		},
		map[string][]string{"c": {"a", "b"}, "d": {"a"}},
	)
	r := NewResolver(store, time.Second)

	ready, err := r.OnTaskCompleted(context.Background(), "a")

	require.NoError(t, err)
	assert.Empty(t, ready, "c still waits on b and d is not pending")
}

func TestResolver_OnTaskCompleted_CollectsErrors(t *testing.T) {
	store := newResolverStore(
		map[string]domain.Status{
			"a": domain.StatusCompleted,
			"b": domain.StatusPending,
			"c": domain.StatusPending,
			"d": domain.StatusPending,
		},
		map[string][]string{"b": {"a"}, "c": {"a", "d"}},
	)
	store.GetErrFor["d"] = errors.New("read timeout")
	r := NewResolver(store, time.Second)

	ready, err := r.OnTaskCompleted(context.Background(), "a")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.Contains(t, err.Error(), "successor c")
	require.Len(t, ready, 1, "successful evaluations are still reported")
	assert.Equal(t, "b", ready[0].ID)
}

func TestResolver_OnTaskCompleted_ListError(t *testing.T) {
	store := testutil.NewMockStore()
	store.ListErr = errors.New("boom")
	r := NewResolver(store, time.Second)

	_, err := r.OnTaskCompleted(context.Background(), "a")

	require.ErrorIs(t, err, domain.ErrStorage)
}

func TestResolver_ReadyInSession(t *testing.T) {
	store := newResolverStore(
		map[string]domain.Status{
			"a": domain.StatusCompleted,
			"b": domain.StatusPending,
			"c": domain.StatusPending,
			"d": domain.StatusInProgress,
		},
		map[string][]string{"b": {"a"}, "c": {"d"}},
	)
	r := NewResolver(store, time.Second)

	ready, err := r.ReadyInSession(context.Background(), "s1")

	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "b", ready[0].ID)
}
