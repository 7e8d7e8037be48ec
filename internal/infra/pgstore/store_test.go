package pgstore

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/infra/storetest"
)

// dsnEnv names the variable holding a Postgres DSN for these tests.
const dsnEnv = "RCREW_TEST_POSTGRES_DSN"

// newTestStore opens a store in a throwaway schema, skipping without a DSN.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set", dsnEnv)
	}

	ctx := context.Background()
	schema := fmt.Sprintf("rcrew_test_%d", time.Now().UnixNano())
	store, err := Open(ctx, dsn, schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = store.pool.Exec(context.Background(), `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
		_ = store.Close()
	})
	require.NoError(t, store.Initialize(ctx))
	return store
}

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.Store {
		return newTestStore(t)
	})
}

func TestStore_ResultDataRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task := storetest.NewTask("t1", "s1")
	task.ResultData = []byte(`{"employees": 120, "sources": ["site", "registry"]}`)
	require.NoError(t, store.Save(ctx, task, 0, nil))

	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"employees":120,"sources":["site","registry"]}`, string(got.ResultData))
}

func TestOpen_InvalidDSN(t *testing.T) {
	_, err := Open(context.Background(), "postgres://%zz", "")

	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "parse postgres dsn"))
}

func TestWrap(t *testing.T) {
	err := wrap("get task", fmt.Errorf("boom"))

	assert.EqualError(t, err, "get task: boom")
}

func TestConflict(t *testing.T) {
	tests := []struct {
		name    string
		current int
		want    string
	}{
		{"known version", 3, "task t1: expected version 2, found 3: concurrent modification"},
		{"lost insert race", -1, "task t1: expected version 2: concurrent modification"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := conflict("t1", 2, tt.current)
			require.ErrorIs(t, err, domain.ErrConcurrentModification)
			assert.EqualError(t, err, tt.want)
		})
	}
}
