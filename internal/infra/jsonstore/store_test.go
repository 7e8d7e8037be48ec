package jsonstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/infra/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store := New(filepath.Join(t.TempDir(), "tasks.json"))
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return store
}

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.Store {
		return newTestStore(t)
	})
}

func TestStore_Initialize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "tasks.json")

	store := New(path)
	if store.IsInitialized() {
		t.Fatal("IsInitialized() = true before Initialize")
	}

	// Initialize should create the file and its directory
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("store file not created: %v", err)
	}
	if !store.IsInitialized() {
		t.Error("IsInitialized() = false after Initialize")
	}
}

func TestStore_NotInitialized(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "tasks.json"))

	_, err := store.Get(context.Background(), "t1")
	if !errors.Is(err, domain.ErrNotInitialized) {
		t.Errorf("Get() error = %v, want ErrNotInitialized", err)
	}

	err = store.Save(context.Background(), storetest.NewTask("t1", "s1"), 0, nil)
	if !errors.Is(err, domain.ErrNotInitialized) {
		t.Errorf("Save() error = %v, want ErrNotInitialized", err)
	}
}

func TestStore_CorruptFile(t *testing.T) {
	store := newTestStore(t)
	if err := os.WriteFile(store.path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := store.ListSessions(context.Background()); err == nil {
		t.Error("ListSessions() on corrupt file should fail")
	}
}

func TestStore_PersistsAcrossInstances(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Save(ctx, storetest.NewTask("t1", "s1"), 0, storetest.Created("t1", storetest.Base)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reopened := New(store.path)
	got, err := reopened.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil || got.Version != 1 {
		t.Fatalf("Get() = %+v, want version 1", got)
	}
	entries, err := reopened.ListAudit(ctx, "t1")
	if err != nil {
		t.Fatalf("ListAudit() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("ListAudit() len = %d, want 1", len(entries))
	}
}

func TestStore_NoTempFileLeft(t *testing.T) {
	store := newTestStore(t)
	if err := store.SaveSession(context.Background(), &domain.Session{ID: "s1", Name: "Acme"}); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	if _, err := os.Stat(store.path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file still present: %v", err)
	}
}

func TestStore_LockRespectsContext(t *testing.T) {
	store := newTestStore(t)

	// Hold the exclusive lock from another file description.
	holder, err := os.OpenFile(store.lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	defer holder.Close()
	if err := syscall.Flock(int(holder.Fd()), syscall.LOCK_EX); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = syscall.Flock(int(holder.Fd()), syscall.LOCK_UN) }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = store.Get(ctx, "t1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Get() error = %v, want DeadlineExceeded", err)
	}
}

func TestStore_CancelledContext(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.SaveSession(ctx, &domain.Session{ID: "s1"}); !errors.Is(err, context.Canceled) {
		t.Errorf("SaveSession() error = %v, want Canceled", err)
	}
}
