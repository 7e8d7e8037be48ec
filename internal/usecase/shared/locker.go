package shared

import (
	"context"
	"sync"
)

// KeyedLocker serializes operations per key (task or session id).
// Waiting for a key honors context cancellation.
type KeyedLocker struct {
	locks map[string]*keyLock
	mu    sync.Mutex
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewKeyedLocker creates an empty KeyedLocker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyLock)}
}

// Lock acquires the lock for key. The returned function releases it.
func (l *KeyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
		return func() { l.release(key, kl) }, nil
	case <-ctx.Done():
		l.drop(key, kl)
		return nil, ctx.Err()
	}
}

func (l *KeyedLocker) release(key string, kl *keyLock) {
	<-kl.ch
	l.drop(key, kl)
}

func (l *KeyedLocker) drop(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// TaskKey returns the lock key of a task.
func TaskKey(id string) string { return "task:" + id }

// SessionKey returns the lock key of a session.
func SessionKey(id string) string { return "session:" + id }
