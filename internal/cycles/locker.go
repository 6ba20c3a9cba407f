package cycles

import (
	"context"
	"sync"
)

// keyLocker hands out one mutex per key, dropping idle entries so the map
// only holds keys that are in use.
type keyLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func newKeyLocker() *keyLocker {
	return &keyLocker{locks: make(map[string]*keyLock)}
}

// Acquire blocks until key is free or ctx is done. The returned release func
// must be called exactly once.
func (k *keyLocker) Acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
		return func() { k.release(key, entry) }, nil
	case <-ctx.Done():
		k.drop(key, entry)
		return nil, ctx.Err()
	}
}

func (k *keyLocker) release(key string, entry *keyLock) {
	<-entry.ch
	k.drop(key, entry)
}

func (k *keyLocker) drop(key string, entry *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(k.locks, key)
	}
}

func (k *keyLocker) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
