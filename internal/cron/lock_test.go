package cron

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore { return &memoryStore{data: map[string]string{}} }

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	return true, nil
}

func (m *memoryStore) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[key] != expected {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

func TestRedisLockExclusive(t *testing.T) {
	t.Setenv("UTILSPLIT_WORKER_ID", "cron-1")
	store := newMemoryStore()
	first, err := NewRedisLock(store, "us:lock:cron", 0)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "us:lock:cron", time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(store.data["us:lock:cron"], "cron-1:"))

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// only the owner may release
	require.NoError(t, second.Release(ctx))
	assert.Contains(t, store.data, "us:lock:cron")

	require.NoError(t, first.Release(ctx))
	assert.NotContains(t, store.data, "us:lock:cron")

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewRedisLockValidates(t *testing.T) {
	_, err := NewRedisLock(nil, "k", 0)
	assert.Error(t, err)
	_, err = NewRedisLock(newMemoryStore(), "", 0)
	assert.Error(t, err)
}

func TestRedisLockLeavesForeignLeaseAlone(t *testing.T) {
	store := newMemoryStore()
	lock, err := NewRedisLock(store, "us:lock:cron", time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// lease expired and another worker took it
	store.data["us:lock:cron"] = "cron-2:other"

	require.NoError(t, lock.Release(ctx))
	assert.Equal(t, "cron-2:other", store.data["us:lock:cron"])
	// a second release is a no-op
	require.NoError(t, lock.Release(ctx))
}
