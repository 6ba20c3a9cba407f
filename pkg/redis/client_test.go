package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/utilitysplit/pkg/config"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	for i := int64(1); i <= 2; i++ {
		allowed, count, err := client.FixedWindowAllow(ctx, "paylink:42", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, i, count)
	}

	allowed, count, err := client.FixedWindowAllow(ctx, "paylink:42", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.EqualValues(t, 3, count)

	// only the first EXPIRE NX lands while the key keeps its ttl
	assert.Equal(t, map[string]time.Duration{"us:rate_limit:paylink:42": time.Minute}, mock.ttl)
	assert.Equal(t, 3, mock.expireCalls)
}

func TestFixedWindowAllowRestoresMissingTTL(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	_, _, err := client.FixedWindowAllow(ctx, "paylink:7", 5, time.Minute)
	require.NoError(t, err)
	delete(mock.ttl, "us:rate_limit:paylink:7")

	_, _, err = client.FixedWindowAllow(ctx, "paylink:7", 5, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mock.ttl["us:rate_limit:paylink:7"])
}

func TestFixedWindowAllowSurfacesErrors(t *testing.T) {
	mock := newMockCmdable()
	mock.err = errors.New("connection reset")
	client := &Client{store: mock}

	allowed, _, err := client.FixedWindowAllow(context.Background(), "paylink:1", 5, time.Minute)
	require.Error(t, err)
	assert.False(t, allowed)
}

func TestSetNXOnlyWritesOnce(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.IdempotencyKey("paystack", "ref-1")

	ok, err := client.SetNX(ctx, key, "1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.SetNX(ctx, key, "2", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	value, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "1", value)

	exists, err := client.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, client.Del(ctx, key))
	_, err = client.Get(ctx, key)
	assert.ErrorIs(t, err, redis.Nil)
	exists, err = client.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCompareAndDelete(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.LockKey("cron-worker:prod")
	mock.data[key] = "worker-a"

	deleted, err := client.CompareAndDelete(ctx, key, "worker-b")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, "worker-a", mock.data[key])

	deleted, err = client.CompareAndDelete(ctx, key, "worker-a")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.NotContains(t, mock.data, key)
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	ctx := context.Background()
	assert.ErrorIs(t, client.Ping(ctx), errNotInitialized)
	_, err := client.SetNX(ctx, "k", "v", time.Second)
	assert.ErrorIs(t, err, errNotInitialized)
	_, _, err = client.FixedWindowAllow(ctx, "s", 1, time.Second)
	assert.ErrorIs(t, err, errNotInitialized)
	_, err = client.CompareAndDelete(ctx, "k", "v")
	assert.ErrorIs(t, err, errNotInitialized)
	assert.NoError(t, client.Close())
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "us:idempotency:paystack:ref", client.IdempotencyKey("paystack", "ref"))
	assert.Equal(t, "us:rate_limit:paylink:42", client.RateLimitKey("paylink:42"))
	assert.Equal(t, "us:lock:cron", client.LockKey(" cron "))
	assert.Equal(t, "us:idempotency:ref", client.IdempotencyKey("", "ref"))
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{
		URL:         "redis://localhost:6379/2",
		PoolSize:    7,
		DialTimeout: 3 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, 3*time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", Password: "pw", DB: 4})
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 4, opts.DB)
}

type mockCmdable struct {
	data        map[string]string
	counters    map[string]int64
	ttl         map[string]time.Duration
	expireCalls int
	err         error
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data:     make(map[string]string),
		counters: make(map[string]int64),
		ttl:      make(map[string]time.Duration),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", m.err)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) Exists(_ context.Context, keys ...string) *redis.IntCmd {
	if m.err != nil {
		return redis.NewIntResult(0, m.err)
	}
	var n int64
	for _, key := range keys {
		if _, ok := m.data[key]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Incr(_ context.Context, key string) *redis.IntCmd {
	if m.err != nil {
		return redis.NewIntResult(0, m.err)
	}
	m.counters[key]++
	return redis.NewIntResult(m.counters[key], nil)
}

func (m *mockCmdable) ExpireNX(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	m.expireCalls++
	if _, set := m.ttl[key]; set {
		return redis.NewBoolResult(false, nil)
	}
	m.ttl[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

// Eval understands only the compare-and-delete script.
func (m *mockCmdable) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	if script != compareAndDeleteScript || len(keys) != 1 || len(args) != 1 {
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected script"))
	}
	if m.data[keys[0]] != fmt.Sprint(args[0]) {
		return redis.NewCmdResult(int64(0), nil)
	}
	delete(m.data, keys[0])
	return redis.NewCmdResult(int64(1), nil)
}
