package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/config"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/logging"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(config.RedisConfig{Addr: mr.Addr()}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestClientPingAndClose(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Ping(ctx))
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	assert.Equal(t, ErrClientClosed, client.Ping(ctx))
}

func TestMutexExclusion(t *testing.T) {
	client, mr := newTestClient(t)
	factory := NewLockFactory(client, logging.NewNopLogger())
	ctx := context.Background()

	first := factory.NewMutex(SchedulerCycleLock, WithLockTTL(time.Second))
	require.NoError(t, first.Lock(ctx))
	assert.True(t, mr.Exists("cromkt:lock:"+SchedulerCycleLock))

	second := factory.NewMutex(SchedulerCycleLock,
		WithLockTTL(time.Second), WithRetryCount(2), WithRetryDelay(time.Millisecond))
	ok, err := second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, ErrLockNotAcquired, second.Lock(ctx))

	// Only the holder can release.
	assert.Equal(t, ErrLockNotHeld, second.Unlock(ctx))
	require.NoError(t, first.Unlock(ctx))

	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMutexExtend(t *testing.T) {
	client, _ := newTestClient(t)
	factory := NewLockFactory(client, logging.NewNopLogger())
	ctx := context.Background()

	lock := factory.NewMutex("extend-me", WithLockTTL(time.Second))
	require.NoError(t, lock.Lock(ctx))

	ok, err := lock.Extend(ctx, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	other := factory.NewMutex("extend-me")
	ok, err = other.Extend(ctx, 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

type cachedMolecule struct {
	ID           string `json:"id"`
	CanonicalKey string `json:"canonical_key"`
}

func TestCacheRoundTrip(t *testing.T) {
	client, _ := newTestClient(t)
	cache := NewCache(client, logging.NewNopLogger())
	ctx := context.Background()

	key := MoleculeKey("abc123")
	want := cachedMolecule{ID: "m-1", CanonicalKey: "abc123"}
	require.NoError(t, cache.Set(ctx, key, want, time.Minute))

	var got cachedMolecule
	require.NoError(t, cache.Get(ctx, key, &got))
	assert.Equal(t, want, got)

	require.NoError(t, cache.Delete(ctx, key))
	assert.Equal(t, ErrCacheMiss, cache.Get(ctx, key, &got))
}

func TestCacheGetOrSetSingleLoad(t *testing.T) {
	client, _ := newTestClient(t)
	cache := NewCache(client, logging.NewNopLogger())
	ctx := context.Background()

	loads := 0
	loader := func(context.Context) (interface{}, error) {
		loads++
		return cachedMolecule{ID: "m-2", CanonicalKey: "def456"}, nil
	}

	var got cachedMolecule
	require.NoError(t, cache.GetOrSet(ctx, MoleculeKey("def456"), &got, time.Minute, loader))
	assert.Equal(t, "m-2", got.ID)

	// Second read is served from the cache.
	got = cachedMolecule{}
	require.NoError(t, cache.GetOrSet(ctx, MoleculeKey("def456"), &got, time.Minute, loader))
	assert.Equal(t, "m-2", got.ID)
	assert.Equal(t, 1, loads)
}

func TestCacheGetOrSetNullCaching(t *testing.T) {
	client, _ := newTestClient(t)
	cache := NewCache(client, logging.NewNopLogger())
	ctx := context.Background()

	var got cachedMolecule
	err := cache.GetOrSet(ctx, MoleculeKey("missing"), &got, time.Minute,
		func(context.Context) (interface{}, error) { return nil, nil })
	assert.Equal(t, ErrCacheMiss, err)

	// The miss itself is cached.
	err = cache.Get(ctx, MoleculeKey("missing"), &got)
	assert.Equal(t, ErrCacheMiss, err)
}

func TestCacheDeleteByPrefix(t *testing.T) {
	client, _ := newTestClient(t)
	cache := NewCache(client, logging.NewNopLogger())
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, SubmissionKey("s-1"), "a", time.Minute))
	require.NoError(t, cache.Set(ctx, SubmissionKey("s-2"), "b", time.Minute))
	require.NoError(t, cache.Set(ctx, MoleculeKey("keep"), "c", time.Minute))

	n, err := cache.DeleteByPrefix(ctx, "submission:")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ok, err := cache.Exists(ctx, MoleculeKey("keep"))
	require.NoError(t, err)
	assert.True(t, ok)
}
