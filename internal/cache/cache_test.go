package cache

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentcal/internal/availability"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestBlockedMapCache(t *testing.T) {
	mr, client := newRedis(t)
	logger := zerolog.New(io.Discard)
	c := NewBlockedMapCache(client, time.Minute, &logger)
	ctx := context.Background()

	_, gen, ok := c.Get(ctx, "drill", "2024-03-01", 3)
	assert.False(t, ok)
	assert.Equal(t, int64(0), gen)

	m := availability.BlockedDateMap{
		"2024-03-01": {},
		"2024-03-03": {Blocked: true, Reason: availability.ReasonWeekday},
		"2024-03-05": {Blocked: true, IsRangeStart: true, Reason: availability.ReasonBooked},
	}
	c.Set(ctx, "drill", "2024-03-01", 3, gen, m)

	got, _, ok := c.Get(ctx, "drill", "2024-03-01", 3)
	require.True(t, ok)
	assert.Equal(t, m, got)

	_, _, ok = c.Get(ctx, "drill", "2024-03-01", 6)
	assert.False(t, ok, "different horizon is a different entry")

	require.NoError(t, c.Invalidate(ctx, "drill"))
	_, gen, ok = c.Get(ctx, "drill", "2024-03-01", 3)
	assert.False(t, ok)
	assert.Equal(t, int64(1), gen)

	c.Set(ctx, "drill", "2024-03-01", 3, gen, m)
	mr.FastForward(2 * time.Minute)
	_, _, ok = c.Get(ctx, "drill", "2024-03-01", 3)
	assert.False(t, ok, "entry expires with ttl")
}

func TestBlockedMapCache_SetAfterInvalidateIsNeverServed(t *testing.T) {
	_, client := newRedis(t)
	logger := zerolog.New(io.Discard)
	c := NewBlockedMapCache(client, time.Minute, &logger)
	ctx := context.Background()

	_, gen, ok := c.Get(ctx, "drill", "2024-03-01", 3)
	require.False(t, ok)

	// A commit lands while the caller is still building its map.
	require.NoError(t, c.Invalidate(ctx, "drill"))

	stale := availability.BlockedDateMap{"2024-03-06": {}}
	c.Set(ctx, "drill", "2024-03-01", 3, gen, stale)

	_, current, ok := c.Get(ctx, "drill", "2024-03-01", 3)
	assert.False(t, ok)
	assert.Equal(t, gen+1, current)
}

func TestBlockedMapCache_NegativeGenerationSkipsWrite(t *testing.T) {
	mr, client := newRedis(t)
	logger := zerolog.New(io.Discard)
	c := NewBlockedMapCache(client, time.Minute, &logger)

	c.Set(context.Background(), "drill", "2024-03-01", 3, -1, availability.BlockedDateMap{})
	assert.Empty(t, mr.Keys())
}

func TestBlockedMapCache_Disabled(t *testing.T) {
	logger := zerolog.New(io.Discard)
	c := NewBlockedMapCache(nil, time.Minute, &logger)
	ctx := context.Background()

	assert.False(t, c.Enabled())
	c.Set(ctx, "drill", "2024-03-01", 3, 0, availability.BlockedDateMap{})
	_, _, ok := c.Get(ctx, "drill", "2024-03-01", 3)
	assert.False(t, ok)
	assert.NoError(t, c.Invalidate(ctx, "drill"))
}

func TestBlockedMapCache_CorruptEntry(t *testing.T) {
	mr, client := newRedis(t)
	logger := zerolog.New(io.Discard)
	c := NewBlockedMapCache(client, time.Minute, &logger)

	require.NoError(t, mr.Set("rentcal:blocked:drill:g0:2024-03-01:3", "{not json"))
	_, _, ok := c.Get(context.Background(), "drill", "2024-03-01", 3)
	assert.False(t, ok)
	assert.False(t, mr.Exists("rentcal:blocked:drill:g0:2024-03-01:3"))
}

func TestLocker(t *testing.T) {
	_, client := newRedis(t)
	ctx := context.Background()
	locker := NewLocker(client, 200*time.Millisecond)

	lock, err := locker.Acquire(ctx, "drill")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "drill")
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	other, err := locker.Acquire(ctx, "ladder")
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lock.Release(ctx))
	require.NoError(t, lock.Release(ctx))

	again, err := locker.Acquire(ctx, "drill")
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestLock_ReleaseDoesNotStealForeignLock(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	locker := NewLocker(client, time.Second)

	lock, err := locker.Acquire(ctx, "drill")
	require.NoError(t, err)

	// Our lock expired and someone else took it.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set(lockKey("drill"), "someone-else"))

	require.NoError(t, lock.Release(ctx))
	val, err := mr.Get(lockKey("drill"))
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
}

func TestLocker_ContextCanceled(t *testing.T) {
	_, client := newRedis(t)
	locker := NewLocker(client, 5*time.Second)

	held, err := locker.Acquire(context.Background(), "drill")
	require.NoError(t, err)
	defer held.Release(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, "drill")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocker_NilClient(t *testing.T) {
	locker := NewLocker(nil, time.Second)
	lock, err := locker.Acquire(context.Background(), "drill")
	require.NoError(t, err)
	assert.NoError(t, lock.Release(context.Background()))
}
