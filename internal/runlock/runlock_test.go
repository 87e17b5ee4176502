package runlock

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLock(t *testing.T) (*RedisLock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	l := NewRedisLockWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = l.Close() })
	return l, mr
}

func TestRedisLockExcludesSecondRun(t *testing.T) {
	l, mr := newRedisLock(t)
	ctx := context.Background()

	release, err := l.Acquire(ctx, Key("tester"), time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists(Key("tester")))

	_, err = l.Acquire(ctx, Key("tester"), time.Minute)
	assert.ErrorIs(t, err, ErrHeld)

	_, err = l.Acquire(ctx, Key("other"), time.Minute)
	assert.NoError(t, err)

	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists(Key("tester")))

	_, err = l.Acquire(ctx, Key("tester"), time.Minute)
	assert.NoError(t, err)
}

func TestRedisLockExpires(t *testing.T) {
	l, mr := newRedisLock(t)
	ctx := context.Background()

	release, err := l.Acquire(ctx, Key("tester"), time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	release2, err := l.Acquire(ctx, Key("tester"), time.Minute)
	require.NoError(t, err)

	// the stale holder must not delete the new lease
	require.NoError(t, release(ctx))
	assert.True(t, mr.Exists(Key("tester")))

	require.NoError(t, release2(ctx))
	assert.False(t, mr.Exists(Key("tester")))
}

func TestNewRedisLockRejectsBadURL(t *testing.T) {
	_, err := NewRedisLock("not a url")
	assert.Error(t, err)
}

func TestLocalLock(t *testing.T) {
	t.Parallel()

	l := NewLocalLock()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	_, err = l.Acquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrHeld)

	require.NoError(t, release(ctx))
	_, err = l.Acquire(ctx, "k", time.Minute)
	assert.NoError(t, err)
}

func TestLocalLockTakesOverExpiredLease(t *testing.T) {
	t.Parallel()

	l := NewLocalLock()
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "k", time.Millisecond)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	_, err = l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	require.NoError(t, stale(ctx))
	_, err = l.Acquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrHeld)
}
