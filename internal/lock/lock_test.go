package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client, "test:lock:"), mr
}

func TestTryLockIsExclusive(t *testing.T) {
	locker, _ := newLocker(t)
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "escalation:2024-01-22", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, token)

	_, ok, err = locker.TryLock(ctx, "escalation:2024-01-22", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "escalation:2024-01-22", token))

	_, ok, err = locker.TryLock(ctx, "escalation:2024-01-22", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseIgnoresForeignToken(t *testing.T) {
	locker, mr := newLocker(t)
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, locker.Release(ctx, "job", "someone-else"))
	got, err := mr.Get("test:lock:job")
	require.NoError(t, err)
	assert.Equal(t, token, got)
}

func TestExtendKeepsOwnLockOnly(t *testing.T) {
	locker, mr := newLocker(t)
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "job", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = locker.Extend(ctx, "job", "someone-else", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = locker.Extend(ctx, "job", token, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Hour, mr.TTL("test:lock:job"))

	mr.FastForward(2 * time.Hour)
	ok, err = locker.Extend(ctx, "job", token, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLockExpires(t *testing.T) {
	locker, mr := newLocker(t)
	ctx := context.Background()

	_, ok, err := locker.TryLock(ctx, "job", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok, err = locker.TryLock(ctx, "job", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNilLocker(t *testing.T) {
	var locker *Locker
	_, _, err := locker.TryLock(context.Background(), "job", time.Second)
	require.ErrorIs(t, err, ErrNotConfigured)
	require.NoError(t, locker.Release(context.Background(), "job", "token"))
	_, err = locker.Extend(context.Background(), "job", "token", time.Second)
	require.ErrorIs(t, err, ErrNotConfigured)

	assert.Nil(t, NewLocker(nil, ""))
}
