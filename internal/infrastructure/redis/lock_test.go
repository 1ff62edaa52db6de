package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/ErlanBelekov/agent-job-sync/internal/domain"
	lockredis "github.com/ErlanBelekov/agent-job-sync/internal/infrastructure/redis"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocker(t *testing.T) (*lockredis.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cli.Close() })
	return lockredis.NewLocker(cli), mr
}

func TestLocker_SecondHolderRejected(t *testing.T) {
	ctx := context.Background()
	l, _ := newLocker(t)

	token, err := l.TryLock(ctx, "job-1", time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	_, err = l.TryLock(ctx, "job-1", time.Minute)
	assert.ErrorIs(t, err, domain.ErrSyncInProgress)

	// other keys are independent
	_, err = l.TryLock(ctx, "job-2", time.Minute)
	assert.NoError(t, err)
}

func TestLocker_UnlockReleases(t *testing.T) {
	ctx := context.Background()
	l, mr := newLocker(t)

	token, err := l.TryLock(ctx, "job-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("sync:job:job-1"))

	require.NoError(t, l.Unlock(ctx, "job-1", token))
	assert.False(t, mr.Exists("sync:job:job-1"))

	_, err = l.TryLock(ctx, "job-1", time.Minute)
	assert.NoError(t, err)
}

func TestLocker_UnlockWithStaleTokenKeepsLock(t *testing.T) {
	ctx := context.Background()
	l, mr := newLocker(t)

	_, err := l.TryLock(ctx, "job-1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, l.Unlock(ctx, "job-1", "not-the-owner"))
	assert.True(t, mr.Exists("sync:job:job-1"))
}

func TestLocker_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	l, mr := newLocker(t)

	_, err := l.TryLock(ctx, "job-1", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	_, err = l.TryLock(ctx, "job-1", time.Second)
	assert.NoError(t, err)
}

func TestNoopLocker(t *testing.T) {
	var l lockredis.NoopLocker
	_, err := l.TryLock(context.Background(), "job-1", time.Minute)
	require.NoError(t, err)
	_, err = l.TryLock(context.Background(), "job-1", time.Minute)
	require.NoError(t, err)
	assert.NoError(t, l.Unlock(context.Background(), "job-1", ""))
}
