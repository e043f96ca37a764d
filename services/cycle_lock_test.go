package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisCycleLock_ExclusiveUntilReleased(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	first := NewRedisCycleLock(client, "test:lock", time.Minute, zap.NewNop())
	second := NewRedisCycleLock(client, "test:lock", time.Minute, zap.NewNop())

	release, ok, err := first.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("test:lock"))

	_, ok, err = second.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	assert.False(t, mr.Exists("test:lock"))

	release2, ok, err := second.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	release2()
}

func TestRedisCycleLock_ExpiredLeaseIsNotDeletedByOldHolder(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	lock := NewRedisCycleLock(client, "test:lock", time.Second, zap.NewNop())

	staleRelease, ok, err := lock.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	freshRelease, ok, err := lock.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	staleRelease()
	assert.True(t, mr.Exists("test:lock"), "stale holder must not remove the new lease")

	freshRelease()
	assert.False(t, mr.Exists("test:lock"))
}

func TestRedisCycleLock_RedisDown(t *testing.T) {
	mr, client := setupTestRedis(t)
	mr.Close()

	lock := NewRedisCycleLock(client, "", 0, zap.NewNop())
	_, ok, err := lock.TryAcquire(context.Background())

	assert.Error(t, err)
	assert.False(t, ok)
}
