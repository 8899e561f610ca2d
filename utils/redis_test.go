package utils

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLock(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client, err := NewRedisClient(addr, os.Getenv("REDIS_PASSWORD"))
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	key := "test:lock:" + uuid.NewString()

	require.NoError(t, client.Ping(ctx))
	require.NoError(t, client.AcquireLock(ctx, key, "a", time.Second))
	assert.ErrorIs(t, client.AcquireLock(ctx, key, "b", time.Second), ErrLockHeld)

	// a foreign owner must not release the lock
	require.NoError(t, client.ReleaseLock(ctx, key, "b"))
	assert.ErrorIs(t, client.AcquireLock(ctx, key, "b", time.Second), ErrLockHeld)

	require.NoError(t, client.ReleaseLock(ctx, key, "a"))
	require.NoError(t, client.AcquireLock(ctx, key, "b", time.Second))

	time.Sleep(1500 * time.Millisecond)
	assert.NoError(t, client.AcquireLock(ctx, key, "c", time.Second), "lock should expire")
}
