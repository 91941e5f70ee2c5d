//go:build integration

package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.Run(ctx, "redis:7-alpine",
		testcontainers.WithExposedPorts("6379/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("6379/tcp").WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate redis: %v", err)
		}
	})

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(ctx).Err())

	return NewStore(rdb, time.Minute)
}

func TestStore_Lifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.Reserve(ctx, "u1", "k1")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = s.Reserve(ctx, "u1", "k1")
	require.ErrorIs(t, err, ErrInProgress)

	// Keys are scoped per user.
	got, err = s.Reserve(ctx, "u2", "k1")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.Complete(ctx, "u1", "k1", "order-1"))
	got, err = s.Reserve(ctx, "u1", "k1")
	require.NoError(t, err)
	assert.Equal(t, "order-1", got)

	require.NoError(t, s.Release(ctx, "u2", "k1"))
	got, err = s.Reserve(ctx, "u2", "k1")
	require.NoError(t, err)
	assert.Empty(t, got)
}
