//go:build integration

package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Ramsey-B/fern/pkg/models"
)

func startRedis(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	client, err := NewClient(Config{Host: host, Port: portNum}, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisIntegration(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()

	t.Run("locker is exclusive", func(t *testing.T) {
		locker := NewLocker(client, "")

		lock, err := locker.Acquire(ctx, "retry-scheduler", time.Minute)
		require.NoError(t, err)

		_, err = locker.Acquire(ctx, "retry-scheduler", time.Minute)
		assert.ErrorIs(t, err, ErrLockNotAcquired)

		require.NoError(t, lock.Release(ctx))
		assert.ErrorIs(t, lock.Release(ctx), ErrLockNotHeld)

		ran := false
		require.NoError(t, locker.WithLock(ctx, "retry-scheduler", time.Minute, func() error {
			ran = true
			return nil
		}))
		assert.True(t, ran)
	})

	t.Run("rate limiter blocks past the limit", func(t *testing.T) {
		limiter := NewRateLimiter(client, "")
		key := "ws-1:shopify"

		for i := 0; i < 3; i++ {
			res, err := limiter.Allow(ctx, key, 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, res.Allowed)
		}

		res, err := limiter.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Greater(t, res.RetryIn, time.Duration(0))

		require.NoError(t, limiter.Reset(ctx, key))
		res, err = limiter.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("dead letters round trip", func(t *testing.T) {
		dlq := NewDeadLetterQueue(client, "fern:test:abandoned", ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))

		job := models.SyncRetryJob{
			ID:           uuid.New(),
			Provider:     models.ProviderSquare,
			Workspace:    "ws-1",
			AttemptCount: 5,
			MaxAttempts:  5,
			LastError:    "Square sync blocked: credential missing",
			UpdatedAt:    time.Now().UTC(),
		}
		require.NoError(t, dlq.PushAbandoned(ctx, job))
		require.NoError(t, dlq.PushAbandoned(ctx, models.SyncRetryJob{ID: uuid.New(), Provider: models.ProviderShopify, Workspace: "ws-2"}))

		count, err := dlq.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		entries, err := dlq.ListByWorkspace(ctx, "ws-1", 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, job.ID.String(), entries[0].RetryJobID)
		assert.Equal(t, models.ProviderSquare, entries[0].Provider)

		require.NoError(t, dlq.Delete(ctx, entries[0].MessageID))
		count, err = dlq.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})
}
