//go:build integration

package cache

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

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	endpoint, err := container.PortEndpoint(ctx, "6379/tcp", "redis")
	require.NoError(t, err)

	client, err := NewClient(endpoint)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedis(t *testing.T) {
	client := newRedis(t)
	ctx := context.Background()

	t.Run("Idempotency", func(t *testing.T) {
		idem := NewRedisIdempotency(client, time.Minute)

		_, ok, err := idem.Lookup(ctx, "k1")
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := idem.Remember(ctx, "k1", "ORD-1")
		require.NoError(t, err)
		assert.Equal(t, "ORD-1", got)

		got, err = idem.Remember(ctx, "k1", "ORD-2")
		require.NoError(t, err)
		assert.Equal(t, "ORD-1", got)

		ttl, err := client.TTL(ctx, "idem:checkout:k1").Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
	})

	t.Run("InvalidateCoupon", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, CouponKey("save10"), "{}", 0).Err())
		require.NoError(t, client.Set(ctx, KeyCouponAutoApply, "[]", 0).Err())

		require.NoError(t, NewRedisInvalidator(client).InvalidateCoupon(ctx, "Save10"))

		n, err := client.Exists(ctx, CouponKey("save10"), KeyCouponAutoApply).Result()
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("Limiter", func(t *testing.T) {
		now := time.Date(2025, 6, 15, 12, 0, 10, 0, time.UTC)
		l := NewRedisLimiter(client, 2, time.Minute)
		l.now = func() time.Time { return now }

		for want := 1; want >= 0; want-- {
			d, err := l.Allow(ctx, "10.0.0.1")
			require.NoError(t, err)
			assert.True(t, d.Allowed)
			assert.Equal(t, want, d.Remaining)
			assert.Equal(t, time.Date(2025, 6, 15, 12, 1, 0, 0, time.UTC), d.ResetAt)
		}

		d, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, 50*time.Second, d.RetryAfter)

		d, err = l.Allow(ctx, "10.0.0.2")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "keys are independent")

		now = now.Add(time.Minute)
		d, err = l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "next window")
	})
}
