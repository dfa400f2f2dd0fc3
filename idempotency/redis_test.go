//go:build unit

package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
	})

	return server, client
}

func TestRedis_CheckAndReserve(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, client := testRedis(t)
	cache := NewRedis(client, time.Hour)

	first, err := cache.CheckAndReserve(ctx, "order-42")
	require.NoError(t, err)
	assert.True(t, first.New)
	assert.NotEmpty(t, first.TrackingID)

	second, err := cache.CheckAndReserve(ctx, "order-42")
	require.NoError(t, err)
	assert.False(t, second.New)
	assert.Equal(t, first.TrackingID, second.TrackingID)
}

func TestRedis_EmptyKeyRejected(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, client := testRedis(t)
	cache := NewRedis(client, time.Hour)

	_, err := cache.CheckAndReserve(ctx, "")
	assert.ErrorIs(t, err, ErrKeyRequired)

	err = cache.Resolve(ctx, "", Outcome{})
	assert.ErrorIs(t, err, ErrKeyRequired)
}

func TestRedis_ResolveOverwritesReservation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	server, client := testRedis(t)
	cache := NewRedis(client, time.Hour)

	reservation, err := cache.CheckAndReserve(ctx, "order-42")
	require.NoError(t, err)
	require.True(t, reservation.New)

	err = cache.Resolve(ctx, "order-42", Outcome{
		TrackingID: reservation.TrackingID,
		Delivered:  true,
	})
	require.NoError(t, err)

	duplicate, err := cache.CheckAndReserve(ctx, "order-42")
	require.NoError(t, err)
	assert.False(t, duplicate.New)
	assert.Equal(t, reservation.TrackingID, duplicate.TrackingID)

	ttl := server.TTL("relay:idemp:order-42")
	assert.Equal(t, time.Hour, ttl, "resolve applies the retention TTL")
}

func TestRedis_PendingReservationExpires(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	server, client := testRedis(t)
	cache := NewRedis(client, time.Hour, WithPendingTTL(time.Minute))

	first, err := cache.CheckAndReserve(ctx, "order-42")
	require.NoError(t, err)
	require.True(t, first.New)

	server.FastForward(2 * time.Minute)

	second, err := cache.CheckAndReserve(ctx, "order-42")
	require.NoError(t, err)
	assert.True(t, second.New, "expired reservation frees the key")
	assert.NotEqual(t, first.TrackingID, second.TrackingID)
}

func TestRedis_NamespaceIsolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, client := testRedis(t)

	first := NewRedis(client, time.Hour, WithNamespace("tenant-a"))
	second := NewRedis(client, time.Hour, WithNamespace("tenant-b"))

	reservationA, err := first.CheckAndReserve(ctx, "order-42")
	require.NoError(t, err)
	require.True(t, reservationA.New)

	reservationB, err := second.CheckAndReserve(ctx, "order-42")
	require.NoError(t, err)
	assert.True(t, reservationB.New, "namespaces keep keys apart")
}

func TestRedis_ErrorOnClosedClient(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	require.NoError(t, client.Close())

	cache := NewRedis(client, time.Hour)

	_, err := cache.CheckAndReserve(context.Background(), "order-42")
	assert.Error(t, err)

	err = cache.Resolve(context.Background(), "order-42", Outcome{})
	assert.Error(t, err)
}
