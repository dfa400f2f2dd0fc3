//go:build unit

package idempotency

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
}

func (clock *fakeClock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()

	return clock.now
}

func (clock *fakeClock) Advance(d time.Duration) {
	clock.mu.Lock()
	defer clock.mu.Unlock()

	clock.now = clock.now.Add(d)
}

func TestMemory_CheckAndReserve(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := NewMemory(10, time.Hour)

	first, err := cache.CheckAndReserve(ctx, "order-42")
	require.NoError(t, err)
	assert.True(t, first.New)
	assert.NotEmpty(t, first.TrackingID)

	second, err := cache.CheckAndReserve(ctx, "order-42")
	require.NoError(t, err)
	assert.False(t, second.New)
	assert.Equal(t, first.TrackingID, second.TrackingID)
}

func TestMemory_EmptyKeyRejected(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := NewMemory(10, time.Hour)

	_, err := cache.CheckAndReserve(ctx, "")
	assert.ErrorIs(t, err, ErrKeyRequired)

	err = cache.Resolve(ctx, "", Outcome{})
	assert.ErrorIs(t, err, ErrKeyRequired)
}

func TestMemory_DistinctKeysGetDistinctIDs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := NewMemory(10, time.Hour)

	first, err := cache.CheckAndReserve(ctx, "order-1")
	require.NoError(t, err)

	second, err := cache.CheckAndReserve(ctx, "order-2")
	require.NoError(t, err)

	assert.True(t, second.New)
	assert.NotEqual(t, first.TrackingID, second.TrackingID)
}

func TestMemory_ResolveRequiresReservation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := NewMemory(10, time.Hour)

	err := cache.Resolve(ctx, "never-reserved", Outcome{Delivered: true})
	assert.ErrorIs(t, err, ErrKeyNotReserved)
}

func TestMemory_TTLStartsAtResolve(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	cache := NewMemory(10, time.Hour, WithClock(clock.Now))

	first, err := cache.CheckAndReserve(ctx, "order-42")
	require.NoError(t, err)
	require.True(t, first.New)

	// An unresolved reservation never expires, no matter how old.
	clock.Advance(48 * time.Hour)

	pending, err := cache.CheckAndReserve(ctx, "order-42")
	require.NoError(t, err)
	assert.False(t, pending.New)

	require.NoError(t, cache.Resolve(ctx, "order-42", Outcome{Delivered: true}))

	clock.Advance(30 * time.Minute)

	within, err := cache.CheckAndReserve(ctx, "order-42")
	require.NoError(t, err)
	assert.False(t, within.New, "still inside the TTL")

	clock.Advance(31 * time.Minute)

	fresh, err := cache.CheckAndReserve(ctx, "order-42")
	require.NoError(t, err)
	assert.True(t, fresh.New, "expired entry admits a new reservation")
	assert.NotEqual(t, first.TrackingID, fresh.TrackingID)
}

func TestMemory_CapacityEvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := NewMemory(3, time.Hour)

	for i := range 3 {
		_, err := cache.CheckAndReserve(ctx, fmt.Sprintf("key-%d", i))
		require.NoError(t, err)
	}

	// Touch key-0 so key-1 becomes the eviction candidate.
	_, err := cache.CheckAndReserve(ctx, "key-0")
	require.NoError(t, err)

	_, err = cache.CheckAndReserve(ctx, "key-3")
	require.NoError(t, err)

	assert.Equal(t, 3, cache.Len())

	evicted, err := cache.CheckAndReserve(ctx, "key-1")
	require.NoError(t, err)
	assert.True(t, evicted.New, "least recently used key was evicted")

	kept, err := cache.CheckAndReserve(ctx, "key-0")
	require.NoError(t, err)
	assert.False(t, kept.New, "recently touched key survived")
}

func TestMemory_ConcurrentReservationSingleWinner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := NewMemory(100, time.Hour)

	const goroutines = 50

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		ids     = make(map[string]struct{})
	)

	for range goroutines {
		wg.Add(1)

		go func() {
			defer wg.Done()

			reservation, err := cache.CheckAndReserve(ctx, "contested")
			assert.NoError(t, err)

			mu.Lock()
			defer mu.Unlock()

			if reservation.New {
				winners++
			}

			ids[reservation.TrackingID] = struct{}{}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, winners, "exactly one caller wins the reservation")
	assert.Len(t, ids, 1, "every caller observes the same tracking id")
}

func TestMemory_Defaults(t *testing.T) {
	t.Parallel()

	cache := NewMemory(0, 0)

	assert.Equal(t, defaultCapacity, cache.capacity)
	assert.Equal(t, defaultTTL, cache.ttl)
}

func TestMemory_CustomIDGenerator(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	next := 0
	cache := NewMemory(10, time.Hour, WithIDGenerator(func() string {
		next++

		return fmt.Sprintf("id-%d", next)
	}))

	reservation, err := cache.CheckAndReserve(ctx, "order-42")
	require.NoError(t, err)
	assert.Equal(t, "id-1", reservation.TrackingID)
}
