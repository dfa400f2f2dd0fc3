//go:build unit

package ratelimit

import (
	"context"
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

func TestFixedWindow_AdmitsUpToLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	limiter := NewFixedWindow(3, time.Minute, WithClock(clock.Now))

	for i := range 3 {
		admitted, err := limiter.TryAcquire(ctx)
		require.NoError(t, err)
		assert.True(t, admitted, "acquisition %d should be admitted", i+1)
	}

	admitted, err := limiter.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, admitted)
}

func TestFixedWindow_DenialConsumesNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	limiter := NewFixedWindow(1, time.Minute, WithClock(clock.Now))

	admitted, err := limiter.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, admitted)

	for range 5 {
		admitted, err = limiter.TryAcquire(ctx)
		require.NoError(t, err)
		assert.False(t, admitted)
	}

	remaining, err := limiter.Remaining(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestFixedWindow_QuotaReplenishesAtBoundary(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	limiter := NewFixedWindow(2, time.Minute, WithClock(clock.Now))

	for range 2 {
		admitted, err := limiter.TryAcquire(ctx)
		require.NoError(t, err)
		require.True(t, admitted)
	}

	clock.Advance(59 * time.Second)

	admitted, err := limiter.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, admitted, "quota must hold until the window ends")

	clock.Advance(time.Second)

	admitted, err = limiter.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, admitted, "fresh window replenishes the full quota")

	remaining, err := limiter.Remaining(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
}

func TestFixedWindow_BoundaryStaysAligned(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	limiter := NewFixedWindow(1, time.Minute, WithClock(clock.Now))

	// Skip two and a half windows. The next boundary must stay aligned to
	// the construction instant, not to the last access.
	clock.Advance(150 * time.Second)

	admitted, err := limiter.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, admitted)

	clock.Advance(30 * time.Second)

	admitted, err = limiter.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, admitted, "aligned boundary at 180s opens a new window")
}

func TestFixedWindow_Defaults(t *testing.T) {
	t.Parallel()

	limiter := NewFixedWindow(0, 0)

	assert.Equal(t, defaultLimit, limiter.limit)
	assert.Equal(t, defaultWindow, limiter.window)
}

func TestFixedWindow_ConcurrentAcquisitions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	limiter := NewFixedWindow(10, time.Minute, WithClock(clock.Now))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)

	for range 50 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			ok, err := limiter.TryAcquire(ctx)
			assert.NoError(t, err)

			if ok {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 10, admitted)
}
