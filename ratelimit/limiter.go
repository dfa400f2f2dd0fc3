package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	defaultLimit  = 10
	defaultWindow = 60 * time.Second
)

// Limiter is the non-blocking admission gate consulted before every
// dispatch attempt.
type Limiter interface {
	// TryAcquire consumes one send from the current window, reporting false
	// without consuming anything when the quota is exhausted.
	TryAcquire(ctx context.Context) (bool, error)
	// Remaining reports how many sends the current window still admits.
	Remaining(ctx context.Context) (int, error)
}

// Option configures a FixedWindow limiter.
type Option func(*FixedWindow)

// WithClock injects the time source, used by tests to roll windows
// deterministically.
func WithClock(now func() time.Time) Option {
	return func(limiter *FixedWindow) {
		if now != nil {
			limiter.now = now
		}
	}
}

// FixedWindow admits at most limit sends per window. The quota replenishes
// atomically at the window boundary, evaluated lazily on access.
type FixedWindow struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu          sync.Mutex
	windowStart time.Time
	used        int
}

var _ Limiter = (*FixedWindow)(nil)

// NewFixedWindow creates an in-memory fixed-window limiter. Non-positive
// limit or window fall back to the defaults (10 per 60s).
func NewFixedWindow(limit int, window time.Duration, opts ...Option) *FixedWindow {
	if limit <= 0 {
		limit = defaultLimit
	}

	if window <= 0 {
		window = defaultWindow
	}

	limiter := &FixedWindow{
		limit:  limit,
		window: window,
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(limiter)
		}
	}

	limiter.windowStart = limiter.now()

	return limiter
}

// TryAcquire implements Limiter.
func (limiter *FixedWindow) TryAcquire(_ context.Context) (bool, error) {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	limiter.roll(limiter.now())

	if limiter.used >= limiter.limit {
		return false, nil
	}

	limiter.used++

	return true, nil
}

// Remaining implements Limiter.
func (limiter *FixedWindow) Remaining(_ context.Context) (int, error) {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	limiter.roll(limiter.now())

	return limiter.limit - limiter.used, nil
}

// roll advances windowStart by whole windows so the boundary stays aligned
// to the construction instant.
func (limiter *FixedWindow) roll(now time.Time) {
	elapsed := now.Sub(limiter.windowStart)
	if elapsed < limiter.window {
		return
	}

	windows := elapsed / limiter.window
	limiter.windowStart = limiter.windowStart.Add(windows * limiter.window)
	limiter.used = 0
}
