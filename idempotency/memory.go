package idempotency

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultCapacity = 10000
	defaultTTL      = time.Hour
)

// MemoryOption configures a Memory cache.
type MemoryOption func(*Memory)

// WithClock injects the time source used for TTL checks.
func WithClock(now func() time.Time) MemoryOption {
	return func(cache *Memory) {
		if now != nil {
			cache.now = now
		}
	}
}

// WithIDGenerator overrides the tracking id generator.
func WithIDGenerator(newID func() string) MemoryOption {
	return func(cache *Memory) {
		if newID != nil {
			cache.newID = newID
		}
	}
}

type memoryEntry struct {
	key        string
	trackingID string
	resolved   bool
	outcome    Outcome
	// expiresAt is zero until Resolve starts the TTL countdown.
	expiresAt time.Time
	elem      *list.Element
}

// Memory is a capacity-bounded in-process idempotency cache with
// least-recently-used eviction and per-entry TTL starting at Resolve.
type Memory struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time
	newID    func() string

	mu      sync.Mutex
	entries map[string]*memoryEntry
	// lru holds *memoryEntry values, most recently used at the front.
	lru *list.List
}

var _ Cache = (*Memory)(nil)

// NewMemory creates an in-memory cache. Non-positive capacity or ttl fall
// back to the defaults (10000 entries, 1h).
func NewMemory(capacity int, ttl time.Duration, opts ...MemoryOption) *Memory {
	if capacity <= 0 {
		capacity = defaultCapacity
	}

	if ttl <= 0 {
		ttl = defaultTTL
	}

	cache := &Memory{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		newID:    uuid.NewString,
		entries:  make(map[string]*memoryEntry),
		lru:      list.New(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(cache)
		}
	}

	return cache
}

// CheckAndReserve implements Cache. Exactly one concurrent caller for a
// given key observes New=true; reservation and lookup happen under one
// lock.
func (cache *Memory) CheckAndReserve(_ context.Context, key string) (Reservation, error) {
	if key == "" {
		return Reservation{}, ErrKeyRequired
	}

	cache.mu.Lock()
	defer cache.mu.Unlock()

	now := cache.now()

	if entry, exists := cache.entries[key]; exists {
		if !entry.expired(now) {
			cache.lru.MoveToFront(entry.elem)

			return Reservation{New: false, TrackingID: entry.trackingID}, nil
		}

		cache.remove(entry)
	}

	entry := &memoryEntry{
		key:        key,
		trackingID: cache.newID(),
	}
	entry.elem = cache.lru.PushFront(entry)
	cache.entries[key] = entry

	for len(cache.entries) > cache.capacity {
		oldest := cache.lru.Back()
		if oldest == nil {
			break
		}

		cache.remove(oldest.Value.(*memoryEntry))
	}

	return Reservation{New: true, TrackingID: entry.trackingID}, nil
}

// Resolve implements Cache. The entry becomes evictable by TTL from this
// point on.
func (cache *Memory) Resolve(_ context.Context, key string, outcome Outcome) error {
	if key == "" {
		return ErrKeyRequired
	}

	cache.mu.Lock()
	defer cache.mu.Unlock()

	entry, exists := cache.entries[key]
	if !exists || entry.expired(cache.now()) {
		return ErrKeyNotReserved
	}

	entry.resolved = true
	entry.outcome = outcome
	entry.expiresAt = cache.now().Add(cache.ttl)

	if outcome.TrackingID == "" {
		entry.outcome.TrackingID = entry.trackingID
	}

	cache.lru.MoveToFront(entry.elem)

	return nil
}

// Len reports the number of live entries.
func (cache *Memory) Len() int {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	return len(cache.entries)
}

func (cache *Memory) remove(entry *memoryEntry) {
	cache.lru.Remove(entry.elem)
	delete(cache.entries, entry.key)
}

func (entry *memoryEntry) expired(now time.Time) bool {
	return entry.resolved && !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt)
}
