package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultNamespace  = "relay"
	defaultPendingTTL = 10 * time.Minute
	keySeparator      = ":"
	idempotencyPrefix = "idemp"

	// reserveAttempts bounds the SETNX/GET race retry when a key expires
	// between the failed reservation and the readback.
	reserveAttempts = 3
)

// ErrReservationRace is returned when a reservation could not be settled
// because the key kept expiring between attempts.
var ErrReservationRace = errors.New("idempotency reservation could not be settled")

// RedisOption configures a Redis cache.
type RedisOption func(*Redis)

// WithNamespace isolates this engine's keys from other tenants of the same
// Redis.
func WithNamespace(namespace string) RedisOption {
	return func(cache *Redis) {
		if namespace != "" {
			cache.namespace = namespace
		}
	}
}

// WithPendingTTL bounds how long an unresolved reservation survives, so a
// crashed process cannot hold a key forever.
func WithPendingTTL(ttl time.Duration) RedisOption {
	return func(cache *Redis) {
		if ttl > 0 {
			cache.pendingTTL = ttl
		}
	}
}

// WithRedisIDGenerator overrides the tracking id generator.
func WithRedisIDGenerator(newID func() string) RedisOption {
	return func(cache *Redis) {
		if newID != nil {
			cache.newID = newID
		}
	}
}

type redisEnvelope struct {
	TrackingID string `json:"tracking_id"`
	Resolved   bool   `json:"resolved"`
	Delivered  bool   `json:"delivered,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// Redis shares idempotency reservations across processes using SETNX.
type Redis struct {
	client     redis.UniversalClient
	namespace  string
	ttl        time.Duration
	pendingTTL time.Duration
	newID      func() string
}

var _ Cache = (*Redis)(nil)

// NewRedis creates a Redis-backed cache. ttl governs how long resolved
// outcomes are retained.
func NewRedis(client redis.UniversalClient, ttl time.Duration, opts ...RedisOption) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}

	cache := &Redis{
		client:     client,
		namespace:  defaultNamespace,
		ttl:        ttl,
		pendingTTL: defaultPendingTTL,
		newID:      uuid.NewString,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(cache)
		}
	}

	return cache
}

// CheckAndReserve implements Cache. SETNX makes the reservation atomic
// across processes.
func (cache *Redis) CheckAndReserve(ctx context.Context, key string) (Reservation, error) {
	if key == "" {
		return Reservation{}, ErrKeyRequired
	}

	redisKey := cache.buildKey(key)

	for attempt := 0; attempt < reserveAttempts; attempt++ {
		trackingID := cache.newID()

		payload, err := json.Marshal(redisEnvelope{TrackingID: trackingID})
		if err != nil {
			return Reservation{}, fmt.Errorf("marshal reservation: %w", err)
		}

		reserved, err := cache.client.SetNX(ctx, redisKey, payload, cache.pendingTTL).Result()
		if err != nil {
			return Reservation{}, fmt.Errorf("redis setnx: %w", err)
		}

		if reserved {
			return Reservation{New: true, TrackingID: trackingID}, nil
		}

		raw, err := cache.client.Get(ctx, redisKey).Bytes()
		if errors.Is(err, redis.Nil) {
			// The prior reservation expired between SETNX and GET.
			continue
		}

		if err != nil {
			return Reservation{}, fmt.Errorf("redis get: %w", err)
		}

		var envelope redisEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return Reservation{}, fmt.Errorf("unmarshal reservation: %w", err)
		}

		return Reservation{New: false, TrackingID: envelope.TrackingID}, nil
	}

	return Reservation{}, ErrReservationRace
}

// Resolve implements Cache, overwriting the reservation with the terminal
// outcome and the retention TTL.
func (cache *Redis) Resolve(ctx context.Context, key string, outcome Outcome) error {
	if key == "" {
		return ErrKeyRequired
	}

	payload, err := json.Marshal(redisEnvelope{
		TrackingID: outcome.TrackingID,
		Resolved:   true,
		Delivered:  outcome.Delivered,
		Detail:     outcome.Detail,
	})
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	if err := cache.client.Set(ctx, cache.buildKey(key), payload, cache.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

func (cache *Redis) buildKey(key string) string {
	return strings.Join([]string{cache.namespace, idempotencyPrefix, key}, keySeparator)
}
