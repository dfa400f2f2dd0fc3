package idempotency

import (
	"context"
	"errors"
)

var (
	// ErrKeyRequired is returned when an empty idempotency key is supplied.
	ErrKeyRequired = errors.New("idempotency key is required")
	// ErrKeyNotReserved is returned by Resolve for a key with no live
	// reservation.
	ErrKeyNotReserved = errors.New("idempotency key is not reserved")
)

// Reservation is the result of a CheckAndReserve call.
type Reservation struct {
	// New reports whether this caller won the reservation.
	New bool
	// TrackingID identifies the task associated with the key, freshly
	// generated for new reservations and recalled for duplicates.
	TrackingID string
}

// Outcome records the terminal result of the dispatch a key reserved.
type Outcome struct {
	TrackingID string
	Delivered  bool
	Detail     string
}

// Cache deduplicates logical sends by idempotency key.
type Cache interface {
	CheckAndReserve(ctx context.Context, key string) (Reservation, error)
	Resolve(ctx context.Context, key string, outcome Outcome) error
}
