package status

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when a tracking id is unknown.
	ErrNotFound = errors.New("tracking id not found")
	// ErrInvalidStatus is returned for a status outside the lifecycle.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrInvalidTransition is returned for a disallowed lifecycle move.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Detail carries the attempt context recorded with a status change.
// Zero-valued fields leave the previously recorded value untouched.
type Detail struct {
	Provider          string
	ProviderMessageID string
	Err               string
	Attempts          int
}

// Record is the tracked lifecycle state of one submitted send.
type Record struct {
	TrackingID        string
	Status            Status
	Provider          string
	ProviderMessageID string
	Err               string
	Attempts          int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Tracker maps tracking ids to lifecycle records. Writes come exclusively
// from the dispatch engine; reads are open to any caller.
type Tracker interface {
	Set(ctx context.Context, trackingID string, next Status, detail Detail) error
	Get(ctx context.Context, trackingID string) (Record, error)
}

// TrackerOption configures a MemoryTracker.
type TrackerOption func(*MemoryTracker)

// WithClock injects the time source stamped onto records.
func WithClock(now func() time.Time) TrackerOption {
	return func(tracker *MemoryTracker) {
		if now != nil {
			tracker.now = now
		}
	}
}

// MemoryTracker is the in-process Tracker implementation.
type MemoryTracker struct {
	now func() time.Time

	mu      sync.RWMutex
	records map[string]*Record
}

var _ Tracker = (*MemoryTracker)(nil)

// NewMemoryTracker creates an empty tracker.
func NewMemoryTracker(opts ...TrackerOption) *MemoryTracker {
	tracker := &MemoryTracker{
		now:     time.Now,
		records: make(map[string]*Record),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(tracker)
		}
	}

	return tracker
}

// Set records a lifecycle transition. Unknown tracking ids are only
// admitted at StatusQueued, the lifecycle entry point.
func (tracker *MemoryTracker) Set(_ context.Context, trackingID string, next Status, detail Detail) error {
	if !next.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, next)
	}

	tracker.mu.Lock()
	defer tracker.mu.Unlock()

	now := tracker.now()

	record, exists := tracker.records[trackingID]
	if !exists {
		if next != StatusQueued {
			return fmt.Errorf("%w: %s", ErrNotFound, trackingID)
		}

		tracker.records[trackingID] = applyDetail(&Record{
			TrackingID: trackingID,
			Status:     StatusQueued,
			CreatedAt:  now,
			UpdatedAt:  now,
		}, detail)

		return nil
	}

	if !record.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, record.Status, next)
	}

	record.Status = next
	record.UpdatedAt = now
	applyDetail(record, detail)

	return nil
}

// Get returns a copy of the record for the tracking id.
func (tracker *MemoryTracker) Get(_ context.Context, trackingID string) (Record, error) {
	tracker.mu.RLock()
	defer tracker.mu.RUnlock()

	record, exists := tracker.records[trackingID]
	if !exists {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, trackingID)
	}

	return *record, nil
}

func applyDetail(record *Record, detail Detail) *Record {
	if detail.Provider != "" {
		record.Provider = detail.Provider
	}

	if detail.ProviderMessageID != "" {
		record.ProviderMessageID = detail.ProviderMessageID
	}

	if detail.Err != "" {
		record.Err = detail.Err
	}

	if detail.Attempts > 0 {
		record.Attempts = detail.Attempts
	}

	return record
}
