package relay

import "time"

// Task is one queued send. The queue owns it until dequeued; the engine
// owns it for the duration of one attempt and is the only mutator of
// Attempt, ProviderIndex and ReadyAt.
type Task struct {
	TrackingID     string
	Message        Message
	IdempotencyKey string
	// Attempt counts completed delivery attempts across all providers.
	Attempt int
	// ProviderIndex is the rotation cursor for the next attempt.
	ProviderIndex int
	EnqueuedAt    time.Time
	// ReadyAt is the instant the task becomes eligible for dispatch.
	ReadyAt time.Time
}
