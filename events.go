package relay

import "time"

// EventType identifies a lifecycle transition emitted by the engine.
type EventType string

const (
	// EventQueued fires when Send accepts a new message.
	EventQueued EventType = "queued"
	// EventSending fires when an attempt against a provider begins.
	EventSending EventType = "sending"
	// EventSent fires once when a delivery succeeds.
	EventSent EventType = "sent"
	// EventRetry fires when a failed attempt is rescheduled.
	EventRetry EventType = "retry"
	// EventCircuitOpen fires when a provider's breaker opens.
	EventCircuitOpen EventType = "circuit_open"
	// EventCircuitClosed fires when a provider's breaker closes again.
	EventCircuitClosed EventType = "circuit_closed"
	// EventFailed fires once when all attempts are exhausted.
	EventFailed EventType = "failed"
)

// Event carries the context of one lifecycle transition. Fields beyond
// Type, TrackingID and At are populated only where they apply.
type Event struct {
	Type       EventType
	TrackingID string
	// Provider is the provider involved in the transition, when any.
	Provider string
	// NextProvider is the rotation target announced by a retry event.
	NextProvider string
	// Attempt is the 1-based number of the attempt that just completed.
	Attempt int
	// Attempts is the total attempts consumed, set on terminal events.
	Attempts int
	// Delay is the backoff applied before the next attempt.
	Delay time.Duration
	// Duration is the elapsed time of a successful provider call.
	Duration time.Duration
	Err      error
	At       time.Time
}

// EventListener receives engine events. Handlers must not block; the
// engine invokes them inline on the dispatch goroutine.
type EventListener interface {
	HandleEvent(event Event)
}

// EventListenerFunc adapts a function to the EventListener interface.
type EventListenerFunc func(event Event)

// HandleEvent calls f(event).
func (f EventListenerFunc) HandleEvent(event Event) {
	f(event)
}
