package relay

import "errors"

var (
	// ErrProvidersRequired is returned by New when no provider is supplied.
	ErrProvidersRequired = errors.New("at least one provider is required")
	// ErrProviderRequired is returned when a nil provider is supplied.
	ErrProviderRequired = errors.New("provider is required")
	// ErrRecipientsRequired is returned by Send for a message without
	// recipients.
	ErrRecipientsRequired = errors.New("message requires at least one recipient")
	// ErrIdempotencyKeyRequired is returned by Send for an empty key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrEngineRunning is returned when RunContext is called on an engine
	// whose loop is already running.
	ErrEngineRunning = errors.New("engine is already running")
)
