package relay

import "context"

// Provider is the delivery capability the engine dispatches through.
// Adapters are free to wrap any transport; the engine is polymorphic over
// this interface and never over concrete adapter types.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) (ProviderReceipt, error)
}

// ProviderReceipt is what a provider returns for an accepted delivery.
type ProviderReceipt struct {
	MessageID string
}
