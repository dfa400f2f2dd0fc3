// Package idempotency guarantees at-most-one effective send per
// caller-supplied key.
//
// CheckAndReserve atomically claims a key: exactly one concurrent caller
// observes New=true and receives a fresh tracking id; everyone else gets
// the previously assigned one. Resolve records the terminal outcome and
// starts the TTL countdown after which the key becomes reservable again.
//
// Memory is the bounded in-process default; Redis shares reservations
// across processes.
package idempotency
