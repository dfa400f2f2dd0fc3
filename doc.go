// Package relay is a resilience layer between callers submitting
// transactional messages and a set of unreliable, rate-limited delivery
// providers.
//
// An Engine accepts a send without blocking, deduplicates it by
// idempotency key, queues it, and drains the queue through one control
// loop that coordinates rate limiting, per-provider circuit breaking,
// exponential-backoff retries with provider rotation, and a status
// lifecycle observable per tracking id. Every outcome is surfaced as a
// typed event and as OpenTelemetry metrics.
//
// Engines are independently constructible and hold no package-level
// state; every timer except the breaker cooldown runs off an injectable
// clock.
package relay
