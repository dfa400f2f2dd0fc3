// Package backoff provides retry delay helpers with exponential growth and
// full jitter.
//
// Use Exponential when the caller needs the deterministic base*2^attempt
// delay, ExponentialWithJitter for contended retry loops, and WaitContext
// to sleep while respecting cancellation and deadlines.
package backoff
