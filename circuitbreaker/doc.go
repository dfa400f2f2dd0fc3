// Package circuitbreaker tracks per-provider delivery health and gates
// dispatch attempts.
//
// A Manager lazily creates one breaker per provider name. Acquire performs
// the admission check and returns the done callback that records the
// attempt outcome; an open breaker (or a saturated half-open probe window)
// rejects admission without side effects. The open to half-open transition
// happens lazily when the cooldown has elapsed, not via background timers.
package circuitbreaker
