// Package status models the lifecycle of a submitted send and tracks it
// per tracking id.
//
// Lifecycle: queued -> sending -> sent | failed, with sending -> queued
// permitted when a retry is scheduled. Sent and failed are terminal and
// absorb all further transitions.
package status
