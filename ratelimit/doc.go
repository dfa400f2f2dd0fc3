// Package ratelimit bounds dispatch throughput with a fixed-window quota.
//
// FixedWindow is the in-process default; RedisFixedWindow shares one quota
// across a fleet through Redis. Denied acquisitions consume nothing: the
// caller keeps the work queued and retries after the window rolls.
package ratelimit
