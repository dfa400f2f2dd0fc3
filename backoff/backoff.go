package backoff

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// maxShift caps the exponent so 1<<attempt cannot overflow int64.
const maxShift = 62

// Exponential calculates the delay before retry number attempt as
// base * 2^attempt. Negative attempts are treated as 0 and results are
// clamped to math.MaxInt64 on overflow.
func Exponential(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}

	if attempt < 0 {
		attempt = 0
	} else if attempt > maxShift {
		attempt = maxShift
	}

	multiplier := int64(1) << attempt
	if int64(base) > math.MaxInt64/multiplier {
		return time.Duration(math.MaxInt64)
	}

	return base * time.Duration(multiplier)
}

// FullJitter returns a random duration in [0, delay). Zero and negative
// delays return 0.
func FullJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}

	return time.Duration(rand.Int64N(int64(delay)))
}

// ExponentialWithJitter combines exponential growth with full jitter,
// returning a random duration in [0, base * 2^attempt). This is the
// "full jitter" strategy.
func ExponentialWithJitter(base time.Duration, attempt int) time.Duration {
	return FullJitter(Exponential(base, attempt))
}

// WaitContext sleeps for the given duration unless the context finishes
// first. Zero and negative durations return immediately.
func WaitContext(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait interrupted: %w", ctx.Err())
	}
}
