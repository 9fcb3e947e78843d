package lotbot

import (
	"context"
	"math"
	"time"
)

// BackoffPolicy describes a bounded retry schedule: exponential backoff for
// transient failures and a fixed pause for empty-but-valid responses.
type BackoffPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Pause is the fixed delay used between attempts that returned a valid
	// but empty result.
	Pause time.Duration
}

// DefaultBackoffPolicy matches the geocoding retry schedule: three attempts,
// delays doubling from one second, paused one second on empty results.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Pause:       time.Second,
	}
}

// Backoff returns the delay before retrying after the given zero-based
// attempt index, doubling from BaseDelay and capped at MaxDelay.
func (p BackoffPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// SleepFunc blocks for the duration or until the context finishes. Tests
// substitute a recording implementation to keep timing deterministic.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
