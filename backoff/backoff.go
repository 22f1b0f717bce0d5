// Package backoff provides retry delay strategies for job re-dispatch.
// All strategies are safe for concurrent use (they are stateless).
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each attempt.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && d > float64(e.Max) {
		return e.Max
	}
	return time.Duration(d)
}

// ──────────────────────────────────────────────────
// ExponentialPlusJitter (additive jitter)
// ──────────────────────────────────────────────────

// ExponentialPlusJitter adds a small random offset on top of a capped
// exponential base so simultaneous retries spread out without ever
// retrying earlier than the base delay.
// Delay = min(Initial * 2^(attempt-1), Max) + random value in [0, Jitter).
type ExponentialPlusJitter struct {
	Exponential
	Jitter time.Duration
}

// NewExponentialPlusJitter creates an exponential backoff with additive jitter.
func NewExponentialPlusJitter(initial, maxDelay, jitter time.Duration) *ExponentialPlusJitter {
	return &ExponentialPlusJitter{
		Exponential: Exponential{Initial: initial, Max: maxDelay},
		Jitter:      jitter,
	}
}

// Delay returns the capped exponential base plus a jitter in [0, Jitter).
func (e *ExponentialPlusJitter) Delay(attempt int) time.Duration {
	d := e.Exponential.Delay(attempt)
	if e.Jitter > 0 {
		d += time.Duration(rand.Int64N(int64(e.Jitter))) //nolint:gosec // jitter intentionally uses non-crypto rand
	}
	return d
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultStrategy returns the default backoff used for job retries:
// 1s doubling per attempt, capped at 30s, plus up to 250ms of jitter.
func DefaultStrategy() Strategy {
	return NewExponentialPlusJitter(1*time.Second, 30*time.Second, 250*time.Millisecond)
}
