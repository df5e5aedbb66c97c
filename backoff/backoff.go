// Package backoff provides pluggable wait strategies used by the processing engine.
//
// A Strategy is used in two independent places: between claim attempts when no
// work was found (work retry), and between retries of transient store failures
// (transport retry). All strategies are stateless and safe for concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before attempt n.
type Strategy interface {
	// Delay returns how long to wait before attempt n (1-indexed).
	// Attempt 1 is the first wait after the initial try.
	Delay(attempt int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant strategy.
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

// NewExponential creates an exponential strategy.
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
// ExponentialWithJitter (full jitter)
// ──────────────────────────────────────────────────

// ExponentialWithJitter applies full jitter to an exponential base.
// Delay = random value in [0, min(Initial * 2^(attempt-1), Max)].
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential strategy with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [0, min(Initial * 2^(attempt-1), Max)].
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	base := (&Exponential{Initial: e.Initial, Max: e.Max}).Delay(attempt)

	return time.Duration(rand.Float64() * float64(base)) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// ──────────────────────────────────────────────────
// Fibonacci
// ──────────────────────────────────────────────────

// Fibonacci grows the delay along the Fibonacci sequence.
// Delay = min(Multiplier * fib(attempt), Max) with fib(1) = fib(2) = 1.
type Fibonacci struct {
	Multiplier time.Duration
	Max        time.Duration
}

// NewFibonacci creates a Fibonacci strategy.
func NewFibonacci(multiplier, maxDelay time.Duration) *Fibonacci {
	return &Fibonacci{Multiplier: multiplier, Max: maxDelay}
}

// Delay returns Multiplier * fib(attempt), capped at Max.
func (f *Fibonacci) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var prev, cur int64 = 0, 1
	for i := 1; i < attempt; i++ {
		prev, cur = cur, prev+cur
		// stop growing once the cap is certainly exceeded
		if f.Max > 0 && time.Duration(cur)*f.Multiplier > f.Max {
			return f.Max
		}
		if cur > math.MaxInt64/2 {
			break
		}
	}

	d := time.Duration(cur) * f.Multiplier
	if f.Max > 0 && (d > f.Max || d < 0) {
		return f.Max
	}

	return d
}

// ──────────────────────────────────────────────────
// Func
// ──────────────────────────────────────────────────

// Func adapts a caller-supplied function to the Strategy interface.
type Func func(attempt int) time.Duration

// Delay calls f(attempt).
func (f Func) Delay(attempt int) time.Duration {
	return f(attempt)
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultStoreRetry returns the strategy used for transient store failures:
// ExponentialWithJitter with 50ms initial and 5s max.
func DefaultStoreRetry() Strategy {
	return NewExponentialWithJitter(50*time.Millisecond, 5*time.Second)
}
