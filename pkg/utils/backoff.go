package utils

import (
	"math"
	"time"
)

// BackoffStrategy gives the delay before retry attempt n (0-indexed).
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ConstantBackoff waits the same delay before every retry.
type ConstantBackoff struct {
	Delay time.Duration
}

func (cb ConstantBackoff) NextDelay(int) time.Duration {
	return cb.Delay
}

// ExponentialBackoff multiplies the delay by Multiplier on every attempt,
// capped at MaxDelay. A non-nil Jitter scales each delay by a factor drawn
// from [0.5, 1.5).
type ExponentialBackoff struct {
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	Jitter     *RandSource
}

// NewExponentialBackoff creates a doubling backoff without jitter.
func NewExponentialBackoff(baseDelay, maxDelay time.Duration) *ExponentialBackoff {
	return &ExponentialBackoff{BaseDelay: baseDelay, Multiplier: 2, MaxDelay: maxDelay}
}

func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	mult := eb.Multiplier
	if mult <= 0 {
		mult = 2
	}
	delay := float64(eb.BaseDelay) * math.Pow(mult, float64(attempt))
	if eb.MaxDelay > 0 && delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}
	if eb.Jitter != nil {
		delay *= 0.5 + eb.Jitter.Float64()
	}
	return time.Duration(delay)
}
