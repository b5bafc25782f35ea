package backoff

import (
	"time"
)

// Calculator provides backoff calculation using a configurable strategy.
// It centralizes backoff logic shared by the retry policy and the realtime
// reconnect loop.
type Calculator struct {
	strategy Strategy
}

// NewCalculator creates a backoff calculator with the specified strategy.
func NewCalculator(strategy Strategy) *Calculator {
	return &Calculator{
		strategy: strategy,
	}
}

// Calculate computes the backoff duration for the given attempt and parameters.
func (c *Calculator) Calculate(attempt int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) time.Duration {
	return c.strategy.Calculate(attempt, initialBackoff, maxBackoff, multiplier, jitter)
}

// ExponentialJitter returns a calculator configured with the exponential
// jitter strategy. This is the common case.
func ExponentialJitter() *Calculator {
	return NewCalculator(ExponentialJitterStrategy{})
}

// DecorrelatedJitter returns a calculator configured with AWS-style
// decorrelated jitter.
func DecorrelatedJitter() *Calculator {
	return NewCalculator(DecorrelatedJitterStrategy{})
}
