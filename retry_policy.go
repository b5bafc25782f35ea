package eduwire

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	internalbackoff "github.com/ambiyansyah-risyal/eduwire/internal/backoff"
)

// BackoffStrategy selects the jitter algorithm used between retries.
type BackoffStrategy int

const (
	// ExponentialJitter grows the delay exponentially with uniform jitter.
	ExponentialJitter BackoffStrategy = iota
	// DecorrelatedJitter implements AWS-style decorrelated jitter.
	DecorrelatedJitter
)

// DefaultRetryPolicy retries transport failures, 5xx, 408 and 429 with
// capped exponential backoff and jitter. Other 4xx responses are the
// caller's fault and are never retried.
type DefaultRetryPolicy struct {
	maxRetries        int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	jitter            float64
	calculator        *internalbackoff.Calculator
}

// NewDefaultRetryPolicy creates the standard policy: 3 retries, 1s initial
// delay doubling up to a 10s cap, jitter at most 10% of the computed delay.
func NewDefaultRetryPolicy() *DefaultRetryPolicy {
	return NewRetryPolicy(3, time.Second, 10*time.Second, 2.0, 0.1, ExponentialJitter)
}

// NewRetryPolicy creates a policy with explicit parameters and strategy.
func NewRetryPolicy(maxRetries int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64, strategy BackoffStrategy) *DefaultRetryPolicy {
	policy := &DefaultRetryPolicy{
		maxRetries:        maxRetries,
		initialBackoff:    initialBackoff,
		maxBackoff:        maxBackoff,
		backoffMultiplier: multiplier,
		jitter:            jitter,
	}

	switch strategy {
	case DecorrelatedJitter:
		policy.calculator = internalbackoff.DecorrelatedJitter()
	default:
		policy.calculator = internalbackoff.ExponentialJitter()
	}

	return policy
}

// MaxRetries returns the retry budget for one logical call.
func (p *DefaultRetryPolicy) MaxRetries() int {
	return p.maxRetries
}

// ShouldRetry implements the RetryPolicy interface. attempt counts completed
// attempts, starting at zero for the first failure.
func (p *DefaultRetryPolicy) ShouldRetry(statusCode int, header http.Header, err error, attempt int) (time.Duration, bool) {
	if attempt >= p.maxRetries {
		return 0, false
	}

	retryable := false
	var delay time.Duration

	switch {
	case err != nil:
		// Transport-level failure; nothing reached the server for certain.
		retryable = true
	case statusCode >= 500 || statusCode == 408 || statusCode == 429:
		retryable = true
		if header != nil {
			delay = parseRetryAfter(header.Get("Retry-After"))
		}
	}

	if !retryable {
		return 0, false
	}

	if delay == 0 {
		delay = p.calculator.Calculate(attempt, p.initialBackoff, p.maxBackoff, p.backoffMultiplier, p.jitter)
	}

	return delay, true
}

// parseRetryAfter parses a Retry-After header in either delay-seconds or
// HTTP-date form, capped at one hour.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > time.Hour {
				delay = time.Hour
			}
			return delay
		}
		return 0
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}

	return 0
}
