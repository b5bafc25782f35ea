package eduwire

import (
	"sync/atomic"
	"time"
)

// CircuitBreaker guards the backend with a three-state machine. In half-open
// exactly one trial call is admitted; its outcome decides whether the circuit
// closes again or reopens with a fresh recovery window.
type CircuitBreaker struct {
	config      CircuitBreakerConfig
	state       int64
	failures    int64
	lastFailure int64
	probe       int64
}

// NewCircuitBreaker creates a circuit breaker, applying defaults for zero
// config values (5 consecutive failures, 30s recovery timeout).
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout == 0 {
		config.RecoveryTimeout = 30 * time.Second
	}

	return &CircuitBreaker{
		config: config,
		state:  int64(StateClosed),
	}
}

// Allow reports whether a call may proceed. In the open state it transitions
// to half-open once the recovery timeout has elapsed since the last failure.
func (cb *CircuitBreaker) Allow() bool {
	now := time.Now().UnixNano()

	switch CircuitState(atomic.LoadInt64(&cb.state)) {
	case StateClosed:
		return true
	case StateOpen:
		lastFailure := atomic.LoadInt64(&cb.lastFailure)
		if now-lastFailure >= int64(cb.config.RecoveryTimeout) {
			if atomic.CompareAndSwapInt64(&cb.state, int64(StateOpen), int64(StateHalfOpen)) {
				// The transitioning caller claims the single trial slot.
				atomic.StoreInt64(&cb.probe, 1)
				return true
			}
		}
		return false
	case StateHalfOpen:
		// Only one probe at a time.
		return atomic.CompareAndSwapInt64(&cb.probe, 0, 1)
	default:
		return false
	}
}

// RecordFailure notes a failed call. The failure timestamp is always updated
// so that the recovery window restarts on a failed half-open trial.
func (cb *CircuitBreaker) RecordFailure() {
	atomic.StoreInt64(&cb.lastFailure, time.Now().UnixNano())

	switch CircuitState(atomic.LoadInt64(&cb.state)) {
	case StateClosed:
		failures := atomic.AddInt64(&cb.failures, 1)
		if failures >= int64(cb.config.FailureThreshold) {
			atomic.StoreInt64(&cb.state, int64(StateOpen))
		}
	case StateHalfOpen:
		atomic.StoreInt64(&cb.state, int64(StateOpen))
		atomic.StoreInt64(&cb.probe, 0)
	case StateOpen:
		// Already open; only the timestamp matters.
	}
}

// RecordSuccess notes a successful call. Any success resets the consecutive
// failure count; a successful half-open trial closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	atomic.StoreInt64(&cb.failures, 0)

	if CircuitState(atomic.LoadInt64(&cb.state)) == StateHalfOpen {
		atomic.StoreInt64(&cb.state, int64(StateClosed))
		atomic.StoreInt64(&cb.probe, 0)
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	return CircuitState(atomic.LoadInt64(&cb.state))
}
