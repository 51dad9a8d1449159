package circuitbreaker

import (
	"context"
	"sync"
	"time"

	"github.com/baechuer/real-time-ressys/services/notification-service/internal/apperrors"
)

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	StateClosed   CircuitState = iota // Normal operation - requests pass through
	StateOpen                         // Circuit is open - requests fail immediately
	StateHalfOpen                     // Testing if service recovered - limited requests pass
)

// CircuitBreaker implements the circuit breaker pattern to prevent cascading failures
type CircuitBreaker struct {
	maxFailures      int           // Number of failures before opening circuit
	resetTimeout     time.Duration // Time to wait before attempting half-open
	halfOpenMaxCalls int           // Max calls allowed in half-open state

	mu            sync.RWMutex
	state         CircuitState
	failureCount  int
	lastFailTime  time.Time
	halfOpenCalls int
}

// NewCircuitBreaker creates a new circuit breaker with the specified configuration
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, halfOpenMaxCalls int) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:      maxFailures,
		resetTimeout:     resetTimeout,
		halfOpenMaxCalls: halfOpenMaxCalls,
		state:            StateClosed,
	}
}

// Call executes a function with circuit breaker protection. An open
// circuit returns a retryable error so the delivery state machine treats
// it like any other transient transport fault.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func() error) error {
	cb.mu.Lock()

	cb.updateState()

	switch cb.state {
	case StateOpen:
		cb.mu.Unlock()
		return apperrors.NewRetryable("circuit breaker is open", nil)
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMaxCalls {
			cb.mu.Unlock()
			return apperrors.NewRetryable("circuit breaker half-open limit reached", nil)
		}
		cb.halfOpenCalls++
		cb.mu.Unlock()
	default:
		cb.mu.Unlock()
	}

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		// permanent failures say nothing about service health
		if !apperrors.IsPermanent(err) {
			cb.recordFailure()
		}
		return err
	}

	cb.recordSuccess()
	return nil
}

// updateState updates the circuit breaker state based on current conditions
func (cb *CircuitBreaker) updateState() {
	now := time.Now()

	switch cb.state {
	case StateClosed:
		if cb.failureCount >= cb.maxFailures {
			cb.state = StateOpen
			cb.lastFailTime = now
		}
	case StateOpen:
		if now.Sub(cb.lastFailTime) >= cb.resetTimeout {
			cb.state = StateHalfOpen
			cb.halfOpenCalls = 0
		}
	case StateHalfOpen:
		// Stay in half-open until success or failure
	}
}

// recordFailure records a failure and updates state
func (cb *CircuitBreaker) recordFailure() {
	cb.failureCount++
	cb.lastFailTime = time.Now()

	if cb.state == StateHalfOpen {
		cb.state = StateOpen
		cb.halfOpenCalls = 0
	} else if cb.failureCount >= cb.maxFailures {
		cb.state = StateOpen
	}
}

// recordSuccess records a success and updates state
func (cb *CircuitBreaker) recordSuccess() {
	cb.failureCount = 0

	if cb.state == StateHalfOpen {
		cb.state = StateClosed
		cb.halfOpenCalls = 0
	}
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// FailureCount returns the current failure count
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failureCount
}
