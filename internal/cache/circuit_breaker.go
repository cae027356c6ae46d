package cache

import (
	"errors"
	"sync"
	"time"
)

type CircuitBreakerState int

const (
	CircuitBreakerClosed CircuitBreakerState = iota
	CircuitBreakerOpen
	CircuitBreakerHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case CircuitBreakerOpen:
		return "open"
	case CircuitBreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

type CircuitBreaker struct {
	mu              sync.Mutex
	state           CircuitBreakerState
	failureCount    int
	successCount    int
	halfOpenCalls   int
	lastFailureTime time.Time
	now             func() time.Time

	maxFailures      int
	timeout          time.Duration
	halfOpenMaxCalls int
}

type CircuitBreakerConfig struct {
	MaxFailures      int           `json:"max_failures"`
	Timeout          time.Duration `json:"timeout"`
	HalfOpenMaxCalls int           `json:"half_open_max_calls"`
}

func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxFailures:      5,
		Timeout:          30 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

func NewCircuitBreaker(config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}

	return &CircuitBreaker{
		state:            CircuitBreakerClosed,
		now:              time.Now,
		maxFailures:      config.MaxFailures,
		timeout:          config.Timeout,
		halfOpenMaxCalls: config.HalfOpenMaxCalls,
	}
}

var ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

// Execute runs fn unless the breaker is open. After the timeout an open
// breaker lets up to halfOpenMaxCalls trial calls through; that many
// successes close it again and any failure reopens it.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitBreakerOpen
	}

	if err := fn(); err != nil {
		cb.recordFailure()
		return err
	}

	cb.recordSuccess()
	return nil
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitBreakerClosed:
		return true
	case CircuitBreakerOpen:
		if cb.now().Sub(cb.lastFailureTime) < cb.timeout {
			return false
		}
		cb.state = CircuitBreakerHalfOpen
		cb.successCount = 0
		cb.halfOpenCalls = 1
		return true
	case CircuitBreakerHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMaxCalls {
			return false
		}
		cb.halfOpenCalls++
		return true
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case CircuitBreakerClosed:
		if cb.failureCount >= cb.maxFailures {
			cb.state = CircuitBreakerOpen
		}
	case CircuitBreakerHalfOpen:
		cb.state = CircuitBreakerOpen
		cb.successCount = 0
		cb.halfOpenCalls = 0
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitBreakerClosed:
		cb.failureCount = 0
	case CircuitBreakerHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.halfOpenMaxCalls {
			cb.state = CircuitBreakerClosed
			cb.failureCount = 0
			cb.successCount = 0
			cb.halfOpenCalls = 0
		}
	}
}

func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) GetStats() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return map[string]interface{}{
		"state":           cb.state.String(),
		"failure_count":   cb.failureCount,
		"success_count":   cb.successCount,
		"last_failure":    cb.lastFailureTime.Unix(),
		"max_failures":    cb.maxFailures,
		"timeout_seconds": cb.timeout.Seconds(),
	}
}
