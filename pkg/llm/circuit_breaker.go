package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState represents the current state of the circuit breaker.
type CircuitState int

const (
	// CircuitClosed means requests flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the provider is considered down and requests fail fast.
	CircuitOpen
	// CircuitHalfOpen means a single probe request is in flight.
	CircuitHalfOpen
)

// String returns a human-readable string for the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Threshold is the number of consecutive failures before the circuit trips.
	Threshold int
	// ResetAfter is how long the circuit stays open before a probe is allowed.
	ResetAfter time.Duration
}

// DefaultCircuitBreakerConfig trips after 5 consecutive failures and probes after 30s.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Threshold:  5,
		ResetAfter: 30 * time.Second,
	}
}

// CircuitBreaker fails provider calls fast while the provider looks down, so a
// dead provider costs the caller a fallback answer instead of the full
// dispatch timeout.
type CircuitBreaker struct {
	mu               sync.Mutex
	consecutiveFails int
	threshold        int
	resetAfter       time.Duration
	lastFailure      time.Time
	state            CircuitState
	now              func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.Threshold <= 0 {
		config.Threshold = DefaultCircuitBreakerConfig().Threshold
	}
	return &CircuitBreaker{
		threshold:  config.Threshold,
		resetAfter: config.ResetAfter,
		state:      CircuitClosed,
		now:        time.Now,
	}
}

// Allow reports whether a request may proceed. After ResetAfter an open
// circuit lets exactly one probe through.
func (cb *CircuitBreaker) Allow() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true, nil
	case CircuitOpen:
		since := cb.now().Sub(cb.lastFailure)
		if since > cb.resetAfter {
			cb.state = CircuitHalfOpen
			return true, nil
		}
		return false, fmt.Errorf("circuit breaker open: provider failed %d times, last failure %v ago",
			cb.consecutiveFails, since.Round(time.Second))
	case CircuitHalfOpen:
		return false, fmt.Errorf("circuit breaker half-open: probing provider")
	default:
		return false, fmt.Errorf("circuit breaker in unknown state: %v", cb.state)
	}
}

// RecordSuccess resets the failure count and closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails = 0
	cb.state = CircuitClosed
}

// RecordFailure counts a failure and trips the circuit at the threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails++
	cb.lastFailure = cb.now()

	if cb.state == CircuitHalfOpen || cb.consecutiveFails >= cb.threshold {
		cb.state = CircuitOpen
	}
}

// releaseProbe reopens a half-open circuit whose probe ended without a verdict.
func (cb *CircuitBreaker) releaseProbe() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitHalfOpen {
		cb.state = CircuitOpen
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// ConsecutiveFailures returns the current count of consecutive failures.
func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.consecutiveFails
}

// BreakerClient guards an LLMClient with a CircuitBreaker.
type BreakerClient struct {
	next    LLMClient
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewBreakerClient wraps next.
func NewBreakerClient(next LLMClient, cfg CircuitBreakerConfig, logger *zap.Logger) *BreakerClient {
	return &BreakerClient{
		next:    next,
		breaker: NewCircuitBreaker(cfg),
		logger:  logger.Named("llm-breaker"),
	}
}

// GenerateResponse implements LLMClient.
func (b *BreakerClient) GenerateResponse(ctx context.Context, req Request) (*GenerateResponseResult, error) {
	if ok, err := b.breaker.Allow(); !ok {
		return nil, NewError(ErrorTypeUnavailable, "provider unavailable", false, err)
	}

	result, err := b.next.GenerateResponse(ctx, req)
	switch {
	case err == nil:
		b.breaker.RecordSuccess()
	case errors.Is(err, context.Canceled):
		// The caller went away; says nothing about the provider.
		b.breaker.releaseProbe()
	default:
		b.breaker.RecordFailure()
		if b.breaker.State() == CircuitOpen {
			b.logger.Warn("LLM circuit open",
				zap.String("model", b.next.GetModel()),
				zap.Int("consecutive_failures", b.breaker.ConsecutiveFailures()),
				zap.Error(err))
		}
	}
	return result, err
}

// GetModel implements LLMClient.
func (b *BreakerClient) GetModel() string {
	return b.next.GetModel()
}

// Breaker exposes the underlying breaker for health reporting.
func (b *BreakerClient) Breaker() *CircuitBreaker {
	return b.breaker
}
