package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: threshold, ResetAfter: 30 * time.Second})
	cb.now = clock.now
	return cb, clock
}

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3)

	cb.RecordFailure()
	cb.RecordFailure()
	ok, err := cb.Allow()
	assert.True(t, ok)
	assert.NoError(t, err)

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())

	ok, err = cb.Allow()
	assert.False(t, ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker open")
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(3)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()

	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 1, cb.ConsecutiveFailures())
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb, clock := newTestBreaker(1)
	cb.RecordFailure()

	clock.advance(31 * time.Second)
	ok, _ := cb.Allow()
	require.True(t, ok, "first request after ResetAfter is the probe")
	assert.Equal(t, CircuitHalfOpen, cb.State())

	ok, err := cb.Allow()
	assert.False(t, ok, "only one probe at a time")
	assert.Contains(t, err.Error(), "half-open")

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())

	clock.advance(31 * time.Second)
	ok, _ = cb.Allow()
	require.True(t, ok)
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(99).String())
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1000, ResetAfter: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = cb.Allow()
				if (i+j)%2 == 0 {
					cb.RecordFailure()
				} else {
					cb.RecordSuccess()
				}
				_ = cb.State()
			}
		}(i)
	}
	wg.Wait()
}

func TestBreakerClient_FailsFastWhenOpen(t *testing.T) {
	mock := NewMockLLMClient()
	mock.GenerateResponseFunc = func(context.Context, Request) (*GenerateResponseResult, error) {
		return nil, NewError(ErrorTypeUnavailable, "server error", true, fmt.Errorf("HTTP 503"))
	}
	client := NewBreakerClient(mock, CircuitBreakerConfig{Threshold: 2, ResetAfter: time.Hour}, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := client.GenerateResponse(context.Background(), Request{Prompt: "hi"})
		require.Error(t, err)
	}
	assert.Equal(t, CircuitOpen, client.Breaker().State())

	_, err := client.GenerateResponse(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, ErrorTypeUnavailable, GetErrorType(err))
	assert.Equal(t, 2, mock.GenerateResponseCalls(), "open circuit must not reach the provider")
}

func TestBreakerClient_CancellationIsNotAFailure(t *testing.T) {
	mock := NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, _ Request) (*GenerateResponseResult, error) {
		return nil, ClassifyError(context.Canceled)
	}
	client := NewBreakerClient(mock, CircuitBreakerConfig{Threshold: 1, ResetAfter: time.Hour}, zap.NewNop())

	_, err := client.GenerateResponse(context.Background(), Request{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, CircuitClosed, client.Breaker().State())
}
