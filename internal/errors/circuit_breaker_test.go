package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Hour,
	})

	failing := func(ctx context.Context) error { return errors.New("down") }

	require.Error(t, cb.Execute(context.Background(), failing))
	require.Equal(t, StateClosed, cb.State())
	require.Error(t, cb.Execute(context.Background(), failing))
	require.Equal(t, StateOpen, cb.State())

	// Next request is rejected without invoking the function.
	called := false
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	require.False(t, called)
	require.False(t, IsTransient(err))
}

func TestCircuitBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          time.Millisecond,
	})

	require.Error(t, cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("down")
	}))
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(5 * time.Millisecond)

	result, err := ExecuteFunc(cb, context.Background(), func(ctx context.Context) (string, error) {
		return "recovered", nil
	})
	require.NoError(t, err)
	require.Equal(t, "recovered", result)
	require.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          time.Hour,
	})
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("down") })
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	require.Equal(t, StateClosed, cb.State())
}
