package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/baechuer/real-time-ressys/services/notification-service/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCall_PassesThroughWhenClosed(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Second, 1)

	err := cb.Call(context.Background(), func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestOpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute, 1)
	ctx := context.Background()
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_ = cb.Call(ctx, func() error { return boom })
	}

	err := cb.Call(ctx, func() error { return nil })
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, StateOpen, cb.State())
}

func TestHalfOpenAfterResetTimeout(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond, 1)
	ctx := context.Background()

	_ = cb.Call(ctx, func() error { return errors.New("boom") })
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)

	called := false
	err := cb.Call(ctx, func() error { called = true; return nil })
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond, 1)
	ctx := context.Background()

	_ = cb.Call(ctx, func() error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)

	_ = cb.Call(ctx, func() error { return errors.New("still down") })
	assert.Equal(t, StateOpen, cb.State())
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute, 1)
	ctx := context.Background()

	_ = cb.Call(ctx, func() error { return errors.New("boom") })
	_ = cb.Call(ctx, func() error { return errors.New("boom") })
	require.Equal(t, 2, cb.FailureCount())

	require.NoError(t, cb.Call(ctx, func() error { return nil }))
	assert.Equal(t, 0, cb.FailureCount())
}

func TestPermanentErrorsDontTrip(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute, 1)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = cb.Call(ctx, func() error {
			return apperrors.NewPermanentFailure("bad recipient", nil)
		})
	}
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.FailureCount())
}
