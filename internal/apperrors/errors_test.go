package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable_Retryable(t *testing.T) {
	assert.True(t, IsRetryable(NewRetryable("bus unavailable", nil)))
	assert.True(t, IsRetryable(NewTransport("sendgrid 500", errors.New("boom"))))
	assert.True(t, IsRetryable(NewInternal("store throttled", nil)))
}

func TestIsRetryable_NotRetryable(t *testing.T) {
	assert.False(t, IsRetryable(NewInvalidInput("malformed json")))
	assert.False(t, IsRetryable(NewPermanentFailure("sendgrid 400", nil)))
	assert.False(t, IsRetryable(NewNotFound("no such event")))
}

func TestIsRetryable_Nil(t *testing.T) {
	assert.False(t, IsRetryable(nil))
}

func TestIsRetryable_UnknownDefaultsToRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("connection reset")))
}

func TestIsRetryable_Wrapped(t *testing.T) {
	err := fmt.Errorf("send failed: %w", NewPermanentFailure("bad token", nil))
	assert.False(t, IsRetryable(err))
	assert.True(t, IsPermanent(err))
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(NewPermanentFailure("401", nil)))
	assert.True(t, IsPermanent(NewInvalidInput("bad payload")))
	assert.False(t, IsPermanent(NewTransport("503", nil)))
	assert.False(t, IsPermanent(errors.New("plain")))
	assert.False(t, IsPermanent(nil))
}

func TestAppError_ErrorString(t *testing.T) {
	err := NewTransport("send failed", errors.New("dial tcp: refused"))
	assert.Contains(t, err.Error(), "TRANSPORT_ERROR")
	assert.Contains(t, err.Error(), "send failed")
	assert.Contains(t, err.Error(), "refused")
}

func TestAppError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := NewInternal("outer", inner)
	assert.True(t, errors.Is(err, inner))
}
