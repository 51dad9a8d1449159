package apperrors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies application errors
type ErrorCode string

const (
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
	ErrCodeTransport        ErrorCode = "TRANSPORT_ERROR"
	ErrCodeRetryable        ErrorCode = "RETRYABLE_ERROR"
	ErrCodePermanentFailure ErrorCode = "PERMANENT_FAILURE"
)

// AppError represents an application error
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewInvalidInput creates a new invalid input error
func NewInvalidInput(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidInput, Message: message}
}

// NewNotFound creates a new not found error
func NewNotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

// NewInternal creates a new internal error
func NewInternal(message string, err error) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message, Err: err}
}

// NewTransport creates a transport error. Transport errors are retryable
// unless wrapped as permanent.
func NewTransport(message string, err error) *AppError {
	return &AppError{Code: ErrCodeTransport, Message: message, Err: err}
}

// NewRetryable creates a retryable error
func NewRetryable(message string, err error) *AppError {
	return &AppError{Code: ErrCodeRetryable, Message: message, Err: err}
}

// NewPermanentFailure creates a permanent failure error
func NewPermanentFailure(message string, err error) *AppError {
	return &AppError{Code: ErrCodePermanentFailure, Message: message, Err: err}
}

// IsRetryable reports whether an error is worth retrying. Unknown error
// types default to retryable so transient infrastructure faults are not
// dropped on the floor.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if !errors.As(err, &appErr) {
		return true
	}

	switch appErr.Code {
	case ErrCodeRetryable, ErrCodeTransport, ErrCodeInternal:
		return true
	case ErrCodeInvalidInput, ErrCodeNotFound, ErrCodePermanentFailure:
		return false
	}
	return false
}

// IsPermanent reports whether an error must never be retried.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == ErrCodePermanentFailure || appErr.Code == ErrCodeInvalidInput
}

// IsNotFound reports whether an error is a not-found error.
func IsNotFound(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == ErrCodeNotFound
}
