package domain

import "errors"

var (
	// ErrInvalidEvent is returned when an event cannot be archived as sent
	ErrInvalidEvent = errors.New("invalid scan event")

	// ErrResultGone is returned when the referenced result no longer exists
	ErrResultGone = errors.New("referenced scan result no longer exists")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
