package errors

import (
	"errors"
)

// ErrInvalidInput marks data from a client that cannot be parsed.
var ErrInvalidInput = errors.New("invalid input")

// Verification flow failures
var (
	// ErrSourceUnavailable means the external text source gave no usable extract after all retries.
	ErrSourceUnavailable = errors.New("challenge source unavailable")
	// ErrMessageNotFound means the message was deleted or edited away on the platform side.
	ErrMessageNotFound = errors.New("message not found")
	// ErrInsufficientRight means the platform denied a moderation action.
	ErrInsufficientRight = errors.New("insufficient right")
	// ErrPlatformTransient means a send or edit failed for a retryable reason.
	ErrPlatformTransient = errors.New("platform transient error")
)
