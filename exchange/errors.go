// Copyright (c) 2025 BVK Chaitanya

package exchange

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable indicates that requested data does not exist (yet). It is
	// expected and not fatal.
	ErrUnavailable = errors.New("unavailable")

	// ErrTransient indicates a network failure or a timeout. Operation can be
	// retried.
	ErrTransient = errors.New("transient failure")

	// ErrFatal indicates an unrecoverable configuration or initialization
	// failure.
	ErrFatal = errors.New("fatal failure")

	// ErrInconsistent indicates that an order operation has failed after the
	// trade state was already advanced.
	ErrInconsistent = errors.New("inconsistent trade state")
)

// IsRetryable returns true if the operation that failed with err can be
// attempted again.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrFatal) {
		return false
	}
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}

// IsFatal returns true if err must terminate the caller.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
