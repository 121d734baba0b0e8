package domain

import "errors"

var (
	// ErrValidationRejected marks a verdict-based policy rejection,
	// recoverable by retrying after the user fixes the input.
	ErrValidationRejected = errors.New("rejected by validation policy")
	// ErrValidatorUnavailable marks an infrastructure failure inside the
	// validator, distinct from a policy rejection.
	ErrValidatorUnavailable = errors.New("validator unavailable")
	// ErrTransferNetwork marks a retryable transport-level failure.
	ErrTransferNetwork = errors.New("transfer network error")
	// ErrTransferServerRejected marks a rejection by the storage backend,
	// not retryable without changing the input.
	ErrTransferServerRejected = errors.New("transfer rejected by server")
	// ErrCancelled marks a user-initiated abort acknowledged by the
	// transfer. Not an error condition from the user's point of view.
	ErrCancelled = errors.New("transfer cancelled")

	ErrDuplicateRegistration = errors.New("cancellation handle already registered")
	ErrTaskNotFound          = errors.New("task not found")
	ErrInvalidTransition     = errors.New("invalid task status transition")
)
