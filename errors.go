package workq

import "errors"

var (
	// Store errors.
	ErrNoStore          = errors.New("workq: no store configured")
	ErrStoreClosed      = errors.New("workq: store closed")
	ErrStoreUnavailable = errors.New("workq: store unavailable")

	// Not found errors.
	ErrJobNotFound = errors.New("workq: job not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("workq: job already exists")
	ErrDuplicateHandler = errors.New("workq: handler already registered")

	// Dispatch errors.
	ErrHandlerMissing = errors.New("no handler for job type")

	// State errors.
	ErrInvalidState = errors.New("workq: invalid state transition")
)
