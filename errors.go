package asyncexec

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("asyncexec: no store configured")
	ErrStoreClosed = errors.New("asyncexec: store closed")

	// Not found errors.
	ErrJobNotFound     = errors.New("asyncexec: job not found")
	ErrHandlerNotFound = errors.New("asyncexec: no handler registered for job type")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("asyncexec: job already exists")

	// State errors.
	ErrInvalidState   = errors.New("asyncexec: invalid state transition")
	ErrInvalidRetries = errors.New("asyncexec: retries must be positive")
	ErrNotRunning     = errors.New("asyncexec: executor not running")

	// Timer errors.
	ErrInvalidTimer = errors.New("asyncexec: invalid timer definition")

	// Fast path errors.
	ErrProcessInstanceBusy = errors.New("asyncexec: in-memory queue not drained")

	// Configuration errors.
	ErrInvalidConfig = errors.New("asyncexec: invalid configuration")
)
