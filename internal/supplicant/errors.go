package supplicant

import "errors"

// Domain errors for the supplicant package.
var (
	// ErrAlreadyRunning is returned when Start is called on a running process.
	ErrAlreadyRunning = errors.New("supplicant: already running")

	// ErrSocketTimeout is returned when the control socket does not appear
	// within the startup timeout.
	ErrSocketTimeout = errors.New("supplicant: control socket did not appear")

	// ErrExited is returned when the daemon exits while it is being waited on.
	ErrExited = errors.New("supplicant: process exited")

	// ErrInvalidConfig is returned when the supervisor configuration is incomplete.
	ErrInvalidConfig = errors.New("supplicant: invalid config")
)
