package bridge

import "errors"

// Domain errors for the bridge package.
var (
	// ErrInvalidPayload is returned when an inbound request is not a JSON
	// object with a command field.
	ErrInvalidPayload = errors.New("bridge: invalid request payload")

	// ErrUnknownCommand is returned when a request names a verb the engine
	// has no workflow for.
	ErrUnknownCommand = errors.New("bridge: unknown command")

	// ErrQueueFull is returned when the request queue cannot accept more work.
	ErrQueueFull = errors.New("bridge: request queue full")

	// ErrNotRunning is returned when a request arrives before Start or after Stop.
	ErrNotRunning = errors.New("bridge: not running")

	// ErrAlreadyRunning is returned when Start is called twice.
	ErrAlreadyRunning = errors.New("bridge: already running")
)
