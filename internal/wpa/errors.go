package wpa

import "errors"

// Sentinel errors for control-interface operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrAlreadyRunning is returned by Start when the poll loop is already active.
	ErrAlreadyRunning = errors.New("wpa: client already running")

	// ErrNotRunning is returned by Stop when Start was never called.
	ErrNotRunning = errors.New("wpa: client not running")

	// ErrClosed is returned when enqueuing on, or restarting, a stopped client.
	ErrClosed = errors.New("wpa: client closed")

	// ErrDeviceRequired is returned by NewClient without a control socket path.
	ErrDeviceRequired = errors.New("wpa: device path is required")

	// ErrDial is returned when the control socket cannot be bound or connected.
	ErrDial = errors.New("wpa: cannot open control socket")

	// ErrCommandFailed is returned by Do-style helpers when the daemon answers FAIL.
	ErrCommandFailed = errors.New("wpa: command failed")

	// ErrUnexpectedReply is returned when a reply does not have the expected content.
	ErrUnexpectedReply = errors.New("wpa: unexpected reply")
)
