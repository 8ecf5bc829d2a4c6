package bridge

import "errors"

// Domain-specific errors for the bridge.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrClosed is returned by operations on a session that has been closed.
	ErrClosed = errors.New("bridge: session closed")

	// ErrConnectFailed is returned when the broker connection cannot be established.
	ErrConnectFailed = errors.New("bridge: connect failed")

	// ErrSubscribeFailed is returned when a command subscription is rejected.
	ErrSubscribeFailed = errors.New("bridge: subscribe failed")

	// ErrPollFailed is returned when the dish status cannot be fetched.
	ErrPollFailed = errors.New("bridge: telemetry poll failed")

	// ErrInvalidState is returned when a session transition is not allowed
	// from the current connection state.
	ErrInvalidState = errors.New("bridge: invalid connection state")
)
