package common

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Error taxonomy
// --------------------------------------------------------------------------

var (
	// ErrConfiguration is returned for invalid builder or server setup
	// (duplicate registration, invalid thread count, reuse of a consumed builder)
	ErrConfiguration = errors.New("configuration error")

	// ErrBind is returned when the listening endpoint cannot be acquired
	ErrBind = errors.New("bind error")

	// ErrTransportFailure marks a pending operation that failed in the transport
	// (peer disconnect, cancellation). It never crosses the boundary of a single call.
	ErrTransportFailure = errors.New("transport failure")

	// ErrProtocolViolation is the parent of all errors reported to handler code
	// that uses a call incorrectly
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrAlreadyFinished is returned by Send and Finish once a call has requested
	// its finish or is done
	ErrAlreadyFinished = fmt.Errorf("%w: call already finished", ErrProtocolViolation)

	// ErrServerStopped is returned when starting a server that was shut down
	ErrServerStopped = errors.New("server stopped")
)

// NewConfigurationError creates a new error wrapping ErrConfiguration
func NewConfigurationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// NewBindError creates a new error wrapping ErrBind and the cause
func NewBindError(endpoint string, cause error) error {
	return fmt.Errorf("%w: failed to listen on %s: %w", ErrBind, endpoint, cause)
}
