package common

import (
	"fmt"

	"google.golang.org/grpc/codes"
)

// --------------------------------------------------------------------------
// Call Status
// --------------------------------------------------------------------------

// Status is the final outcome of a call, sent to the peer when a call finishes.
// The codes are the canonical gRPC status codes.
type Status struct {
	Code    codes.Code `json:"code"`
	Message string     `json:"message,omitempty"`
}

// OK returns the successful status
func OK() Status {
	return Status{Code: codes.OK}
}

// NewStatus creates a new status with the given code and message
func NewStatus(code codes.Code, msg string) Status {
	return Status{Code: code, Message: msg}
}

// Statusf creates a new status with a formatted message
func Statusf(code codes.Code, format string, args ...interface{}) Status {
	return Status{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsOK reports whether the status represents success
func (s Status) IsOK() bool {
	return s.Code == codes.OK
}

// Err returns nil for an OK status and an error describing the status otherwise
func (s Status) Err() error {
	if s.IsOK() {
		return nil
	}
	return fmt.Errorf("rpc error: code = %s desc = %s", s.Code, s.Message)
}

// String returns a formatted string representation of the status
func (s Status) String() string {
	if s.Message == "" {
		return s.Code.String()
	}
	return fmt.Sprintf("%s: %s", s.Code, s.Message)
}
