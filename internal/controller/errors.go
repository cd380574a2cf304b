package controller

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotConnected means the operation needs an open reader link.
	ErrNotConnected = errors.New("not connected to reader")
	// ErrAlreadyConnected means Connect was called on an open session.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrInventoryRunning means the operation is refused while the
	// inventory loop owns the link.
	ErrInventoryRunning = errors.New("inventory is running")
	// ErrBusy means another one-shot command holds the link.
	ErrBusy = errors.New("another command is in progress")
)

// InvalidParameterError is returned before any reader I/O when a request
// parameter is out of range.
type InvalidParameterError struct {
	Field  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalidParam(field, format string, args ...interface{}) error {
	return &InvalidParameterError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// CommandFailedError means a command exhausted its retry budget. Cause
// carries the last failure (timeout, crc, malformed response).
type CommandFailedError struct {
	Command  string
	Attempts int
	Cause    error
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Command, e.Attempts, e.Cause)
}

func (e *CommandFailedError) Unwrap() error { return e.Cause }

// DeviceError is a reader-reported failure: the command reached the device
// and the device answered with an error result code.
type DeviceError struct {
	Command string
	Code    int
	Message string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s rejected by reader: %s (code 0x%02X)", e.Command, e.Message, e.Code)
}
