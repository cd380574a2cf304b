// Package transport owns the point-to-point byte link to a reader. It does
// raw sends and timed receives only; framing, retries and command
// discipline all live above it.
package transport

import (
	"time"

	"github.com/pkg/errors"
)

// ErrTimeout means no bytes arrived within the receive budget. The layer
// above decides whether to retry.
var ErrTimeout = errors.New("receive timeout")

// ErrNotOpen means the link is not open.
var ErrNotOpen = errors.New("transport not open")

// ConnError is a fatal link failure: the port could not be opened, or an
// established link failed mid-operation. It forces disconnection upstream.
type ConnError struct {
	Op    string
	Cause error
}

func (e *ConnError) Error() string {
	if e.Cause == nil {
		return "connection error during " + e.Op
	}
	return "connection error during " + e.Op + ": " + e.Cause.Error()
}

func (e *ConnError) Unwrap() error { return e.Cause }

// IsConnError reports whether err is (or wraps) a fatal link failure.
func IsConnError(err error) bool {
	var ce *ConnError
	return errors.As(err, &ce)
}

// Transport is a single exclusive link to one reader. Implementations are
// not safe for concurrent use; the controller serializes access.
type Transport interface {
	// Open establishes the link. Opening an already-open transport fails.
	Open(port string, baud int) error
	// Close tears the link down. Safe to call when already closed.
	Close() error
	// Send writes raw bytes. Fatal failures surface as *ConnError.
	Send(p []byte) error
	// Receive returns whatever bytes arrive within timeout, possibly a
	// partial frame. ErrTimeout when nothing arrived at all.
	Receive(timeout time.Duration) ([]byte, error)
	// Flush discards buffered input and output.
	Flush() error
}
