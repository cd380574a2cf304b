package transport

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

// readSlice is the inter-read timeout of the underlying port. Receive
// calls loop on this until their own deadline, so one Receive can wait
// longer than a single port read.
const readSlice = 50 * time.Millisecond

// chunkSize is the per-read buffer; tag notifications are small, so this
// comfortably covers several frames.
const chunkSize = 256

// SerialPort is the Transport over a local serial device.
type SerialPort struct {
	port *serial.Port
	name string
}

// NewSerialPort returns an unopened serial transport.
func NewSerialPort() *SerialPort {
	return &SerialPort{}
}

func (s *SerialPort) Open(port string, baud int) error {
	if s.port != nil {
		return &ConnError{Op: "open", Cause: errAlreadyOpen}
	}
	p, err := serial.OpenPort(&serial.Config{
		Name:        port,
		Baud:        baud,
		ReadTimeout: readSlice,
	})
	if err != nil {
		return &ConnError{Op: "open", Cause: err}
	}
	s.port = p
	s.name = port
	return nil
}

var errAlreadyOpen = errors.New("port already open")

func (s *SerialPort) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	s.name = ""
	return err
}

func (s *SerialPort) Send(p []byte) error {
	if s.port == nil {
		return ErrNotOpen
	}
	if _, err := s.port.Write(p); err != nil {
		return &ConnError{Op: "send", Cause: err}
	}
	return nil
}

// Receive returns the first chunk of bytes that arrives before timeout.
// The port read timeout surfaces as io.EOF, which is simply "nothing yet".
func (s *SerialPort) Receive(timeout time.Duration) ([]byte, error) {
	if s.port == nil {
		return nil, ErrNotOpen
	}
	deadline := time.Now().Add(timeout)
	buf := make([]byte, chunkSize)
	for {
		n, err := s.port.Read(buf)
		if n > 0 {
			out := make([]byte, n)
			copy(out, buf[:n])
			return out, nil
		}
		if err != nil && err != io.EOF {
			return nil, &ConnError{Op: "receive", Cause: err}
		}
		if !time.Now().Before(deadline) {
			return nil, ErrTimeout
		}
	}
}

func (s *SerialPort) Flush() error {
	if s.port == nil {
		return nil
	}
	return s.port.Flush()
}

// Name returns the device path of the open port, empty when closed.
func (s *SerialPort) Name() string { return s.name }
