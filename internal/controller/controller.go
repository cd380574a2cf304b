// Package controller owns the reader session: one serial link, one state
// machine, one inventory loop. All command traffic to the reader funnels
// through here so that retries, stop bursts and settle delays never
// interleave on the wire.
package controller

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"rfidpanel/internal/protocol/nation"
	"rfidpanel/internal/transport"
)

// State is the session lifecycle position.
type State int

const (
	Disconnected State = iota
	Connected
	InventoryRunning
	Stopping
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case InventoryRunning:
		return "inventory_running"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Sighting is one raw tag observation handed to the OnTag callback, in
// arrival order.
type Sighting struct {
	EPC     string
	Antenna int
	RSSI    int
	Seen    time.Time
}

// Callbacks are invoked from the inventory loop goroutine. They must not
// call back into the Controller while holding their own locks that the
// HTTP layer also takes.
type Callbacks struct {
	OnTag    func(Sighting)
	OnEnd    func(reason string)
	OnStatus func(message string)
}

// Controller drives one reader over one exclusive link.
type Controller struct {
	log    *logrus.Entry
	policy Policy
	tr     transport.Transport
	cb     Callbacks

	// sleep is swapped out in tests to run timing-heavy paths instantly.
	sleep func(time.Duration)

	mu    sync.Mutex
	state State
	port  string
	baud  int

	// mask is the locally tracked enabled-antenna set, bit N-1 per
	// antenna N. The reader has no query for this, so the panel keeps
	// its own copy.
	mask uint32

	// lastSession tracks the session most recently written to the
	// baseband; -1 until known. Changing it costs a settle delay.
	lastSession   int
	settlePending bool

	// rx holds bytes received past the frame a command consumed. The
	// inventory loop inherits them on start.
	rx []byte

	run *inventoryRun
}

type inventoryRun struct {
	params  InventoryParams
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
}

func New(log *logrus.Entry, tr transport.Transport, policy Policy, cb Callbacks) *Controller {
	return &Controller{
		log:         log,
		policy:      policy,
		tr:          tr,
		cb:          cb,
		sleep:       time.Sleep,
		state:       Disconnected,
		mask:        1, // antenna 1 enabled until told otherwise
		lastSession: -1,
	}
}

// Connect opens the serial link and flushes any stale bytes the reader
// may have queued from a previous session.
func (c *Controller) Connect(port string, baud int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Disconnected {
		return ErrAlreadyConnected
	}
	if port == "" {
		return invalidParam("port", "must not be empty")
	}
	if baud <= 0 {
		return invalidParam("baud", "must be positive, got %d", baud)
	}

	if err := c.tr.Open(port, baud); err != nil {
		return err
	}
	if err := c.tr.Flush(); err != nil {
		c.log.WithError(err).Warn("flush after open failed")
	}

	c.state = Connected
	c.port = port
	c.baud = baud
	c.rx = nil
	c.lastSession = -1
	c.settlePending = false

	c.log.WithFields(logrus.Fields{"port": port, "baud": baud}).Info("reader connected")
	c.emitStatus("connected to " + port)
	return nil
}

// Disconnect stops any running inventory, then closes the link. Safe to
// call when already disconnected.
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	if c.state == Disconnected {
		c.mu.Unlock()
		return nil
	}
	if c.state == InventoryRunning {
		c.mu.Unlock()
		if err := c.StopInventory(); err != nil && !transport.IsConnError(err) {
			c.log.WithError(err).Warn("stop before disconnect failed")
		}
		c.mu.Lock()
	}

	err := c.tr.Close()
	c.state = Disconnected
	c.run = nil
	c.rx = nil
	port := c.port
	c.mu.Unlock()

	c.log.WithField("port", port).Info("reader disconnected")
	c.emitStatus("disconnected")
	return err
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status describes the session for the debug endpoint.
type Status struct {
	State        string `json:"state"`
	Port         string `json:"port,omitempty"`
	Baud         int    `json:"baud,omitempty"`
	AntennaMask  uint32 `json:"antenna_mask"`
	Session      int    `json:"session"`
	RunningSince string `json:"running_since,omitempty"`
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		State:       c.state.String(),
		Port:        c.port,
		Baud:        c.baud,
		AntennaMask: c.mask,
		Session:     c.lastSession,
	}
	if c.run != nil {
		st.RunningSince = c.run.started.UTC().Format(time.RFC3339)
	}
	return st
}

func (c *Controller) emitStatus(msg string) {
	if c.cb.OnStatus != nil {
		c.cb.OnStatus(msg)
	}
}

func (c *Controller) emitEnd(reason string) {
	if c.cb.OnEnd != nil {
		c.cb.OnEnd(reason)
	}
}

// forceDisconnect tears the session down after a fatal link error.
// Callers must hold mu.
func (c *Controller) forceDisconnectLocked(cause error) {
	c.log.WithError(cause).Error("link failure, dropping connection")
	_ = c.tr.Close()
	c.state = Disconnected
	c.run = nil
	c.rx = nil
	c.emitStatus("connection lost")
}

// roundTrip performs one command exchange with the policy's retry budget.
func (c *Controller) roundTrip(name string, frame []byte, match func(nation.Frame) bool, timeout time.Duration) (nation.Frame, error) {
	return c.exchange(name, frame, match, timeout, 1+c.policy.CommandRetries)
}

// exchange flushes, sends, and collects frames until one satisfies match
// or the budget runs out, over up to attempts tries. Non-matching frames
// are discarded. Callers must hold mu and have verified the state admits
// one-shot traffic.
func (c *Controller) exchange(name string, frame []byte, match func(nation.Frame) bool, timeout time.Duration, attempts int) (nation.Frame, error) {
	if c.settlePending {
		c.settlePending = false
		c.sleep(c.policy.SessionSettleDelay)
	}

	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			c.sleep(c.policy.RetryDelay)
			c.log.WithFields(logrus.Fields{"command": name, "attempt": attempt + 1}).Debug("retrying command")
		}
		if err := c.tr.Flush(); err != nil {
			if transport.IsConnError(err) {
				c.forceDisconnectLocked(err)
				return nation.Frame{}, err
			}
		}
		c.rx = nil

		if err := c.tr.Send(frame); err != nil {
			if transport.IsConnError(err) {
				c.forceDisconnectLocked(err)
				return nation.Frame{}, err
			}
			lastErr = err
			continue
		}

		f, err := c.awaitMatch(match, timeout)
		if err == nil {
			return f, nil
		}
		if transport.IsConnError(err) {
			c.forceDisconnectLocked(err)
			return nation.Frame{}, err
		}
		lastErr = err
	}

	return nation.Frame{}, &CommandFailedError{Command: name, Attempts: attempts, Cause: lastErr}
}

// awaitMatch reads frames off the link until match succeeds or deadline.
// Damaged frames count as the last error but do not abort the wait; the
// reader may interleave stale notifications with the real response.
func (c *Controller) awaitMatch(match func(nation.Frame) bool, timeout time.Duration) (nation.Frame, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error = transport.ErrTimeout

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nation.Frame{}, lastErr
		}

		chunk, err := c.tr.Receive(remaining)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				return nation.Frame{}, lastErr
			}
			return nation.Frame{}, err
		}
		c.rx = append(c.rx, chunk...)

		for {
			f, consumed, perr := nation.Next(c.rx)
			c.rx = c.rx[consumed:]
			if perr == nil {
				if match(f) {
					return f, nil
				}
				c.log.WithField("mid", f.FullMID()).Debug("discarding unexpected frame")
				continue
			}
			if errors.Is(perr, nation.ErrIncomplete) {
				break
			}
			// A damaged candidate was skipped; remember why.
			lastErr = perr
		}
	}
}

// expectMID builds a matcher for the command's own response MID.
func expectMID(mid uint16) func(nation.Frame) bool {
	return func(f nation.Frame) bool {
		return f.FullMID() == mid
	}
}
