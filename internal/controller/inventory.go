package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"rfidpanel/internal/protocol/nation"
	"rfidpanel/internal/transport"
)

// InventoryParams configures one inventory run.
type InventoryParams struct {
	// Target selects the flag population: 0 = A, 1 = B, 2 = alternating.
	Target int
	// Session is the EPC Gen2 session, 0 through 3.
	Session int
	// Q is the initial Q value, 0 through 15.
	Q int
	// Antennas lists reader antenna ids (1 through 64). Empty means the
	// locally enabled set.
	Antennas []int
	// ScanTime bounds the run; zero means run until stopped.
	ScanTime time.Duration
}

func (p InventoryParams) validate() error {
	if p.Target < 0 || p.Target > 2 {
		return invalidParam("target", "must be 0 (A), 1 (B) or 2 (alternating), got %d", p.Target)
	}
	if p.Session < 0 || p.Session > 3 {
		return invalidParam("session", "must be 0 through 3, got %d", p.Session)
	}
	if p.Q < 0 || p.Q > 15 {
		return invalidParam("q", "must be 0 through 15, got %d", p.Q)
	}
	for _, ant := range p.Antennas {
		if ant < 1 || ant > 64 {
			return invalidParam("antennas", "antenna id %d out of range 1..64", ant)
		}
	}
	if p.ScanTime < 0 {
		return invalidParam("scan_time", "must not be negative")
	}
	return nil
}

func antennaMask(ids []int) uint32 {
	var mask uint32
	for _, id := range ids {
		mask |= 1 << uint(id-1)
	}
	return mask
}

// StartInventory configures the baseband and starts the continuous read
// loop. If inventory is already running it is stopped first and the run
// restarted with the new parameters.
func (c *Controller) StartInventory(params InventoryParams) error {
	if err := params.validate(); err != nil {
		return err
	}

	c.mu.Lock()
	switch c.state {
	case Disconnected:
		c.mu.Unlock()
		return ErrNotConnected
	case Stopping:
		c.mu.Unlock()
		return ErrBusy
	case InventoryRunning:
		c.mu.Unlock()
		c.log.Info("inventory already running, restarting with new parameters")
		if err := c.StopInventory(); err != nil {
			return err
		}
		c.mu.Lock()
		if c.state != Connected {
			c.mu.Unlock()
			return ErrNotConnected
		}
	}
	defer c.mu.Unlock()

	mask := c.mask
	if len(params.Antennas) > 0 {
		mask = antennaMask(params.Antennas)
	}
	if mask == 0 {
		return invalidParam("antennas", "no antennas enabled")
	}

	if err := c.configureBasebandLocked(nation.SpeedAuto, params.Q, params.Session, params.Target); err != nil {
		return err
	}

	f, err := c.roundTrip("start inventory", nation.ReadEPCCommand(mask, true),
		expectMID(nation.MIDReadEPC), c.policy.CommandTimeout)
	if err != nil {
		return err
	}
	if code, ok := nation.ResultCode(f); ok && code != 0 {
		return &DeviceError{Command: "start inventory", Code: code, Message: nation.GenericErrorMessage(code)}
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &inventoryRun{
		params:  params,
		cancel:  cancel,
		done:    make(chan struct{}),
		started: time.Now(),
	}
	leftover := c.rx
	c.rx = nil
	c.run = run
	c.state = InventoryRunning

	go c.inventoryLoop(ctx, run, leftover)

	c.log.WithFields(logrus.Fields{
		"target":  params.Target,
		"session": params.Session,
		"q":       params.Q,
		"mask":    mask,
	}).Info("inventory started")
	c.emitStatus("inventory started")
	return nil
}

// inventoryLoop drains tag notifications until a read-end notification,
// cancellation or link failure. It is the only reader of the transport
// while it runs; the stop path may write concurrently.
func (c *Controller) inventoryLoop(ctx context.Context, run *inventoryRun, buf []byte) {
	defer close(run.done)

	budgetFired := false
	endReason := func(base string) string {
		if budgetFired {
			return "scan time elapsed"
		}
		return base
	}

	for {
		select {
		case <-ctx.Done():
			c.finishRun(run, endReason("stopped by command"))
			return
		default:
		}

		if run.params.ScanTime > 0 && !budgetFired && time.Since(run.started) >= run.params.ScanTime {
			budgetFired = true
			c.log.Debug("scan budget elapsed, requesting stop")
			go func() {
				if err := c.StopInventory(); err != nil {
					c.log.WithError(err).Warn("scan-budget stop failed")
				}
			}()
		}

		chunk, err := c.tr.Receive(c.policy.LoopReceiveTimeout)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				continue
			}
			c.mu.Lock()
			c.forceDisconnectLocked(err)
			c.mu.Unlock()
			c.emitEnd("connection lost")
			return
		}
		buf = append(buf, chunk...)

		for {
			f, consumed, perr := nation.Next(buf)
			buf = buf[consumed:]
			if perr != nil {
				if errors.Is(perr, nation.ErrIncomplete) {
					break
				}
				c.log.WithError(perr).Debug("skipping damaged frame")
				continue
			}

			switch {
			case nation.IsTagReport(f):
				report, terr := nation.ParseTagReport(f.Data)
				if terr != nil {
					c.log.WithError(terr).Debug("unparseable tag report")
					continue
				}
				if c.cb.OnTag != nil {
					c.cb.OnTag(Sighting{
						EPC:     report.EPC,
						Antenna: report.Antenna,
						RSSI:    report.RSSI,
						Seen:    time.Now(),
					})
				}
			case nation.IsReadEnd(f):
				c.finishRun(run, endReason(readEndReason(f)))
				return
			case nation.IsStopAck(f):
				c.log.Debug("stop acknowledged by reader")
			default:
				c.log.WithField("mid", f.FullMID()).Debug("ignoring frame during inventory")
			}
		}
	}
}

func readEndReason(f nation.Frame) string {
	switch code := nation.ReadEndReason(f); code {
	case 1:
		return "stopped by command"
	case 2:
		return "scan time elapsed"
	default:
		return fmt.Sprintf("ended (code %d)", code)
	}
}

// finishRun records a natural loop exit. When a StopInventory call is in
// flight it owns the state transition instead.
func (c *Controller) finishRun(run *inventoryRun, reason string) {
	c.mu.Lock()
	if c.run == run && c.state == InventoryRunning {
		c.state = Connected
		c.run = nil
	}
	c.mu.Unlock()
	c.log.WithField("reason", reason).Info("inventory ended")
	c.emitEnd(reason)
}

// StopInventory halts a running inventory. The stop command is sent in a
// short burst because the reader may be mid-notification when the first
// one arrives. Always leaves the session in Connected unless the link
// itself failed.
func (c *Controller) StopInventory() error {
	c.mu.Lock()
	switch c.state {
	case Disconnected:
		c.mu.Unlock()
		return ErrNotConnected
	case Connected:
		c.mu.Unlock()
		return nil
	case Stopping:
		c.mu.Unlock()
		return ErrBusy
	}
	run := c.run
	c.state = Stopping
	c.mu.Unlock()

	// A failed flush here is not fatal on its own; a dead link will
	// surface on the stop sends below.
	if err := c.tr.Flush(); err != nil {
		c.log.WithError(err).Warn("pre-stop flush failed")
	}

	stop := nation.StopCommand()
	for i := 0; i < c.policy.StopAttempts; i++ {
		if err := c.tr.Send(stop); err != nil {
			if transport.IsConnError(err) {
				run.cancel()
				<-run.done
				c.mu.Lock()
				c.forceDisconnectLocked(err)
				c.mu.Unlock()
				return err
			}
			c.log.WithError(err).Warn("stop send failed")
		}
		c.sleep(c.policy.StopSpacing)
	}

	select {
	case <-run.done:
	case <-time.After(c.policy.StopGrace):
		c.log.Warn("inventory loop did not exit in time, cancelling")
		run.cancel()
		<-run.done
	}

	c.sleep(c.policy.StopSettle)
	if err := c.tr.Flush(); err != nil && transport.IsConnError(err) {
		c.mu.Lock()
		c.forceDisconnectLocked(err)
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	if c.state == Stopping {
		c.state = Connected
		c.run = nil
		c.rx = nil
	}
	c.mu.Unlock()

	c.log.Info("inventory stopped")
	c.emitStatus("inventory stopped")
	return nil
}
