package controller

import (
	"encoding/hex"
	"strings"

	"github.com/sirupsen/logrus"

	"rfidpanel/internal/protocol/nation"
)

// ensureIdleLocked verifies the session can carry a one-shot command.
// Callers must hold mu.
func (c *Controller) ensureIdleLocked() error {
	switch c.state {
	case Disconnected:
		return ErrNotConnected
	case InventoryRunning:
		return ErrInventoryRunning
	case Stopping:
		return ErrBusy
	}
	return nil
}

// resultError interprets a single-byte result payload, mapping nonzero
// codes through msg into a DeviceError.
func resultError(command string, f nation.Frame, msg func(int) string) error {
	code, ok := nation.ResultCode(f)
	if !ok {
		return &DeviceError{Command: command, Code: -1, Message: "response carried no result code"}
	}
	if code != 0 {
		return &DeviceError{Command: command, Code: code, Message: msg(code)}
	}
	return nil
}

// ReaderInfo queries the reader identity block.
func (c *Controller) ReaderInfo() (nation.ReaderInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureIdleLocked(); err != nil {
		return nation.ReaderInfo{}, err
	}

	f, err := c.roundTrip("query reader info", nation.QueryInfoCommand(),
		expectMID(nation.MIDQueryInfo), c.policy.CommandTimeout)
	if err != nil {
		return nation.ReaderInfo{}, err
	}
	return nation.ParseReaderInfo(f.Data)
}

// ConfigureBaseband writes the EPC baseband profile. Speed is 0 through 4
// or SpeedAuto; target maps to the inventory flag (0 = A, 1 = B,
// 2 = alternating).
func (c *Controller) ConfigureBaseband(speed, q, session, target int) error {
	if speed != int(nation.SpeedAuto) && (speed < 0 || speed > 4) {
		return invalidParam("speed", "must be 0 through 4 or 255 (auto), got %d", speed)
	}
	if q < 0 || q > 15 {
		return invalidParam("q", "must be 0 through 15, got %d", q)
	}
	if session < 0 || session > 3 {
		return invalidParam("session", "must be 0 through 3, got %d", session)
	}
	if target < 0 || target > 2 {
		return invalidParam("target", "must be 0 (A), 1 (B) or 2 (alternating), got %d", target)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureIdleLocked(); err != nil {
		return err
	}
	return c.configureBasebandLocked(byte(speed), q, session, target)
}

// configureBasebandLocked sends the baseband command and tracks the local
// session shadow. A session change arms the settle delay for the next
// exchange. Callers must hold mu.
func (c *Controller) configureBasebandLocked(speed byte, q, session, target int) error {
	f, err := c.roundTrip("configure baseband",
		nation.ConfigBasebandCommand(speed, byte(q), byte(session), byte(target)),
		expectMID(nation.MIDConfigBaseband), c.policy.CommandTimeout)
	if err != nil {
		return err
	}
	if err := resultError("configure baseband", f, nation.BasebandErrorMessage); err != nil {
		return err
	}

	if session != c.lastSession {
		c.settlePending = true
		c.log.WithFields(logrus.Fields{"from": c.lastSession, "to": session}).Debug("session changed, settle armed")
	}
	c.lastSession = session
	return nil
}

// BasebandProfile reads back the current baseband parameters.
func (c *Controller) BasebandProfile() (nation.Baseband, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureIdleLocked(); err != nil {
		return nation.Baseband{}, err
	}

	f, err := c.roundTrip("query baseband", nation.QueryBasebandCommand(),
		expectMID(nation.MIDQueryBaseband), c.policy.CommandTimeout)
	if err != nil {
		return nation.Baseband{}, err
	}
	return nation.ParseBaseband(f.Data)
}

// SetPower writes per-antenna transmit power in dBm. persist keeps the
// setting across reader power cycles.
func (c *Controller) SetPower(powers map[int]int, persist bool) error {
	frame, err := nation.ConfigurePowerCommand(powers, &persist)
	if err != nil {
		return invalidParam("powers", "%v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureIdleLocked(); err != nil {
		return err
	}

	f, err := c.roundTrip("configure power", frame,
		expectMID(nation.MIDConfigurePower), c.policy.CommandTimeout)
	if err != nil {
		return err
	}
	return resultError("configure power", f, nation.GenericErrorMessage)
}

// AntennaPower reads the per-antenna transmit power table.
func (c *Controller) AntennaPower() (map[int]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureIdleLocked(); err != nil {
		return nil, err
	}

	f, err := c.roundTrip("query power", nation.QueryPowerCommand(),
		expectMID(nation.MIDQueryPower), c.policy.CommandTimeout)
	if err != nil {
		return nil, err
	}
	return nation.ParsePowerTable(f.Data), nil
}

// SetBuzzer switches the reader's buzzer.
func (c *Controller) SetBuzzer(enable bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureIdleLocked(); err != nil {
		return err
	}

	f, err := c.roundTrip("set buzzer", nation.BuzzerCommand(enable),
		expectMID(nation.MIDBuzzer), c.policy.CommandTimeout)
	if err != nil {
		return err
	}
	return resultError("set buzzer", f, nation.GenericErrorMessage)
}

// EnableAntennas adds antennas to the locally tracked enabled set. The
// reader has no notion of this set; it only applies when inventory starts.
func (c *Controller) EnableAntennas(ids []int) error {
	mask, err := validateAntennaIDs(ids)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.mask |= mask
	c.mu.Unlock()
	return nil
}

// DisableAntennas removes antennas from the enabled set. The last antenna
// cannot be disabled; an inventory with no antennas is meaningless.
func (c *Controller) DisableAntennas(ids []int) error {
	mask, err := validateAntennaIDs(ids)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mask&^mask == 0 {
		return invalidParam("antennas", "cannot disable every antenna")
	}
	c.mask &^= mask
	return nil
}

// EnabledAntennas lists the enabled antenna ids in ascending order.
func (c *Controller) EnabledAntennas() []int {
	c.mu.Lock()
	mask := c.mask
	c.mu.Unlock()

	var ids []int
	for i := 0; i < 64; i++ {
		if mask&(1<<uint(i)) != 0 {
			ids = append(ids, i+1)
		}
	}
	return ids
}

func validateAntennaIDs(ids []int) (uint32, error) {
	if len(ids) == 0 {
		return 0, invalidParam("antennas", "must not be empty")
	}
	for _, id := range ids {
		if id < 1 || id > 64 {
			return 0, invalidParam("antennas", "antenna id %d out of range 1..64", id)
		}
	}
	return antennaMask(ids), nil
}

// Reset returns the session to a known-quiet baseline: a stop burst in
// case anything is still streaming, then a flush on both sides of a short
// settle. The link stays open.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureIdleLocked(); err != nil {
		return err
	}

	if err := c.tr.Flush(); err != nil {
		return err
	}
	stop := nation.StopCommand()
	for i := 0; i < c.policy.StopAttempts; i++ {
		if err := c.tr.Send(stop); err != nil {
			return err
		}
		c.sleep(c.policy.StopSpacing)
	}
	c.sleep(c.policy.StopSettle)
	if err := c.tr.Flush(); err != nil {
		return err
	}

	c.rx = nil
	c.lastSession = -1
	c.settlePending = false
	c.log.Info("reader session reset")
	c.emitStatus("reader reset")
	return nil
}

// WriteRequest describes one tag write at the API level. EPC is the hex
// payload written at StartWord of Bank. MatchEPC, when set, restricts the
// write to the tag whose EPC memory matches it.
type WriteRequest struct {
	EPC       string
	Bank      int
	StartWord int
	Antennas  []int
	MatchEPC  string
	Password  string
}

// WriteEPC writes tag memory. It is refused while inventory runs, and it
// is never retried: with the acknowledgement lost there is no way to tell
// a failed write from a successful one, and repeating it could tear the
// tag's memory a second time.
func (c *Controller) WriteEPC(req WriteRequest) (nation.WriteResult, error) {
	params, err := buildWriteParams(req)
	if err != nil {
		return nation.WriteResult{}, err
	}
	frame, err := nation.WriteEPCCommand(params)
	if err != nil {
		return nation.WriteResult{}, invalidParam("write", "%v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureIdleLocked(); err != nil {
		return nation.WriteResult{}, err
	}

	match := func(f nation.Frame) bool {
		if f.FullMID() == nation.MIDWriteEPC {
			return true
		}
		return f.MID == nation.CodeError && len(f.Data) == 1
	}
	f, err := c.exchange("write epc", frame, match, c.policy.WriteTimeout, 1)
	if err != nil {
		return nation.WriteResult{}, err
	}

	if f.FullMID() != nation.MIDWriteEPC {
		code, _ := nation.ResultCode(f)
		return nation.WriteResult{}, &DeviceError{
			Command: "write epc",
			Code:    code,
			Message: nation.GenericErrorMessage(code),
		}
	}

	result, err := nation.ParseWriteResult(f.Data)
	if err != nil {
		return nation.WriteResult{}, err
	}
	c.log.WithFields(logrus.Fields{"code": result.Code, "message": result.Message}).Info("write epc result")
	return result, nil
}

func buildWriteParams(req WriteRequest) (nation.WriteParams, error) {
	data, err := decodeHexField("epc", req.EPC)
	if err != nil {
		return nation.WriteParams{}, err
	}
	if len(data) == 0 {
		return nation.WriteParams{}, invalidParam("epc", "must not be empty")
	}
	if len(data)%2 != 0 {
		return nation.WriteParams{}, invalidParam("epc", "must be whole 16-bit words, got %d bytes", len(data))
	}
	if req.Bank < 0 || req.Bank > int(nation.BankUser) {
		return nation.WriteParams{}, invalidParam("bank", "must be 0 through 3, got %d", req.Bank)
	}
	if req.StartWord < 0 || req.StartWord > 0xFFFF {
		return nation.WriteParams{}, invalidParam("start_word", "out of range, got %d", req.StartWord)
	}

	mask := uint32(1) // antenna 1 unless told otherwise
	if len(req.Antennas) > 0 {
		m, err := validateAntennaIDs(req.Antennas)
		if err != nil {
			return nation.WriteParams{}, err
		}
		mask = m
	}

	params := nation.WriteParams{
		Mask:      mask,
		Bank:      byte(req.Bank),
		StartWord: uint16(req.StartWord),
		Data:      data,
	}

	if req.MatchEPC != "" {
		matchData, err := decodeHexField("match_epc", req.MatchEPC)
		if err != nil {
			return nation.WriteParams{}, err
		}
		// The filter bit length is a single byte on the wire, so the
		// mask tops out at 31 bytes.
		if len(matchData) > 31 {
			return nation.WriteParams{}, invalidParam("match_epc", "filter longer than 31 bytes, got %d", len(matchData))
		}
		// Match against EPC memory starting past the CRC and PC words.
		params.Match = &nation.MatchFilter{
			Bank:   nation.BankEPC,
			Start:  2,
			BitLen: byte(len(matchData) * 8),
			Data:   matchData,
		}
	}

	if req.Password != "" {
		pwBytes, err := decodeHexField("password", req.Password)
		if err != nil {
			return nation.WriteParams{}, err
		}
		if len(pwBytes) != 4 {
			return nation.WriteParams{}, invalidParam("password", "must be 4 bytes of hex, got %d", len(pwBytes))
		}
		pw := uint32(pwBytes[0])<<24 | uint32(pwBytes[1])<<16 | uint32(pwBytes[2])<<8 | uint32(pwBytes[3])
		params.Password = &pw
	}

	return params, nil
}

func decodeHexField(field, value string) ([]byte, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(value), " ", "")
	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, invalidParam(field, "not valid hex: %v", err)
	}
	return data, nil
}
