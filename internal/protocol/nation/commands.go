package nation

import (
	"sort"

	"github.com/pkg/errors"
)

// Memory banks addressable by tag write operations.
const (
	BankReserved byte = 0x00
	BankEPC      byte = 0x01
	BankTID      byte = 0x02
	BankUser     byte = 0x03
)

// Parameter IDs used inside optional TLV sections of command payloads.
const (
	pidMatch    byte = 0x01
	pidPassword byte = 0x02
	pidPersist  byte = 0xFF
)

// SpeedAuto leaves the baseband link profile to the reader's discretion.
const SpeedAuto byte = 0xFF

// QueryInfoCommand asks the reader for its identity block (serial number,
// firmware versions, uptime).
func QueryInfoCommand() []byte {
	return BuildFrame(MIDQueryInfo, nil)
}

// StopCommand halts any running reader operation.
func StopCommand() []byte {
	return BuildFrame(MIDStop, nil)
}

// ReadEPCCommand starts tag inventory on the antennas selected by mask.
// A zero mask is rejected upstream; this builder trusts its input.
func ReadEPCCommand(mask uint32, continuous bool) []byte {
	payload := []byte{
		byte(mask >> 24), byte(mask >> 16), byte(mask >> 8), byte(mask),
		0x00,
	}
	if continuous {
		payload[4] = 0x01
	}
	return BuildFrame(MIDReadEPC, payload)
}

// ConfigBasebandCommand sets the EPC baseband parameters as PID/value
// pairs: speed, Q value, session, and inventory target flag.
func ConfigBasebandCommand(speed, q, session, flag byte) []byte {
	payload := []byte{
		0x01, speed,
		0x02, q,
		0x03, session,
		0x04, flag,
	}
	return BuildFrame(MIDConfigBaseband, payload)
}

// QueryBasebandCommand reads back the current baseband parameters.
func QueryBasebandCommand() []byte {
	return BuildFrame(MIDQueryBaseband, nil)
}

// QueryPowerCommand reads the per-antenna transmit power table.
func QueryPowerCommand() []byte {
	return BuildFrame(MIDQueryPower, nil)
}

// ConfigurePowerCommand sets transmit power per antenna. Antenna ids are
// emitted in ascending order so the frame is deterministic. persist, when
// non-nil, appends the persistence PID telling the reader whether to keep
// the setting across power cycles.
func ConfigurePowerCommand(powers map[int]int, persist *bool) ([]byte, error) {
	if len(powers) == 0 {
		return nil, errors.New("no antenna powers given")
	}

	ids := make([]int, 0, len(powers))
	for id := range powers {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	payload := make([]byte, 0, len(ids)*2+2)
	for _, id := range ids {
		if id < 1 || id > 64 {
			return nil, errors.Errorf("antenna id %d out of range 1-64", id)
		}
		dbm := powers[id]
		if dbm < 0 || dbm > 33 {
			return nil, errors.Errorf("power %d dBm for antenna %d out of range 0-33", dbm, id)
		}
		payload = append(payload, byte(id), byte(dbm))
	}
	if persist != nil {
		v := byte(0x00)
		if *persist {
			v = 0x01
		}
		payload = append(payload, pidPersist, v)
	}
	return BuildFrame(MIDConfigurePower, payload), nil
}

// BuzzerCommand switches the reader's buzzer on or off.
func BuzzerCommand(enable bool) []byte {
	v := byte(0x00)
	if enable {
		v = 0x01
	}
	return BuildFrame(MIDBuzzer, []byte{v})
}

// MatchFilter restricts a write to tags whose memory matches the given
// bits, so a write in a multi-tag field lands on exactly one tag.
type MatchFilter struct {
	Bank   byte
	Start  uint16 // word address where the comparison begins
	BitLen byte
	Data   []byte
}

// WriteParams describes one tag write. Mask selects the antennas, Bank and
// StartWord address the target memory, Data is the word-aligned payload.
type WriteParams struct {
	Mask      uint32
	Bank      byte
	StartWord uint16
	Data      []byte
	Match     *MatchFilter
	Password  *uint32
}

// WriteEPCCommand encodes a tag write. Fixed section first (mask, bank,
// start word, length-prefixed data), then the optional match and password
// TLVs, each present only when provided.
func WriteEPCCommand(p WriteParams) ([]byte, error) {
	if p.Mask == 0 {
		return nil, errors.New("antenna mask must select at least one antenna")
	}
	if p.Bank > BankUser {
		return nil, errors.Errorf("invalid memory bank 0x%02X", p.Bank)
	}
	if len(p.Data) == 0 {
		return nil, errors.New("write data is empty")
	}
	if len(p.Data)%2 != 0 {
		return nil, errors.Errorf("write data must be word aligned, got %d bytes", len(p.Data))
	}

	payload := make([]byte, 0, 16+len(p.Data))
	payload = append(payload, byte(p.Mask>>24), byte(p.Mask>>16), byte(p.Mask>>8), byte(p.Mask))
	payload = append(payload, p.Bank)
	payload = append(payload, byte(p.StartWord>>8), byte(p.StartWord))
	payload = append(payload, byte(len(p.Data)>>8), byte(len(p.Data)))
	payload = append(payload, p.Data...)

	if p.Match != nil {
		m := p.Match
		if len(m.Data) == 0 {
			return nil, errors.New("match filter data is empty")
		}
		content := make([]byte, 0, 4+len(m.Data))
		content = append(content, m.Bank, byte(m.Start>>8), byte(m.Start), m.BitLen)
		content = append(content, m.Data...)

		payload = append(payload, pidMatch)
		payload = append(payload, byte(len(content)>>8), byte(len(content)))
		payload = append(payload, content...)
	}

	if p.Password != nil {
		pw := *p.Password
		payload = append(payload, pidPassword, 0x00, 0x04)
		payload = append(payload, byte(pw>>24), byte(pw>>16), byte(pw>>8), byte(pw))
	}

	return BuildFrame(MIDWriteEPC, payload), nil
}
