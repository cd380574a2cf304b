package nation

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// TagReport is one decoded tag sighting from an inventory notification.
type TagReport struct {
	EPC     string
	PC      string
	Antenna int
	RSSI    int
	HasRSSI bool
}

// IsTagReport reports whether the frame carries tag data from a running
// inventory. Tag notifications arrive either on the dedicated tag category
// or as MID 0x00 data frames while inventory streams.
func IsTagReport(f Frame) bool {
	return f.Category == 0x10 || (f.Category == 0x02 && f.MID == 0x00)
}

// readEndCodes are the notification MIDs the reader uses to announce the
// end of a read cycle (stopped by command, scan budget elapsed, fault).
var readEndCodes = map[byte]struct{}{
	0x01: {},
	0x21: {},
	0x31: {},
}

// IsReadEnd reports whether the frame announces the end of an inventory run.
func IsReadEnd(f Frame) bool {
	_, ok := readEndCodes[f.MID]
	return ok && (f.Category == 0x02 || f.Category == 0x12)
}

// ReadEndReason extracts the reason code from a read-end notification.
// Code 1 means stopped by host command.
func ReadEndReason(f Frame) int {
	if len(f.Data) == 0 {
		return -1
	}
	return int(f.Data[0])
}

// IsStopAck reports whether the frame acknowledges a stop command with a
// success result.
func IsStopAck(f Frame) bool {
	return f.MID == CodeStop && len(f.Data) > 0 && f.Data[0] == 0x00
}

// ParseTagReport decodes the payload of a tag notification:
// epcLen(2) + epc + pc(2) + antenna(1) + optional RSSI PID/value pair.
// RSSI is a signed dBm byte.
func ParseTagReport(data []byte) (TagReport, error) {
	if len(data) < 2 {
		return TagReport{}, errors.Wrap(ErrMalformed, "tag report missing epc length")
	}
	epcLen := int(data[0])<<8 | int(data[1])
	off := 2
	if off+epcLen > len(data) {
		return TagReport{}, errors.Wrapf(ErrMalformed, "tag report epc truncated: want %d bytes", epcLen)
	}
	epc := strings.ToUpper(hex.EncodeToString(data[off : off+epcLen]))
	off += epcLen

	if off+2 > len(data) {
		return TagReport{}, errors.Wrap(ErrMalformed, "tag report missing pc word")
	}
	pc := strings.ToUpper(hex.EncodeToString(data[off : off+2]))
	off += 2

	if off >= len(data) {
		return TagReport{}, errors.Wrap(ErrMalformed, "tag report missing antenna id")
	}
	report := TagReport{
		EPC:     epc,
		PC:      pc,
		Antenna: int(data[off]),
	}
	off++

	// Optional trailing PID 0x01 carries RSSI.
	if off+1 < len(data) && data[off] == 0x01 {
		report.RSSI = int(int8(data[off+1]))
		report.HasRSSI = true
	}
	return report, nil
}
