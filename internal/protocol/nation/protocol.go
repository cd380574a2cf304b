// Package nation implements the binary framing used by Nation UHF RFID
// readers. Frames are pure data: encoding and decoding never touch I/O.
package nation

import (
	"github.com/pkg/errors"
)

// Frame layout: Header(1) + PCW(4) + Length(2) + Data(n) + CRC(2).
// The CRC covers PCW through the end of the data payload.
const (
	FrameHeader byte = 0x5A

	protoType byte = 0x00
	protoVer  byte = 0x01

	// minFrameLen is header + PCW + length + CRC with an empty payload.
	minFrameLen = 9

	// maxPayloadLen bounds the declared data length of a single frame.
	// Anything larger is buffer desync, not a real frame.
	maxPayloadLen = 1024
)

// Message IDs, category in the high byte and code in the low byte.
const (
	MIDQueryInfo      uint16 = 0x0100
	MIDBuzzer         uint16 = 0x011E
	MIDConfigurePower uint16 = 0x0201
	MIDQueryPower     uint16 = 0x0202
	MIDConfigBaseband uint16 = 0x020B
	MIDQueryBaseband  uint16 = 0x020C
	MIDReadEPC        uint16 = 0x0210
	MIDWriteEPC       uint16 = 0x0211
	MIDStop           uint16 = 0x02FF

	// CodeError is the low-byte MID of the generic error notification.
	CodeError byte = 0x00
	// CodeStop is the low-byte MID of a stop acknowledgement.
	CodeStop byte = 0xFF
)

// Decode failure kinds. A CRC failure means the frame arrived damaged and
// the same command is worth retrying; a malformed frame usually means the
// read buffer is desynced and should be flushed first.
var (
	ErrCRC       = errors.New("frame crc mismatch")
	ErrMalformed = errors.New("malformed frame")

	// ErrIncomplete is returned by Next when the buffer holds the start
	// of a frame but not yet all of it.
	ErrIncomplete = errors.New("incomplete frame")
)

// Frame is one decoded protocol frame.
type Frame struct {
	PCW      uint32
	Category byte
	MID      byte
	Notify   bool
	Data     []byte
	Raw      []byte
}

// FullMID returns the composite category<<8|code identifier.
func (f Frame) FullMID() uint16 {
	return uint16(f.Category)<<8 | uint16(f.MID)
}

// crc16 is CRC-16 with poly 0x8005, init 0x0000, MSB first, as used by the
// reader firmware.
func crc16(data []byte) uint16 {
	crc := uint16(0x0000)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x8005
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// buildPCW assembles the 4-byte protocol control word. The RS485 and notify
// flags are always clear for host-originated commands.
func buildPCW(mid uint16) uint32 {
	return uint32(protoType)<<24 | uint32(protoVer)<<16 | uint32(mid)
}

// BuildFrame encodes one command frame for the given MID and payload.
func BuildFrame(mid uint16, payload []byte) []byte {
	frame := make([]byte, 0, minFrameLen+len(payload))
	frame = append(frame, FrameHeader)

	pcw := buildPCW(mid)
	frame = append(frame, byte(pcw>>24), byte(pcw>>16), byte(pcw>>8), byte(pcw))
	frame = append(frame, byte(len(payload)>>8), byte(len(payload)))
	frame = append(frame, payload...)

	crc := crc16(frame[1:])
	frame = append(frame, byte(crc>>8), byte(crc))
	return frame
}

// ParseFrame decodes one complete frame, header byte included. It fails
// with ErrMalformed for structural problems and ErrCRC for checksum
// mismatches so callers can pick the right recovery.
func ParseFrame(raw []byte) (Frame, error) {
	if len(raw) < minFrameLen {
		return Frame{}, errors.Wrapf(ErrMalformed, "frame too short: %d bytes", len(raw))
	}
	if raw[0] != FrameHeader {
		return Frame{}, errors.Wrapf(ErrMalformed, "bad header byte 0x%02X", raw[0])
	}

	pcw := uint32(raw[1])<<24 | uint32(raw[2])<<16 | uint32(raw[3])<<8 | uint32(raw[4])
	dataLen := int(raw[5])<<8 | int(raw[6])
	if dataLen > maxPayloadLen {
		return Frame{}, errors.Wrapf(ErrMalformed, "implausible data length %d", dataLen)
	}
	if len(raw) != minFrameLen+dataLen {
		return Frame{}, errors.Wrapf(ErrMalformed, "length mismatch: declared %d data bytes in %d-byte frame", dataLen, len(raw))
	}

	crcOff := 7 + dataLen
	got := uint16(raw[crcOff])<<8 | uint16(raw[crcOff+1])
	if want := crc16(raw[1:crcOff]); got != want {
		return Frame{}, errors.Wrapf(ErrCRC, "got 0x%04X want 0x%04X", got, want)
	}

	data := make([]byte, dataLen)
	copy(data, raw[7:crcOff])
	rawCopy := make([]byte, len(raw))
	copy(rawCopy, raw)

	return Frame{
		PCW:      pcw,
		Category: byte(pcw >> 8),
		MID:      byte(pcw),
		Notify:   pcw&(1<<12) != 0,
		Data:     data,
		Raw:      rawCopy,
	}, nil
}

// Next scans buf for the next frame boundary. It returns the number of
// bytes the caller should discard from the front of buf regardless of the
// error value:
//
//	nil          — frame decoded, consumed covers it entirely
//	ErrIncomplete — keep the tail and wait for more bytes
//	ErrCRC / ErrMalformed — one damaged frame candidate was skipped
func Next(buf []byte) (Frame, int, error) {
	start := 0
	for start < len(buf) && buf[start] != FrameHeader {
		start++
	}
	if start == len(buf) {
		// No header in sight: everything is inter-frame noise.
		return Frame{}, start, ErrIncomplete
	}
	if len(buf)-start < minFrameLen {
		return Frame{}, start, ErrIncomplete
	}

	dataLen := int(buf[start+5])<<8 | int(buf[start+6])
	if dataLen > maxPayloadLen {
		return Frame{}, start + 1, errors.Wrapf(ErrMalformed, "implausible data length %d", dataLen)
	}
	total := minFrameLen + dataLen
	if len(buf)-start < total {
		return Frame{}, start, ErrIncomplete
	}

	frame, err := ParseFrame(buf[start : start+total])
	if err != nil {
		// Resync one byte past the bogus header and let the caller rescan.
		return Frame{}, start + 1, err
	}
	return frame, start + total, nil
}
