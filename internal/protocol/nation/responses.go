package nation

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ReaderInfo is the decoded identity block of a reader.
type ReaderInfo struct {
	SerialNumber    string `json:"serial_number"`
	PowerOnSeconds  uint32 `json:"power_on_time_sec"`
	BasebandCompile string `json:"baseband_compile_time"`
	AppVersion      string `json:"app_version,omitempty"`
	OSVersion       string `json:"os_version,omitempty"`
	AppCompileTime  string `json:"app_compile_time,omitempty"`
}

// ParseReaderInfo decodes the query-info response payload: a
// length-prefixed serial number, a power-on counter, a length-prefixed
// baseband build string, then optional TLV fields.
func ParseReaderInfo(data []byte) (ReaderInfo, error) {
	var info ReaderInfo
	off := 0

	if off+2 > len(data) {
		return info, errors.Wrap(ErrMalformed, "reader info missing serial number")
	}
	snLen := int(data[off+1])
	if off+2+snLen > len(data) {
		return info, errors.Wrap(ErrMalformed, "reader info serial number truncated")
	}
	info.SerialNumber = strings.TrimSpace(string(data[off+2 : off+2+snLen]))
	off += 2 + snLen

	if off+4 > len(data) {
		return info, errors.Wrap(ErrMalformed, "reader info missing power-on time")
	}
	info.PowerOnSeconds = uint32(data[off])<<24 | uint32(data[off+1])<<16 | uint32(data[off+2])<<8 | uint32(data[off+3])
	off += 4

	if off+2 > len(data) {
		return info, errors.Wrap(ErrMalformed, "reader info missing baseband build")
	}
	bbLen := int(data[off+1])
	if off+2+bbLen > len(data) {
		return info, errors.Wrap(ErrMalformed, "reader info baseband build truncated")
	}
	info.BasebandCompile = strings.TrimSpace(string(data[off+2 : off+2+bbLen]))
	off += 2 + bbLen

	for off+2 <= len(data) {
		tag := data[off]
		length := int(data[off+1])
		if off+2+length > len(data) {
			break
		}
		value := data[off+2 : off+2+length]
		off += 2 + length

		switch {
		case tag == 0x01 && length == 4:
			v := uint32(value[0])<<24 | uint32(value[1])<<16 | uint32(value[2])<<8 | uint32(value[3])
			info.AppVersion = versionString(v)
		case tag == 0x02:
			info.OSVersion = strings.TrimSpace(string(value))
		case tag == 0x03:
			info.AppCompileTime = strings.TrimSpace(string(value))
		}
	}
	return info, nil
}

func versionString(v uint32) string {
	return fmt.Sprintf("V%d.%d.%d.%d", byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// ParsePowerTable decodes a query-power response into antenna -> dBm.
func ParsePowerTable(data []byte) map[int]int {
	powers := make(map[int]int, len(data)/2)
	for off := 0; off+2 <= len(data); off += 2 {
		powers[int(data[off])] = int(data[off+1])
	}
	return powers
}

// Baseband holds the four EPC baseband parameters.
type Baseband struct {
	Speed   int `json:"speed"`
	QValue  int `json:"q_value"`
	Session int `json:"session"`
	Flag    int `json:"inventory_flag"`
}

// ParseBaseband decodes a query-baseband response.
func ParseBaseband(data []byte) (Baseband, error) {
	if len(data) < 4 {
		return Baseband{}, errors.Wrapf(ErrMalformed, "baseband response too short: %d bytes", len(data))
	}
	return Baseband{
		Speed:   int(data[0]),
		QValue:  int(data[1]),
		Session: int(data[2]),
		Flag:    int(data[3]),
	}, nil
}

// ResultCode extracts the leading result byte of a command response.
func ResultCode(f Frame) (int, bool) {
	if len(f.Data) == 0 {
		return 0, false
	}
	return int(f.Data[0]), true
}

// WriteResult is the decoded outcome of a tag write.
type WriteResult struct {
	Code       int
	Message    string
	FailedAddr *int
}

// OK reports whether the write succeeded.
func (r WriteResult) OK() bool { return r.Code == 0 }

// writeResultMessages maps the device's write result codes.
var writeResultMessages = map[int]string{
	0x00: "write successful",
	0x01: "antenna parameter error",
	0x02: "match parameter error",
	0x03: "write parameter error",
	0x04: "crc check error",
	0x05: "insufficient power",
	0x06: "data area overflow",
	0x07: "data area locked",
	0x08: "access password error",
	0x09: "other tag error",
	0x0A: "tag lost",
	0x0B: "reader send error",
}

// genericErrorMessages maps the reader's generic error notification codes.
var genericErrorMessages = map[int]string{
	0x01: "unsupported instruction",
	0x02: "crc or mode error",
	0x03: "parameter error",
	0x04: "reader busy",
	0x05: "invalid state",
}

// WriteResultMessage renders a write result code.
func WriteResultMessage(code int) string {
	if msg, ok := writeResultMessages[code]; ok {
		return msg
	}
	return "unknown write error"
}

// GenericErrorMessage renders a generic reader error code.
func GenericErrorMessage(code int) string {
	if msg, ok := genericErrorMessages[code]; ok {
		return msg
	}
	return "unknown reader error"
}

// ParseWriteResult decodes a write-EPC response payload. The optional
// failed-word address rides in a trailing PID 0x01/length 0x02 section.
func ParseWriteResult(data []byte) (WriteResult, error) {
	if len(data) == 0 {
		return WriteResult{}, errors.Wrap(ErrMalformed, "empty write response")
	}
	res := WriteResult{
		Code:    int(data[0]),
		Message: WriteResultMessage(int(data[0])),
	}
	if len(data) >= 5 && data[1] == 0x01 && data[2] == 0x02 {
		addr := int(data[3])<<8 | int(data[4])
		res.FailedAddr = &addr
	}
	return res, nil
}

// basebandErrorMessages maps configure-baseband result codes.
var basebandErrorMessages = map[int]string{
	0x01: "unsupported baseband parameter",
	0x02: "q parameter error",
	0x03: "session parameter error",
	0x04: "inventory flag parameter error",
	0x05: "other parameter error",
	0x06: "save failed",
}

// BasebandErrorMessage renders a configure-baseband result code.
func BasebandErrorMessage(code int) string {
	if msg, ok := basebandErrorMessages[code]; ok {
		return msg
	}
	return "unknown baseband error"
}
