package nation

import (
	"bytes"
	"testing"
)

func payloadOf(t *testing.T, raw []byte) []byte {
	t.Helper()
	f, err := ParseFrame(raw)
	if err != nil {
		t.Fatalf("parse command frame: %v", err)
	}
	return f.Data
}

func TestReadEPCCommandLayout(t *testing.T) {
	data := payloadOf(t, ReadEPCCommand(0x00000005, true))
	want := []byte{0x00, 0x00, 0x00, 0x05, 0x01}
	if !bytes.Equal(data, want) {
		t.Fatalf("payload: got % X want % X", data, want)
	}

	data = payloadOf(t, ReadEPCCommand(0x00000001, false))
	if data[4] != 0x00 {
		t.Fatalf("single-shot mode byte: got %02X want 00", data[4])
	}
}

func TestConfigBasebandCommandLayout(t *testing.T) {
	data := payloadOf(t, ConfigBasebandCommand(SpeedAuto, 4, 1, 2))
	want := []byte{0x01, 0xFF, 0x02, 0x04, 0x03, 0x01, 0x04, 0x02}
	if !bytes.Equal(data, want) {
		t.Fatalf("payload: got % X want % X", data, want)
	}
}

func TestConfigurePowerCommandSortsAntennas(t *testing.T) {
	persist := true
	raw, err := ConfigurePowerCommand(map[int]int{3: 20, 1: 26}, &persist)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	data := payloadOf(t, raw)
	want := []byte{0x01, 26, 0x03, 20, 0xFF, 0x01}
	if !bytes.Equal(data, want) {
		t.Fatalf("payload: got % X want % X", data, want)
	}
}

func TestConfigurePowerCommandRejectsOutOfRange(t *testing.T) {
	if _, err := ConfigurePowerCommand(map[int]int{1: 40}, nil); err == nil {
		t.Fatalf("expected error for 40 dBm")
	}
	if _, err := ConfigurePowerCommand(map[int]int{0: 20}, nil); err == nil {
		t.Fatalf("expected error for antenna 0")
	}
	if _, err := ConfigurePowerCommand(nil, nil); err == nil {
		t.Fatalf("expected error for empty power map")
	}
}

func TestWriteEPCCommandFixedSection(t *testing.T) {
	raw, err := WriteEPCCommand(WriteParams{
		Mask:      0x00000001,
		Bank:      BankEPC,
		StartWord: 2,
		Data:      []byte{0x12, 0x34, 0x56, 0x78},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	data := payloadOf(t, raw)
	want := []byte{
		0x00, 0x00, 0x00, 0x01, // antenna mask
		0x01,       // epc bank
		0x00, 0x02, // start word
		0x00, 0x04, // data length
		0x12, 0x34, 0x56, 0x78,
	}
	if !bytes.Equal(data, want) {
		t.Fatalf("payload: got % X want % X", data, want)
	}
}

func TestWriteEPCCommandMatchAndPassword(t *testing.T) {
	pw := uint32(0x11223344)
	raw, err := WriteEPCCommand(WriteParams{
		Mask:      0x00000001,
		Bank:      BankEPC,
		StartWord: 2,
		Data:      []byte{0xAB, 0xCD},
		Match: &MatchFilter{
			Bank:   BankEPC,
			Start:  2,
			BitLen: 16,
			Data:   []byte{0xBE, 0xEF},
		},
		Password: &pw,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	data := payloadOf(t, raw)

	wantTail := []byte{
		0x01,       // match pid
		0x00, 0x06, // match section length
		0x01, 0x00, 0x02, 0x10, // bank, start, bit length
		0xBE, 0xEF,
		0x02, 0x00, 0x04, // password pid and length
		0x11, 0x22, 0x33, 0x44,
	}
	if !bytes.HasSuffix(data, wantTail) {
		t.Fatalf("optional sections wrong: got % X want suffix % X", data, wantTail)
	}
}

func TestWriteEPCCommandValidation(t *testing.T) {
	base := WriteParams{Mask: 1, Bank: BankEPC, StartWord: 2, Data: []byte{0x00, 0x01}}

	p := base
	p.Mask = 0
	if _, err := WriteEPCCommand(p); err == nil {
		t.Fatalf("expected error for zero mask")
	}

	p = base
	p.Data = []byte{0x01}
	if _, err := WriteEPCCommand(p); err == nil {
		t.Fatalf("expected error for odd data length")
	}

	p = base
	p.Bank = 0x04
	if _, err := WriteEPCCommand(p); err == nil {
		t.Fatalf("expected error for invalid bank")
	}

	p = base
	p.Data = nil
	if _, err := WriteEPCCommand(p); err == nil {
		t.Fatalf("expected error for empty data")
	}
}

func TestBuzzerCommandLayout(t *testing.T) {
	if data := payloadOf(t, BuzzerCommand(true)); !bytes.Equal(data, []byte{0x01}) {
		t.Fatalf("enable payload: % X", data)
	}
	if data := payloadOf(t, BuzzerCommand(false)); !bytes.Equal(data, []byte{0x00}) {
		t.Fatalf("disable payload: % X", data)
	}
}
