package serialbridge

import "testing"

func TestCRC16KnownAnswer(t *testing.T) {
	// CRC-16/ARC check value for the ASCII string "123456789".
	if got := calculateCRC16([]byte("123456789"), 0); got != 0xBB3D {
		t.Fatalf("calculateCRC16(123456789) = %#04x, want 0xBB3D", got)
	}
}

func TestCRC16Sensitivity(t *testing.T) {
	a := calculateCRC16([]byte{0x01, 0x02, 0x03}, 0)
	b := calculateCRC16([]byte{0x01, 0x02, 0x04}, 0)
	if a == b {
		t.Fatalf("CRC16 did not change after flipping last byte")
	}
}

func TestProcessByteReassemblesFrame(t *testing.T) {
	var got []byte
	var gotID byte
	l := &Link{state: stateSync1, buffer: make([]byte, 0, 64)}
	l.handler = func(frameID byte, payload []byte) {
		gotID = frameID
		got = payload
	}

	payload := []byte{0xAA, 0xBB, 0xCC}
	header := []byte{syncByte1, syncByte2, tunnelFrameID, byte(len(payload)), 0x00}
	headerCRC := calculateCRC16(header, 0)
	payloadCRC := calculateCRC16(payload, 0)

	frame := append([]byte{}, header...)
	frame = append(frame, byte(headerCRC&0xFF), byte((headerCRC>>8)&0xFF))
	frame = append(frame, payload...)
	frame = append(frame, byte(payloadCRC&0xFF), byte((payloadCRC>>8)&0xFF))

	for _, b := range frame {
		l.processByte(b)
	}

	if l.state != stateSync1 {
		t.Fatalf("state after full frame = %v, want sync1 (idle)", l.state)
	}
	if gotID != tunnelFrameID {
		t.Fatalf("frame id = %#02x, want %#02x", gotID, tunnelFrameID)
	}
	if string(got) != string(payload) {
		t.Fatalf("payload = % X, want % X", got, payload)
	}
}
