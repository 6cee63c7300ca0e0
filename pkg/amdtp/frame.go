package amdtp

import "encoding/binary"

const (
	// MaxPayloadSize is the largest payload a single AMDTP frame may carry.
	MaxPayloadSize = 512

	lengthFieldSize = 2
	headerFieldSize = 2
	crcFieldSize    = 4
	prefixSize      = lengthFieldSize + headerFieldSize

	defaultMTU = 23
	maxMTU     = 200 // ATT_MAX_MTU; UpdateMTU clamps silently above this (see design notes)

	headerAckEnabledBit = 1 << 6
	headerEncryptedBit  = 1 << 7
)

// header describes the decoded contents of an AMDTP frame's 2-byte header.
type header struct {
	encrypted  bool
	ackEnabled bool
	ptype      PacketType
	serial     uint8 // 4 bits, meaningful only for DATA
}

// buildFrame assembles a complete AMDTP frame: length prefix, header,
// payload, and CRC-32 trailer, per §4.1. serial is only meaningful for
// DATA frames; callers pass 0 for ACK/CONTROL. ackEnabled is computed by
// the caller from the frame's total size against the current MTU (§3
// invariant 6), not by this function, since that decision needs the
// mtu the frame will be chunked against.
func buildFrame(ptype PacketType, serial uint8, payload []byte, ackEnabled bool) []byte {
	n := len(payload)
	totalLen := n + crcFieldSize

	frame := make([]byte, 0, prefixSize+n+crcFieldSize)
	lenBuf := make([]byte, lengthFieldSize)
	binary.LittleEndian.PutUint16(lenBuf, uint16(totalLen))
	frame = append(frame, lenBuf...)

	h1 := byte(0) // encrypted is never set by this engine (§9)
	if ackEnabled {
		h1 |= headerAckEnabledBit
	}
	h2 := byte(ptype) << 4
	if ptype == PacketTypeData {
		h2 |= serial & 0x0F
	}
	frame = append(frame, h1, h2)

	frame = append(frame, payload...)

	crc := crc32Checksum(payload)
	crcBuf := make([]byte, crcFieldSize)
	binary.LittleEndian.PutUint32(crcBuf, crc)
	frame = append(frame, crcBuf...)

	return frame
}

// frameExceedsMTU reports whether a frame of byteLen total bytes requires
// chunk-level SEND_READY pacing at the given MTU (§3 invariant 6: ack_enabled
// is set iff the outbound frame exceeds mtu-3 bytes).
func frameExceedsMTU(byteLen int, mtu int) bool {
	return byteLen > mtu-3
}

// decodeHeader parses the 2-byte header starting at data[2:4] of a frame's
// first chunk (bytes 0-1 are the length prefix, decoded separately).
func decodeHeader(h1, h2 byte) header {
	return header{
		encrypted:  h1&headerEncryptedBit != 0,
		ackEnabled: h1&headerAckEnabledBit != 0,
		ptype:      PacketType(h2 >> 4),
		serial:     h2 & 0x0F,
	}
}
