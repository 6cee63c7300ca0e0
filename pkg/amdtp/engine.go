package amdtp

import (
	"encoding/binary"
	"log"
)

// Engine is one AMDTP conversation: one instance per BLE connection,
// mutated only by OnRXBytes and SendPayload (§5). It is not safe for
// concurrent use; the transport adapter is responsible for serializing
// calls into it.
type Engine struct {
	handler Handler
	debug   bool
	mtu     int

	// RX side.
	rxBuf         []byte
	rxExpectedLen uint16
	rxHeader      header
	rxChunkCounter uint8 // chunks received so far in the current inbound frame; paces our SEND_READY replies

	expectedRxSerial uint8
	lastRxSerial     *uint8 // nil until the first DATA frame is received (§9: Option-like, not a bare int)

	// TX side.
	txBuf          []byte
	txOffset       int
	txLen          int
	txSerial       uint8
	txState        txState
	txChunkCounter uint8 // non-final chunks emitted so far in the current outbound frame; the peer's SEND_READY must echo it
	lastChunkAck   uint8 // serial echoed back by the peer's last SEND_READY
	sendingIncomplete bool
}

// New creates an engine bound to handler. debug gates verbose per-frame
// logging the way usock.New's caller logs TX/RX frame detail.
func New(handler Handler, debug bool) *Engine {
	return &Engine{
		handler: handler,
		debug:   debug,
		mtu:     defaultMTU,
		rxBuf:   make([]byte, 0, MaxPayloadSize+crcFieldSize),
	}
}

// SetMTU sets the maximum number of bytes per transport write, clamped to
// ATT_MAX_MTU (§9: "UpdateMTU compares against ATT_MAX_MTU=200 but clamps
// silently"). Affects subsequent chunking only.
func (e *Engine) SetMTU(mtu int) {
	if mtu > maxMTU {
		mtu = maxMTU
	}
	e.mtu = mtu
}

// IsSendComplete reports whether the most recent send_payload has finished
// emitting all of its chunks (it may still be awaiting an ACK).
func (e *Engine) IsSendComplete() bool {
	return !e.sendingIncomplete
}

// SendPayload queues payload for transmission as a DATA frame and emits its
// first chunk synchronously via Handler.OnTX. It returns SendChunked if
// more chunks remain pending after this call, SendSuccess if the frame was
// fully emitted in one chunk (still awaiting ACK), or SendError alongside
// the StatusCode explaining why (BUSY or INVALID_PKT_LENGTH, §4.1).
func (e *Engine) SendPayload(payload []byte) (SendResult, StatusCode) {
	if e.txState != txIdle {
		if e.debug {
			log.Printf("amdtp: send_payload rejected, tx busy (state=%d)", e.txState)
		}
		return SendError, StatusBusy
	}
	if len(payload) > MaxPayloadSize {
		if e.debug {
			log.Printf("amdtp: send_payload rejected, payload too long (%d bytes)", len(payload))
		}
		return SendError, StatusInvalidPktLength
	}

	totalLen := len(payload) + prefixSize + crcFieldSize
	ackEnabled := frameExceedsMTU(totalLen, e.mtu)

	e.txBuf = buildFrame(PacketTypeData, e.txSerial, payload, ackEnabled)
	e.txLen = len(e.txBuf)
	e.txOffset = 0
	e.txChunkCounter = 0
	e.txState = txSending

	status := e.emitNextChunk()
	if status == StatusTransmitContinue {
		return SendChunked, status
	}
	return SendSuccess, status
}

// emitNextChunk emits the next mtu-3 bytes of the queued outbound frame
// (§4.1). It is called both to kick off a send and, later, to release each
// subsequent chunk once the peer's SEND_READY control packet arrives.
func (e *Engine) emitNextChunk() StatusCode {
	if e.txState != txSending && e.txState != txIdle {
		if e.debug {
			log.Printf("amdtp: emit_next_chunk called while tx_state=%d", e.txState)
		}
		return StatusTXNotReady
	}
	if e.txOffset >= e.txLen {
		return StatusTXNotReady
	}

	remaining := e.txLen - e.txOffset
	chunkSize := e.mtu - 3
	if chunkSize > remaining {
		chunkSize = remaining
	}

	chunk := make([]byte, chunkSize)
	copy(chunk, e.txBuf[e.txOffset:e.txOffset+chunkSize])
	if e.handler != nil {
		e.handler.OnTX(chunk)
	}
	e.txOffset += chunkSize

	if e.txOffset >= e.txLen {
		e.txState = txWaitingAck
		e.sendingIncomplete = false
		return StatusSuccess
	}

	e.txState = txSending
	e.sendingIncomplete = true
	e.txChunkCounter++
	return StatusTransmitContinue
}

// OnRXBytes consumes one transport chunk and drives the reassembler
// (§4.2). It returns the StatusCode describing the outcome of this chunk.
func (e *Engine) OnRXBytes(chunk []byte) StatusCode {
	start := 0

	if len(e.rxBuf) == 0 {
		if len(chunk) < prefixSize {
			if e.debug {
				log.Printf("amdtp: incomplete chunk, len=%d", len(chunk))
			}
			e.sendACK(StatusInvalidPktLength)
			return StatusInvalidPktLength
		}

		e.rxExpectedLen = binary.LittleEndian.Uint16(chunk[0:2])
		h := decodeHeader(chunk[2], chunk[3])
		e.rxChunkCounter = 0

		if h.encrypted {
			// §9: encryption is parsed but never honored; reject until it
			// is specified rather than silently accepting it.
			if e.debug {
				log.Printf("amdtp: rejecting encrypted frame")
			}
			e.sendACK(StatusInvalidMetadata)
			return StatusInvalidMetadata
		}

		e.rxHeader = h

		if h.ptype == PacketTypeData && h.serial != e.expectedRxSerial {
			if e.debug {
				log.Printf("amdtp: data packet out of sync: expected %d got %d", e.expectedRxSerial, h.serial)
			}
			// No recovery here: the sender's TX buffer is already
			// overwritten, so the frame is accepted anyway (§9).
		}

		start = prefixSize
	}

	e.rxBuf = append(e.rxBuf, chunk[start:]...)

	if len(e.rxBuf) >= int(e.rxExpectedLen) {
		n := len(e.rxBuf)
		peerCRC := binary.LittleEndian.Uint32(e.rxBuf[n-crcFieldSize:])
		payload := e.rxBuf[:n-crcFieldSize]
		calculated := crc32Checksum(payload)

		if calculated != peerCRC {
			if e.debug {
				log.Printf("amdtp: invalid CRC, got %#08x calculated %#08x", peerCRC, calculated)
			}
			e.resetRX()
			e.sendACK(StatusCRCError)
			return StatusCRCError
		}

		e.dispatch(payload)
		return StatusReceiveDone
	}

	if e.rxHeader.ptype == PacketTypeData && e.rxHeader.ackEnabled {
		e.rxChunkCounter++
		e.sendControl(ControlSendReady, e.rxChunkCounter)
	}

	return StatusReceiveContinue
}

// dispatch routes a fully reassembled, CRC-verified frame by packet type
// (§4.3). payload excludes the CRC trailer.
func (e *Engine) dispatch(payload []byte) {
	switch e.rxHeader.ptype {
	case PacketTypeData:
		serial := e.rxHeader.serial
		e.expectedRxSerial = (serial + 1) % 16
		e.lastRxSerial = &serial

		e.sendACK(StatusSuccess)
		if e.handler != nil {
			e.handler.OnData(payload)
		}
		e.resetRX()

	case PacketTypeACK:
		var status StatusCode
		if len(payload) >= 1 {
			status = StatusCode(payload[0])
		} else {
			status = StatusUnknownError
		}
		e.resetRX()

		if e.txState != txWaitingAck {
			if e.debug {
				log.Printf("amdtp: unexpected ACK (status=%s) while tx_state=%d", status, e.txState)
			}
		}
		e.txState = txIdle

		switch status {
		case StatusCRCError, StatusResendReply:
			e.txOffset = 0
			e.txChunkCounter = 0
			e.txState = txSending
			e.emitNextChunk()
		case StatusSuccess:
			e.txSerial = (e.txSerial + 1) % 16
		}

	case PacketTypeControl:
		var subcode ControlSubcode
		var serial uint8
		if len(payload) >= 2 {
			subcode = ControlSubcode(payload[0])
			serial = payload[1]
		}
		e.resetRX()

		switch subcode {
		case ControlSendReady:
			if serial != e.txChunkCounter {
				if e.debug {
					log.Printf("amdtp: ignoring SEND_READY for serial %d, expected %d", serial, e.txChunkCounter)
				}
				return
			}
			e.lastChunkAck = serial
			e.emitNextChunk()

		case ControlResendRequest:
			if e.lastRxSerial == nil {
				// §9: lastRxPktSn is Option-like; unset means no DATA has
				// been received yet, which is undefined in the source.
				e.sendACK(StatusUnknownError)
				return
			}
			switch {
			case serial > *e.lastRxSerial:
				e.sendACK(StatusResendReply)
			case serial == *e.lastRxSerial:
				e.sendACK(StatusSuccess)
			default:
				if e.debug {
					log.Printf("amdtp: cannot act on resend request, serial=%d lastRxSerial=%d", serial, *e.lastRxSerial)
				}
			}

		default:
			if e.debug {
				log.Printf("amdtp: unexpected control subcode %d", subcode)
			}
		}
	}
}

// resetRX clears the inbound reassembly buffer after a complete frame (or
// a CRC failure) has been handled.
func (e *Engine) resetRX() {
	e.rxBuf = e.rxBuf[:0]
	e.rxExpectedLen = 0
}

// sendACK builds and transmits a one-byte ACK frame. ACK/CONTROL frames
// are always small enough to fit in a single chunk, so they bypass the
// tx_state/tx_offset machinery entirely and are written directly, exactly
// as the source's AmdtpcSendAck calls the outbound callback once rather
// than routing through AmdtpSendPacketHandler.
func (e *Engine) sendACK(status StatusCode) {
	e.sendControlPlaneFrame(PacketTypeACK, []byte{byte(status)})
}

// sendControl builds and transmits a two-byte CONTROL frame.
func (e *Engine) sendControl(subcode ControlSubcode, serial uint8) {
	e.sendControlPlaneFrame(PacketTypeControl, []byte{byte(subcode), serial})
}

func (e *Engine) sendControlPlaneFrame(ptype PacketType, payload []byte) {
	totalLen := len(payload) + prefixSize + crcFieldSize
	ackEnabled := frameExceedsMTU(totalLen, e.mtu)
	frame := buildFrame(ptype, 0, payload, ackEnabled)
	if e.handler != nil {
		e.handler.OnTX(frame)
	}
}
