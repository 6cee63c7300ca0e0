// Package serialbridge carries AMDTP frame bytes over a plain UART link
// instead of BLE notifications/writes. It exists for bench testing the
// amdtp engine against a peripheral development board wired directly to
// the host's serial port, before BLE hardware is available, using the
// same sync-byte-and-CRC16 byte framing librescoot's nRF52 bridge used
// for its own command channel.
package serialbridge

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/tarm/serial"
)

const (
	// MaxPayloadLength bounds a single serial frame's payload. It is
	// larger than amdtp.MaxPayloadSize because a tunneled frame carries
	// a complete AMDTP chunk including its own 4-byte prefix and 4-byte
	// CRC trailer, plus headroom for the largest single chunk at the
	// negotiated MTU.
	MaxPayloadLength = 1024

	syncByte1 = 0xF6
	syncByte2 = 0xD9

	// tunnelFrameID marks every outbound serial frame as an AMDTP chunk
	// tunnel frame, as opposed to some other frame ID a shared UART link
	// might carry.
	tunnelFrameID = 0xA0
)

// byte-framer states
const (
	stateSync1 = iota
	stateSync2
	stateFrameID
	statePayloadLen1
	statePayloadLen2
	stateHeaderCRC1
	stateHeaderCRC2
	statePayload
	statePayloadCRC1
	statePayloadCRC2
)

type frameState int

type frame struct {
	id         byte
	payloadLen uint16
	headerCRC  uint16
	payload    []byte
	payloadCRC uint16
}

// Link is a UART socket that frames arbitrary byte payloads with sync
// bytes, a frame ID, and CRC16/ARC checksums over both header and
// payload. It has no knowledge of AMDTP; Bridge sits on top of it to
// shuttle amdtp chunks back and forth.
type Link struct {
	port     *serial.Port
	handler  func(frameID byte, payload []byte)
	stopChan chan struct{}
	wg       sync.WaitGroup
	state    frameState
	frame    frame
	buffer   []byte
	mu       sync.Mutex
}

var crc16Table = [256]uint16{
	0x0000, 0xC0C1, 0xC181, 0x0140, 0xC301, 0x03C0, 0x0280, 0xC241, 0xC601, 0x06C0, 0x0780, 0xC741,
	0x0500, 0xC5C1, 0xC481, 0x0440, 0xCC01, 0x0CC0, 0x0D80, 0xCD41, 0x0F00, 0xCFC1, 0xCE81, 0x0E40,
	0x0A00, 0xCAC1, 0xCB81, 0x0B40, 0xC901, 0x09C0, 0x0880, 0xC841, 0xD801, 0x18C0, 0x1980, 0xD941,
	0x1B00, 0xDBC1, 0xDA81, 0x1A40, 0x1E00, 0xDEC1, 0xDF81, 0x1F40, 0xDD01, 0x1DC0, 0x1C80, 0xDC41,
	0x1400, 0xD4C1, 0xD581, 0x1540, 0xD701, 0x17C0, 0x1680, 0xD641, 0xD201, 0x12C0, 0x1380, 0xD341,
	0x1100, 0xD1C1, 0xD081, 0x1040, 0xF001, 0x30C0, 0x3180, 0xF141, 0x3300, 0xF3C1, 0xF281, 0x3240,
	0x3600, 0xF6C1, 0xF781, 0x3740, 0xF501, 0x35C0, 0x3480, 0xF441, 0x3C00, 0xFCC1, 0xFD81, 0x3D40,
	0xFF01, 0x3FC0, 0x3E80, 0xFE41, 0xFA01, 0x3AC0, 0x3B80, 0xFB41, 0x3900, 0xF9C1, 0xF881, 0x3840,
	0x2800, 0xE8C1, 0xE981, 0x2940, 0xEB01, 0x2BC0, 0x2A80, 0xEA41, 0xEE01, 0x2EC0, 0x2F80, 0xEF41,
	0x2D00, 0xEDC1, 0xEC81, 0x2C40, 0xE401, 0x24C0, 0x2580, 0xE541, 0x2700, 0xE7C1, 0xE681, 0x2640,
	0x2200, 0xE2C1, 0xE381, 0x2340, 0xE101, 0x21C0, 0x2080, 0xE041, 0xA001, 0x60C0, 0x6180, 0xA141,
	0x6300, 0xA3C1, 0xA281, 0x6240, 0x6600, 0xA6C1, 0xA781, 0x6740, 0xA501, 0x65C0, 0x6480, 0xA441,
	0x6C00, 0xACC1, 0xAD81, 0x6D40, 0xAF01, 0x6FC0, 0x6E80, 0xAE41, 0xAA01, 0x6AC0, 0x6B80, 0xAB41,
	0x6900, 0xA9C1, 0xA881, 0x6840, 0x7800, 0xB8C1, 0xB981, 0x7940, 0xBB01, 0x7BC0, 0x7A80, 0xBA41,
	0xBE01, 0x7EC0, 0x7F80, 0xBF41, 0x7D00, 0xBDC1, 0xBC81, 0x7C40, 0xB401, 0x74C0, 0x7580, 0xB541,
	0x7700, 0xB7C1, 0xB681, 0x7640, 0x7200, 0xB2C1, 0xB381, 0x7340, 0xB101, 0x71C0, 0x7080, 0xB041,
	0x5000, 0x90C1, 0x9181, 0x5140, 0x9301, 0x53C0, 0x5280, 0x9241, 0x9601, 0x56C0, 0x5780, 0x9741,
	0x5500, 0x95C1, 0x9481, 0x5440, 0x9C01, 0x5CC0, 0x5D80, 0x9D41, 0x5F00, 0x9FC1, 0x9E81, 0x5E40,
	0x5A00, 0x9AC1, 0x9B81, 0x5B40, 0x9901, 0x59C0, 0x5880, 0x9841, 0x8801, 0x48C0, 0x4980, 0x8941,
	0x4B00, 0x8BC1, 0x8A81, 0x4A40, 0x4E00, 0x8EC1, 0x8F81, 0x4F40, 0x8D01, 0x4DC0, 0x4C80, 0x8C41,
	0x4400, 0x84C1, 0x8581, 0x4540, 0x8701, 0x47C0, 0x4680, 0x8641, 0x8201, 0x42C0, 0x4380, 0x8341,
	0x4100, 0x81C1, 0x8081, 0x4040,
}

// NewLink opens devicePath at baudRate and starts reading frames in the
// background, dispatching each complete, CRC-valid frame to handler.
func NewLink(devicePath string, baudRate int, handler func(frameID byte, payload []byte)) (*Link, error) {
	if err := clearUARTAttributes(devicePath); err != nil {
		return nil, fmt.Errorf("failed to clear UART attributes: %v", err)
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        devicePath,
		Baud:        baudRate,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %v", err)
	}

	l := &Link{
		port:     port,
		handler:  handler,
		stopChan: make(chan struct{}),
		state:    stateSync1,
		buffer:   make([]byte, 0, 256),
	}

	l.wg.Add(1)
	go l.readLoop()

	return l, nil
}

func clearUARTAttributes(devicePath string) error {
	port, err := serial.OpenPort(&serial.Config{
		Name:        devicePath,
		Baud:        9600,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: 0,
	})
	if err != nil {
		return fmt.Errorf("failed to open serial port for attribute clearing: %v", err)
	}
	if err := port.Close(); err != nil {
		return fmt.Errorf("failed to close serial port after attribute clearing: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	return nil
}

// WriteWithFrameID frames and writes data with an explicit frame ID.
func (l *Link) WriteWithFrameID(frameID byte, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(data) > MaxPayloadLength {
		return fmt.Errorf("payload size exceeds maximum length of %d bytes", MaxPayloadLength)
	}

	header := []byte{syncByte1, syncByte2, frameID}
	lenBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenBytes, uint16(len(data)))
	header = append(header, lenBytes...)
	headerCRC := calculateCRC16(header, 0)
	payloadCRC := calculateCRC16(data, 0)

	out := make([]byte, 0, 7+len(data)+2)
	out = append(out, header...)
	out = append(out, byte(headerCRC&0xFF), byte((headerCRC>>8)&0xFF))
	out = append(out, data...)
	out = append(out, byte(payloadCRC&0xFF), byte((payloadCRC>>8)&0xFF))

	log.Printf("serialbridge: tx frame id=0x%02x len=%d %s", frameID, len(data), hex.EncodeToString(data))

	if _, err := l.port.Write(out); err != nil {
		return fmt.Errorf("failed to write frame: %v", err)
	}
	return nil
}

// Close stops the read loop and closes the underlying port.
func (l *Link) Close() error {
	close(l.stopChan)
	l.wg.Wait()
	return l.port.Close()
}

func (l *Link) readLoop() {
	defer l.wg.Done()

	buf := make([]byte, 1)
	for {
		select {
		case <-l.stopChan:
			return
		default:
			n, err := l.port.Read(buf)
			if err != nil {
				if err != io.EOF {
					log.Printf("serialbridge: read error: %v", err)
					time.Sleep(10 * time.Millisecond)
				}
				continue
			}
			if n == 0 {
				continue
			}
			l.processByte(buf[0])
		}
	}
}

func (l *Link) processByte(b byte) {
	switch l.state {
	case stateSync1:
		if b == syncByte1 {
			l.state = stateSync2
			l.buffer = l.buffer[:0]
			l.buffer = append(l.buffer, b)
		}
	case stateSync2:
		if b == syncByte2 {
			l.state = stateFrameID
			l.buffer = append(l.buffer, b)
		} else {
			l.state = stateSync1
		}
	case stateFrameID:
		l.frame.id = b
		l.buffer = append(l.buffer, b)
		l.state = statePayloadLen1
	case statePayloadLen1:
		l.frame.payloadLen = uint16(b)
		l.buffer = append(l.buffer, b)
		l.state = statePayloadLen2
	case statePayloadLen2:
		l.frame.payloadLen |= uint16(b) << 8
		l.buffer = append(l.buffer, b)
		l.state = stateHeaderCRC1
		l.frame.headerCRC = calculateCRC16(l.buffer, 0)
		if l.frame.payloadLen > MaxPayloadLength {
			log.Printf("serialbridge: invalid payload length %d (max %d)", l.frame.payloadLen, MaxPayloadLength)
			l.state = stateSync1
		}
	case stateHeaderCRC1:
		l.frame.headerCRC = uint16(b)
		l.state = stateHeaderCRC2
	case stateHeaderCRC2:
		l.frame.headerCRC |= uint16(b) << 8
		if calculateCRC16(l.buffer, 0) != l.frame.headerCRC {
			log.Printf("serialbridge: header CRC mismatch")
			l.state = stateSync1
			return
		}
		l.frame.payload = make([]byte, 0, l.frame.payloadLen)
		l.buffer = l.buffer[:0]
		l.state = statePayload
	case statePayload:
		l.frame.payload = append(l.frame.payload, b)
		l.buffer = append(l.buffer, b)
		if uint16(len(l.frame.payload)) >= l.frame.payloadLen {
			l.state = statePayloadCRC1
			l.frame.payloadCRC = calculateCRC16(l.buffer, 0)
		}
	case statePayloadCRC1:
		l.frame.payloadCRC = uint16(b)
		l.state = statePayloadCRC2
	case statePayloadCRC2:
		l.frame.payloadCRC |= uint16(b) << 8
		if calculateCRC16(l.buffer, 0) != l.frame.payloadCRC {
			log.Printf("serialbridge: payload CRC mismatch")
			l.state = stateSync1
			return
		}

		payload := make([]byte, len(l.frame.payload))
		copy(payload, l.frame.payload)

		if l.handler != nil {
			l.handler(l.frame.id, payload)
		}
		l.state = stateSync1
	}
}

func calculateCRC16(data []byte, seed uint16) uint16 {
	crc := seed
	for _, b := range data {
		idx := uint16(crc^uint16(b)) & 0xff
		crc = (crc >> 8) ^ crc16Table[idx]
	}
	return crc
}
