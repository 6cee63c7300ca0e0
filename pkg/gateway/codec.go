package gateway

import (
	"encoding/binary"
	"fmt"
	"math"
)

// BME280Reading mirrors the data_to_exchange struct the Artemis/Apollo3
// BME280 peripheral sketch sends, as unpacked by the Python sample with
// struct.unpack('=ffffBBBB', values): four little-endian float32 fields
// followed by four status bytes.
type BME280Reading struct {
	Humidity    float32
	Pressure    float32
	Altitude    float32
	Temperature float32
	Meter       bool // true: Altitude is in meters, false: feet
	Celsius     bool // true: Temperature is Celsius, false: Fahrenheit
}

const bme280WireSize = 1 + 4*4 + 4 // discriminant + four float32 + four status bytes

// magicCmd is data_to_exchange's MagicNumber value (0xCF) indicating the
// frame is not a genuine sensor reading but an echo of a previously sent
// command: receive_data() in Python_bleak_AMDTP_BME280/main.py gates on
// this exact byte before treating the rest of the struct as humidity/
// pressure/altitude/temperature.
const magicCmd = 0xCF

// CommandAck is the peripheral's reply to a previously sent command,
// carried in the same wire layout as a BME280Reading but discriminated
// by MagicNumber == magicCmd. CmdStatus echoes the command's outcome, or
// -1 on error, per receive_data()'s ShowServerReturn(cmdstat) branch.
type CommandAck struct {
	CmdStatus int8
}

// ThroughputSample reports one AMDTP bulk-transfer measurement: the total
// payload bytes moved and how long it took. There is no peripheral-side
// precedent for this shape (the throughput sample prints to stdout
// instead); it exists purely so the gateway can publish a transfer-rate
// metric for a running AmdtpSendData-style benchmark.
type ThroughputSample struct {
	TotalBytes uint32
	ElapsedMs  uint32
}

const throughputWireSize = 1 + 4 + 4

// decodeReading dispatches payload on its leading discriminant byte into
// one of the gateway's known reading shapes. It returns the decoded value
// (a *BME280Reading, *CommandAck, or *ThroughputSample) or an error if
// the payload is too short or carries an unrecognized discriminant.
func decodeReading(payload []byte) (interface{}, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("gateway: empty payload")
	}

	switch payload[0] {
	case readingBME280:
		if len(payload) != bme280WireSize {
			return nil, fmt.Errorf("gateway: BME280 payload is %d bytes, want %d", len(payload), bme280WireSize)
		}
		b := payload[1:]
		cmdStatus := int8(b[18])
		magicNumber := b[19]

		if magicNumber == magicCmd {
			return &CommandAck{CmdStatus: cmdStatus}, nil
		}

		return &BME280Reading{
			Humidity:    math.Float32frombits(binary.LittleEndian.Uint32(b[0:4])),
			Pressure:    math.Float32frombits(binary.LittleEndian.Uint32(b[4:8])),
			Altitude:    math.Float32frombits(binary.LittleEndian.Uint32(b[8:12])),
			Temperature: math.Float32frombits(binary.LittleEndian.Uint32(b[12:16])),
			Meter:       b[16] != 0,
			Celsius:     b[17] != 0,
		}, nil

	case readingThroughput:
		if len(payload) != throughputWireSize {
			return nil, fmt.Errorf("gateway: throughput payload is %d bytes, want %d", len(payload), throughputWireSize)
		}
		b := payload[1:]
		return &ThroughputSample{
			TotalBytes: binary.LittleEndian.Uint32(b[0:4]),
			ElapsedMs:  binary.LittleEndian.Uint32(b[4:8]),
		}, nil

	default:
		return nil, fmt.Errorf("gateway: unknown reading discriminant %#02x", payload[0])
	}
}
