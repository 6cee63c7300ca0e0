package gateway

import (
	"encoding/binary"
	"math"
	"testing"
)

func encodeBME280(t *testing.T, humidity, pressure, altitude, temperature float32, meter, celsius bool, cmdStatus int8, magicNumber byte) []byte {
	t.Helper()
	buf := make([]byte, bme280WireSize)
	buf[0] = readingBME280
	binary.LittleEndian.PutUint32(buf[1:5], math.Float32bits(humidity))
	binary.LittleEndian.PutUint32(buf[5:9], math.Float32bits(pressure))
	binary.LittleEndian.PutUint32(buf[9:13], math.Float32bits(altitude))
	binary.LittleEndian.PutUint32(buf[13:17], math.Float32bits(temperature))
	if meter {
		buf[17] = 1
	}
	if celsius {
		buf[18] = 1
	}
	buf[19] = byte(cmdStatus)
	buf[20] = magicNumber
	return buf
}

func TestDecodeBME280Reading(t *testing.T) {
	// magicNumber must differ from magicCmd for this to be a genuine
	// sensor reading rather than a command-ack frame.
	payload := encodeBME280(t, 45.5, 1013.25, 120.0, 21.3, true, true, -1, 0x00)

	got, err := decodeReading(payload)
	if err != nil {
		t.Fatalf("decodeReading: %v", err)
	}
	r, ok := got.(*BME280Reading)
	if !ok {
		t.Fatalf("decodeReading returned %T, want *BME280Reading", got)
	}
	if r.Humidity != 45.5 || r.Pressure != 1013.25 || r.Altitude != 120.0 || r.Temperature != 21.3 {
		t.Fatalf("decoded fields = %+v, want humidity=45.5 pressure=1013.25 altitude=120 temperature=21.3", r)
	}
	if !r.Meter || !r.Celsius {
		t.Fatalf("decoded flags = %+v, want meter=true celsius=true", r)
	}
}

func TestDecodeCommandAck(t *testing.T) {
	// Same wire layout as a BME280Reading, but MagicNumber == magicCmd
	// marks it as an echoed command reply instead of a sensor sample.
	payload := encodeBME280(t, 0, 0, 0, 0, false, false, -1, magicCmd)

	got, err := decodeReading(payload)
	if err != nil {
		t.Fatalf("decodeReading: %v", err)
	}
	ack, ok := got.(*CommandAck)
	if !ok {
		t.Fatalf("decodeReading returned %T, want *CommandAck", got)
	}
	if ack.CmdStatus != -1 {
		t.Fatalf("CmdStatus = %d, want -1", ack.CmdStatus)
	}
}

func TestDecodeThroughputSample(t *testing.T) {
	payload := make([]byte, throughputWireSize)
	payload[0] = readingThroughput
	binary.LittleEndian.PutUint32(payload[1:5], 4096)
	binary.LittleEndian.PutUint32(payload[5:9], 250)

	got, err := decodeReading(payload)
	if err != nil {
		t.Fatalf("decodeReading: %v", err)
	}
	s, ok := got.(*ThroughputSample)
	if !ok {
		t.Fatalf("decodeReading returned %T, want *ThroughputSample", got)
	}
	if s.TotalBytes != 4096 || s.ElapsedMs != 250 {
		t.Fatalf("decoded sample = %+v, want {4096 250}", s)
	}
}

func TestDecodeRejectsUnknownDiscriminant(t *testing.T) {
	if _, err := decodeReading([]byte{0xFF, 0x01}); err == nil {
		t.Fatalf("expected error for unknown discriminant")
	}
}

func TestDecodeRejectsEmptyPayload(t *testing.T) {
	if _, err := decodeReading(nil); err == nil {
		t.Fatalf("expected error for empty payload")
	}
}

func TestDecodeRejectsShortBME280Payload(t *testing.T) {
	if _, err := decodeReading([]byte{readingBME280, 0x00, 0x00}); err == nil {
		t.Fatalf("expected error for truncated BME280 payload")
	}
}
