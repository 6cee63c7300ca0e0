package serialbridge

import (
	"log"

	"github.com/librescoot/amdtp-gateway/pkg/amdtp"
)

// Bridge drives an amdtp.Engine over a Link instead of BLE notifications,
// for running the engine against a development board wired to the host's
// UART before BLE hardware is on the bench. It implements amdtp.Handler
// the same way pkg/ble.Central does: OnTX writes the engine's outbound
// chunk out, OnData forwards the reassembled payload to the caller.
type Bridge struct {
	debug  bool
	link   *Link
	onData func([]byte)
	engine *amdtp.Engine
}

// NewBridge opens devicePath at baudRate and returns a Bridge driving a
// fresh amdtp.Engine. onData is invoked with every reassembled payload.
func NewBridge(devicePath string, baudRate int, onData func([]byte), debug bool) (*Bridge, error) {
	b := &Bridge{debug: debug, onData: onData}
	b.engine = amdtp.New(b, debug)

	link, err := NewLink(devicePath, baudRate, b.onFrame)
	if err != nil {
		return nil, err
	}
	b.link = link
	return b, nil
}

// Engine returns the engine this Bridge drives.
func (b *Bridge) Engine() *amdtp.Engine {
	return b.engine
}

// Close shuts down the underlying serial link.
func (b *Bridge) Close() error {
	return b.link.Close()
}

func (b *Bridge) onFrame(frameID byte, payload []byte) {
	if frameID != tunnelFrameID {
		return
	}
	status := b.engine.OnRXBytes(payload)
	if b.debug {
		log.Printf("serialbridge: rx chunk (%d bytes) -> %s", len(payload), status)
	}
}

// OnData implements amdtp.Handler.
func (b *Bridge) OnData(payload []byte) {
	if b.onData != nil {
		b.onData(payload)
	}
}

// OnTX implements amdtp.Handler by tunneling the chunk over the serial
// link under the fixed tunnel frame ID.
func (b *Bridge) OnTX(chunk []byte) {
	if err := b.link.WriteWithFrameID(tunnelFrameID, chunk); err != nil {
		log.Printf("serialbridge: failed to write chunk: %v", err)
	}
}
