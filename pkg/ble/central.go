package ble

import (
	"context"
	"fmt"
	"log"

	"github.com/currantlabs/ble"
	"github.com/currantlabs/ble/linux"

	"github.com/librescoot/amdtp-gateway/pkg/amdtp"
)

// Central is a GATT central that drives an amdtp.Engine over the AMDTP
// service's TX/RX/ACK characteristic triad. It implements amdtp.Handler
// itself: OnData forwards to the caller-supplied data callback, and OnTX
// writes the engine's outbound chunks to the RX characteristic, the way
// usock.USOCK accepts one inbound handler while exposing Write for the
// outbound direction.
type Central struct {
	debug bool

	client  ble.Client
	rxChar  *ble.Characteristic
	onData  func([]byte)

	engine *amdtp.Engine
}

// NewCentral creates a Central bound to a fresh amdtp.Engine. onData is
// invoked with every fully reassembled DATA payload the engine delivers.
func NewCentral(onData func([]byte), debug bool) *Central {
	c := &Central{debug: debug, onData: onData}
	c.engine = amdtp.New(c, debug)
	return c
}

// Engine returns the engine this Central drives, for callers that need to
// call SendPayload or IsSendComplete directly.
func (c *Central) Engine() *amdtp.Engine {
	return c.engine
}

// Connect dials the peripheral at addr, discovers the AMDTP service's
// characteristics, negotiates the ATT MTU, and subscribes to the TX and
// ACK notify characteristics. Both notify channels feed the same
// reassembler (spec §6: "Bytes received on TX or ACK are fed to
// on_rx_bytes").
func (c *Central) Connect(ctx context.Context, addr string) error {
	dev, err := linux.NewDevice()
	if err != nil {
		return fmt.Errorf("failed to open HCI device: %v", err)
	}
	ble.SetDefaultDevice(dev)

	client, err := ble.Dial(ctx, ble.NewAddr(addr))
	if err != nil {
		return fmt.Errorf("failed to dial peripheral %s: %v", addr, err)
	}
	c.client = client

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		return fmt.Errorf("failed to discover GATT profile: %v", err)
	}

	serviceUUID := ble.MustParse(ServiceUUID)
	services, err := client.DiscoverServices([]ble.UUID{serviceUUID})
	if err != nil || len(services) == 0 {
		return fmt.Errorf("AMDTP service not found: %v", err)
	}
	service := services[0]

	rxChar, err := c.findCharacteristic(profile, service, RXCharUUID)
	if err != nil {
		return err
	}
	txChar, err := c.findCharacteristic(profile, service, TXCharUUID)
	if err != nil {
		return err
	}
	ackChar, err := c.findCharacteristic(profile, service, ACKCharUUID)
	if err != nil {
		return err
	}
	c.rxChar = rxChar

	mtu, err := client.ExchangeMTU(ble.MaxMTU)
	if err != nil {
		log.Printf("ble: MTU exchange failed, keeping default: %v", err)
	} else {
		c.engine.SetMTU(mtu)
		if c.debug {
			log.Printf("ble: negotiated MTU %d", mtu)
		}
	}

	if err := client.Subscribe(txChar, false, c.onNotify); err != nil {
		return fmt.Errorf("failed to subscribe to TX characteristic: %v", err)
	}
	if err := client.Subscribe(ackChar, false, c.onNotify); err != nil {
		return fmt.Errorf("failed to subscribe to ACK characteristic: %v", err)
	}

	return nil
}

func (c *Central) findCharacteristic(profile *ble.Profile, service *ble.Service, uuidStr string) (*ble.Characteristic, error) {
	u := ble.MustParse(uuidStr)
	for _, ch := range service.Characteristics {
		if ch.UUID.Equal(u) {
			return ch, nil
		}
	}
	return nil, fmt.Errorf("characteristic %s not found on AMDTP service", uuidStr)
}

// onNotify is the ble.NotificationHandler for both the TX and ACK
// characteristics: every notification is simply handed to the engine.
func (c *Central) onNotify(data []byte) {
	status := c.engine.OnRXBytes(data)
	if c.debug {
		log.Printf("ble: rx chunk (%d bytes) -> %s", len(data), status)
	}
}

// OnData implements amdtp.Handler.
func (c *Central) OnData(payload []byte) {
	if c.onData != nil {
		c.onData(payload)
	}
}

// OnTX implements amdtp.Handler by writing the chunk to the RX
// characteristic. Write errors are logged rather than returned, matching
// the engine's callback contract (§5: no suspension points inside the
// engine).
func (c *Central) OnTX(chunk []byte) {
	if c.client == nil || c.rxChar == nil {
		log.Printf("ble: dropped outbound chunk, not connected")
		return
	}
	if err := c.client.WriteCharacteristic(c.rxChar, chunk, true); err != nil {
		log.Printf("ble: failed to write RX characteristic: %v", err)
	}
}

// Close disconnects from the peripheral. Per spec §5, any in-flight
// tx_buf is simply discarded along with the engine instance.
func (c *Central) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.CancelConnection()
}
