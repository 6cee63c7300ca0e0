// Package ble is the AMDTP engine's BLE transport collaborator. It owns
// connecting to a peripheral at a known address and GATT characteristic
// plumbing only (it does not scan for peripherals); framing and
// reassembly stay in pkg/amdtp (spec §1 treats BLE transport as an
// external collaborator).
package ble

// AMDTP GATT service and characteristic UUIDs, as defined by the reference
// peripheral (MBED-BLE_example17_gattserv_AMDTP_troughput).
const (
	ServiceUUID = "00002760-08C2-11E1-9073-0E8AC72E1011"

	// RXCharUUID is written by the central to send data to the peripheral.
	RXCharUUID = "00002760-08C2-11E1-9073-0E8AC72E0011"

	// TXCharUUID notifies the central with data from the peripheral.
	TXCharUUID = "00002760-08C2-11E1-9073-0E8AC72E0012"

	// ACKCharUUID notifies the central with ACK/CONTROL frames.
	ACKCharUUID = "00002760-08C2-11E1-9073-0E8AC72E0013"
)
