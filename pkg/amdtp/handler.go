package amdtp

// Handler is the engine's explicit collaborator interface, replacing the
// two bare callables (Received_data_callback, send_central_callback) the
// source passes into its constructor (§9, "Callbacks → explicit
// collaborators").
type Handler interface {
	// OnData is invoked once per fully reassembled DATA frame, after CRC
	// verification and after the engine's own ACK(SUCCESS) is emitted.
	// The byte slice is owned by the caller; implementations that need to
	// retain it must copy.
	OnData(payload []byte)

	// OnTX is invoked once per outbound chunk (ACK, CONTROL, or a DATA
	// frame's chunks). The byte slice is a fresh copy the engine will not
	// reuse; implementations may hold onto it without copying.
	OnTX(chunk []byte)
}
