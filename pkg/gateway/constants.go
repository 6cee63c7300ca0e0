package gateway

// Redis key namespace used by the gateway, in the same flat
// "service:subject" style the teacher's pkg/service/constants.go used for
// its own Redis keys.
const (
	KeyBME280     = "amdtp:bme280"
	KeyThroughput = "amdtp:throughput"

	// CommandListKey is the Redis list WatchRedisCommands blocks on with
	// BRPOP; producers LPUSH CBOR-encoded command payloads onto it.
	CommandListKey = "amdtp:commands"
)

// Discriminant bytes the gateway uses to tell reading shapes apart on the
// wire. These are a gateway-level convention layered on top of AMDTP's
// opaque payloads, not part of the AMDTP framing itself.
const (
	readingBME280     byte = 0x01
	readingThroughput byte = 0x02
)
