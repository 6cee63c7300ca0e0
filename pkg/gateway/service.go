// Package gateway bridges a running amdtp.Engine to Redis: reassembled
// DATA payloads are decoded and published as hash fields plus pub/sub
// notifications, and outbound command payloads queued in Redis are
// handed to the engine for transmission. It plays the same role for
// AMDTP that the teacher's pkg/service played for its UART/nRF52 link.
package gateway

import (
	"fmt"
	"log"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/librescoot/amdtp-gateway/pkg/amdtp"
	"github.com/librescoot/amdtp-gateway/pkg/redis"
)

// transport is satisfied by pkg/ble.Central and pkg/serialbridge.Bridge:
// both own an *amdtp.Engine and accept an OnData callback at construction
// time, so either can drive a Service without it caring which.
type transport interface {
	Engine() *amdtp.Engine
}

// Service wires a Redis client to whichever transport is driving the
// AMDTP engine underneath it.
type Service struct {
	redis     *redis.Client
	transport transport
	debug     bool
}

// NewService constructs a Service bound to an already-open Redis client.
// Call SetTransport once the BLE central or serial bridge has been
// constructed with Service.OnData as its callback.
func NewService(redisClient *redis.Client, debug bool) *Service {
	return &Service{redis: redisClient, debug: debug}
}

// SetTransport attaches the transport this service publishes commands
// through. It must be called before WatchRedisCommands.
func (s *Service) SetTransport(t transport) {
	s.transport = t
}

// OnData implements the onData half of amdtp.Handler indirectly: it is
// passed as the callback to ble.NewCentral / serialbridge.NewBridge, and
// is invoked with every payload the engine reassembles.
func (s *Service) OnData(payload []byte) {
	reading, err := decodeReading(payload)
	if err != nil {
		log.Printf("gateway: dropping undecodable payload (%d bytes): %v", len(payload), err)
		return
	}

	switch r := reading.(type) {
	case *BME280Reading:
		s.publishBME280(r)
	case *ThroughputSample:
		s.publishThroughput(r)
	case *CommandAck:
		log.Printf("gateway: command ack, status=%d", r.CmdStatus)
	}
}

func (s *Service) publishBME280(r *BME280Reading) {
	pairs := map[string]string{
		"humidity":    fmt.Sprintf("%.2f", r.Humidity),
		"pressure":    fmt.Sprintf("%.2f", r.Pressure),
		"altitude":    fmt.Sprintf("%.2f", r.Altitude),
		"temperature": fmt.Sprintf("%.2f", r.Temperature),
		"meter":       fmt.Sprintf("%t", r.Meter),
		"celsius":     fmt.Sprintf("%t", r.Celsius),
	}
	for field, value := range pairs {
		if err := s.redis.WriteAndPublishString(KeyBME280, field, value); err != nil {
			log.Printf("gateway: failed to publish %s.%s: %v", KeyBME280, field, err)
		}
	}
}

func (s *Service) publishThroughput(r *ThroughputSample) {
	if err := s.redis.WriteAndPublishInt(KeyThroughput, "total_bytes", int(r.TotalBytes)); err != nil {
		log.Printf("gateway: failed to publish %s.total_bytes: %v", KeyThroughput, err)
	}
	if err := s.redis.WriteAndPublishInt(KeyThroughput, "elapsed_ms", int(r.ElapsedMs)); err != nil {
		log.Printf("gateway: failed to publish %s.elapsed_ms: %v", KeyThroughput, err)
	}
}

// command is the CBOR envelope producers push onto CommandListKey.
type command struct {
	Payload []byte `cbor:"payload"`
}

// WatchRedisCommands blocks popping CBOR-encoded commands off
// CommandListKey and hands each one's payload to the engine's
// SendPayload. A single BUSY rejection is retried once after a short
// pause and a warning log, per the engine's documented contract that
// retry policy on BUSY is left to the application; stop is closed to
// end the loop.
func (s *Service) WatchRedisCommands(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		result, err := s.redis.BRPop(time.Second, CommandListKey)
		if err != nil {
			log.Printf("gateway: BRPOP on %s failed: %v", CommandListKey, err)
			continue
		}
		if result == nil {
			continue // timeout, loop and check stop again
		}

		var cmd command
		if err := cbor.Unmarshal([]byte(result[1]), &cmd); err != nil {
			log.Printf("gateway: failed to decode command from %s: %v", CommandListKey, err)
			continue
		}

		s.sendWithOneRetry(cmd.Payload)
	}
}

func (s *Service) sendWithOneRetry(payload []byte) {
	if s.transport == nil {
		log.Printf("gateway: no transport attached, dropping command payload")
		return
	}
	engine := s.transport.Engine()

	result, status := engine.SendPayload(payload)
	if result == amdtp.SendError && status == amdtp.StatusBusy {
		log.Printf("gateway: engine busy, retrying command send once")
		time.Sleep(50 * time.Millisecond)
		result, status = engine.SendPayload(payload)
	}
	if result == amdtp.SendError {
		log.Printf("gateway: command send failed: %s", status)
	}
}
