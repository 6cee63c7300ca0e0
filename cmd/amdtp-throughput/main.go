// Command amdtp-throughput connects to an AMDTP peripheral and repeatedly
// sends a fixed-size payload, reporting how many payloads went out
// SUCCESS versus CHUNKED and how long the run took. It is the Go
// equivalent of Python_bleak_AMDTP_Throughput/main.py's benchmark loop,
// without the menu/keyboard-polling UI.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/librescoot/amdtp-gateway/pkg/amdtp"
	"github.com/librescoot/amdtp-gateway/pkg/ble"
)

func main() {
	bleAddr := flag.String("ble-addr", "", "BLE address of the AMDTP peripheral (required)")
	payloadSize := flag.Int("payload-size", 400, "Bytes per payload, up to amdtp.MaxPayloadSize")
	count := flag.Int("count", 50, "Number of payloads to send")
	debug := flag.Bool("debug", false, "Enable verbose protocol logging")
	flag.Parse()

	if *bleAddr == "" {
		log.Fatalf("amdtp-throughput: -ble-addr is required")
	}
	if *payloadSize <= 0 || *payloadSize > amdtp.MaxPayloadSize {
		log.Fatalf("amdtp-throughput: -payload-size must be in (0, %d]", amdtp.MaxPayloadSize)
	}

	central := ble.NewCentral(func([]byte) {}, *debug)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := central.Connect(ctx, *bleAddr); err != nil {
		log.Fatalf("amdtp-throughput: failed to connect to %s: %v", *bleAddr, err)
	}
	defer central.Close()

	payload := make([]byte, *payloadSize)
	for i := range payload {
		payload[i] = byte(i)
	}

	engine := central.Engine()
	successCount, chunkedCount := 0, 0
	start := time.Now()

	for i := 0; i < *count; i++ {
		result, status := engine.SendPayload(payload)
		switch result {
		case amdtp.SendSuccess:
			successCount++
		case amdtp.SendChunked:
			chunkedCount++
			for !engine.IsSendComplete() {
				time.Sleep(10 * time.Millisecond)
			}
		case amdtp.SendError:
			log.Printf("amdtp-throughput: send %d failed: %s", i, status)
		}
	}

	elapsed := time.Since(start)
	totalBytes := (successCount + chunkedCount) * *payloadSize
	log.Printf("amdtp-throughput: sent %d payloads (%d single-chunk, %d chunked), %d bytes in %s",
		successCount+chunkedCount, successCount, chunkedCount, totalBytes, elapsed)
}
