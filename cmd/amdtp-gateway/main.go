package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/librescoot/amdtp-gateway/pkg/ble"
	"github.com/librescoot/amdtp-gateway/pkg/gateway"
	"github.com/librescoot/amdtp-gateway/pkg/redis"
)

func main() {
	bleAddr := flag.String("ble-addr", "", "BLE address of the AMDTP peripheral (required)")
	redisAddr := flag.String("redis-addr", "localhost:6379", "Redis server address")
	redisPassword := flag.String("redis-password", "", "Redis server password")
	redisDB := flag.Int("redis-db", 0, "Redis database number")
	debug := flag.Bool("debug", false, "Enable verbose protocol logging")
	flag.Parse()

	if *bleAddr == "" {
		log.Fatalf("amdtp-gateway: -ble-addr is required")
	}

	redisClient, err := redis.New(*redisAddr, *redisPassword, *redisDB)
	if err != nil {
		log.Fatalf("amdtp-gateway: failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	svc := gateway.NewService(redisClient, *debug)

	central := ble.NewCentral(svc.OnData, *debug)
	svc.SetTransport(central)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := central.Connect(ctx, *bleAddr); err != nil {
		log.Fatalf("amdtp-gateway: failed to connect to %s: %v", *bleAddr, err)
	}
	defer central.Close()

	log.Printf("amdtp-gateway: connected to %s", *bleAddr)

	stop := make(chan struct{})
	go svc.WatchRedisCommands(stop)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("amdtp-gateway: shutting down")
	close(stop)
}
