// cmd/structsvc runs the Chan-theory structure detection microservice: it
// consumes closed TF candles from Redis Streams, runs them through the
// structure engine (merged candles, fractals, pens, segments), and publishes
// the resulting events back to Redis for the gateway and for SQLite archival.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"chanstruct/internal/structsvc"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[structsvc] loading configuration...")

	cfg := structsvc.LoadConfig()
	log.Printf("[structsvc] enabled TFs: %v", cfg.EnabledTFs)
	log.Printf("[structsvc] snapshot interval: %ds", cfg.SnapshotIntervalS)

	svc, err := structsvc.New(cfg)
	if err != nil {
		log.Fatalf("[structsvc] init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("[structsvc] run error: %v", err)
	}
}
