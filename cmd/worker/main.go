// Package main boots the evalforge worker process: a poll-driven task
// Pool (§4.6) plus a cron Scheduler for periodic re-evaluation (§4.7,
// supplemented feature).
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"evalforge/internal/app"
	"evalforge/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	worker, err := app.NewWorker(cfg)
	if err != nil {
		log.Fatalf("failed to initialize worker: %v", err)
	}
	defer worker.Shutdown(context.Background())

	if err := worker.Start(); err != nil {
		log.Fatalf("failed to start worker: %v", err)
	}
	log.Println("evalforge worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("shutting down worker...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := worker.Shutdown(ctx); err != nil {
		log.Printf("worker forced to shutdown: %v", err)
	}

	fmt.Println("worker stopped")
}
