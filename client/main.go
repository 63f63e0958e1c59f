package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/syntick/syntick/shared/config"
)

func main() {
	cfg := config.ParseClientFlags()

	log.Printf("🚀 Starting Syntick Subscriber")
	log.Printf("📡 Server: %s", cfg.ServerURL)
	log.Printf("🖨️ Format: %s", cfg.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("🛑 Shutting down subscriber...")
		cancel()
	}()

	sub := NewSubscriber(cfg.ServerURL, cfg.Format)
	if err := sub.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("❌ Subscriber failed: %v", err)
	}

	log.Println("👋 Subscriber stopped")
}
