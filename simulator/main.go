package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/syntick/syntick/shared/config"
	"github.com/syntick/syntick/simulator/control"
	"github.com/syntick/syntick/simulator/engine"
	"github.com/syntick/syntick/simulator/market"
	"github.com/syntick/syntick/simulator/server"
	"github.com/syntick/syntick/simulator/storage"
)

// candleStore is the union of what the engine and the HTTP server need from
// durable storage.
type candleStore interface {
	engine.CandleStore
	server.HistoryStore
}

func main() {
	cfg := config.ParseSimulatorFlags()

	log.Printf("🚀 Starting Syntick Simulator...")
	log.Printf("📊 Config: Symbol=%s, Interval=%v, Tick=%v, BasePrice=%.2f, Port=%d",
		cfg.Symbol, cfg.Interval, cfg.TickInterval, cfg.BasePrice, cfg.Port)

	infra, err := config.LoadInfra()
	if err != nil {
		log.Fatalf("❌ Failed to load infra config: %v", err)
	}

	// Durable candle store: Postgres when configured, in-memory otherwise.
	var store candleStore
	if infra.PostgresEnabled {
		pg, err := storage.NewPostgresStore(infra)
		if err != nil {
			log.Fatalf("❌ Failed to connect to PostgreSQL: %v", err)
		}
		defer pg.Close()
		store = pg
	} else {
		log.Printf("⚠️ PostgreSQL disabled, candle history is in-memory only")
		store = storage.NewMemoryStore()
	}

	// Latest-value cache: Redis when configured.
	var cache engine.LatestCache = storage.NoopCache{}
	if infra.RedisEnabled {
		rc, err := storage.NewRedisCache(infra)
		if err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		defer rc.Close()
		cache = rc
	}

	realClock := clock.New()
	registry := control.NewRegistry(realClock)
	generator := market.NewGenerator(market.Config{
		BasePrice:  cfg.BasePrice,
		Volatility: cfg.Volatility,
		VolumeBase: cfg.VolumeBase,
	}, cfg.Seed)

	eng := engine.New(cfg, realClock, generator, registry, store, cache)
	srv := server.New(cfg, realClock, eng, store, registry)

	if cfg.Backfill > 0 {
		log.Printf("⏪ Backfilling %d candles...", cfg.Backfill)
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if err := eng.Backfill(ctx, cfg.Backfill); err != nil {
			log.Printf("⚠️ Backfill incomplete: %v", err)
		}
		cancel()
	}

	if err := eng.Start(); err != nil {
		log.Fatalf("❌ Failed to start engine: %v", err)
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: srv.Routes(),
	}
	go func() {
		log.Printf("🌐 HTTP server listening on port %d", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("❌ HTTP server error: %v", err)
		}
	}()

	// Periodic status line while running.
	statusCtx, statusCancel := context.WithCancel(context.Background())
	defer statusCancel()
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				st := eng.Status()
				log.Printf("📈 System Status: mode=%s regime=%s price=%.4f candles=%d subscribers=%d",
					st.Mode, st.Regime, st.CurrentPrice, st.TotalCandles, srv.Hub().ClientCount())
			case <-statusCtx.Done():
				return
			}
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("🛑 Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ HTTP shutdown error: %v", err)
	}
	srv.Hub().Shutdown()
	eng.Stop()

	log.Println("👋 Syntick Simulator stopped")
}
