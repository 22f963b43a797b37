package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"upi-gateway/internal/cache"
	"upi-gateway/internal/config"
	"upi-gateway/internal/db"
	"upi-gateway/internal/expiry"
	"upi-gateway/internal/handler"
	"upi-gateway/internal/lifecycle"
	"upi-gateway/internal/notifier"
	"upi-gateway/internal/payments"
	"upi-gateway/internal/stream"
	"upi-gateway/internal/webhook"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("[FATAL] Could not open storage: %v", err)
	}
	defer repo.Close()

	hub := notifier.NewHub()
	dispatcher := webhook.NewDispatcher(
		cfg.WebhookWorkers,
		cfg.WebhookQueue,
		cfg.WebhookTimeout,
		repo,
		webhook.NewClient(cfg.WebhookTimeout),
	)
	machine := lifecycle.NewMachine(repo, hub, dispatcher)

	var wg sync.WaitGroup

	var ps cache.PubSub
	if cfg.RedisEnabled {
		ps, err = cache.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
		if err != nil {
			log.Fatalf("[FATAL] %v", err)
		}
		bus := cache.NewStatusBus(ps, hub)
		machine.Subscribe(bus)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bus.Run(ctx); err != nil {
				log.Printf("[ERROR] Status bus stopped: %v", err)
			}
		}()
	}

	sweeper := expiry.NewSweeper(repo, machine, cfg.RequestTTL, cfg.SweepInterval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	svc := payments.NewService(repo, machine)
	h := handler.NewHandler(svc, stream.NewSession(repo, hub, cfg.StreamInterval))
	e := handler.New(h)
	// Open streams end with the process context instead of holding Shutdown.
	e.Server.BaseContext = func(net.Listener) context.Context { return ctx }

	wg.Add(1)
	go func() {
		defer wg.Done()
		addr := fmt.Sprintf(":%s", cfg.HTTPPort)
		log.Printf("[INFO] Starting server at %s (storage=%s)", addr, cfg.StorageDriver)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Printf("[ERROR] HTTP server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Printf("[INFO] Shutdown signal received, draining...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ERROR] HTTP shutdown: %v", err)
	}

	wg.Wait()
	dispatcher.Close()

	if ps != nil {
		if err := ps.Close(); err != nil {
			log.Printf("[ERROR] Closing Redis: %v", err)
		}
	}

	log.Printf("[INFO] Shutdown complete")
}

func openRepository(ctx context.Context, cfg *config.Config) (db.Repository, error) {
	switch cfg.StorageDriver {
	case "postgres":
		return db.NewPostgresRepository(ctx, cfg.PostgresDSN(), cfg.DBMaxConnections)
	case "sqlite":
		return db.NewSQLiteRepository(cfg.SQLitePath)
	case "memory":
		return db.NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
}
