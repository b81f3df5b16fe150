// Package main is the entry point for the stockflow API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockflow/internal/app"
	"stockflow/internal/config"
	"stockflow/internal/core/security"
	"stockflow/internal/infrastructure/storage/postgres"
	"stockflow/pkg/logger"
)

func main() {
	migrate := flag.Bool("migrate", false, "apply the embedded schema before serving")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx := context.Background()
	log.Infow("starting stockflow server", "env", cfg.Env, "store_driver", cfg.StoreDriver)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to wire application", "error", err)
	}
	defer a.Close()

	if *migrate {
		if err := a.Migrate(ctx); err != nil {
			log.Fatalw("migration failed", "error", err)
		}
		log.Info("schema is up to date")
	}

	// An in-memory server starts empty; give it the demo installation.
	if cfg.StoreDriver == config.DriverMemory {
		if _, err := a.Seed(ctx, app.DemoDataset()); err != nil {
			log.Fatalw("failed to seed demo data", "error", err)
		}
	}

	// Locks left behind by a crash are rebuilt before traffic is accepted.
	if _, err := a.Reconciler.RunAs(ctx, security.System); err != nil {
		log.Fatalw("start-up reconciliation failed", "error", err)
	}

	if a.Pool != nil {
		go logPoolStats(ctx, a.Pool, time.Minute)
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      a.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func logPoolStats(ctx context.Context, pool *postgres.Pool, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for range ticker.C {
		postgres.LogPoolStats(ctx, pool)
	}
}
