// Package main is the entry point for the stockflow background worker:
// periodic reconciliation, outbox relay and idempotency key cleanup.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"stockflow/internal/app"
	"stockflow/internal/config"
	"stockflow/internal/core/security"
	"stockflow/internal/infrastructure/cache"
	"stockflow/internal/infrastructure/storage/postgres"
	"stockflow/pkg/logger"
)

const reconcileLockKey = "stockflow:reconcile"

func main() {
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

	if cfg.StoreDriver != config.DriverPostgres {
		log.Fatalw("worker requires the postgres store driver", "store_driver", cfg.StoreDriver)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to wire application", "error", err)
	}
	defer a.Close()

	log.Info("starting stockflow worker")
	worker := NewWorker(a, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// Worker runs the background loops of one process.
type Worker struct {
	app    *app.App
	log    *logger.Logger
	leader *cache.Leader
	relay  *postgres.OutboxRelay
	keys   *postgres.IdempotencyStore
}

// NewWorker creates a worker. Without Redis, reconciliation runs unguarded
// and outbox messages are only logged.
func NewWorker(a *app.App, log *logger.Logger) *Worker {
	w := &Worker{
		app:  a,
		log:  log.WithComponent("worker"),
		keys: postgres.NewIdempotencyStore(a.PgTx, a.Config.IdempotencyTTL),
	}

	var handler postgres.OutboxHandler = logHandler{log: w.log}
	if a.Redis != nil {
		w.leader = cache.NewLeader(a.Redis)
		handler = cache.NewEventPublisher(a.Redis, cache.DefaultEventsChannel)
	}
	w.relay = postgres.NewOutboxRelay(a.PgTx, 100, handler)
	return w
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.relay.Run(ctx, w.app.Config.OutboxPollInterval)
	}()

	reconcileTicker := time.NewTicker(w.app.Config.ReconcileInterval)
	defer reconcileTicker.Stop()
	cleanupTicker := time.NewTicker(time.Hour)
	defer cleanupTicker.Stop()

	w.reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-reconcileTicker.C:
			w.reconcile(ctx)
		case <-cleanupTicker.C:
			w.cleanupIdempotency(ctx)
		}
	}
}

func (w *Worker) reconcile(ctx context.Context) {
	run := func(ctx context.Context) error {
		_, err := w.app.Reconciler.RunAs(ctx, security.System)
		return err
	}

	if w.leader == nil {
		if err := run(ctx); err != nil {
			w.log.Errorw("reconciliation failed", "error", err)
		}
		return
	}

	ran, err := w.leader.RunExclusive(ctx, reconcileLockKey, w.app.Config.ReconcileLockTTL, run)
	if err != nil {
		w.log.Errorw("reconciliation failed", "error", err)
		return
	}
	if !ran {
		w.log.Debugw("reconciliation skipped, another worker holds the lock")
	}
}

func (w *Worker) cleanupIdempotency(ctx context.Context) {
	n, err := w.keys.CleanupExpired(ctx)
	if err != nil {
		w.log.Errorw("idempotency cleanup failed", "error", err)
		return
	}
	if n > 0 {
		w.log.Infow("cleaned up idempotency keys", "count", n)
	}
}

// logHandler stands in for a broker when Redis is not configured.
type logHandler struct {
	log *logger.Logger
}

func (h logHandler) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	h.log.WithContext(ctx).Infow("domain event",
		"event_type", msg.EventType,
		"aggregate_type", msg.AggregateType,
		"aggregate_id", msg.AggregateID)
	return nil
}
