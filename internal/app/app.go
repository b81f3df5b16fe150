// Package app wires configuration, storage and domain services into the
// object graph shared by the server, worker and seed binaries.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"stockflow/internal/config"
	"stockflow/internal/core/numerator"
	"stockflow/internal/core/security"
	"stockflow/internal/core/tx"
	"stockflow/internal/domain/audit"
	"stockflow/internal/domain/document"
	"stockflow/internal/domain/ledger"
	"stockflow/internal/domain/reservation"
	"stockflow/internal/domain/settlement"
	"stockflow/internal/domain/workflow"
	"stockflow/internal/infrastructure/cache"
	v1 "stockflow/internal/infrastructure/http/v1"
	"stockflow/internal/infrastructure/http/v1/handlers"
	"stockflow/internal/infrastructure/idempotency"
	"stockflow/internal/infrastructure/storage/memory"
	"stockflow/internal/infrastructure/storage/postgres"
	"stockflow/internal/infrastructure/storage/postgres/catalog_repo"
	"stockflow/internal/infrastructure/storage/postgres/document_repo"
	"stockflow/internal/infrastructure/storage/postgres/ledger_repo"
	"stockflow/pkg/logger"
)

// App holds the wired services.
type App struct {
	Config config.Config
	Log    *logger.Logger

	TxManager  tx.Manager
	Authorizer security.Authorizer
	Tokens     *security.TokenService

	Documents  *document.Service
	Engine     *workflow.Engine
	History    audit.Recorder
	Ledger     *ledger.Service
	Settlement *settlement.Service
	Holds      *reservation.HoldService
	Reconciler *workflow.Reconciler

	// Catalog writes reference data for seeding.
	Catalog CatalogWriter

	Idempotency idempotency.Store

	// Set only for the postgres driver.
	Pool *postgres.Pool
	PgTx *postgres.TxManager

	// Set only when REDIS_ADDRESS is configured.
	Redis redis.UniversalClient

	healthChecks map[string]handlers.Check
	closers      []func()
}

// storage is what a driver contributes to the graph.
type storage struct {
	txm        tx.Manager
	docs       document.Repository
	balances   ledger.BalanceRepository
	debts      ledger.DebtRepository
	payments   ledger.PaymentRepository
	masterData document.MasterData
	sequences  numerator.Sequencer
	history    audit.Recorder
	events     audit.Publisher
	catalog    CatalogWriter
	idem       idempotency.Store
}

// New builds the graph for cfg.StoreDriver. Close releases what it opened.
func New(ctx context.Context, cfg config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log, healthChecks: make(map[string]handlers.Check)}

	rules, err := security.LoadRules(cfg.AuthzRulesFile)
	if err != nil {
		return nil, err
	}
	authz, err := security.NewCELAuthorizer(rules)
	if err != nil {
		return nil, fmt.Errorf("compile authorization rules: %w", err)
	}
	a.Authorizer = authz
	a.Tokens = security.NewTokenService(security.TokenConfig{
		Secret: cfg.JWTSecret,
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.JWTTTL,
	})

	if cfg.RedisAddress != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		a.Redis = client
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.healthChecks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}

	var st storage
	switch cfg.StoreDriver {
	case config.DriverMemory:
		st = a.memoryStorage()
	case config.DriverPostgres:
		st, err = a.postgresStorage(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	masterData := st.masterData
	if a.Redis != nil {
		masterData = cache.NewMasterData(a.Redis, masterData, cfg.MasterDataCacheTTL)
	}

	a.TxManager = st.txm
	a.History = st.history
	a.Catalog = st.catalog
	if cfg.IdempotencyEnabled {
		a.Idempotency = st.idem
	}

	a.Settlement = settlement.NewService(st.txm, st.debts, st.payments, authz, st.events)
	a.Documents = document.NewService(st.docs, st.txm, masterData, numerator.NewGenerator(st.sequences), authz)
	a.Engine = workflow.NewEngine(st.txm, st.docs, st.balances, a.Settlement, authz,
		st.history, st.events, workflow.DefaultConfig())
	a.Ledger = ledger.NewService(st.balances, st.debts, st.payments)
	a.Holds = reservation.NewHoldService(st.txm, st.balances, authz)
	a.Reconciler = workflow.NewReconciler(st.txm, st.docs, st.balances, authz, st.events)

	log.Infow("application wired",
		"store_driver", cfg.StoreDriver,
		"redis", a.Redis != nil,
		"idempotency", a.Idempotency != nil)
	return a, nil
}

func (a *App) memoryStorage() storage {
	store := memory.NewStore()
	a.healthChecks["storage"] = func(context.Context) error { return nil }
	return storage{
		txm:        store,
		docs:       store.Documents(),
		balances:   store.Balances(),
		debts:      store.Debts(),
		payments:   store.Payments(),
		masterData: store.Catalog(),
		sequences:  store.Sequences(),
		history:    store.History(),
		events:     store.Outbox(),
		catalog:    memoryCatalog{store.Catalog()},
		idem:       idempotency.NewMemoryStore(a.Config.IdempotencyTTL),
	}
}

func (a *App) postgresStorage(ctx context.Context) (storage, error) {
	poolCfg := postgres.DefaultPoolConfig(a.Config.DatabaseURL)
	poolCfg.MaxConns = int32(a.Config.DBMaxConns)
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return storage{}, err
	}
	a.Pool = pool
	a.closers = append(a.closers, pool.Close)
	a.healthChecks["database"] = pool.Ping

	opts := postgres.DefaultTxOptions()
	opts.StatementTimeout = a.Config.TxStatementTimeout
	txm := postgres.NewTxManager(pool, opts)
	a.PgTx = txm

	history, err := postgres.NewAuditRecorder(txm)
	if err != nil {
		return storage{}, err
	}
	catalog := catalog_repo.NewCatalogRepo(txm)
	return storage{
		txm:        txm,
		docs:       document_repo.NewDocumentRepo(txm),
		balances:   ledger_repo.NewBalanceRepo(txm),
		debts:      ledger_repo.NewDebtRepo(txm),
		payments:   ledger_repo.NewPaymentRepo(txm),
		masterData: catalog,
		sequences:  postgres.NewSequences(txm),
		history:    history,
		events:     postgres.NewOutboxPublisher(txm),
		catalog:    catalog,
		idem:       postgres.NewIdempotencyStore(txm, a.Config.IdempotencyTTL),
	}, nil
}

// Migrate applies the embedded schema. A no-op for the memory driver.
func (a *App) Migrate(ctx context.Context) error {
	if a.Pool == nil {
		return nil
	}
	return postgres.Migrate(ctx, a.Pool)
}

// Router builds the HTTP API.
func (a *App) Router() *gin.Engine {
	return v1.NewRouter(v1.RouterConfig{
		Logger:         a.Log,
		TokenValidator: a.Tokens,
		Authorizer:     a.Authorizer,
		Idempotency:    a.Idempotency,
		Documents:      a.Documents,
		Engine:         a.Engine,
		History:        a.History,
		Ledger:         a.Ledger,
		Settlement:     a.Settlement,
		Holds:          a.Holds,
		Reconciler:     a.Reconciler,
		HealthChecks:   a.healthChecks,
		ReleaseMode:    !a.Config.IsDevelopment(),
	})
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
