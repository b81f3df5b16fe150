// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"stockflow/internal/core/security"
	"stockflow/internal/domain/audit"
	"stockflow/internal/domain/document"
	"stockflow/internal/domain/ledger"
	"stockflow/internal/domain/reservation"
	"stockflow/internal/domain/settlement"
	"stockflow/internal/domain/workflow"
	"stockflow/internal/infrastructure/http/v1/handlers"
	"stockflow/internal/infrastructure/http/v1/middleware"
	"stockflow/internal/infrastructure/idempotency"
	"stockflow/pkg/logger"
)

// RouterConfig holds everything the API needs.
type RouterConfig struct {
	Logger *logger.Logger

	// TokenValidator checks bearer tokens.
	TokenValidator middleware.TokenValidator
	Authorizer     security.Authorizer

	// Idempotency is optional; nil disables request replay.
	Idempotency idempotency.Store

	Documents  *document.Service
	Engine     *workflow.Engine
	History    audit.Recorder
	Ledger     *ledger.Service
	Settlement *settlement.Service
	Holds      *reservation.HoldService
	Reconciler *workflow.Reconciler

	HealthChecks map[string]handlers.Check
	ReleaseMode  bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.HealthChecks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	base := handlers.NewBaseHandler()
	docs := handlers.NewDocumentHandler(base, cfg.Documents, cfg.Engine, cfg.History)
	ledgerHandler := handlers.NewLedgerHandler(base, cfg.Ledger, cfg.Settlement, cfg.Holds, cfg.Reconciler)

	api := router.Group("/api/v1")
	api.Use(middleware.Auth(cfg.TokenValidator))
	if cfg.Idempotency != nil {
		api.Use(middleware.Idempotency(cfg.Idempotency))
	}

	RegisterDocumentRoutes(api.Group("/documents"), docs,
		middleware.RequireCapability(cfg.Authorizer, security.ActionDocumentRead, "document"))

	readStock := middleware.RequireCapability(cfg.Authorizer, security.ActionStockRead, "stock")
	stock := api.Group("/stock")
	{
		stock.GET("/balances", readStock, ledgerHandler.ListBalances)
		stock.GET("/balances/:warehouse/:item", readStock, ledgerHandler.GetBalance)
		stock.POST("/holds", ledgerHandler.PlaceHold)
		stock.POST("/holds/release", ledgerHandler.ReleaseHold)
	}

	api.POST("/payments", ledgerHandler.AllocatePayment)
	api.GET("/payments/:id", readStock, ledgerHandler.GetPayment)
	api.GET("/debts", readStock, ledgerHandler.ListDebts)
	api.POST("/admin/reconcile", ledgerHandler.Reconcile)

	return router
}
