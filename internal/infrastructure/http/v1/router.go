// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"milkwms/internal/app"
	"milkwms/internal/core/security"
	"milkwms/internal/domain/audit"
	"milkwms/internal/domain/documents/outbound"
	"milkwms/internal/infrastructure/http/v1/handlers"
	"milkwms/internal/infrastructure/http/v1/middleware"
	"milkwms/internal/infrastructure/metrics"
	"milkwms/internal/infrastructure/storage/postgres"
	"milkwms/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Services is the wired domain surface.
	Services *app.Services

	// AuditReader serves document status history. Nil disables /audit.
	AuditReader audit.Reader

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// Metrics is optional; nil disables /metrics and request instrumentation.
	Metrics *metrics.Metrics

	// DB answers readiness checks; nil for the in-memory backend.
	DB handlers.Pinger

	// PoolStats feeds /health/info; nil for the in-memory backend.
	PoolStats func() postgres.PoolStats

	// Debug switches gin to debug mode.
	Debug bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
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
	router.Use(middleware.Metrics(cfg.Metrics))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth)
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.PoolStats)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	// API v1: every route needs a valid bearer token; roles are checked by the services.
	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.JWTValidator))
	registerRoutes(v1, cfg)

	return router
}

func registerRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	svc := cfg.Services
	base := handlers.NewBaseHandler()

	handlers.NewAvailabilityHandler(base, svc.Calculator).RegisterRoutes(rg.Group("/availability"))

	handlers.NewOutboundHandler(base, svc.Outbound, outbound.KindSales, cfg.Metrics).
		RegisterRoutes(rg.Group("/sales-orders"))
	handlers.NewOutboundHandler(base, svc.Outbound, outbound.KindDisposal, cfg.Metrics).
		RegisterRoutes(rg.Group("/disposal-requests"))

	notes := handlers.NewNoteHandler(base, svc.Outbound, cfg.Metrics)
	notes.RegisterRoutes(rg.Group("/notes"))
	rg.POST("/allocations/:id/scan", notes.ScanAllocation)

	handlers.NewPurchaseOrderHandler(base, svc.Inbound).RegisterRoutes(rg.Group("/purchase-orders"))
	handlers.NewGoodsReceiptHandler(base, svc.Inbound, cfg.Metrics).RegisterRoutes(rg.Group("/goods-receipts"))

	handlers.NewStocktakingHandler(base, svc.Stocktaking, cfg.Metrics).RegisterRoutes(rg.Group("/stocktaking"))

	handlers.NewLedgerHandler(base, svc.Ledger).RegisterRoutes(rg.Group("/ledger"))

	// batches are master data of the receiving desk
	batches := rg.Group("/batches", middleware.RequireRole(security.RoleWarehouseManager, security.RolePurchaser))
	handlers.NewBatchHandler(base, svc.Batches).RegisterRoutes(batches)

	if cfg.AuditReader != nil {
		handlers.NewAuditHandler(base, cfg.AuditReader).RegisterRoutes(rg.Group("/audit"))
	}
}
