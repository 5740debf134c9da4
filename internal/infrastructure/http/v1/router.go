// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"crm/internal/core/security"
	"crm/internal/domain/workflow"
	"crm/internal/infrastructure/http/v1/handlers"
	"crm/internal/infrastructure/http/v1/middleware"
	"crm/pkg/logger"
	"crm/pkg/metrics"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Logger for request logging. Defaults to a no-op logger.
	Logger *logger.Logger

	// Service runs every deal, inventory and finance operation.
	Service *workflow.Service

	// Policy guards endpoints that bypass Service, such as the audit trail.
	Policy *security.Policy

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// Idempotency stores replies of retried POSTs. Nil disables the middleware.
	Idempotency middleware.IdempotencyStore

	// Audit serves stored audit rows. Nil hides the audit endpoint.
	Audit handlers.AuditReader

	// HTTPMetrics and Gatherer feed and expose prometheus metrics. Both may be nil.
	HTTPMetrics *metrics.HTTP
	Gatherer    prometheus.Gatherer

	// DB backs the readiness probe.
	DB      handlers.Pinger
	Version string
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Policy == nil {
		cfg.Policy = security.NewDefaultPolicy()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace(cfg.Logger))
	router.Use(middleware.Logger(cfg.Logger, cfg.HTTPMetrics))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Version)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}
	if cfg.Gatherer != nil {
		router.GET("/metrics", middleware.MetricsEndpoint(cfg.Gatherer))
	}

	protected := router.Group("/api/v1")
	protected.Use(middleware.Auth(cfg.JWTValidator))
	if cfg.Idempotency != nil {
		protected.Use(middleware.Idempotency(cfg.Idempotency))
	}

	base := handlers.NewBaseHandler()
	handlers.NewDealHandler(base, cfg.Service).RegisterRoutes(protected.Group("/deals"))
	handlers.NewInventoryHandler(base, cfg.Service).RegisterRoutes(protected.Group("/products"))
	handlers.NewFinanceHandler(base, cfg.Service).RegisterRoutes(protected.Group("/finance"))

	if cfg.Audit != nil {
		auditHandler := handlers.NewAuditHandler(base, cfg.Audit, cfg.Policy)
		protected.GET("/audit/:entityType/:entityId", auditHandler.History)
	}

	return router
}
