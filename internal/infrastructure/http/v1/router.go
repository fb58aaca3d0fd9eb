// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"medstock/internal/domain/card"
	"medstock/internal/domain/event"
	"medstock/internal/infrastructure/http/v1/handlers"
	"medstock/internal/infrastructure/http/v1/middleware"
	"medstock/internal/infrastructure/metrics"
	"medstock/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Pool is the database connection (for health checks).
	Pool *pgxpool.Pool

	// Logger for request logging.
	Logger *logger.Logger

	// TokenValidator validates bearer tokens on protected routes.
	TokenValidator middleware.TokenValidator

	// Processor runs stock event intake.
	Processor *event.Processor

	// Events reads persisted stock events.
	Events event.Repository

	// Cards answers stock-on-hand queries.
	Cards *card.Service

	// HTTPMetrics instruments requests; optional.
	HTTPMetrics *metrics.HTTPMetrics
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	if cfg.HTTPMetrics != nil {
		router.Use(middleware.Metrics(cfg.HTTPMetrics))
	}

	// Health and metrics endpoints (no auth)
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 - all routes require an authenticated user
	api := router.Group("/api/v1")
	api.Use(middleware.Auth(cfg.TokenValidator))
	{
		eventHandler := handlers.NewStockEventHandler(cfg.Processor, cfg.Events)
		api.POST("/events", eventHandler.Create)
		api.GET("/events/:id", eventHandler.GetByID)

		sohHandler := handlers.NewStockOnHandHandler(cfg.Cards)
		api.GET("/stock-on-hand", sohHandler.Get)
	}

	return router
}
