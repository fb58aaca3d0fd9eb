// Package main is the entry point for the medstock API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"medstock/internal/domain/card"
	"medstock/internal/domain/event"
	v1 "medstock/internal/infrastructure/http/v1"
	"medstock/internal/infrastructure/http/v1/middleware"
	"medstock/internal/infrastructure/metrics"
	"medstock/internal/infrastructure/referencedata"
	"medstock/internal/infrastructure/storage/postgres"
	"medstock/internal/infrastructure/storage/postgres/card_repo"
	"medstock/internal/infrastructure/storage/postgres/event_repo"
	"medstock/internal/infrastructure/storage/postgres/reason_repo"
	"medstock/pkg/logger"
)

func main() {
	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Info("starting medstock server")

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(mustEnv("DATABASE_URL"))
	if maxConns := getEnvInt("DB_MAX_CONNS", 0); maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool)

	// --- Repositories ---
	cardRepo := card_repo.NewCardRepo(txManager)
	snapshotRepo := card_repo.NewSnapshotRepo(txManager)
	eventRepo := event_repo.NewEventRepo(txManager)
	reasonRepo := reason_repo.NewReasonRepo(txManager)

	// --- Reference data client ---
	refClient := referencedata.NewClient(referencedata.Config{
		BaseURL:        mustEnv("REFERENCEDATA_URL"),
		ServiceSecret:  mustEnv("SERVICE_SECRET"),
		RequestTimeout: getEnvDuration("REFERENCEDATA_TIMEOUT", 5*time.Second),
	})

	// --- Audit and stockout outbox ---
	auditService, err := postgres.NewAuditService(txManager)
	if err != nil {
		log.Fatalw("failed to initialize audit service", "error", err)
	}
	stockoutOutbox := postgres.NewStockoutOutbox(postgres.NewOutboxPublisher(txManager))

	// --- Metrics ---
	registry := prometheus.DefaultRegisterer
	stockMetrics := metrics.NewStockMetrics(registry)
	httpMetrics := metrics.NewHTTPMetrics(registry)

	// --- Domain services ---
	engine := card.NewEngine(cardRepo, snapshotRepo)
	cardService := card.NewService(cardRepo, engine)

	builder := event.NewContextBuilder(refClient, getEnvDuration("LOOKUP_TIMEOUT", 10*time.Second))
	chain := event.NewChain(event.ChainDeps{
		Reasons: reasonRepo,
		Cards:   cardRepo,
		Lookup:  refClient,
	})
	processor := event.NewProcessor(event.ProcessorDeps{
		Permissions: refClient,
		Builder:     builder,
		Chain:       chain,
		Events:      eventRepo,
		Cards:       cardRepo,
		Reasons:     reasonRepo,
		Engine:      engine,
		TxManager:   txManager,
		Audit:       auditService,
		Stockouts:   stockoutOutbox,
		Metrics:     stockMetrics,
	})

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Pool:           pool.Unwrap(),
		Logger:         log,
		TokenValidator: middleware.NewHS256Validator(mustEnv("JWT_SECRET")),
		Processor:      processor,
		Events:         eventRepo,
		Cards:          cardService,
		HTTPMetrics:    httpMetrics,
	})

	// --- HTTP Server ---
	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
