// Package main is the entry point for the medstock background worker.
// It relays outbox messages (stockout alerts) to the notification service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"medstock/internal/domain/notify"
	"medstock/internal/infrastructure/notification"
	"medstock/internal/infrastructure/referencedata"
	"medstock/internal/infrastructure/storage/postgres"
	"medstock/internal/infrastructure/storage/postgres/card_repo"
	"medstock/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting medstock worker")

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("DATABASE_URL")))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)
	cardRepo := card_repo.NewCardRepo(txManager)

	serviceSecret := mustEnv("SERVICE_SECRET")
	refClient := referencedata.NewClient(referencedata.Config{
		BaseURL:       mustEnv("REFERENCEDATA_URL"),
		ServiceSecret: serviceSecret,
	})
	sink := notification.NewHTTPSink(notification.SinkConfig{
		BaseURL:       mustEnv("NOTIFICATION_URL"),
		ServiceSecret: serviceSecret,
	})

	notifier := notify.NewStockoutNotifier(refClient, cardRepo, sink)
	handler := notification.NewStockoutHandler(notifier)

	batchSize := getEnvInt("OUTBOX_BATCH_SIZE", 100)
	relay := postgres.NewOutboxRelay(pool.Unwrap(), batchSize, handler)

	worker := NewRelayWorker(relay, log)

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

// RelayWorker polls the outbox and hands messages to the relay.
type RelayWorker struct {
	relay *postgres.OutboxRelay
	log   *logger.Logger
}

func NewRelayWorker(relay *postgres.OutboxRelay, log *logger.Logger) *RelayWorker {
	return &RelayWorker{
		relay: relay,
		log:   log.WithComponent("worker"),
	}
}

// Run polls the outbox until the context is cancelled. Exhausted messages
// move to the dead-letter queue on an hourly sweep.
func (w *RelayWorker) Run(ctx context.Context) {
	pollInterval := 500 * time.Millisecond
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	dlqTicker := time.NewTicker(1 * time.Hour)
	defer dlqTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			count, err := w.relay.ProcessBatch(ctx)
			if err != nil {
				w.log.Errorw("failed to process outbox batch", "error", err)
				continue
			}
			if count > 0 {
				w.log.Debugw("processed outbox batch", "count", count)
			}

		case <-dlqTicker.C:
			moved, err := w.relay.MoveToDLQ(ctx)
			if err != nil {
				w.log.Errorw("failed to move messages to DLQ", "error", err)
				continue
			}
			if moved > 0 {
				w.log.Warnw("moved exhausted messages to DLQ", "count", moved)
			}
		}
	}
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
