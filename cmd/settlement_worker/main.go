package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/escrow-settlement/internal/config"
	"github.com/escrow-settlement/internal/data/postgres"
	"github.com/escrow-settlement/internal/logger"
	"github.com/escrow-settlement/internal/outbox_relay"
	"github.com/escrow-settlement/internal/platform/gateway"
	"github.com/escrow-settlement/internal/platform/lock"
	"github.com/escrow-settlement/internal/platform/messaging/producers"
	"github.com/escrow-settlement/internal/platform/metrics"
	"github.com/escrow-settlement/internal/platform/persistence"
	"github.com/escrow-settlement/internal/settlement"
	"github.com/escrow-settlement/internal/statemachine"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig(config.ComponentSettlementWorker)
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	log.Info("Starting Settlement Worker",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	eventProducer, err := producers.NewEventProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize event Kafka producer", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	transactionRepo := postgres.NewTransactionRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)

	gatewayClient := gateway.NewClient(log, &cfg.Gateway)
	machine := statemachine.NewService(log, postgresDB, transactionRepo, outboxRepo, gatewayClient, cfg)

	var opts []settlement.Option
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(appCtx).Err(); err != nil {
			log.Error("Failed to connect to Redis", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		locker := lock.NewLocker(rdb, cfg.Settlement.LockKey, cfg.Settlement.Interval)
		opts = append(opts, settlement.WithLease(settlement.RedisLease(locker)))
		log.Info("Settlement lease enabled", "key", cfg.Settlement.LockKey, "ttl", cfg.Settlement.Interval.String())
	}

	sweeper := settlement.NewSweeper(log, transactionRepo, machine, gatewayClient, &cfg.Settlement, opts...)
	expirer := settlement.NewExpirer(log, transactionRepo, machine, &cfg.Settlement)

	poller := outbox_relay.NewPoller(
		&cfg.Outbox,
		outboxRepo,
		outbox_relay.NewKafkaEventPublisher(outboxRepo, eventProducer, log),
		log,
	)

	metricsServer := newMetricsServer(cfg.Metrics.Port)

	errChan := make(chan error, 1)
	var wg sync.WaitGroup

	for name, run := range map[string]func(context.Context){
		"settlement sweep": sweeper.Run,
		"pending expiry":   expirer.Run,
		"outbox relay":     poller.Start,
	} {
		wg.Add(1)
		go func(name string, run func(context.Context)) {
			defer wg.Done()
			log.Info("Starting worker loop", "worker", name)
			run(appCtx)
		}(name, run)
	}

	go func() {
		log.Info("Starting metrics server", "port", cfg.Metrics.Port)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	// A sweep finishes recording the outcome of the payout it is making
	waitForWorkers(shutdownCtx, log, &wg)

	if err = metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error stopping metrics server", "error", err)
	}

	if err = eventProducer.Close(); err != nil {
		log.Error("Error closing event Kafka producer", "error", err)
	}

	if rdb != nil {
		if err = rdb.Close(); err != nil {
			log.Error("Error closing Redis client", "error", err)
		}
	}

	postgresDB.Close()

	if serviceErr != nil {
		log.Error("Settlement Worker shutdown with errors", "error", serviceErr)
	}
	if err != nil {
		log.Error("Settlement Worker shutdown completed with errors")
	} else {
		log.Info("Settlement Worker shutdown completed successfully")
	}
}

func newMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func waitForWorkers(ctx context.Context, log *slog.Logger, wg *sync.WaitGroup) {
	log.Info("Waiting for services to stop...")
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("All services stopped successfully")
	case <-ctx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}
}
