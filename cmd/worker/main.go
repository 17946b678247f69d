package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"procurement_backend/internal/adapters"
	"procurement_backend/internal/dispatch"
	"procurement_backend/internal/email"
	"procurement_backend/internal/events"
	"procurement_backend/internal/nudge"
	rfqrepo "procurement_backend/internal/rfq/repository"
	"procurement_backend/internal/scheduler"
	suprepo "procurement_backend/internal/suppliers/repository"
	"procurement_backend/internal/whatsapp"
	"procurement_backend/migrations"
	"procurement_backend/platform/config"
	"procurement_backend/platform/db"
	"procurement_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting worker", "env", cfg.Env, "queue", cfg.GetQueueName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS, ".")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)

	// ========================================================================
	// Delivery pipeline
	// ========================================================================

	taskRepo := dispatch.NewRepository(pool, cfg.GetDeliveryMaxAttempts())
	rfqRepo := rfqrepo.New(pool)
	supplierRepo := suprepo.New(pool)

	channel := whatsapp.NewClient(cfg, log)
	if channel == nil {
		log.Error("CHAT_GATEWAY_URL not configured; worker cannot deliver notifications")
		panic("chat gateway not configured")
	}

	deliverer := dispatch.NewDeliverer(dispatch.DelivererConfig{
		Tasks:     taskRepo,
		RFQs:      rfqRepo,
		Suppliers: supplierRepo,
		Channel:   channel,
		Backoff: dispatch.Backoff{
			Policy: cfg.GetDeliveryBackoffPolicy(),
			Base:   cfg.GetDeliveryRetryDelay(),
		},
		Timeout: cfg.GetDeliveryTimeout(),
		Bus:     eventBus,
	}, log)

	queueClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize queue client", "error", err)
		panic("failed to initialize queue client: " + err.Error())
	}
	defer func() { _ = queueClient.Close() }()

	retryDispatcher := scheduler.NewRetryDispatcher(cfg, taskRepo, queueClient, log)
	go retryDispatcher.Run(ctx)

	// ========================================================================
	// Escalation engine
	// ========================================================================

	staffSender, err := email.NewSender(cfg)
	if err != nil {
		log.Error("failed to initialize email sender", "error", err)
		panic("failed to initialize email sender: " + err.Error())
	}

	nudgeRepo := nudge.NewRepository(pool, cfg.GetNudgeMaxCount())
	nudgeEngine := nudge.NewEngine(nudgeRepo, taskRepo, adapters.NewStaffEmailChannel(staffSender),
		eventBus, log, cfg.GetNudgeGracePeriod(), cfg.GetNudgeInterval())
	nudgeEngine.RegisterHandlers(eventBus)

	nudgeScanner := scheduler.NewNudgeScanner(cfg, nudgeEngine, log)
	go nudgeScanner.Run(ctx)

	// ========================================================================
	// Queue worker (blocks until shutdown)
	// ========================================================================

	worker, err := scheduler.NewWorker(cfg, deliverer, log)
	if err != nil {
		log.Error("failed to initialize queue worker", "error", err)
		panic("failed to initialize queue worker: " + err.Error())
	}

	worker.Run(ctx)
	log.Info("worker stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, attempts, lastErr)
}
