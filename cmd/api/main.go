package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"procurement_backend/internal/adapters"
	"procurement_backend/internal/classifier"
	"procurement_backend/internal/dispatch"
	"procurement_backend/internal/email"
	"procurement_backend/internal/events"
	apphttp "procurement_backend/internal/http"
	"procurement_backend/internal/http/router"
	"procurement_backend/internal/nudge"
	"procurement_backend/internal/quotes"
	"procurement_backend/internal/rfq"
	rfqrepo "procurement_backend/internal/rfq/repository"
	"procurement_backend/internal/suppliers"
	suprepo "procurement_backend/internal/suppliers/repository"
	"procurement_backend/migrations"
	"procurement_backend/platform/ai/embeddings"
	"procurement_backend/platform/config"
	"procurement_backend/platform/db"
	"procurement_backend/platform/logger"
	"procurement_backend/platform/qdrant"
	"procurement_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting api server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS, ".")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	suppliersModule := suppliers.NewModule(pool, val)
	rfqRepo := rfqrepo.New(pool)
	supplierRepo := suprepo.New(pool)
	taskRepo := dispatch.NewRepository(pool, cfg.GetDeliveryMaxAttempts())

	planner := dispatch.NewPlanner(rfqRepo, supplierRepo, taskRepo, log)
	classifierAdapter := buildClassifier(ctx, cfg, log)

	quotesModule := quotes.NewModule(pool, taskRepo, rfqRepo, eventBus, val, log)
	rfqModule := rfq.NewModule(pool, classifierAdapter, planner, taskRepo,
		quotesModule.Repository(), val, log, 4)

	// Quote submissions close their open nudges immediately; the worker's
	// periodic scan covers quotes that land while this process is down.
	staffSender, err := email.NewSender(cfg)
	if err != nil {
		log.Error("failed to initialize email sender", "error", err)
		panic("failed to initialize email sender: " + err.Error())
	}
	nudgeRepo := nudge.NewRepository(pool, cfg.GetNudgeMaxCount())
	nudgeEngine := nudge.NewEngine(nudgeRepo, taskRepo, adapters.NewStaffEmailChannel(staffSender),
		eventBus, log, cfg.GetNudgeGracePeriod(), cfg.GetNudgeInterval())
	nudgeEngine.RegisterHandlers(eventBus)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			suppliersModule,
			rfqModule,
			quotesModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// buildClassifier assembles the classification chain from whatever is
// configured: vector search, LLM completion, keyword rules. A bare
// environment still classifies via the rules file's fallback.
func buildClassifier(ctx context.Context, cfg *config.Config, log *logger.Logger) *classifier.Adapter {
	rules, err := classifier.LoadRules(cfg.GetClassifierRulesPath())
	if err != nil {
		log.Warn("failed to load classifier rules, continuing without", "error", err)
		rules = &classifier.Rules{}
	}

	chain := classifier.Config{
		Rules:     rules,
		Threshold: cfg.GetVectorScoreThreshold(),
		Timeout:   cfg.GetClassifierTimeout(),
	}

	if cfg.IsVectorClassifierEnabled() {
		chain.Embedder = embeddings.NewClient(embeddings.Config{
			BaseURL: cfg.GetEmbeddingAPIURL(),
			APIKey:  cfg.GetEmbeddingAPIKey(),
		})
		chain.Searcher = qdrant.NewClient(qdrant.Config{
			BaseURL:    cfg.GetQdrantURL(),
			APIKey:     cfg.GetQdrantAPIKey(),
			Collection: cfg.GetQdrantCollection(),
		})
		log.Info("vector classifier enabled", "collection", cfg.GetQdrantCollection())
	}

	if cfg.IsAIClassifierEnabled() {
		generator, err := classifier.NewGenAIClassifier(ctx, cfg.GetGeminiAPIKey(), cfg.GetGeminiModel())
		if err != nil {
			log.Warn("failed to initialize ai classifier, continuing without", "error", err)
		} else {
			chain.Generator = generator
			log.Info("ai classifier enabled", "model", cfg.GetGeminiModel())
		}
	}

	return classifier.New(chain, log)
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
