package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ficmart/txengine/internal/adapters/cache"
	"github.com/ficmart/txengine/internal/adapters/httpapi"
	"github.com/ficmart/txengine/internal/adapters/kafkapublish"
	"github.com/ficmart/txengine/internal/adapters/limits"
	"github.com/ficmart/txengine/internal/adapters/postgres"
	"github.com/ficmart/txengine/internal/adapters/provider"
	"github.com/ficmart/txengine/internal/adapters/webhook"
	"github.com/ficmart/txengine/internal/config"
	"github.com/ficmart/txengine/internal/core/domain"
	"github.com/ficmart/txengine/internal/core/ports"
	"github.com/ficmart/txengine/internal/core/service"
	"github.com/google/uuid"
)

func main() {
	// 1. Setup Logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 2. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Connect to Database
	db, err := postgres.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// 4. Initialize durable stores
	var txStore ports.TransactionStore = postgres.NewTransactionStore(db)
	eventStore := postgres.NewEventStore(db)
	recordLocker := postgres.NewRecordLocker(db)
	dlqStore := postgres.NewDeadLetterStore(db)

	// 5. Optional Redis read-through cache in front of the idempotency lookup
	var idemCache *cache.TransactionStore
	if cfg.Redis.Addr != "" {
		idemCache = cache.NewTransactionStore(txStore, cfg.Redis, logger)
		txStore = idemCache
		logger.Info("idempotency cache enabled", "addr", cfg.Redis.Addr)
	}

	// 6. Payment provider, decorated with network-level retry
	baseProvider := provider.NewHTTPClient(cfg.Provider)
	var paymentProvider ports.PaymentProvider = provider.NewRetryingClient(baseProvider, cfg.Retry.Network)

	// 7. Customer limits
	customerLimits := limits.NewStaticLimits(cfg.Limits)

	// 8. Event emitter, with optional Kafka fan-out
	emitter := service.NewEventEmitter(eventStore, logger)

	// 9. Core services
	lockSvc := service.NewRecordLockerService(recordLocker, cfg.Lock.DefaultTTL, logger)
	txManager := service.NewTransactionManager(txStore, paymentProvider, customerLimits, lockSvc, emitter)

	retryQueue := service.NewRetryQueue()
	retryPolicy := domain.RetryPolicy{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		Backoff:      domain.BackoffKind(cfg.Retry.Backoff),
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
	}
	retryManager := service.NewRetryManager(txStore, retryQueue, retryPolicy, lockSvc, emitter, logger)
	retryManager.SetExecutor(func(ctx context.Context, id uuid.UUID) {
		if _, err := txManager.ExecuteRetry(ctx, id); err != nil {
			logger.Error("scheduled retry failed", "transaction_id", id, "error", err)
		}
	})

	recoveryManager := service.NewRecoveryManager(txStore, dlqStore, lockSvc, emitter, logger,
		service.NewRetryStrategy(retryManager, cfg.Retry.MaxAttempts),
		service.NewManualReviewStrategy(txStore),
	)
	retryManager.SetRecoveryHandler(func(ctx context.Context, tx *domain.Transaction) error {
		return recoveryManager.InitiateRecovery(ctx, tx)
	})

	reconciler := service.NewReconciliationWorker(txStore, recoveryManager, cfg.Worker.Interval, 5*time.Minute, cfg.Worker.BatchSize, logger)

	eventProcessor := service.NewEventProcessor(eventStore, emitter, logger, cfg.Event.Interval, cfg.Event.BatchSize, cfg.Event.PruneAfter, cfg.Event.PruneEvery)

	// Optional Kafka fan-out; a publish failure routes into the outbox's own
	// retry ceiling rather than being dropped.
	var kafkaPublisher *kafkapublish.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher = kafkapublish.NewPublisher(cfg.Kafka, "txengine.events", logger)
		kafkaPublisher.OnFailure(func(ctx context.Context, ev *domain.Event, err error) {
			if failErr := eventProcessor.Fail(ctx, ev, err, cfg.Event.MaxRetries); failErr != nil {
				logger.Error("failed to record kafka publish failure", "event_id", ev.ID, "error", failErr)
			}
		})
		emitter.On("*", kafkaPublisher.Handle)
		logger.Info("kafka event publishing enabled", "brokers", cfg.Kafka.Brokers)
	}

	// 10. Rebuild in-memory retry timers left behind by a prior process
	if err := retryManager.RebuildFromStore(ctx); err != nil {
		logger.Error("failed to rebuild retry queue from store", "error", err)
	}

	// 11. Start background workers
	go eventProcessor.Start(ctx)
	go reconciler.Start(ctx)

	// 12. HTTP layer
	webhookVerifier := webhook.NewVerifier(cfg.Webhook)
	router := httpapi.NewRouter(
		httpapi.NewTransactionHandler(txManager, retryManager),
		httpapi.NewDeadLetterHandler(recoveryManager),
		httpapi.NewWebhookHandler(txManager, webhookVerifier),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.Mux(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// 13. Wait for shutdown
	<-ctx.Done()
	logger.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", "error", err)
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			logger.Error("failed to close kafka publisher", "error", err)
		}
	}
	if idemCache != nil {
		if err := idemCache.Close(); err != nil {
			logger.Error("failed to close idempotency cache", "error", err)
		}
	}

	logger.Info("exit")
}
