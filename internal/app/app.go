package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/transaction-stream-processor/internal/api"
	"github.com/ayo6706/transaction-stream-processor/internal/api/handler"
	"github.com/ayo6706/transaction-stream-processor/internal/api/middleware"
	"github.com/ayo6706/transaction-stream-processor/internal/broker"
	"github.com/ayo6706/transaction-stream-processor/internal/config"
	"github.com/ayo6706/transaction-stream-processor/internal/consumer"
	"github.com/ayo6706/transaction-stream-processor/internal/db"
	"github.com/ayo6706/transaction-stream-processor/internal/domain"
	"github.com/ayo6706/transaction-stream-processor/internal/idempotency"
	"github.com/ayo6706/transaction-stream-processor/internal/observability"
	"github.com/ayo6706/transaction-stream-processor/internal/repository"
	"github.com/ayo6706/transaction-stream-processor/internal/service"
	"github.com/ayo6706/transaction-stream-processor/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run bootstraps the HTTP server, the event consumer and the reconciliation
// worker, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL, db.WithMaxConns(cfg.DBMaxConns))
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := db.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	store := repository.NewStore(pool)
	repo := repository.NewTransactionRepository(store)
	checks := []handler.Check{{Name: "database", Ping: store.Ping}}

	var publisher service.EventPublisher = broker.NewLogPublisher(logger)
	var client *broker.Client
	if cfg.RabbitMQURL != "" {
		client, err = broker.Dial(broker.Config{
			URL:      cfg.RabbitMQURL,
			Exchange: cfg.BrokerExchange,
			Queue:    cfg.ConsumerQueue,
		})
		if err != nil {
			return fmt.Errorf("connect broker: %w", err)
		}
		defer client.Close()
		if err := client.DeclareTopology(); err != nil {
			return fmt.Errorf("declare broker topology: %w", err)
		}
		pub, err := broker.NewPublisher(client)
		if err != nil {
			return fmt.Errorf("open publisher: %w", err)
		}
		defer pub.Close()
		publisher = pub
		checks = append(checks, handler.Check{Name: "broker", Ping: func(context.Context) error { return client.Ping() }})
	} else {
		logger.Warn("RABBITMQ_URL not set, events will only be logged and no consumer runs")
	}

	creation := service.NewCreationService(repo, publisher)
	if cfg.RedisURL != "" {
		redisClient, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		creation.WithReferenceIndex(idempotency.NewReferenceCache(redisClient, cfg.ReferenceCacheTTL))
		checks = append(checks, handler.Check{Name: "redis", Ping: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }})
	}
	processing := service.NewProcessingService(repo, publisher)
	queries := service.NewTransactionService(repo, repo)

	var stopConsumer func()
	if client != nil {
		sinkPub, err := broker.NewPublisher(client)
		if err != nil {
			return fmt.Errorf("open dead-letter publisher: %w", err)
		}
		defer sinkPub.Close()
		pipeline := consumer.NewPipeline(processing, broker.NewDeadLetterSink(sinkPub, domain.TopicTransactionDLQ), consumer.RetryPolicy{
			MaxRetries:     cfg.ConsumerMaxRetries,
			Delay:          cfg.ConsumerRetryDelay,
			AttemptTimeout: cfg.ConsumerHandlerTimeout,
		})
		consumerWorker := worker.NewConsumerWorker(broker.NewSubscriber(client), pipeline)
		stopConsumer = consumerWorker.Run(ctx)
		logger.Info("consumer worker started", zap.String("queue", cfg.ConsumerQueue), zap.Int("max_retries", cfg.ConsumerMaxRetries))
	}

	reconciliation := service.NewReconciliationService(repo, cfg.StaleCreatedAfter)
	stopReconciliation := worker.NewReconciliationWorker(reconciliation).WithInterval(cfg.ReconciliationInterval).Run(ctx)

	router := api.NewRouter(cfg, logger, creation, queries, checks...)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("stopping workers")
	if stopConsumer != nil {
		stopConsumer()
	}
	stopReconciliation()

	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
