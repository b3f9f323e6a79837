package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/marketplace-settlement/internal/analytics/router"
	"github.com/angelmondragon/marketplace-settlement/internal/analytics/worker"
	"github.com/angelmondragon/marketplace-settlement/internal/analytics/writer"
	"github.com/angelmondragon/marketplace-settlement/pkg/bigquery"
	"github.com/angelmondragon/marketplace-settlement/pkg/config"
	"github.com/angelmondragon/marketplace-settlement/pkg/kafka"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox/idempotency"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox/subscriber"
	"github.com/angelmondragon/marketplace-settlement/pkg/pubsub"
	"github.com/angelmondragon/marketplace-settlement/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "analytics-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "analytics-worker"

	logg = logger.New(logger.Options{
		ServiceName: "analytics-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	requireResource(ctx, logg, "bigquery client", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(ctx, "failed to close bigquery client", err)
		}
	}()

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	// Rows are written before the delivery is acknowledged.
	ledgerWriter, err := writer.New(bqClient, writer.Config{
		LedgerTable:  cfg.BigQuery.LedgerTable,
		PayoutsTable: cfg.BigQuery.PayoutsTable,
		BatchSize:    1,
	})
	requireResource(ctx, logg, "analytics bigquery writer", err)

	routingHandler, err := router.NewRouter(ledgerWriter, logg, nil)
	requireResource(ctx, logg, "analytics router", err)

	service, err := worker.NewService(routingHandler, manager, logg)
	requireResource(ctx, logg, "analytics worker service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"transport":   cfg.Eventing.Transport,
	})

	if cfg.Eventing.UsesKafka() {
		consumer, err := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.AnalyticsGroup)
		requireResource(ctx, logg, "kafka consumer", err)
		logg.Info(runCtx, "analytics worker ready")
		err = subscriber.RunKafka(runCtx, consumer, service.Handle)
		exitOnFailure(runCtx, logg, ledgerWriter, err)
		return
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg, cfg.PubSub.AnalyticsSubscription)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "analytics subscription", errors.New("subscription not configured"))
	}

	logg.Info(runCtx, "analytics worker ready")
	err = subscriber.RunPubSub(runCtx, subscription, service.Handle)
	exitOnFailure(runCtx, logg, ledgerWriter, err)
}

func exitOnFailure(ctx context.Context, logg *logger.Logger, w *writer.BigQueryWriter, err error) {
	if flushErr := w.Flush(context.Background()); flushErr != nil {
		logg.Error(ctx, "failed to flush analytics rows", flushErr)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "analytics worker failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "analytics worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
