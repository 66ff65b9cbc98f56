// Command reconciler consumes failed post-commit tasks from RabbitMQ and
// retries them until they succeed or run out of attempts.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dejobratic/storefront/internal/config"
	cartpostgres "github.com/dejobratic/storefront/internal/cart/adapters/postgres"
	"github.com/dejobratic/storefront/internal/catalog/adapters/gormdb"
	couponspostgres "github.com/dejobratic/storefront/internal/coupons/adapters/postgres"
	couponsapp "github.com/dejobratic/storefront/internal/coupons/app"
	"github.com/dejobratic/storefront/internal/database"
	"github.com/dejobratic/storefront/internal/kafka"
	loyaltypostgres "github.com/dejobratic/storefront/internal/loyalty/adapters/postgres"
	loyaltyapp "github.com/dejobratic/storefront/internal/loyalty/app"
	ordersadapters "github.com/dejobratic/storefront/internal/orders/adapters"
	orderspostgres "github.com/dejobratic/storefront/internal/orders/adapters/postgres"
	ordersapp "github.com/dejobratic/storefront/internal/orders/app"
	ordersmetrics "github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/payments"
	"github.com/dejobratic/storefront/internal/rabbitmq"
	"github.com/dejobratic/storefront/internal/shipping"
	"github.com/dejobratic/storefront/internal/telemetry"
	"github.com/dejobratic/storefront/pkg/circuitbreaker"
	"github.com/dejobratic/storefront/pkg/retry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(telemetry.ParseLevel(cfg.Telemetry.LogLevel), slog.String("service", "storefront-reconciler"))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("reconciler stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if cfg.RabbitMQ.URL == "" {
		return errors.New("RABBITMQ_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Initialize(ctx, telemetry.Config{
		ServiceName:    "storefront-reconciler",
		ServiceVersion: cfg.Service.Version,
		Environment:    cfg.Service.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTelEndpoint,
		EnableTracing:  cfg.Telemetry.EnableTracing,
		EnableMetrics:  cfg.Telemetry.EnableMetrics,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()
	meter := tel.Meter("github.com/dejobratic/storefront/reconciler")

	dbMetrics, err := database.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("create database metrics: %w", err)
	}
	kafkaMetrics, err := kafka.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("create kafka metrics: %w", err)
	}
	orderMetrics, err := ordersmetrics.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("create order metrics: %w", err)
	}

	pool, err := database.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("create database pool: %w", err)
	}
	defer pool.Close()

	if err := database.RegisterPoolMetrics(meter, database.PgxPoolStats(pool)); err != nil {
		return err
	}

	gormDB, err := gormdb.Open(pool)
	if err != nil {
		return err
	}

	var bus ports.EventBus = kafka.NewNoopEventBus(logger)
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaBus, err := kafka.NewEventBus(cfg.Kafka.Brokers, cfg.Kafka.OrderTopic, logger)
		if err != nil {
			return fmt.Errorf("create kafka event bus: %w", err)
		}
		defer kafkaBus.Close()
		bus = kafkaBus
	}
	events := ordersadapters.NewObservableEventBus(bus, kafkaMetrics)

	queue, err := rabbitmq.NewFollowupQueue(rabbitmq.Config{
		URL:      cfg.RabbitMQ.URL,
		Queue:    cfg.RabbitMQ.FollowupQueue,
		Prefetch: cfg.RabbitMQ.Prefetch,
	}, logger)
	if err != nil {
		return fmt.Errorf("create followup queue: %w", err)
	}
	defer queue.Close()

	repo := ordersadapters.NewObservableRepository(orderspostgres.NewRepository(pool), dbMetrics)
	coupons := couponsapp.NewService(couponspostgres.NewRepository(pool), logger)

	var dispatcher ports.ShipmentDispatcher
	if cfg.Shipping.CarrierURL != "" {
		carrier := shipping.NewClient(shipping.ClientConfig{
			BaseURL:        cfg.Shipping.CarrierURL,
			Token:          cfg.Shipping.CarrierToken,
			PickupLocation: cfg.Shipping.PickupLocation,
			Timeout:        cfg.Shipping.Timeout,
			MaxAttempts:    cfg.Shipping.MaxAttempts,
			Breaker:        circuitbreaker.Config{FailureThreshold: 5, ResetTimeout: 30 * time.Second},
		}, logger)
		dispatcher = shipping.NewDispatcher(carrier, repo, events, cfg.Shipping.DefaultParcelGrams, logger)
	}

	service := ordersapp.NewService(ordersapp.Dependencies{
		Repo:       repo,
		Tx:         database.NewTxManager(pool),
		Events:     events,
		Payments:   payments.NewVerifier(cfg.Payments.GatewaySecret),
		Catalog:    gormdb.NewStore(gormDB),
		Coupons:    coupons,
		Usage:      coupons,
		Loyalty:    loyaltyapp.NewService(loyaltypostgres.NewLedger(pool), logger),
		Cart:       cartpostgres.NewStore(pool),
		Dispatcher: dispatcher,
		Followups:  queue,
		Logger:     logger,
		Metrics:    orderMetrics,
	}, ordersapp.Options{
		ShipmentTimeout: cfg.Shipping.Timeout,
		FollowupBackoff: &retry.ExponentialBackoff{
			InitialInterval: cfg.Checkout.FollowupBackoff,
			MaxInterval:     10 * cfg.Checkout.FollowupBackoff,
			Multiplier:      2,
			JitterFactor:    0.2,
		},
		FollowupMaxAttempt: cfg.Checkout.FollowupMaxAttempts,
	})

	logger.Info("reconciler started", "queue", cfg.RabbitMQ.FollowupQueue)
	if err := queue.Consume(ctx, service.HandleFollowup); err != nil {
		return fmt.Errorf("consume followups: %w", err)
	}
	logger.Info("reconciler stopped")
	return nil
}
