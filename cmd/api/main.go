package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dejobratic/storefront/internal/auth"
	cartshttp "github.com/dejobratic/storefront/internal/cart/adapters/http"
	cartpostgres "github.com/dejobratic/storefront/internal/cart/adapters/postgres"
	"github.com/dejobratic/storefront/internal/catalog/adapters/gormdb"
	"github.com/dejobratic/storefront/internal/config"
	couponshttp "github.com/dejobratic/storefront/internal/coupons/adapters/http"
	couponspostgres "github.com/dejobratic/storefront/internal/coupons/adapters/postgres"
	couponsapp "github.com/dejobratic/storefront/internal/coupons/app"
	"github.com/dejobratic/storefront/internal/database"
	"github.com/dejobratic/storefront/internal/httpapi"
	"github.com/dejobratic/storefront/internal/kafka"
	loyaltyhttp "github.com/dejobratic/storefront/internal/loyalty/adapters/http"
	loyaltypostgres "github.com/dejobratic/storefront/internal/loyalty/adapters/postgres"
	loyaltyapp "github.com/dejobratic/storefront/internal/loyalty/app"
	ordersadapters "github.com/dejobratic/storefront/internal/orders/adapters"
	ordershttp "github.com/dejobratic/storefront/internal/orders/adapters/http"
	ordersmemory "github.com/dejobratic/storefront/internal/orders/adapters/memory"
	orderspostgres "github.com/dejobratic/storefront/internal/orders/adapters/postgres"
	ordersapp "github.com/dejobratic/storefront/internal/orders/app"
	"github.com/dejobratic/storefront/internal/orders/app/commands"
	"github.com/dejobratic/storefront/internal/orders/domain"
	ordersmetrics "github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/payments"
	"github.com/dejobratic/storefront/internal/pricing"
	"github.com/dejobratic/storefront/internal/rabbitmq"
	"github.com/dejobratic/storefront/internal/shipping"
	"github.com/dejobratic/storefront/internal/telemetry"
	"github.com/dejobratic/storefront/pkg/circuitbreaker"
	"github.com/dejobratic/storefront/pkg/retry"
)

const meterName = "github.com/dejobratic/storefront"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(telemetry.ParseLevel(cfg.Telemetry.LogLevel), slog.String("service", cfg.Service.Name))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("api stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Initialize(ctx, telemetry.Config{
		ServiceName:    cfg.Service.Name,
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
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()
	meter := tel.Meter(meterName)

	httpMetrics, err := httpapi.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("create http metrics: %w", err)
	}
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

	if cfg.Database.AutoMigrate {
		logger.Info("running database migrations", "path", cfg.Database.MigrationsPath)
		version, err := database.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath)
		if err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("migrations completed", "version", version)
	}

	gormDB, err := gormdb.Open(pool)
	if err != nil {
		return err
	}

	bus, err := newEventBus(cfg.Kafka, logger)
	if err != nil {
		return err
	}
	defer closeQuietly(logger, "event bus", bus)
	events := ordersadapters.NewObservableEventBus(bus, kafkaMetrics)

	repo := ordersadapters.NewObservableRepository(orderspostgres.NewRepository(pool), dbMetrics)
	couponService := couponsapp.NewService(couponspostgres.NewRepository(pool), logger)
	loyaltyService := loyaltyapp.NewService(loyaltypostgres.NewLedger(pool), logger)
	carts := cartpostgres.NewStore(pool)

	followups, consumeLocally, closeFollowups, err := newFollowupQueue(cfg.RabbitMQ, logger)
	if err != nil {
		return err
	}
	defer closeFollowups()

	var (
		carrier    *shipping.Client
		dispatcher ports.ShipmentDispatcher
	)
	if cfg.Shipping.CarrierURL != "" {
		carrier = shipping.NewClient(shipping.ClientConfig{
			BaseURL:        cfg.Shipping.CarrierURL,
			Token:          cfg.Shipping.CarrierToken,
			PickupLocation: cfg.Shipping.PickupLocation,
			Timeout:        cfg.Shipping.Timeout,
			MaxAttempts:    cfg.Shipping.MaxAttempts,
			Breaker:        circuitbreaker.Config{FailureThreshold: 5, ResetTimeout: 30 * time.Second},
		}, logger)
		dispatcher = shipping.NewDispatcher(carrier, repo, events, cfg.Shipping.DefaultParcelGrams, logger)
	} else {
		logger.Warn("no shipping carrier configured, shipments must be created manually")
	}

	service := ordersapp.NewService(ordersapp.Dependencies{
		Repo:       repo,
		Tx:         database.NewTxManager(pool),
		Events:     events,
		Payments:   payments.NewVerifier(cfg.Payments.GatewaySecret),
		Catalog:    gormdb.NewStore(gormDB),
		Coupons:    couponService,
		Usage:      couponService,
		Loyalty:    loyaltyService,
		Cart:       carts,
		Dispatcher: dispatcher,
		Followups:  followups,
		Logger:     logger,
		Metrics:    orderMetrics,
	}, ordersapp.Options{
		Checkout: commands.CheckoutConfig{
			PointValueMinor: cfg.Checkout.PointValueMinor,
			Pricing: pricing.Policy{
				FlatShipping:          cfg.Checkout.FlatShippingMinor,
				FreeShippingThreshold: cfg.Checkout.FreeShippingThresholdMinor,
				TaxRatePercent:        cfg.Checkout.TaxRatePercent,
			},
			DeliveryDays:   cfg.Checkout.DeliveryDays,
			PaymentTimeout: cfg.Payments.VerifyTimeout,
		},
		ShipmentTimeout:    cfg.Shipping.Timeout,
		FollowupBackoff:    &retry.ExponentialBackoff{InitialInterval: cfg.Checkout.FollowupBackoff, MaxInterval: 10 * cfg.Checkout.FollowupBackoff, Multiplier: 2, JitterFactor: 0.2},
		FollowupMaxAttempt: cfg.Checkout.FollowupMaxAttempts,
	})

	var tracker ordershttp.TrackingSyncer
	if carrier != nil {
		tracker = shipping.NewTracker(carrier, repo, service, logger)
	}

	if consumeLocally != nil {
		go func() {
			if err := consumeLocally(ctx, service.HandleFollowup); err != nil {
				logger.Error("in-process followup consumer stopped", "error", err)
			}
		}()
	}

	router := mux.NewRouter()
	router.Use(
		httpapi.WithTracing(cfg.Service.Name),
		httpapi.WithRecovery(logger, httpMetrics),
		httpapi.WithLogging(logger),
		httpapi.WithMetrics(httpMetrics),
	)
	registerProbes(router, pool, cfg.HTTP.MetricsPath)

	authn := auth.NewAuthenticator(cfg.Auth.JWTSecret, logger)
	routes := httpapi.NewRoutes(router,
		authn.Middleware(),
		auth.RequireRole(auth.RoleAdmin),
		auth.RequireRole(auth.RoleService, auth.RoleAdmin),
	)
	ordershttp.NewHandler(service, tracker).Register(routes)
	couponshttp.NewHandler(couponService).Register(routes)
	loyaltyhttp.NewHandler(loyaltyService).Register(routes)
	cartshttp.NewHandler(carts).Register(routes)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownGrace)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("http server stopped")
	return nil
}

type eventBus interface {
	ports.EventBus
	Close() error
}

func newEventBus(cfg config.KafkaConfig, logger *slog.Logger) (eventBus, error) {
	if len(cfg.Brokers) == 0 {
		logger.Warn("no kafka brokers configured, order events are only logged")
		return kafka.NewNoopEventBus(logger), nil
	}
	bus, err := kafka.NewEventBus(cfg.Brokers, cfg.OrderTopic, logger)
	if err != nil {
		return nil, fmt.Errorf("create kafka event bus: %w", err)
	}
	return bus, nil
}

type followupConsumer func(ctx context.Context, handler func(ctx context.Context, followup domain.Followup) error) error

// newFollowupQueue returns the queue post-commit failures go to. Without a
// broker the queue lives in process and is drained by the API itself.
func newFollowupQueue(cfg config.RabbitMQConfig, logger *slog.Logger) (ports.FollowupQueue, followupConsumer, func(), error) {
	if cfg.URL == "" {
		logger.Warn("no rabbitmq configured, followups are retried in process and lost on restart")
		queue := ordersmemory.NewFollowupQueue(256, logger)
		return queue, queue.Consume, func() {}, nil
	}

	queue, err := rabbitmq.NewFollowupQueue(rabbitmq.Config{
		URL:      cfg.URL,
		Queue:    cfg.FollowupQueue,
		Prefetch: cfg.Prefetch,
	}, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create followup queue: %w", err)
	}
	return queue, nil, func() { closeQuietly(logger, "followup queue", queue) }, nil
}

func registerProbes(router *mux.Router, pool *pgxpool.Pool, metricsPath string) {
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpapi.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	router.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := database.CheckHealth(r.Context(), pool); err != nil {
			httpapi.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
			return
		}
		httpapi.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}).Methods(http.MethodGet)

	// Metrics are pushed over OTLP; the path only answers scrapers.
	router.HandleFunc(metricsPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte("# metrics are exported over OTLP\n"))
	}).Methods(http.MethodGet)
}

type closer interface {
	Close() error
}

func closeQuietly(logger *slog.Logger, name string, c closer) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close "+name, "error", err)
	}
}
