package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config captures runtime configuration for the storefront services.
type Config struct {
	HTTP      HTTPConfig
	Database  DatabaseConfig
	Kafka     KafkaConfig
	RabbitMQ  RabbitMQConfig
	Telemetry TelemetryConfig
	Service   ServiceConfig
	Auth      AuthConfig
	Payments  PaymentsConfig
	Shipping  ShippingConfig
	Checkout  CheckoutConfig
}

type HTTPConfig struct {
	Port          int
	MetricsPath   string
	ShutdownGrace int
}

type DatabaseConfig struct {
	URL            string
	AutoMigrate    bool
	MigrationsPath string
}

type KafkaConfig struct {
	Brokers    []string
	OrderTopic string
}

type RabbitMQConfig struct {
	URL           string
	FollowupQueue string
	Prefetch      int
}

type TelemetryConfig struct {
	LogLevel      string
	OTelEndpoint  string
	EnableTracing bool
	EnableMetrics bool
	SampleRate    float64
}

type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

type AuthConfig struct {
	JWTSecret string
}

type PaymentsConfig struct {
	GatewaySecret string
	VerifyTimeout time.Duration
}

type ShippingConfig struct {
	CarrierURL         string
	CarrierToken       string
	PickupLocation     string
	Timeout            time.Duration
	MaxAttempts        int
	DefaultParcelGrams int
}

type CheckoutConfig struct {
	PointValueMinor            int64
	FlatShippingMinor          int64
	FreeShippingThresholdMinor int64
	TaxRatePercent             decimal.Decimal
	DeliveryDays               int
	FollowupMaxAttempts        int
	FollowupBackoff            time.Duration
}

var defaults = map[string]any{
	"api.http.port":                          8080,
	"api.metrics.path":                       "/metrics",
	"api.shutdown.grace.seconds":             15,
	"auto.migrate":                           true,
	"migrations.path":                        "migrations",
	"kafka.order.topic":                      "storefront.orders",
	"rabbitmq.followup.queue":                "storefront.followups",
	"rabbitmq.prefetch":                      10,
	"log.level":                              "info",
	"otel.enable.tracing":                    true,
	"otel.enable.metrics":                    true,
	"otel.sample.rate":                       1.0,
	"api.service.name":                       "storefront-api",
	"service.version":                        "0.1.0",
	"environment":                            "development",
	"payments.verify.timeout":                "10s",
	"shipping.timeout":                       "10s",
	"shipping.max.attempts":                  3,
	"shipping.pickup.location":               "primary",
	"checkout.point.value.minor":             100,
	"checkout.flat.shipping.minor":           4900,
	"checkout.free.shipping.threshold.minor": 99900,
	"checkout.tax.rate.percent":              "5",
	"checkout.delivery.days":                 7,
	"checkout.default.parcel.grams":          500,
	"checkout.followup.max.attempts":         5,
	"checkout.followup.backoff":              "30s",
	"db.host":                                "localhost",
	"db.port":                                "5432",
	"db.user":                                "postgres",
	"db.password":                            "postgres",
	"db.name":                                "storefront",
	"db.sslmode":                             "disable",
	"db.max.conns":                           "25",
	"db.min.conns":                           "5",
	"db.max.conn.lifetime":                   "5m",
}

// Load reads configuration from environment variables, applying defaults when needed.
// Keys are dotted and map to upper-case underscored variables, e.g.
// checkout.delivery.days is CHECKOUT_DELIVERY_DAYS.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	httpCfg, err := loadHTTPConfig(v)
	if err != nil {
		return nil, fmt.Errorf("loading HTTP config: %w", err)
	}

	dbCfg, err := loadDatabaseConfig(v)
	if err != nil {
		return nil, fmt.Errorf("loading database config: %w", err)
	}

	rabbitCfg, err := loadRabbitMQConfig(v)
	if err != nil {
		return nil, fmt.Errorf("loading rabbitmq config: %w", err)
	}

	telCfg, err := loadTelemetryConfig(v)
	if err != nil {
		return nil, fmt.Errorf("loading telemetry config: %w", err)
	}

	paymentsCfg, err := loadPaymentsConfig(v)
	if err != nil {
		return nil, fmt.Errorf("loading payments config: %w", err)
	}

	shippingCfg, err := loadShippingConfig(v)
	if err != nil {
		return nil, fmt.Errorf("loading shipping config: %w", err)
	}

	checkoutCfg, err := loadCheckoutConfig(v)
	if err != nil {
		return nil, fmt.Errorf("loading checkout config: %w", err)
	}

	return &Config{
		HTTP:      httpCfg,
		Database:  dbCfg,
		Kafka:     loadKafkaConfig(v),
		RabbitMQ:  rabbitCfg,
		Telemetry: telCfg,
		Service:   loadServiceConfig(v),
		Auth:      AuthConfig{JWTSecret: v.GetString("auth.jwt.secret")},
		Payments:  paymentsCfg,
		Shipping:  shippingCfg,
		Checkout:  checkoutCfg,
	}, nil
}

func loadHTTPConfig(v *viper.Viper) (HTTPConfig, error) {
	port, err := intValue(v, "api.http.port")
	if err != nil {
		return HTTPConfig{}, err
	}

	shutdownGrace, err := intValue(v, "api.shutdown.grace.seconds")
	if err != nil {
		return HTTPConfig{}, err
	}

	return HTTPConfig{
		Port:          port,
		MetricsPath:   v.GetString("api.metrics.path"),
		ShutdownGrace: shutdownGrace,
	}, nil
}

func loadDatabaseConfig(v *viper.Viper) (DatabaseConfig, error) {
	databaseURL := v.GetString("database.url")
	if databaseURL == "" {
		databaseURL = buildDatabaseURL(v)
	}

	autoMigrate, err := boolValue(v, "auto.migrate")
	if err != nil {
		return DatabaseConfig{}, err
	}

	return DatabaseConfig{
		URL:            databaseURL,
		AutoMigrate:    autoMigrate,
		MigrationsPath: v.GetString("migrations.path"),
	}, nil
}

func loadKafkaConfig(v *viper.Viper) KafkaConfig {
	var brokers []string
	for _, broker := range strings.Split(v.GetString("kafka.brokers"), ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}

	return KafkaConfig{
		Brokers:    brokers,
		OrderTopic: v.GetString("kafka.order.topic"),
	}
}

func loadRabbitMQConfig(v *viper.Viper) (RabbitMQConfig, error) {
	prefetch, err := intValue(v, "rabbitmq.prefetch")
	if err != nil {
		return RabbitMQConfig{}, err
	}

	return RabbitMQConfig{
		URL:           v.GetString("rabbitmq.url"),
		FollowupQueue: v.GetString("rabbitmq.followup.queue"),
		Prefetch:      prefetch,
	}, nil
}

func loadTelemetryConfig(v *viper.Viper) (TelemetryConfig, error) {
	enableTracing, err := boolValue(v, "otel.enable.tracing")
	if err != nil {
		return TelemetryConfig{}, err
	}
	enableMetrics, err := boolValue(v, "otel.enable.metrics")
	if err != nil {
		return TelemetryConfig{}, err
	}

	sampleRate, err := strconv.ParseFloat(v.GetString("otel.sample.rate"), 64)
	if err != nil {
		return TelemetryConfig{}, fmt.Errorf("invalid %s: %w", envName("otel.sample.rate"), err)
	}

	return TelemetryConfig{
		LogLevel:      v.GetString("log.level"),
		OTelEndpoint:  v.GetString("otel.exporter.otlp.endpoint"),
		EnableTracing: enableTracing,
		EnableMetrics: enableMetrics,
		SampleRate:    sampleRate,
	}, nil
}

func loadServiceConfig(v *viper.Viper) ServiceConfig {
	return ServiceConfig{
		Name:        v.GetString("api.service.name"),
		Version:     v.GetString("service.version"),
		Environment: v.GetString("environment"),
	}
}

func loadPaymentsConfig(v *viper.Viper) (PaymentsConfig, error) {
	timeout, err := durationValue(v, "payments.verify.timeout")
	if err != nil {
		return PaymentsConfig{}, err
	}

	return PaymentsConfig{
		GatewaySecret: v.GetString("payments.gateway.secret"),
		VerifyTimeout: timeout,
	}, nil
}

func loadShippingConfig(v *viper.Viper) (ShippingConfig, error) {
	timeout, err := durationValue(v, "shipping.timeout")
	if err != nil {
		return ShippingConfig{}, err
	}
	attempts, err := intValue(v, "shipping.max.attempts")
	if err != nil {
		return ShippingConfig{}, err
	}
	parcelGrams, err := intValue(v, "checkout.default.parcel.grams")
	if err != nil {
		return ShippingConfig{}, err
	}

	return ShippingConfig{
		CarrierURL:         v.GetString("shipping.carrier.url"),
		CarrierToken:       v.GetString("shipping.carrier.token"),
		PickupLocation:     v.GetString("shipping.pickup.location"),
		Timeout:            timeout,
		MaxAttempts:        attempts,
		DefaultParcelGrams: parcelGrams,
	}, nil
}

func loadCheckoutConfig(v *viper.Viper) (CheckoutConfig, error) {
	var cfg CheckoutConfig
	var err error

	if cfg.PointValueMinor, err = int64Value(v, "checkout.point.value.minor"); err != nil {
		return CheckoutConfig{}, err
	}
	if cfg.FlatShippingMinor, err = int64Value(v, "checkout.flat.shipping.minor"); err != nil {
		return CheckoutConfig{}, err
	}
	if cfg.FreeShippingThresholdMinor, err = int64Value(v, "checkout.free.shipping.threshold.minor"); err != nil {
		return CheckoutConfig{}, err
	}
	if cfg.TaxRatePercent, err = decimal.NewFromString(v.GetString("checkout.tax.rate.percent")); err != nil {
		return CheckoutConfig{}, fmt.Errorf("invalid %s: %w", envName("checkout.tax.rate.percent"), err)
	}
	if cfg.DeliveryDays, err = intValue(v, "checkout.delivery.days"); err != nil {
		return CheckoutConfig{}, err
	}
	if cfg.FollowupMaxAttempts, err = intValue(v, "checkout.followup.max.attempts"); err != nil {
		return CheckoutConfig{}, err
	}
	if cfg.FollowupBackoff, err = durationValue(v, "checkout.followup.backoff"); err != nil {
		return CheckoutConfig{}, err
	}
	if cfg.PointValueMinor <= 0 {
		return CheckoutConfig{}, fmt.Errorf("invalid %s: must be positive", envName("checkout.point.value.minor"))
	}
	return cfg, nil
}

func buildDatabaseURL(v *viper.Viper) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%s&pool_min_conns=%s&pool_max_conn_lifetime=%s",
		v.GetString("db.user"),
		v.GetString("db.password"),
		v.GetString("db.host"),
		v.GetString("db.port"),
		v.GetString("db.name"),
		v.GetString("db.sslmode"),
		v.GetString("db.max.conns"),
		v.GetString("db.min.conns"),
		v.GetString("db.max.conn.lifetime"),
	)
}

// Viper's typed getters swallow parse errors, so values are read as strings.

func intValue(v *viper.Viper, key string) (int, error) {
	parsed, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", envName(key), err)
	}
	return parsed, nil
}

func int64Value(v *viper.Viper, key string) (int64, error) {
	parsed, err := strconv.ParseInt(strings.TrimSpace(v.GetString(key)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", envName(key), err)
	}
	return parsed, nil
}

func boolValue(v *viper.Viper, key string) (bool, error) {
	parsed, err := strconv.ParseBool(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", envName(key), err)
	}
	return parsed, nil
}

func durationValue(v *viper.Viper, key string) (time.Duration, error) {
	parsed, err := time.ParseDuration(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", envName(key), err)
	}
	return parsed, nil
}

func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
