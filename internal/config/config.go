// Package config loads the engine's settings from the environment via
// koanf, validates them with go-playground/validator, and builds the typed
// sub-configs each adapter needs, the same layering the teacher uses
// (internal/config/config.go, database.go).
package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/env"
)

type Config struct {
	Primary  Primary              `koanf:"primary"`
	Server   ServerConfig         `koanf:"server"`
	Database DatabaseConfig       `koanf:"database"`
	Provider ProviderConfig       `koanf:"provider"`
	Retry    RetryConfig          `koanf:"retry"`
	Event    EventConfig          `koanf:"event"`
	Lock     LockConfig           `koanf:"lock"`
	Logger   LoggerConfig         `koanf:"logger"`
	Worker   WorkerConfig         `koanf:"worker"`
	Redis    RedisConfig          `koanf:"redis"`
	Kafka    KafkaConfig          `koanf:"kafka"`
	Webhook  WebhookConfig        `koanf:"webhook"`
	Limits   CustomerLimitsConfig `koanf:"limits"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type ServerConfig struct {
	Port         string        `koanf:"port" validate:"required"`
	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"required"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"required"`
	IdleTimeout  time.Duration `koanf:"idle_timeout" validate:"required"`
}

type DatabaseConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"required"`
	User            string        `koanf:"user" validate:"required"`
	Password        string        `koanf:"password" validate:"required"`
	Name            string        `koanf:"name" validate:"required"`
	SSLMode         string        `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"required"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"required"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"required"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time" validate:"required"`
}

// ProviderConfig points at the downstream payment network (spec §2
// PaymentProvider).
type ProviderConfig struct {
	BaseURL string        `koanf:"base_url" validate:"required"`
	Timeout time.Duration `koanf:"timeout" validate:"required"`
}

// ProviderRetryConfig governs the network-level retry decorator
// (adapters/provider.RetryingClient), distinct from RetryConfig which
// governs transaction-level recovery scheduling.
type ProviderRetryConfig struct {
	BaseDelay  time.Duration `koanf:"base_delay"`
	MaxRetries int           `koanf:"max_retries"`
}

// RetryConfig is spec §4.2/§6's RETRY_* knobs: how RetryManager computes
// backoff and when it gives up.
type RetryConfig struct {
	MaxAttempts  int                 `koanf:"max_attempts" validate:"required"`
	Backoff      string              `koanf:"backoff" validate:"required,oneof=fixed exponential"`
	InitialDelay time.Duration       `koanf:"initial_delay" validate:"required"`
	MaxDelay     time.Duration       `koanf:"max_delay" validate:"required"`
	Network      ProviderRetryConfig `koanf:"network"`
}

// EventConfig is spec §4.4/§4.5's EVENT_* knobs: outbox processor tick
// interval, batch size, retry ceiling, and pruning window.
type EventConfig struct {
	Interval   time.Duration `koanf:"interval" validate:"required"`
	BatchSize  int           `koanf:"batch_size" validate:"required"`
	MaxRetries int           `koanf:"max_retries" validate:"required"`
	PruneAfter time.Duration `koanf:"prune_after" validate:"required"`
	PruneEvery time.Duration `koanf:"prune_every" validate:"required"`
}

// LockConfig is spec §4.7's default TTL for record locks.
type LockConfig struct {
	DefaultTTL time.Duration `koanf:"default_ttl" validate:"required"`
}

type LoggerConfig struct {
	Level string `koanf:"level"`
}

type WorkerConfig struct {
	Interval  time.Duration `koanf:"interval" validate:"required"`
	BatchSize int           `koanf:"batch_size" validate:"required"`
}

// RedisConfig configures the optional idempotency-key read-through cache
// (internal/adapters/cache). A blank Addr disables the cache and the
// engine falls back to Postgres for every lookup.
type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	TTL      time.Duration `koanf:"ttl"`
}

// KafkaConfig configures the optional outbound event publisher
// (internal/adapters/kafkapublish). Empty Brokers disables the publisher.
type KafkaConfig struct {
	Brokers []string `koanf:"brokers"`
}

// WebhookConfig holds the shared secret used to verify the signatures of
// inbound provider webhook deliveries (internal/adapters/webhook).
type WebhookConfig struct {
	Secret string `koanf:"secret"`
}

// CustomerLimitsConfig configures the single per-transaction ceiling
// checkTransactionLimits enforces for every customer; there are no
// per-customer overrides.
type CustomerLimitsConfig struct {
	DefaultMaxAmountMinor int64 `koanf:"default_max_amount_minor" validate:"required"`
}

func LoadConfig() (*Config, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	k := koanf.New(".")

	err := k.Load(env.Provider("GATEWAY_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "GATEWAY_")),
			"__",
			".",
		)
	}), nil)
	if err != nil {
		logger.Error("failed to load environment variables", "error", err)
		return nil, err
	}

	mainConfig := &Config{}

	err = k.Unmarshal("", mainConfig)
	if err != nil {
		logger.Error("could not unmarshal main config", "error", err)
		return nil, err
	}

	validate := validator.New()

	err = validate.Struct(mainConfig)
	if err != nil {
		logger.Error("config validation failed", "error", err)
		return nil, err
	}

	return mainConfig, nil
}
