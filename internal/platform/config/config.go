// Package config loads the process configuration from the environment once
// at startup. Everything downstream receives explicit values; nothing else
// reads environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every variable name.
const EnvPrefix = "CONFREG_"

// Config is the root configuration.
type Config struct {
	Server         Server         `envPrefix:"SERVER_"`
	Storage        Storage        `envPrefix:"STORE_"`
	Redis          RedisConfig    `envPrefix:"REDIS_"`
	Audit          Audit          `envPrefix:"AUDIT_"`
	Gateway        Gateway        `envPrefix:"GATEWAY_"`
	Pricing        Pricing        `envPrefix:"PRICING_"`
	Reconciliation Reconciliation `envPrefix:"RECONCILE_"`
	Admin          Admin          `envPrefix:"ADMIN_"`
	RateLimit      RateLimit      `envPrefix:"RATELIMIT_"`
	Tracing        Tracing        `envPrefix:"OTEL_"`
	LogLevel       string         `env:"LOG_LEVEL" envDefault:"info"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	// ResultPageURL is where the browser lands after the gateway redirect.
	ResultPageURL string `env:"RESULT_PAGE_URL" envDefault:"http://localhost:3000/payment/result"`
}

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Storage selects the participant store backend.
type Storage struct {
	Driver string `env:"DRIVER" envDefault:"sqlite"`
	DSN    string `env:"DSN" envDefault:"file:confreg.db"`
}

// RedisConfig configures the optional transaction-id reservation backend.
// An empty URL keeps reservations in process memory.
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
	// ReservationTTL bounds how long a reserved transaction id blocks reuse.
	ReservationTTL time.Duration `env:"RESERVATION_TTL" envDefault:"720h"`
}

// Audit configures the audit trail sink.
type Audit struct {
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"confreg.audit"`
	AsyncBuffer  int      `env:"ASYNC_BUFFER" envDefault:"256"`
	MemoryLimit  int      `env:"MEMORY_LIMIT" envDefault:"10000"`
}

// Gateway holds the payment gateway merchant settings. The defaults point at
// the public sandbox.
type Gateway struct {
	MerchantID  string        `env:"MERCHANT_ID" envDefault:"PGTESTPAYUAT86"`
	SaltKey     string        `env:"SALT_KEY" envDefault:"96434309-7796-489d-8924-ab56988a6076"`
	SaltIndex   string        `env:"SALT_INDEX" envDefault:"1"`
	BaseURL     string        `env:"BASE_URL" envDefault:"https://api-preprod.phonepe.com/apis/pg-sandbox"`
	RedirectURL string        `env:"REDIRECT_URL" envDefault:"http://localhost:8080/payment/redirect"`
	CallbackURL string        `env:"CALLBACK_URL" envDefault:"http://localhost:8080/payments/callback"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"15s"`

	BreakerFailureThreshold int           `env:"BREAKER_FAILURES" envDefault:"5"`
	BreakerCooldown         time.Duration `env:"BREAKER_COOLDOWN" envDefault:"30s"`
}

// LogValue keeps the salt key out of logs.
func (g Gateway) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("merchant_id", g.MerchantID),
		slog.String("salt_key", "[REDACTED]"),
		slog.String("salt_index", g.SaltIndex),
		slog.String("base_url", g.BaseURL),
		slog.String("redirect_url", g.RedirectURL),
		slog.String("callback_url", g.CallbackURL),
		slog.Duration("timeout", g.Timeout),
	)
}

// Pricing holds the tier deadlines. Both are inclusive.
type Pricing struct {
	EarlyBirdDeadline time.Time `env:"EARLY_BIRD_DEADLINE" envDefault:"2026-01-31T23:59:59+05:30"`
	RegularDeadline   time.Time `env:"REGULAR_DEADLINE" envDefault:"2026-02-20T23:59:59+05:30"`
}

// Reconciliation configures the pending sweeper and callback retries.
type Reconciliation struct {
	SweepInterval    time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
	StaleAfter       time.Duration `env:"STALE_AFTER" envDefault:"15m"`
	SweepConcurrency int           `env:"SWEEP_CONCURRENCY" envDefault:"4"`
	SweepBatch       int           `env:"SWEEP_BATCH" envDefault:"100"`
	CallbackRetry    time.Duration `env:"CALLBACK_RETRY_MAX_ELAPSED" envDefault:"10s"`
}

// Admin configures the bootstrap administrator. Empty email disables it.
type Admin struct {
	BootstrapEmail    string `env:"BOOTSTRAP_EMAIL"`
	BootstrapPassword string `env:"BOOTSTRAP_PASSWORD"`
}

// RateLimit bounds public requests per client address. Limits are shared
// across replicas when Redis is configured.
type RateLimit struct {
	Enabled    bool          `env:"ENABLED" envDefault:"true"`
	Requests   int           `env:"REQUESTS" envDefault:"30"`
	Window     time.Duration `env:"WINDOW" envDefault:"1m"`
	TrustProxy bool          `env:"TRUST_PROXY"`
}

// Tracing enables OTLP/HTTP span export when Endpoint is set.
type Tracing struct {
	Endpoint    string `env:"ENDPOINT"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"confreg"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: EnvPrefix})
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Storage.Driver))
	}
	if c.Storage.Driver != DriverMemory && c.Storage.DSN == "" {
		errs = append(errs, errors.New("store DSN is required"))
	}
	if c.Gateway.MerchantID == "" || c.Gateway.SaltKey == "" || c.Gateway.SaltIndex == "" {
		errs = append(errs, errors.New("gateway merchant id, salt key and salt index are required"))
	}
	if c.Pricing.RegularDeadline.Before(c.Pricing.EarlyBirdDeadline) {
		errs = append(errs, errors.New("regular deadline precedes early-bird deadline"))
	}
	if c.Reconciliation.SweepConcurrency < 1 {
		errs = append(errs, errors.New("sweep concurrency must be at least 1"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests < 1 || c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("rate limit needs a positive request count and window"))
	}
	if (c.Admin.BootstrapEmail == "") != (c.Admin.BootstrapPassword == "") {
		errs = append(errs, errors.New("admin bootstrap needs both email and password"))
	}
	return errors.Join(errs...)
}
