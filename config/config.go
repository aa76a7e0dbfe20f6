/*
Package config loads server configuration from the environment.

SOURCES (later wins):
  1. Defaults in the struct tags below
  2. .env file in the working directory, if present
  3. Process environment
  4. Command-line flags in cmd/server (-port, -db)

PAYMENTS:
  STRIPE_SECRET_KEY unset means no payment gateway. Free guides can still be
  claimed; paid purchases fail with 503.

OPTIONAL INTEGRATIONS:
  KAFKA_BOOTSTRAP_SERVERS unset: purchase events are logged, not published.
  SMTP_HOST or MAIL_FROM unset: notifications are stored in-app only.
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DBPath      string `env:"DB_PATH" envDefault:"guides.db"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Payments
	StripeSecretKey string        `env:"STRIPE_SECRET_KEY"`
	StripeAPIBase   string        `env:"STRIPE_API_BASE" envDefault:"https://api.stripe.com"`
	StripeRetries   int64         `env:"STRIPE_MAX_NETWORK_RETRIES" envDefault:"2"`
	PaymentTimeout  time.Duration `env:"PAYMENT_TIMEOUT" envDefault:"10s"`
	Currency        string        `env:"DEFAULT_CURRENCY" envDefault:"usd"`

	// Side-effect retries
	RetryAttempts  int           `env:"RETRY_ATTEMPTS" envDefault:"3"`
	RetryBaseDelay time.Duration `env:"RETRY_BASE_DELAY" envDefault:"50ms"`

	// Outbox worker
	OutboxEnabled     bool          `env:"OUTBOX_ENABLED" envDefault:"true"`
	OutboxInterval    time.Duration `env:"OUTBOX_INTERVAL" envDefault:"10s"`
	OutboxBatchSize   int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
	OutboxMaxAttempts int           `env:"OUTBOX_MAX_ATTEMPTS" envDefault:"5"`

	KafkaBootstrapServers string `env:"KAFKA_BOOTSTRAP_SERVERS"`
	KafkaTopic            string `env:"KAFKA_TOPIC" envDefault:"guide_purchases"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     string `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	MailFrom     string `env:"MAIL_FROM"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:8080"`
}

// Load reads .env (if any) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.WithError(err).Warn("Could not load .env file")
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("DB_PATH is required")
	}
	if c.PaymentTimeout <= 0 {
		return errors.New("PAYMENT_TIMEOUT must be positive")
	}
	if c.StripeRetries < 0 {
		return errors.New("STRIPE_MAX_NETWORK_RETRIES must not be negative")
	}
	if c.RetryAttempts < 1 {
		return errors.New("RETRY_ATTEMPTS must be at least 1")
	}
	if c.OutboxEnabled && c.OutboxInterval <= 0 {
		return errors.New("OUTBOX_INTERVAL must be positive")
	}
	if c.OutboxMaxAttempts < 1 {
		return errors.New("OUTBOX_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// KafkaServers strips quotes that docker-compose files tend to leave in.
func (c Config) KafkaServers() string {
	return strings.Trim(c.KafkaBootstrapServers, "\"")
}

// ConfigureLogging sets the global logrus formatter and level.
func (c Config) ConfigureLogging() {
	log.SetOutput(os.Stdout)
	if c.IsProduction() {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.WithField("log_level", c.LogLevel).Warn("Unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
