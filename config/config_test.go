package config_test

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacavia/guide-ledger/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("KAFKA_BOOTSTRAP_SERVERS", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "guides.db", cfg.DBPath)
	assert.Equal(t, 10*time.Second, cfg.PaymentTimeout)
	assert.Equal(t, "usd", cfg.Currency)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 5, cfg.OutboxMaxAttempts)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:8080"}, cfg.AllowedOrigins)
	assert.Empty(t, cfg.StripeSecretKey)
	assert.Equal(t, int64(2), cfg.StripeRetries)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "3000")
	t.Setenv("ENVIRONMENT", "Production")
	t.Setenv("PAYMENT_TIMEOUT", "2s")
	t.Setenv("KAFKA_BOOTSTRAP_SERVERS", `"kafka:9092"`)
	t.Setenv("ALLOWED_ORIGINS", "https://sacavia.com")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 2*time.Second, cfg.PaymentTimeout)
	assert.Equal(t, "kafka:9092", cfg.KafkaServers())
	assert.Equal(t, []string{"https://sacavia.com"}, cfg.AllowedOrigins)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port out of range", "PORT", "70000"},
		{"zero payment timeout", "PAYMENT_TIMEOUT", "0s"},
		{"no retries", "RETRY_ATTEMPTS", "0"},
		{"negative stripe retries", "STRIPE_MAX_NETWORK_RETRIES", "-1"},
		{"unparsable duration", "OUTBOX_INTERVAL", "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(tt.key, tt.value)

			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

func TestConfigureLogging(t *testing.T) {
	defer log.SetLevel(log.GetLevel())

	config.Config{Environment: "production", LogLevel: "debug"}.ConfigureLogging()
	assert.Equal(t, log.DebugLevel, log.GetLevel())
	assert.IsType(t, &log.JSONFormatter{}, log.StandardLogger().Formatter)

	config.Config{LogLevel: "nonsense"}.ConfigureLogging()
	assert.Equal(t, log.InfoLevel, log.GetLevel())
	assert.IsType(t, &log.TextFormatter{}, log.StandardLogger().Formatter)
}
