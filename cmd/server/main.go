/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the guide purchase and creator earnings server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Initialize SQLite store (migrations run on open)
  3. Wire payment gateway, notification emitter and outbox publisher
  4. Create purchase and earnings services, API handler and router
  5. Start outbox worker and HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the outbox worker, flush the Kafka producer
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server -db="./data/guides.db"

  # Run with in-memory database and demo scenarios
  ./server -db=":memory:"

ENVIRONMENT:
  See config/config.go for the full list.

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Environment variables
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sacavia/guide-ledger/api"
	"github.com/sacavia/guide-ledger/config"
	"github.com/sacavia/guide-ledger/earnings"
	"github.com/sacavia/guide-ledger/ledger"
	"github.com/sacavia/guide-ledger/notify"
	"github.com/sacavia/guide-ledger/outbox"
	"github.com/sacavia/guide-ledger/payment"
	"github.com/sacavia/guide-ledger/purchase"
	"github.com/sacavia/guide-ledger/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()
	cfg.Port, cfg.DBPath = *port, *dbPath

	cfg.ConfigureLogging()

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer store.Close()

	// Payment gateway: none configured means free guides only
	var gateway payment.Gateway
	stripe := payment.NewStripe(payment.StripeConfig{
		SecretKey:         cfg.StripeSecretKey,
		BaseURL:           cfg.StripeAPIBase,
		MaxNetworkRetries: cfg.StripeRetries,
	})
	if stripe != nil {
		gateway = payment.WithTimeout(stripe, cfg.PaymentTimeout)
	} else {
		log.Warn("STRIPE_SECRET_KEY not set: paid guide purchases are disabled")
	}

	// Notifications
	var mailer notify.Mailer
	if m := notify.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom); m != nil {
		mailer = m
	}
	emitter := notify.NewEmitter(store, mailer)

	// Outbox publisher
	var publisher outbox.Publisher
	if servers := cfg.KafkaServers(); servers != "" {
		kafka, err := outbox.NewKafkaPublisher(servers, cfg.KafkaTopic)
		if err != nil {
			log.WithError(err).Fatal("Failed to create Kafka producer")
		}
		defer kafka.Close(5 * time.Second)
		publisher = kafka
		log.WithFields(log.Fields{"kafka_servers": servers, "topic": cfg.KafkaTopic}).Info("Publishing purchase events to Kafka")
	}

	retry := ledger.RetryPolicy{Attempts: cfg.RetryAttempts, BaseDelay: cfg.RetryBaseDelay}
	purchases := purchase.NewService(store, gateway, emitter, purchase.Options{
		Currency: cfg.Currency,
		Retry:    retry,
	})
	earn := earnings.NewService(store, nil)

	worker := outbox.NewWorker(store, emitter, publisher)
	worker.Interval = cfg.OutboxInterval
	worker.BatchSize = cfg.OutboxBatchSize
	worker.MaxAttempts = cfg.OutboxMaxAttempts
	worker.Enabled = cfg.OutboxEnabled
	worker.Start()

	// Initialize handler and router
	handler := api.NewHandler(store, purchases, earn, worker)
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins:  cfg.AllowedOrigins,
		EnableScenarios: !cfg.IsProduction(),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.PaymentTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.WithFields(log.Fields{
			"port":             cfg.Port,
			"db":               cfg.DBPath,
			"environment":      cfg.Environment,
			"payments_enabled": purchases.PaymentsEnabled(),
		}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	worker.Stop()

	log.Info("Server stopped")
}
