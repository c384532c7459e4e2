package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"bilancio/internal/amqp"
	"bilancio/internal/config"
	"bilancio/internal/log"
	"bilancio/internal/mail"
	"bilancio/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := log.New(log.Config{Level: slog.LevelInfo, Component: log.ComponentWorker})
	log.SetDefault(logger)

	logger.Info("Starting alert-worker")

	// Load configuration
	cfg := config.Load()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the alert-worker")
		os.Exit(1)
	}
	if cfg.AlertEmailTo == "" {
		logger.Error("ALERT_EMAIL_TO is required for the alert-worker")
		os.Exit(1)
	}

	// Initialize AMQP client for consuming alert messages
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize mail delivery (optional, falls back to log-only)
	var sender mail.Sender
	if cfg.AlertEmailFrom != "" {
		gmailSender, err := mail.NewFromEnv(ctx, cfg.AlertEmailFrom)
		if err != nil {
			logger.Warn("Failed to initialize Gmail sender, emails will be logged only", "error", err)
			sender = mail.LogSender{}
		} else {
			sender = gmailSender
			logger.Info("Gmail sender initialized", "from", cfg.AlertEmailFrom)
		}
	} else {
		logger.Info("No ALERT_EMAIL_FROM configured, emails will be logged only")
		sender = mail.LogSender{}
	}

	alertWorker := worker.NewAlertWorker(sender, cfg.AlertEmailTo)

	// Start message consumption
	go func() {
		if err := amqpClient.ConsumeMessages(ctx, alertWorker.HandleThresholdAlert, alertWorker.HandleDueSoon); err != nil {
			if err != context.Canceled {
				logger.Error("Message consumption failed", "error", err)
			}
			cancel()
		}
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	// Give worker time to finish current deliveries
	logger.Info("Shutting down alert-worker...")
	cancel()

	time.Sleep(2 * time.Second)
	logger.Info("Alert-worker shutdown complete")
}
