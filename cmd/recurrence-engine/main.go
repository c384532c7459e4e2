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
	"bilancio/internal/notify"
	"bilancio/internal/services"
	"bilancio/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := log.New(log.Config{Level: slog.LevelInfo, Component: log.ComponentScheduler})
	log.SetDefault(logger)

	logger.Info("Starting recurrence-engine")

	// Load configuration
	cfg := config.Load()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	// Initialize SQLite repository
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// Initialize AMQP client for publishing alert messages.
	// The alert-worker consumes these and delivers emails.
	var notifier services.Notifier
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, alerts will be logged only", "error", err)
			notifier = notify.NewLogNotifier()
		} else {
			defer amqpClient.Close()
			notifier = notify.NewAMQPNotifier(amqpClient)
			logger.Info("AMQP client initialized, alerts will be delivered via alert-worker")
		}
	} else {
		logger.Info("AMQP disabled, alerts will be logged only")
		notifier = notify.NewLogNotifier()
	}

	// Wire the engine: gate latches alerts, tracker computes budget usage,
	// scheduler materializes due recurring items.
	gate := services.NewAlertGate(repo, notifier)
	tracker := services.NewBudgetTracker(repo, gate)
	scheduler := services.NewRecurrenceScheduler(repo, tracker,
		services.WithMaxParallelItems(cfg.MaxParallelItems),
		services.WithItemTimeout(cfg.ItemTimeout))
	reminder := services.NewReminderService(repo, notifier, cfg.ReminderLeadDays)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runAt, _ := config.ParseRunAt(cfg.DailyRunAt)
	logger.Info("Recurrence engine configured",
		"daily_run_at", cfg.DailyRunAt,
		"reminder_lead_days", cfg.ReminderLeadDays,
		"sqlite_db", cfg.SQLiteDBPath)

	// Run once on startup to catch up anything due while the engine was down
	runEngine(ctx, scheduler, reminder)

	// Then run daily at the configured wall-clock time
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-time.After(untilNextRun(time.Now(), runAt)):
				logger.Info("Daily run starting", "at", now.Format("15:04:05"))
				runEngine(ctx, scheduler, reminder)
			}
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

	logger.Info("Shutting down recurrence-engine...")
	cancel()

	// Give in-flight item processing a moment to finish
	time.Sleep(2 * time.Second)
	logger.Info("Recurrence-engine shutdown complete")
}

func runEngine(ctx context.Context, scheduler *services.RecurrenceScheduler, reminder *services.ReminderService) {
	count, err := scheduler.RunOnce(ctx, time.Now())
	if err != nil {
		slog.ErrorContext(ctx, "Recurrence run failed", "error", err)
	} else {
		slog.InfoContext(ctx, "Recurrence run complete", "entries_created", count)
	}

	sent, err := reminder.RunOnce(ctx, time.Now())
	if err != nil {
		slog.ErrorContext(ctx, "Reminder run failed", "error", err)
	} else {
		slog.InfoContext(ctx, "Reminder run complete", "reminders_sent", sent)
	}
}

// untilNextRun returns the wait until the next occurrence of the daily
// wall-clock run time, always in the future.
func untilNextRun(now time.Time, runAt time.Duration) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Add(runAt)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
