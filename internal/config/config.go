package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Database
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Scheduler
	DailyRunAt       string // "HH:MM", local time
	ReminderLeadDays int
	MaxParallelItems int
	ItemTimeout      time.Duration

	// Alert delivery
	AlertEmailTo   string
	AlertEmailFrom string
}

func Load() *Config {
	cfg := &Config{
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/bilancio.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "bilancio"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "budget_alerts"),

		DailyRunAt:       getEnv("DAILY_RUN_AT", "06:00"),
		ReminderLeadDays: getEnvInt("REMINDER_LEAD_DAYS", 3),
		MaxParallelItems: getEnvInt("MAX_PARALLEL_ITEMS", 4),
		ItemTimeout:      getEnvDuration("ITEM_TIMEOUT", 30*time.Second),

		AlertEmailTo:   getEnv("ALERT_EMAIL_TO", ""),
		AlertEmailFrom: getEnv("ALERT_EMAIL_FROM", ""),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// AMQP is optional; when set it must be coherent
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if _, err := ParseRunAt(c.DailyRunAt); err != nil {
		errors = append(errors, fmt.Sprintf("invalid daily run time '%s': %v", c.DailyRunAt, err))
	}

	if c.ReminderLeadDays < 0 {
		errors = append(errors, fmt.Sprintf("invalid reminder lead days %d: must be at least 0", c.ReminderLeadDays))
	} else if c.ReminderLeadDays > 60 {
		errors = append(errors, fmt.Sprintf("invalid reminder lead days %d: must be at most 60", c.ReminderLeadDays))
	}

	if c.MaxParallelItems < 1 {
		errors = append(errors, fmt.Sprintf("invalid max parallel items %d: must be at least 1", c.MaxParallelItems))
	} else if c.MaxParallelItems > 64 {
		errors = append(errors, fmt.Sprintf("invalid max parallel items %d: must be at most 64", c.MaxParallelItems))
	}

	if c.ItemTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid item timeout %v: must be at least 1 second", c.ItemTimeout))
	} else if c.ItemTimeout > time.Hour {
		errors = append(errors, fmt.Sprintf("invalid item timeout %v: must be at most 1 hour", c.ItemTimeout))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ParseRunAt parses a "HH:MM" wall-clock time into hour and minute.
func ParseRunAt(value string) (time.Duration, error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("must be in HH:MM format")
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("hour must be between 0 and 23")
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("minute must be between 0 and 59")
	}
	return time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
