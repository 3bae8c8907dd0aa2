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

	// External provider
	ProviderBaseURL  string
	ProviderClientID string
	ProviderSecret   string
	ProviderTimeout  time.Duration

	// Sync pipeline
	SyncPageDelay   time.Duration
	SyncConcurrency int

	// AMQP (webhook events)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Webhook receiver
	WebhookListenAddr string

	// Schedules (cron expressions)
	SyncSchedule   string
	DigestSchedule string

	// Notifications
	AlertRecipient string
}

func Load() *Config {
	return &Config{
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/bilancio.db"),

		ProviderBaseURL:  getEnv("PROVIDER_BASE_URL", "https://sandbox.plaid.com"),
		ProviderClientID: getEnv("PROVIDER_CLIENT_ID", ""),
		ProviderSecret:   getEnv("PROVIDER_SECRET", ""),
		ProviderTimeout:  getEnvDuration("PROVIDER_TIMEOUT", 30*time.Second),

		SyncPageDelay:   getEnvDuration("SYNC_PAGE_DELAY", 250*time.Millisecond),
		SyncConcurrency: getEnvInt("SYNC_CONCURRENCY", 4),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "bilancio"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "webhook_events"),

		WebhookListenAddr: getEnv("WEBHOOK_LISTEN_ADDR", ":8081"),

		SyncSchedule:   getEnv("SYNC_SCHEDULE", "0 */4 * * *"),
		DigestSchedule: getEnv("DIGEST_SCHEDULE", "0 7 * * *"),

		AlertRecipient: getEnv("ALERT_RECIPIENT", ""),
	}
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

	if c.ProviderBaseURL == "" {
		errors = append(errors, "provider base URL cannot be empty")
	} else if parsed, err := url.Parse(c.ProviderBaseURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid provider base URL '%s': %v", c.ProviderBaseURL, err))
	} else if parsed.Scheme != "http" && parsed.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid provider base URL scheme '%s': must be http or https", parsed.Scheme))
	}

	if c.ProviderTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid provider timeout %v: must be at least 1 second", c.ProviderTimeout))
	}

	if c.SyncConcurrency < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync concurrency %d: must be at least 1", c.SyncConcurrency))
	} else if c.SyncConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid sync concurrency %d: must be at most 64", c.SyncConcurrency))
	}

	if c.SyncPageDelay < 0 || c.SyncPageDelay > 10*time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync page delay %v: must be between 0 and 10s", c.SyncPageDelay))
	}

	if c.AMQPURL != "" {
		if parsed, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsed.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.WebhookListenAddr == "" {
		errors = append(errors, "webhook listen address cannot be empty")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
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
