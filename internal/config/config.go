// Package config loads Dispatch's runtime configuration from the
// environment. spec.md places environment/config loading out of the core's
// scope as an external collaborator; this package is the thin collaborator
// that does it: a plain struct with a Default and env-driven overrides,
// in the same spirit as mchenetz-SPLAI's NewServer, which reads
// os.Getenv directly rather than through a config framework.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every environment-sourced setting spec.md §6 names.
type Config struct {
	// KV store (Redis) connection.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Primary store (SQLite) path.
	SQLitePath string

	// Dispatch Coordinator HTTP server port.
	ServerPort int

	// Per-type webhook URLs for SMS/NOTIFICATION jobs.
	SMSWebhookURL          string
	NotificationWebhookURL string

	// Email Adapter (C8) config DB path and log DB path.
	EmailConfigDBPath string
	EmailLogDBPath    string

	// Script Runner (C10) task-scheduler DB path and scripts directory.
	TaskSchedulerDBPath string
	ScriptsDir          string

	// Messaging Adapter (C9).
	MessagingGatewayURL     string
	MessagingDefaultDelayMs int
	SecondaryGatewayURL     string
	SecondaryGatewayToken   string

	// Resource gate settings (C10), fixed when the script adapter is built.
	ResourceCPUThreshold    float64
	ResourceMemThreshold    float64
	ResourceCheckInterval   time.Duration
	ResourceCheckRetries    int

	// Ambient.
	ShutdownTimeout time.Duration
	PollInterval    time.Duration

	// Worker Supervisor (C5): path to the workerd binary and the
	// coordinator URL handed to each spawned worker process.
	WorkerBinaryPath string
	CoordinatorURL   string

	// Script Runner (C10) periodic schedule: a JSON array of
	// {"expr","taskId","script","args"} entries, operator-configured —
	// spec.md names no external schedule-definition surface beyond the
	// CRONJOB job type itself.
	CronSchedule string

	// Rate limiter (C1) bucket gating outbound script runs, spec.md §4.5.
	ScriptRateLimitKey        string
	ScriptRateLimitMaxTokens  int
	ScriptRateLimitRefillRate float64
	ScriptRateLimitKeyExpiry  int
}

// Default returns a Config with the defaults spec.md §4.8 and the rest of
// the document imply where it states a value without an override.
func Default() Config {
	return Config{
		RedisAddr:               "127.0.0.1:6379",
		RedisDB:                 0,
		SQLitePath:              "dispatch.db",
		ServerPort:              8080,
		EmailConfigDBPath:       "email_config.db",
		EmailLogDBPath:          "email_log.db",
		TaskSchedulerDBPath:     "task_scheduler.db",
		ScriptsDir:              "./scripts",
		MessagingDefaultDelayMs: 0,
		ResourceCPUThreshold:    80,
		ResourceMemThreshold:    85,
		ResourceCheckInterval:   5 * time.Second,
		ResourceCheckRetries:    3,
		ShutdownTimeout:         30 * time.Second,
		PollInterval:            1 * time.Second,
		WorkerBinaryPath:        "workerd",
		CoordinatorURL:          "http://127.0.0.1:8080",
		ScriptRateLimitKey:      "ratelimit:script-runner",
		ScriptRateLimitMaxTokens: 10,
		ScriptRateLimitRefillRate: 1,
		ScriptRateLimitKeyExpiry: 3600,
	}
}

// Load returns a Config seeded with Default() and overridden by any
// recognized environment variable that is set.
func Load() (Config, error) {
	c := Default()

	str(&c.RedisAddr, "DISPATCH_REDIS_ADDR")
	str(&c.RedisPassword, "DISPATCH_REDIS_PASSWORD")
	if err := intVar(&c.RedisDB, "DISPATCH_REDIS_DB"); err != nil {
		return c, err
	}
	str(&c.SQLitePath, "DISPATCH_SQLITE_PATH")
	if err := intVar(&c.ServerPort, "DISPATCH_SERVER_PORT"); err != nil {
		return c, err
	}
	str(&c.SMSWebhookURL, "DISPATCH_SMS_WEBHOOK_URL")
	str(&c.NotificationWebhookURL, "DISPATCH_NOTIFICATION_WEBHOOK_URL")
	str(&c.EmailConfigDBPath, "DISPATCH_EMAIL_CONFIG_DB_PATH")
	str(&c.EmailLogDBPath, "DISPATCH_EMAIL_LOG_DB_PATH")
	str(&c.TaskSchedulerDBPath, "DISPATCH_TASK_SCHEDULER_DB_PATH")
	str(&c.ScriptsDir, "DISPATCH_SCRIPTS_DIR")
	str(&c.MessagingGatewayURL, "DISPATCH_MESSAGING_GATEWAY_URL")
	if err := intVar(&c.MessagingDefaultDelayMs, "DISPATCH_MESSAGING_DELAY_MS"); err != nil {
		return c, err
	}
	str(&c.SecondaryGatewayURL, "DISPATCH_SECONDARY_GATEWAY_URL")
	str(&c.SecondaryGatewayToken, "DISPATCH_SECONDARY_GATEWAY_TOKEN")
	if err := floatVar(&c.ResourceCPUThreshold, "DISPATCH_RESOURCE_CPU_THRESHOLD"); err != nil {
		return c, err
	}
	if err := floatVar(&c.ResourceMemThreshold, "DISPATCH_RESOURCE_MEM_THRESHOLD"); err != nil {
		return c, err
	}
	if err := durationVar(&c.ResourceCheckInterval, "DISPATCH_RESOURCE_CHECK_INTERVAL"); err != nil {
		return c, err
	}
	if err := intVar(&c.ResourceCheckRetries, "DISPATCH_RESOURCE_CHECK_RETRIES"); err != nil {
		return c, err
	}
	if err := durationVar(&c.ShutdownTimeout, "DISPATCH_SHUTDOWN_TIMEOUT"); err != nil {
		return c, err
	}
	if err := durationVar(&c.PollInterval, "DISPATCH_POLL_INTERVAL"); err != nil {
		return c, err
	}
	str(&c.WorkerBinaryPath, "DISPATCH_WORKER_BINARY_PATH")
	str(&c.CoordinatorURL, "DISPATCH_COORDINATOR_URL")
	str(&c.CronSchedule, "DISPATCH_CRON_SCHEDULE")
	str(&c.ScriptRateLimitKey, "DISPATCH_SCRIPT_RATE_LIMIT_KEY")
	if err := intVar(&c.ScriptRateLimitMaxTokens, "DISPATCH_SCRIPT_RATE_LIMIT_MAX_TOKENS"); err != nil {
		return c, err
	}
	if err := floatVar(&c.ScriptRateLimitRefillRate, "DISPATCH_SCRIPT_RATE_LIMIT_REFILL_RATE"); err != nil {
		return c, err
	}
	if err := intVar(&c.ScriptRateLimitKeyExpiry, "DISPATCH_SCRIPT_RATE_LIMIT_KEY_EXPIRY"); err != nil {
		return c, err
	}

	return c, nil
}

func str(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func intVar(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = n
	return nil
}

func floatVar(dst *float64, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = f
	return nil
}

func durationVar(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = d
	return nil
}
