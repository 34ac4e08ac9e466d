package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Supported database drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the daemon configuration, sourced from the environment
type Config struct {
	DBDriver string
	DBPath   string // sqlite database file
	DBDSN    string // postgres DSN, built from DB_* variables

	PollInterval time.Duration // change-source rescan cadence
	WorkerCount  int           // watch pipeline shards

	ListenAddr           string
	JWTSecret            string
	OperatorPasswordHash string // bcrypt hash of the API operator password

	SMTPAddr   string // host:port of the mail relay; empty disables mail alerts
	MailFrom   string
	MailTo     string
	WebhookURL string // alert webhook endpoint; empty disables webhook alerts
}

// Load builds a Config from environment variables with development defaults
func Load() *Config {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_USER", "sentinel"),
		getEnv("DB_PASSWORD", "sentinel"),
		getEnv("DB_NAME", "sentinel"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_SSLMODE", "disable"),
		getEnv("DB_TIMEZONE", "UTC"),
	)

	return &Config{
		DBDriver: getEnv("SENTINEL_DB_DRIVER", DriverSQLite),
		DBPath:   getEnv("SENTINEL_DB_PATH", "/var/lib/sentinel/sentinel.db"),
		DBDSN:    dsn,

		PollInterval: getDurationEnv("SENTINEL_POLL_INTERVAL", 30*time.Second),
		WorkerCount:  getIntEnv("SENTINEL_WORKERS", 4),

		ListenAddr:           getEnv("SENTINEL_LISTEN_ADDR", ":3000"),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		OperatorPasswordHash: getEnv("SENTINEL_OPERATOR_PASSWORD_HASH", ""),

		SMTPAddr:   getEnv("SENTINEL_SMTP_ADDR", ""),
		MailFrom:   getEnv("SENTINEL_MAIL_FROM", "sentinel@localhost"),
		MailTo:     getEnv("SENTINEL_MAIL_TO", "root@localhost"),
		WebhookURL: getEnv("SENTINEL_WEBHOOK_URL", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv retrieves a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

// getIntEnv retrieves an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return defaultValue
	}
	return n
}
