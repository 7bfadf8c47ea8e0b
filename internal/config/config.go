package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	NewRelic     NewRelicConfig
	Log          LogConfig
	Scheduler    SchedulerConfig
	Webhook      WebhookConfig
	Payment      PaymentConfig
	Notification NotificationConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// CORSOrigins empty allows any origin.
	CORSOrigins []string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	// Timeout bounds dial, read and write on every command.
	Timeout time.Duration
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// LogConfig holds structured logging configuration.
type LogConfig struct {
	Level     string
	Format    string
	WarnStack bool
}

// SchedulerConfig holds the cron runner configuration.
type SchedulerConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
	LockKey   string
	LockTTL   time.Duration
	// TimeZone is the IANA zone that ride departure dates and times are read in.
	TimeZone string
}

// Location resolves TimeZone.
func (c SchedulerConfig) Location() (*time.Location, error) {
	if c.TimeZone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load departure time zone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// WebhookConfig holds payment gateway webhook configuration.
type WebhookConfig struct {
	// SentinelReferences are references the gateway sends when testing a
	// callback URL. They are acknowledged and ignored.
	SentinelReferences []string
	// TestReferencePrefix marks synthetic references that never have an intent.
	TestReferencePrefix string
	ReferenceLockTTL    time.Duration
}

// PaymentConfig holds payment intent configuration.
type PaymentConfig struct {
	IntentTTL      time.Duration
	StatusCacheTTL time.Duration
	ExpiryBatch    int
}

// NotificationConfig holds outbound notification configuration.
type NotificationConfig struct {
	Timeout time.Duration
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 5*time.Second),
			CORSOrigins:     getListEnv("CORS_ALLOWED_ORIGINS", nil),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "booking"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getDurationEnv("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			PoolSize: getIntEnv("REDIS_POOL_SIZE", 10),
			Timeout:  getDurationEnv("REDIS_TIMEOUT", 3*time.Second),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "booking-service"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Log: LogConfig{
			Level:     getEnv("LOG_LEVEL", "info"),
			Format:    getEnv("LOG_FORMAT", "json"),
			WarnStack: getBoolEnv("LOG_WARN_STACK", false),
		},
		Scheduler: SchedulerConfig{
			Enabled:   getBoolEnv("SCHEDULER_ENABLED", true),
			Interval:  getDurationEnv("SCHEDULER_INTERVAL", time.Minute),
			BatchSize: getIntEnv("SCHEDULER_BATCH_SIZE", 100),
			LockKey:   getEnv("SCHEDULER_LOCK_KEY", "lock:cron:booking"),
			LockTTL:   getDurationEnv("SCHEDULER_LOCK_TTL", 55*time.Second),
			TimeZone:  getEnv("DEPARTURE_TIME_ZONE", "Asia/Jakarta"),
		},
		Webhook: WebhookConfig{
			SentinelReferences:  getListEnv("WEBHOOK_SENTINEL_REFERENCES", []string{"test-payload", "xendit-test"}),
			TestReferencePrefix: getEnv("WEBHOOK_TEST_REFERENCE_PREFIX", "test-"),
			ReferenceLockTTL:    getDurationEnv("WEBHOOK_REFERENCE_LOCK_TTL", 30*time.Second),
		},
		Payment: PaymentConfig{
			IntentTTL:      getDurationEnv("PAYMENT_INTENT_TTL", 24*time.Hour),
			StatusCacheTTL: getDurationEnv("PAYMENT_STATUS_CACHE_TTL", 30*time.Second),
			ExpiryBatch:    getIntEnv("PAYMENT_EXPIRY_BATCH_SIZE", 200),
		},
		Notification: NotificationConfig{
			Timeout: getDurationEnv("NOTIFICATION_TIMEOUT", 5*time.Second),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
