package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreBackendMongo  = "mongo"
	StoreBackendMemory = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env

	// Storage
	StoreBackend string
	MongoURI     string
	MongoDbName  string
	TxMaxRetries int

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Server
	ServiceApiPort string

	// Reservations
	ReservationExpiryDays int
	ExpirySweepCron       string

	// Notifications
	NotifyChannelPrefix string
	MockServices        bool
	LogNotifications    string // File path; empty disables the file sink

	// App Defaults
	AppName string
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	godotenv.Load()

	cfg := &Config{
		RunMode: runMode, // Set from flag
	}

	var err error

	// Helper function to get env var or default
	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	// Helper function to get required env var
	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	cfg.StoreBackend = getEnv("STORE_BACKEND", StoreBackendMongo)
	switch cfg.StoreBackend {
	case StoreBackendMongo:
		cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
		if err != nil {
			return nil, err
		}
	case StoreBackendMemory:
		cfg.MongoURI = getEnv("MONGO_URI", "")
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND: %q (want %q or %q)", cfg.StoreBackend, StoreBackendMongo, StoreBackendMemory)
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "realty")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.ServiceApiPort = getEnv("SERVICE_API_PORT", "12345")
	cfg.ExpirySweepCron = getEnv("EXPIRY_SWEEP_CRON", "0 0 * * *")
	cfg.NotifyChannelPrefix = getEnv("NOTIFY_CHANNEL_PREFIX", "realty:notify")
	cfg.MockServices = getEnv("MOCK_SERVICES", "") == "true"
	cfg.LogNotifications = getEnv("LOG_NOTIFICATIONS", "")
	cfg.AppName = getEnv("APP_NAME", "Realty")

	// Load numeric values with defaults and parsing
	cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg.TxMaxRetries, err = strconv.Atoi(getEnv("TX_MAX_RETRIES", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid TX_MAX_RETRIES: %w", err)
	}
	if cfg.TxMaxRetries < 0 {
		return nil, fmt.Errorf("invalid TX_MAX_RETRIES: must not be negative")
	}

	cfg.ReservationExpiryDays, err = strconv.Atoi(getEnv("RESERVATION_EXPIRY_DAYS", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid RESERVATION_EXPIRY_DAYS: %w", err)
	}
	if cfg.ReservationExpiryDays <= 0 {
		return nil, fmt.Errorf("invalid RESERVATION_EXPIRY_DAYS: must be positive")
	}

	return cfg, nil
}

// Default returns the configuration used when nothing is set, with the in-memory store.
// Tests build on it.
func Default() *Config {
	return &Config{
		RunMode:               "all",
		StoreBackend:          StoreBackendMemory,
		MongoDbName:           "realty",
		TxMaxRetries:          3,
		RedisAddr:             "localhost:6379",
		ServiceApiPort:        "12345",
		ReservationExpiryDays: 30,
		ExpirySweepCron:       "0 0 * * *",
		NotifyChannelPrefix:   "realty:notify",
		AppName:               "Realty",
	}
}
