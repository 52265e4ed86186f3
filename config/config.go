package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Environment string
	LogLevel    string
	LogFormat   string

	// Storage configuration: memory, redis or sqlite
	StoreDriver string
	SQLitePath  string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string
	PubNubOrigin       string

	// Wait-time engine
	AverageWindowSize int
	AverageResetAfter time.Duration
	ResetCronSpec     string
	ResetInterval     time.Duration
	ResetTimeout      time.Duration
	PersistTimeout    time.Duration

	// QR join
	JoinTokenSecret   string
	JoinBaseURL       string
	JoinTokenExpiry   time.Duration
	RedeemLimit       int
	RedeemLimitWindow time.Duration

	// Worker
	WorkerConcurrency int

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() *Config {
	if err := godotenv.Load(getEnv("ENV_FILE", ".env")); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load env file", "error", err)
	}

	return &Config{
		// Server
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),

		// Storage
		StoreDriver: getEnv("STORE_DRIVER", "redis"),
		SQLitePath:  getEnv("SQLITE_PATH", "queue.db"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "service-queue"),
		PubNubOrigin:       getEnv("PUBNUB_ORIGIN", ""),

		// Wait-time engine
		AverageWindowSize: getEnvAsInt("AVERAGE_WINDOW_SIZE", 20),
		AverageResetAfter: getEnvAsDuration("AVERAGE_RESET_AFTER", "2160h"),
		ResetCronSpec:     getEnv("RESET_CRON_SPEC", "0 3 * * *"),
		ResetInterval:     getEnvAsDuration("RESET_INTERVAL", "24h"),
		ResetTimeout:      getEnvAsDuration("RESET_TIMEOUT", "5m"),
		PersistTimeout:    getEnvAsDuration("PERSIST_TIMEOUT", "5s"),

		// QR join
		JoinTokenSecret:   getEnv("JOIN_TOKEN_SECRET", ""),
		JoinBaseURL:       getEnv("JOIN_BASE_URL", "http://localhost:8090/join"),
		JoinTokenExpiry:   getEnvAsDuration("JOIN_TOKEN_EXPIRY", "60m"),
		RedeemLimit:       getEnvAsInt("REDEEM_LIMIT", 10),
		RedeemLimitWindow: getEnvAsDuration("REDEEM_LIMIT_WINDOW", "1m"),

		// Worker
		WorkerConcurrency: getEnvAsInt("WORKER_CONCURRENCY", 10),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
