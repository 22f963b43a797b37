package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPPort string

	StorageDriver    string
	DBHost           string
	DBPort           string
	DBUser           string
	DBPassword       string
	DBName           string
	DBMaxConnections int
	SQLitePath       string

	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string

	StreamInterval time.Duration

	WebhookWorkers int
	WebhookQueue   int
	WebhookTimeout time.Duration

	RequestTTL    time.Duration
	SweepInterval time.Duration
}

func Load() *Config {
	return &Config{
		HTTPPort: getEnv("HTTP_PORT", "9999"),

		StorageDriver:    getEnv("STORAGE_DRIVER", "postgres"),
		DBHost:           getEnv("DB_HOST", "localhost"),
		DBPort:           getEnv("DB_PORT", "5432"),
		DBUser:           getEnv("DB_USER", "postgres"),
		DBPassword:       getEnv("DB_PASSWORD", "postgres"),
		DBName:           getEnv("DB_NAME", "upi"),
		DBMaxConnections: getEnvInt("DB_MAXCONNECTIONS", 25),
		SQLitePath:       getEnv("SQLITE_PATH", "upi-gateway.db"),

		RedisEnabled:  getEnvBool("REDIS_ENABLED", false),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		StreamInterval: getEnvDuration("STREAM_INTERVAL", 5*time.Second),

		WebhookWorkers: getEnvInt("WEBHOOK_WORKERS", 4),
		WebhookQueue:   getEnvInt("WEBHOOK_QUEUE", 1024),
		WebhookTimeout: getEnvDuration("WEBHOOK_TIMEOUT", 5*time.Second),

		RequestTTL:    getEnvDuration("REQUEST_TTL", 0),
		SweepInterval: getEnvDuration("SWEEP_INTERVAL", time.Minute),
	}
}

// PostgresDSN builds the pgx connection string from the DB_* settings.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
