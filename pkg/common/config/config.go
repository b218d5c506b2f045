package config

import (
	"os"
	"strconv"
	"time"
)

// EtlConfig carries every tunable of the sync engine. Defaults mirror the
// values the upstream operators run with in production.
type EtlConfig struct {
	FullCron               string
	IncrementalCron        string
	MaxPages               int
	PageLimit              int
	NewWindowHours         int
	RequestDelay           time.Duration
	StopThreshold          int
	HTTPTimeout            time.Duration
	MaxRetries             int
	RetryBaseDelay         time.Duration
	MaxDeactivationPercent int
	MinDeactivationCount   int
	BatchSaveConcurrency   int
}

type Config struct {
	// Server
	ServerPort string
	ServerHost string

	// Upstream vacancy API
	MagangHubBase string
	Timezone      string

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers []string
	EventsTopic  string

	// Normalizer
	FieldMapPath string

	Etl EtlConfig
}

func Load() *Config {
	return &Config{
		ServerPort: getEnv("SERVER_PORT", "3000"),
		ServerHost: getEnv("SERVER_HOST", "0.0.0.0"),

		MagangHubBase: getEnv("MAGANGHUB_BASE", "https://maganghub.kemnaker.go.id/be/v1/api"),
		Timezone:      getEnv("TZ", "Asia/Jakarta"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "magangradar"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "magangradar123"),
		PostgresDB:       getEnv("POSTGRES_DB", "magangradar"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers: getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		EventsTopic:  getEnv("SYNC_EVENTS_TOPIC", ""),

		FieldMapPath: getEnv("FIELD_MAP_PATH", ""),

		Etl: EtlConfig{
			FullCron:               getEnv("ETL_FULL_CRON", "0 3 * * *"),
			IncrementalCron:        getEnv("ETL_INC_CRON", "0 */2 * * *"),
			MaxPages:               getIntEnv("ETL_MAX_PAGES", 3),
			PageLimit:              getIntEnv("ETL_LIMIT", 50),
			NewWindowHours:         getIntEnv("NEW_WINDOW_HOURS", 72),
			RequestDelay:           getDuration("REQUEST_DELAY", 800*time.Millisecond),
			StopThreshold:          getIntEnv("STOP_THRESHOLD", 100),
			HTTPTimeout:            getDuration("HTTP_TIMEOUT", 60*time.Second),
			MaxRetries:             getIntEnv("HTTP_MAX_RETRIES", 3),
			RetryBaseDelay:         getDuration("HTTP_RETRY_DELAY", 2*time.Second),
			MaxDeactivationPercent: getIntEnv("ETL_MAX_DEACTIVATION_PERCENT", 25),
			MinDeactivationCount:   getIntEnv("ETL_MIN_DEACTIVATION_COUNT", 50),
			BatchSaveConcurrency:   getIntEnv("ETL_BATCH_SAVE_CONCURRENCY", 10),
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
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return []string{value}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
