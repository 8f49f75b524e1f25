package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Scanner  ScannerConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	AutoMigrate  bool
}

type RedisConfig struct {
	Addr string
	// Backend selects where the capacity counters live: "postgres" (default)
	// or "redis".
	Backend string
}

type KafkaConfig struct {
	Brokers   []string
	ScanTopic string
	Enabled   bool
}

// ScannerConfig carries the session state machine timings. Tests shrink
// these; production values favor operators re-reading slowly.
type ScannerConfig struct {
	DebounceWindow     time.Duration
	ErrorClearDelay    time.Duration
	SuccessClearDelay  time.Duration
	DebounceClearDelay time.Duration
	CommitRetries      int
	QRSecret           string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "admission_user"),
			Password:     getEnv("DB_PASSWORD", "admission_pass"),
			Database:     getEnv("DB_NAME", "admission"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			AutoMigrate:  getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:    getEnv("REDIS_ADDR", "localhost:6379"),
			Backend: getEnv("COUNTER_BACKEND", "postgres"),
		},
		Kafka: KafkaConfig{
			Brokers:   []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			ScanTopic: getEnv("KAFKA_TOPIC_SCANS", "scan-events"),
			Enabled:   getEnvBool("KAFKA_ENABLED", false),
		},
		Scanner: ScannerConfig{
			DebounceWindow:     time.Duration(getEnvInt("SCAN_DEBOUNCE_MS", 2000)) * time.Millisecond,
			ErrorClearDelay:    time.Duration(getEnvInt("SCAN_ERROR_CLEAR_MS", 1500)) * time.Millisecond,
			SuccessClearDelay:  time.Duration(getEnvInt("SCAN_SUCCESS_CLEAR_MS", 3000)) * time.Millisecond,
			DebounceClearDelay: time.Duration(getEnvInt("SCAN_DEBOUNCE_CLEAR_MS", 500)) * time.Millisecond,
			CommitRetries:      getEnvInt("SCAN_COMMIT_RETRIES", 3),
			QRSecret:           getEnv("QR_SECRET_KEY", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
