package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Environment string
	SQLitePath  string
	// JWT Configuration
	JWTSecret      string
	IdempotencyTTL time.Duration
	// Kafka Configuration
	KafkaBrokers            []string
	KafkaTopicTasks         string
	KafkaTopicNotifications string
	KafkaTopicDLQ           string
	KafkaGroupID            string
	KafkaClientID           string
	KafkaRetries            int
	// Redis Configuration
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	// External inventory API
	GatewayBaseURL      string
	GatewayAppID        string
	GatewayAppSecret    string
	GatewayInstallToken string
	GatewayTimeout      time.Duration
	DefaultLocationID   string
	FloorLocationID     string
	// Worker Configuration
	TaskMaxAttempts      int
	TaskRetryDelay       time.Duration
	WorkerConcurrency    int
	SweepInterval        time.Duration
	SweepMaxAge          time.Duration
	StaleProcessingAfter time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Parse Kafka brokers (comma-separated)
	kafkaBrokersStr := getEnv("KAFKA_BROKERS", "localhost:9093")
	kafkaBrokers := strings.Split(kafkaBrokersStr, ",")
	for i, broker := range kafkaBrokers {
		kafkaBrokers[i] = strings.TrimSpace(broker)
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		SQLitePath:  getEnv("SQLITE_PATH", "./stock_sync.db"),
		// JWT Configuration
		JWTSecret:      getEnv("JWT_SECRET", "your-secret-key-change-in-production-min-32-chars"),
		IdempotencyTTL: getEnvAsDuration("IDEMPOTENCY_TTL", 5*time.Minute),
		// Kafka Configuration
		KafkaBrokers:            kafkaBrokers,
		KafkaTopicTasks:         getEnv("KAFKA_TOPIC_TASKS", "stock.sync.tasks"),
		KafkaTopicNotifications: getEnv("KAFKA_TOPIC_NOTIFICATIONS", "stock.sync.notifications"),
		KafkaTopicDLQ:           getEnv("KAFKA_TOPIC_DLQ", "stock.sync.dlq"),
		KafkaGroupID:            getEnv("KAFKA_GROUP_ID", "stock-sync-worker"),
		KafkaClientID:           getEnv("KAFKA_CLIENT_ID", "stock-sync-service"),
		KafkaRetries:            getEnvAsInt("KAFKA_RETRIES", 3),
		// Redis Configuration
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		// External inventory API
		GatewayBaseURL:      getEnv("GATEWAY_BASE_URL", "https://eu-ext.linnworks.net/api"),
		GatewayAppID:        getEnv("GATEWAY_APP_ID", ""),
		GatewayAppSecret:    getEnv("GATEWAY_APP_SECRET", ""),
		GatewayInstallToken: getEnv("GATEWAY_INSTALL_TOKEN", ""),
		GatewayTimeout:      getEnvAsDuration("GATEWAY_TIMEOUT", 30*time.Second),
		DefaultLocationID:   getEnv("DEFAULT_LOCATION_ID", "00000000-0000-0000-0000-000000000000"),
		FloorLocationID:     getEnv("FLOOR_LOCATION_ID", ""),
		// Worker Configuration
		TaskMaxAttempts:      getEnvAsInt("TASK_MAX_ATTEMPTS", 6),
		TaskRetryDelay:       time.Duration(getEnvAsInt("TASK_RETRY_DELAY_MS", 1000)) * time.Millisecond,
		WorkerConcurrency:    getEnvAsInt("WORKER_CONCURRENCY", 4),
		SweepInterval:        getEnvAsDuration("SWEEP_INTERVAL", 15*time.Minute),
		SweepMaxAge:          getEnvAsDuration("SWEEP_MAX_AGE", 24*time.Hour),
		StaleProcessingAfter: getEnvAsDuration("STALE_PROCESSING_AFTER", 15*time.Minute),
	}
}

// RedisAddr returns the host:port pair for the Redis client
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return result
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	result, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return result
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
