package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RateLimitRPS   float64
	RateLimitBurst int

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
	KafkaBrokers        []string
	KafkaGroupID        string
	ScoringRequestTopic string
	ScoringResultTopic  string

	// Reference tables; empty means the embedded defaults.
	ReferenceTablesDir string

	// Scoring
	ExcludeBySeqNum bool
	PrimarySeqNum   int
	ScoringWorkers  int
	HFRSLookback    time.Duration

	// Result sinks
	ResultCacheEnabled   bool
	ResultCacheTTL       time.Duration
	ResultPersistEnabled bool
	ResultPublishEnabled bool
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8090"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 60*time.Second),
		RateLimitRPS:   getFloatEnv("HTTP_RATE_LIMIT_RPS", 50),
		RateLimitBurst: getIntEnv("HTTP_RATE_LIMIT_BURST", 100),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "mimic"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresDB:       getEnv("POSTGRES_DB", "mimiciv"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:        getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:        getEnv("KAFKA_GROUP_ID", "comorbidity-scoring"),
		ScoringRequestTopic: getEnv("SCORING_REQUEST_TOPIC", "scoring.requests"),
		ScoringResultTopic:  getEnv("SCORING_RESULT_TOPIC", "scoring.results"),

		ReferenceTablesDir: getEnv("REFERENCE_TABLES_DIR", ""),

		ExcludeBySeqNum: getBoolEnv("ELIXHAUSER_EXCLUDE_BY_SEQ_NUM", false),
		PrimarySeqNum:   getIntEnv("PRIMARY_SEQ_NUM", 1),
		ScoringWorkers:  getIntEnv("SCORING_WORKERS", 8),
		HFRSLookback:    getDuration("HFRS_LOOKBACK", 0),

		ResultCacheEnabled:   getBoolEnv("RESULT_CACHE_ENABLED", true),
		ResultCacheTTL:       getDuration("RESULT_CACHE_TTL", 24*time.Hour),
		ResultPersistEnabled: getBoolEnv("RESULT_PERSIST_ENABLED", true),
		ResultPublishEnabled: getBoolEnv("RESULT_PUBLISH_ENABLED", false),
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

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
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
