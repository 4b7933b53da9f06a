package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all configuration for the application
type Config struct {
	// Server
	Port    int
	Debug   bool
	LogFile string

	// Storage: DATABASE_URL selects Postgres, otherwise SQLite.
	DatabaseURL string
	SQLitePath  string

	// RabbitMQ reconciliation queue; empty disables it.
	RabbitMQURL string

	// Auth
	JWTSecret string
	TokenTTL  int // seconds

	// Executor
	ExecutorBackend   string // local, docker
	ExecutionTimeout  int    // seconds, per test case
	ExecutorImage     string
	ExecutorMemoryMB  int
	ExecutorCPULimit  float64
	MaxConcurrentRuns int
	RunsPerSecond     int

	// Rate limiting
	RequestsPerMinute int
	ExecutesPerMinute int

	// Challenge packs
	ChallengePacksDir string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnvInt("PORT", 8080),
		Debug:             getEnvBool("DEBUG", false),
		LogFile:           getEnv("LOG_FILE", ""),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		SQLitePath:        getEnv("SQLITE_PATH", "./drillbench.db"),
		RabbitMQURL:       getEnv("RABBITMQ_URL", ""),
		JWTSecret:         getEnv("JWT_SECRET", "change-me-in-production"),
		TokenTTL:          getEnvInt("TOKEN_TTL", 86400*7), // 7 days
		ExecutorBackend:   getEnv("EXECUTOR_BACKEND", "local"),
		ExecutionTimeout:  getEnvInt("EXECUTION_TIMEOUT", 5),
		ExecutorImage:     getEnv("EXECUTOR_IMAGE", "python:3.12-alpine"),
		ExecutorMemoryMB:  getEnvInt("EXECUTOR_MEMORY_MB", 128),
		ExecutorCPULimit:  getEnvFloat("EXECUTOR_CPU_LIMIT", 0.5),
		MaxConcurrentRuns: getEnvInt("MAX_CONCURRENT_RUNS", 4),
		RunsPerSecond:     getEnvInt("RUNS_PER_SECOND", 10),
		RequestsPerMinute: getEnvInt("REQUESTS_PER_MINUTE", 300),
		ExecutesPerMinute: getEnvInt("EXECUTES_PER_MINUTE", 30),
		ChallengePacksDir: getEnv("CHALLENGE_PACKS_DIR", "./challenges"),
	}

	// Validate required settings
	if cfg.JWTSecret == "change-me-in-production" && !cfg.Debug {
		return nil, fmt.Errorf("JWT_SECRET must be set in production")
	}
	if cfg.ExecutorBackend != "local" && cfg.ExecutorBackend != "docker" {
		return nil, fmt.Errorf("EXECUTOR_BACKEND must be local or docker, got %q", cfg.ExecutorBackend)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
