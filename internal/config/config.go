// Package config provides configuration for the orchestrator.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the orchestrator configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Mode selects the model client implementation (MOCK for tests/dev).
	Mode string

	// Database
	DatabaseURL string

	// Model service
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
	LLMTimeout time.Duration

	// Backend data platform
	BackendURL     string
	BackendTimeout time.Duration

	// Orchestration limits
	MaxSkills        int
	MaxSteps         int
	MaxParallelTools int
	MaxToolRetries   int
	RetryBaseDelay   time.Duration
	HistoryLimit     int
	TurnTimeout      time.Duration

	// ConfirmTimeout expires stale confirmation requests. Zero disables
	// the sweep; the core itself never times a confirmation out.
	ConfirmTimeout time.Duration

	// Ledger
	InitialCredits int64

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		HTTPPort:         getEnvInt("HTTP_PORT", 8080),
		Mode:             getEnv("ADPILOT_MODE", ""),
		DatabaseURL:      getEnv("DATABASE_URL", "file:adpilot.db?cache=shared&mode=rwc"),
		LLMBaseURL:       getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:        getEnv("LLM_API_KEY", ""),
		LLMModel:         getEnv("LLM_MODEL", "gpt-4o"),
		LLMTimeout:       getEnvDuration("LLM_TIMEOUT_MS", 120000),
		BackendURL:       getEnv("BACKEND_URL", "http://localhost:8090"),
		BackendTimeout:   getEnvDuration("BACKEND_TIMEOUT_MS", 30000),
		MaxSkills:        getEnvInt("MAX_SKILLS", 3),
		MaxSteps:         getEnvInt("MAX_STEPS", 10),
		MaxParallelTools: getEnvInt("MAX_PARALLEL_TOOLS", 3),
		MaxToolRetries:   getEnvInt("MAX_TOOL_RETRIES", 3),
		RetryBaseDelay:   getEnvDuration("RETRY_BASE_DELAY_MS", 200),
		HistoryLimit:     getEnvInt("HISTORY_LIMIT", 50),
		TurnTimeout:      getEnvDuration("TURN_TIMEOUT_MS", 300000),
		ConfirmTimeout:   getEnvDuration("CONFIRM_TIMEOUT_MS", 0),
		InitialCredits:   int64(getEnvInt("INITIAL_CREDITS", 100)),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultMs int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMs)) * time.Millisecond
}
