// Package config reads service configuration from environment variables.
// A .env file, if present, is loaded by the godotenv autoload import in main.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds everything the server needs at startup.
type Config struct {
	// Addr is the listen address of the websocket/REST server.
	Addr string
	// MetricsAddr is the listen address of the Prometheus endpoint.
	MetricsAddr string
	// Countdown is the fixed delay between challenge acceptance and match
	// start.
	Countdown time.Duration
	// SettlementURL is the endpoint of the external settlement collaborator.
	// Empty disables settlement (attempts fail and are surfaced as errors).
	SettlementURL string
	// SettlementTimeout bounds a single settlement call.
	SettlementTimeout time.Duration
	// RedisAddr enables the match-event journal when non-empty.
	RedisAddr string
	// JournalQueue is the Redis list the journal pushes onto.
	JournalQueue string
	// LogLevel is a logrus level name.
	LogLevel string
}

// Load builds a Config from the environment, applying defaults.
func Load() Config {
	return Config{
		Addr:              ":" + getEnv("PORT", "3001"),
		MetricsAddr:       getEnv("METRICS_ADDR", ":9100"),
		Countdown:         time.Duration(getEnvInt("COUNTDOWN_SECONDS", 5)) * time.Second,
		SettlementURL:     getEnv("SETTLEMENT_URL", ""),
		SettlementTimeout: time.Duration(getEnvInt("SETTLEMENT_TIMEOUT_SECONDS", 30)) * time.Second,
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		JournalQueue:      getEnv("JOURNAL_QUEUE_NAME", "smtd_match_events"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
