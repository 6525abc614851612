package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Issuer string // Required: issuer claim for tokens

	NumKeys              int           // Optional: number of signing keys to generate (default: 3, min: 1, max: 10)
	DatabaseFile         string        // Optional: path to SQLite database file (default: ./karinja-auth.db)
	PepperFile           string        // Optional: path to file containing pepper for password hashing (default: ./pepper)
	ProofMaxAge          time.Duration // Optional: how far in the past a DPoP proof's iat may lie (default: 5m)
	ProofClockSkew       time.Duration // Optional: clock skew tolerance for proof timestamps (default: 30s)
	ReplayCacheSize      int64         // Optional: max tracked proof identifiers (default: 100000)
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:               getEnvOrDefault("AUTH_ISSUER", "karinja-auth"),
		DatabaseFile:         getEnvOrDefault("AUTH_DATABASE_FILE", "karinja-auth.db"),
		PepperFile:           getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),
		ProofMaxAge:          getEnvDurationOrDefault("AUTH_PROOF_MAX_AGE", 5*time.Minute),
		ProofClockSkew:       getEnvDurationOrDefault("AUTH_PROOF_CLOCK_SKEW", 30*time.Second),
		ReplayCacheSize:      int64(getEnvIntOrDefault("AUTH_REPLAY_CACHE_SIZE", 100000)),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	// Parse number of keys (default: 3)
	if numKeysStr := os.Getenv("AUTH_NUM_KEYS"); numKeysStr != "" {
		if numKeys, err := strconv.Atoi(numKeysStr); err == nil {
			cfg.NumKeys = numKeys
		}
		// If parsing fails, NumKeys remains 0 (will use default in KeyManager)
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Integer values are read as minutes for backwards compatibility.
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
