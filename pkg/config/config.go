// Package config loads runtime settings from the environment.
package config

import (
	"os"
	"strconv"
)

// Config holds the application configuration
type Config struct {
	// Environment
	Environment string
	Port        string
	Debug       bool

	// Observability
	SentryDSN string // Sentry DSN for error tracking

	// Limits
	MaxUploadMB      int // largest accepted multipart upload
	MaxTracksPerFile int // default SplitProject limit, 0 disables splitting
	Workers          int // parallel per-output encoders
}

// Load reads the configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Environment:      getEnv("ENVIRONMENT", "development"),
		Port:             getEnv("PORT", "8080"),
		Debug:            getEnv("DEBUG", "false") == "true",
		SentryDSN:        getEnv("SENTRY_DSN", ""),
		MaxUploadMB:      getEnvInt("MAX_UPLOAD_MB", 32),
		MaxTracksPerFile: getEnvInt("MAX_TRACKS_PER_FILE", 0),
		Workers:          getEnvInt("WORKERS", 4),
	}
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil || value < 0 {
		return defaultValue
	}
	return value
}
