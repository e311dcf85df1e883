// Package config loads core settings from the environment and from
// per-deployment YAML profiles.
package config

import "os"

// Config holds the core's runtime configuration.
type Config struct {
	LogLevel     string
	DBDriver     string
	DatabaseURL  string
	RedisAddr    string
	OTLPEndpoint string
}

// Load reads configuration from environment variables, with local
// development defaults.
func Load() *Config {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	driver := os.Getenv("FORMA_DB_DRIVER")
	if driver == "" {
		driver = "postgres"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "postgres://forma@localhost:5432/forma?sslmode=disable"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	return &Config{
		LogLevel:     logLevel,
		DBDriver:     driver,
		DatabaseURL:  dbURL,
		RedisAddr:    redisAddr,
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),
	}
}
