// Package config loads the process-wide immutable configuration snapshot
// from the environment. It is read once at startup; nothing in the rest
// of the service mutates it afterwards.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full, validated configuration snapshot for one process.
type Config struct {
	// Database
	DBHost         string
	DBPort         string
	DBUser         string
	DBPassword     string
	DBName         string
	DBMaxOpenConns int
	DBMaxIdleConns int

	// HTTP surface
	Host string
	Port string

	// Housekeeping
	LogRetentionDays    int
	InactiveWebsiteDays int

	// Clustering
	NodeAppInstance string

	// Migrations
	AutoRunMigrationsDisabled bool

	// Rate limiting
	RateLimitEnabled   bool
	RateLimitMax       float64
	RateLimitWindow    time.Duration
	RateLimitCache     int
	RateLimitAllowlist []string

	// Upstream sync
	UpstreamEnabled           bool
	UpstreamServer            string
	UpstreamAPIKey            string
	UpstreamBatchSize         int
	UpstreamBatchInterval     time.Duration
	UpstreamBatchSizeMin      int
	UpstreamBatchSizeRecovery int
	UpstreamCompression       bool
	UpstreamRecoveryHorizon   time.Duration
	SourceInstance            string

	// Cache (optional Redis accelerator)
	CacheEnabled  bool
	CacheHost     string
	CachePort     string
	CachePassword string
	CacheDB       int

	// Logging
	LogLevel  string
	LogPretty bool

	// Shutdown
	ShutdownTimeout time.Duration

	// CORS
	CORSAllowedOrigins []string
}

// getEnv returns the environment variable value or a default.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// allow bare seconds too
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load reads and validates the configuration from the environment,
// failing on missing required values.
func Load() (*Config, error) {
	cfg := &Config{
		DBHost:         getEnv("DB_HOST", ""),
		DBPort:         getEnv("DB_PORT", "3306"),
		DBUser:         getEnv("DB_USER", ""),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", ""),
		DBMaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),

		Host: getEnv("HOST", "0.0.0.0"),
		Port: getEnv("PORT", "8080"),

		LogRetentionDays:    getEnvInt("LOG_RETENTION_DAYS", 30),
		InactiveWebsiteDays: getEnvInt("INACTIVE_WEBSITE_DAYS", 45),

		NodeAppInstance: getEnv("NODE_APP_INSTANCE", "0"),

		AutoRunMigrationsDisabled: getEnvBool("AUTO_RUN_MIGRATIONS_DISABLED", false),

		RateLimitEnabled:   getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitMax:       getEnvFloat("RATE_LIMIT_MAX", 20),
		RateLimitWindow:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitCache:     getEnvInt("RATE_LIMIT_CACHE", 10000),
		RateLimitAllowlist: getEnvList("RATE_LIMIT_ALLOWLIST"),

		UpstreamEnabled:           getEnvBool("UPSTREAM_ENABLED", false),
		UpstreamServer:            getEnv("UPSTREAM_SERVER", ""),
		UpstreamAPIKey:            getEnv("UPSTREAM_API_KEY", ""),
		UpstreamBatchSize:         getEnvInt("UPSTREAM_BATCH_SIZE", 1000),
		UpstreamBatchInterval:     getEnvDuration("UPSTREAM_BATCH_INTERVAL", 30*time.Second),
		UpstreamBatchSizeMin:      getEnvInt("UPSTREAM_BATCH_SIZE_MIN", 100),
		UpstreamBatchSizeRecovery: getEnvInt("UPSTREAM_BATCH_SIZE_RECOVERY", 500),
		UpstreamCompression:       getEnvBool("UPSTREAM_COMPRESSION", true),
		UpstreamRecoveryHorizon:   getEnvDuration("UPSTREAM_RECOVERY_HORIZON", 10*time.Minute),
		SourceInstance:            getEnv("SOURCE_INSTANCE", hostnameOrFallback()),

		CacheEnabled:  getEnvBool("CACHE_ENABLED", false),
		CacheHost:     getEnv("CACHE_HOST", "localhost"),
		CachePort:     getEnv("CACHE_PORT", "6379"),
		CachePassword: getEnv("CACHE_PASSWORD", ""),
		CacheDB:       getEnvInt("CACHE_DB", 0),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvBool("LOG_PRETTY", false),

		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func hostnameOrFallback() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown-instance"
	}
	return h
}

func (c *Config) validate() error {
	var missing []string
	if c.DBHost == "" {
		missing = append(missing, "DB_HOST")
	}
	if c.DBUser == "" {
		missing = append(missing, "DB_USER")
	}
	if c.DBPassword == "" {
		missing = append(missing, "DB_PASSWORD")
	}
	if c.DBName == "" {
		missing = append(missing, "DB_NAME")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if c.UpstreamEnabled {
		if c.UpstreamServer == "" {
			return fmt.Errorf("UPSTREAM_ENABLED is true but UPSTREAM_SERVER is not set")
		}
		if len(c.UpstreamAPIKey) < 16 {
			return fmt.Errorf("UPSTREAM_ENABLED is true but UPSTREAM_API_KEY is missing or too short")
		}
	}

	return nil
}

// IsWorkerZero reports whether this process is the cluster's designated
// singleton-task runner.
func (c *Config) IsWorkerZero() bool {
	return c.NodeAppInstance == "0"
}

// MustLoad is Load but fatal on error, used from cmd/server/main.go.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	return cfg
}
