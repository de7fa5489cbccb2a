package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	keys := []string{
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME",
		"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "HOST", "PORT",
		"LOG_RETENTION_DAYS", "INACTIVE_WEBSITE_DAYS", "NODE_APP_INSTANCE",
		"AUTO_RUN_MIGRATIONS_DISABLED", "RATE_LIMIT_ENABLED", "RATE_LIMIT_MAX",
		"RATE_LIMIT_WINDOW", "RATE_LIMIT_ALLOWLIST", "UPSTREAM_ENABLED",
		"UPSTREAM_SERVER", "UPSTREAM_API_KEY", "UPSTREAM_BATCH_SIZE",
		"UPSTREAM_BATCH_INTERVAL", "UPSTREAM_BATCH_SIZE_MIN",
		"UPSTREAM_BATCH_SIZE_RECOVERY", "UPSTREAM_COMPRESSION",
		"UPSTREAM_RECOVERY_HORIZON", "SOURCE_INSTANCE", "CACHE_ENABLED",
		"CACHE_HOST", "CACHE_PORT", "CACHE_PASSWORD", "CACHE_DB",
		"LOG_LEVEL", "LOG_PRETTY", "SHUTDOWN_TIMEOUT", "CORS_ALLOWED_ORIGINS",
	}
	for _, k := range keys {
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_MissingRequiredFailsFast(t *testing.T) {
	clearEnv(t)
	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "DB_HOST")
}

func TestLoad_MinimalValidConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_USER", "headlog")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "headlog")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3306", cfg.DBPort)
	assert.Equal(t, 10, cfg.DBMaxOpenConns)
	assert.Equal(t, 30, cfg.LogRetentionDays)
	assert.Equal(t, 45, cfg.InactiveWebsiteDays)
	assert.Equal(t, "0", cfg.NodeAppInstance)
	assert.True(t, cfg.IsWorkerZero())
	assert.False(t, cfg.UpstreamEnabled)
}

func TestLoad_UpstreamEnabledRequiresServerAndKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_USER", "headlog")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "headlog")
	t.Setenv("UPSTREAM_ENABLED", "true")

	_, err := Load()
	assert.ErrorContains(t, err, "UPSTREAM_SERVER")

	t.Setenv("UPSTREAM_SERVER", "https://parent.example.com/api/logs/batch")
	t.Setenv("UPSTREAM_API_KEY", "short")
	_, err = Load()
	assert.ErrorContains(t, err, "UPSTREAM_API_KEY")

	t.Setenv("UPSTREAM_API_KEY", "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghij0123")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.UpstreamEnabled)
}

func TestLoad_DurationParsing(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_USER", "headlog")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "headlog")
	t.Setenv("UPSTREAM_BATCH_INTERVAL", "45s")
	t.Setenv("SHUTDOWN_TIMEOUT", "15")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.UpstreamBatchInterval)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_ListParsing(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_USER", "headlog")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "headlog")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSAllowedOrigins)
}

func TestIsWorkerZero_NonZeroInstance(t *testing.T) {
	cfg := &Config{NodeAppInstance: "2"}
	assert.False(t, cfg.IsWorkerZero())
}
