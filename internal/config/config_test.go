package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "ENVIRONMENT", "DATABASE_DSN",
		"REDIS_HOST", "REDIS_PORT", "REDIS_PASSWORD", "REDIS_DB",
		"UPSTREAM_URL", "UPSTREAM_API_KEY", "UPSTREAM_TIMEOUT_SECONDS",
		"DAILY_LIMIT", "VELOCITY_LIMIT", "VELOCITY_WINDOW_SECONDS", "VELOCITY_ALGORITHM",
		"JWT_SECRET", "JWT_EXPIRY_HOURS", "ADMIN_EMAIL", "ADMIN_PASSWORD",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Environment)
	assert.Empty(t, cfg.Database.DSN)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", cfg.Upstream.URL)
	assert.Equal(t, 60*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, int64(15), cfg.Quota.DailyLimit)
	assert.Equal(t, int64(-1), cfg.Quota.VelocityLimit)
	assert.Equal(t, time.Minute, cfg.Quota.VelocityWindow)
	assert.Equal(t, "sliding_window", cfg.Quota.VelocityAlgorithm)
	assert.Equal(t, 24*time.Hour, cfg.Auth.JWTExpiry)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_DSN", "host=db user=gateway dbname=gateway")
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("UPSTREAM_URL", "http://mock:9000/v1/complete")
	t.Setenv("UPSTREAM_TIMEOUT_SECONDS", "5")
	t.Setenv("DAILY_LIMIT", "30")
	t.Setenv("VELOCITY_LIMIT", "10")
	t.Setenv("VELOCITY_ALGORITHM", "token_bucket")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "host=db user=gateway dbname=gateway", cfg.Database.DSN)
	assert.Equal(t, "cache.internal:6380", cfg.Redis.Addr())
	assert.Equal(t, "http://mock:9000/v1/complete", cfg.Upstream.URL)
	assert.Equal(t, 5*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, int64(30), cfg.Quota.DailyLimit)
	assert.Equal(t, int64(10), cfg.Quota.VelocityLimit)
	assert.Equal(t, "token_bucket", cfg.Quota.VelocityAlgorithm)
}

func TestLoadBadIntFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("DAILY_LIMIT", "plenty")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(15), cfg.Quota.DailyLimit)
}
