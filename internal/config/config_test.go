package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8000", cfg.HTTPAddr)
	assert.Equal(t, []string{"redis-billing:6379"}, cfg.Redis.Addresses)
	assert.False(t, cfg.Redis.ClusterMode)
	assert.Equal(t, 5*time.Minute, cfg.SettingsCacheTTL)
	assert.EqualValues(t, 30, cfg.RateLimit)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("REDIS_ADDR", "r1:6379,r2:6379")
	t.Setenv("REDIS_CLUSTER", "TRUE")
	t.Setenv("SETTINGS_CACHE_TTL", "30s")
	t.Setenv("DB_MAX_CONNS", "not-a-number")
	t.Setenv("JWT_ISSUER", "auth.example")

	cfg := Load()

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, []string{"r1:6379", "r2:6379"}, cfg.Redis.Addresses)
	assert.True(t, cfg.Redis.ClusterMode)
	assert.Equal(t, 30*time.Second, cfg.SettingsCacheTTL)
	assert.EqualValues(t, 20, cfg.Postgres.MaxConns)
	assert.Equal(t, "auth.example", cfg.JWT.Issuer)
}
