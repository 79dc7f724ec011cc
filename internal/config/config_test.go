package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	filename := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(filename, []byte(content), 0o644))
	return filename
}

func TestDefaults(t *testing.T) {
	config, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8000, config.Port)
	assert.Equal(t, "sqlite", config.Cache.Provider)
	assert.Equal(t, 2*time.Hour, config.Cache.DefaultTTL)
	assert.Equal(t, ".session.yaml", config.Session.File)
	assert.Equal(t, "051", config.Upstream.UnivCode)
}

func TestLoadFile(t *testing.T) {
	filename := writeConfig(t, `
port: 9000
upstream:
  timeout: 15s
cache:
  provider: memory
  default_ttl: 30m
  rules:
    - path: /src/profile.php
      method: POST
      ttl: 5m
    - prefix: /src/results_new.php
      query:
        a: getResults
      ttl: 24h
`)
	config, err := Load(filename)
	require.NoError(t, err)
	assert.Equal(t, 9000, config.Port)
	assert.Equal(t, 15*time.Second, config.Upstream.Timeout)
	assert.Equal(t, 50*time.Second, config.Upstream.LoginTimeout, "unset keys keep their default")
	assert.Equal(t, "memory", config.Cache.Provider)
	assert.Equal(t, 30*time.Minute, config.Cache.DefaultTTL)
	require.Len(t, config.Cache.Rules, 2)
	assert.Equal(t, 5*time.Minute, config.Cache.Rules[0].TTL)
	assert.Equal(t, "getResults", config.Cache.Rules[1].Query["a"])
}

func TestEnvironmentOverridesFile(t *testing.T) {
	filename := writeConfig(t, "port: 9000\ncache:\n  provider: memory\n")
	t.Setenv("PORT", "9100")
	t.Setenv("CACHE_PROVIDER", "redis")
	t.Setenv("CACHE_REDIS_ADDR", "redis:6379")
	t.Setenv("UPSTREAM_TIMEOUT", "5s")
	t.Setenv("LOG_JSON", "true")

	config, err := Load(filename)
	require.NoError(t, err)
	assert.Equal(t, 9100, config.Port)
	assert.Equal(t, "redis", config.Cache.Provider)
	assert.Equal(t, "redis:6379", config.Cache.RedisAddr)
	assert.Equal(t, 5*time.Second, config.Upstream.Timeout)
	assert.True(t, config.Log.JSON)
}

func TestInvalidConfig(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "port: [1"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "cache:\n  provider: bolt\n"))
	assert.ErrorContains(t, err, "unsupported cache provider")

	_, err = Load(writeConfig(t, "port: 70000\n"))
	assert.ErrorContains(t, err, "invalid port")
}
