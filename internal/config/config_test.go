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
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, []string{"binance", "coinbase", "okx"}, cfg.Venues)
	assert.Equal(t, 50, cfg.Depth)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
venues: [binance]
symbols: [ETH-USD, BTC-USD]
depth: 100
cache:
  addr: redis:6379
  ttl: 10s
  enabled: true
server:
  port: 9090
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"binance"}, cfg.Venues)
	assert.Equal(t, 100, cfg.Depth)
	assert.Equal(t, "redis:6379", cfg.Cache.Addr)
	assert.Equal(t, 10*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestEnvOverridesBeatFile(t *testing.T) {
	path := writeConfig(t, "log:\n  level: warn\n")
	t.Setenv("LOG_LEVEL", "trace")
	t.Setenv("DATABASE_URL", "postgres://localhost/bookpulse")
	t.Setenv("HTTP_PORT", "7777")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "trace", cfg.Log.Level)
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, "postgres://localhost/bookpulse", cfg.Database.DSN)
	assert.Equal(t, 7777, cfg.Server.Port)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no venues", func(c *Config) { c.Venues = nil }},
		{"no symbols", func(c *Config) { c.Symbols = nil }},
		{"zero depth", func(c *Config) { c.Depth = 0 }},
		{"db enabled without dsn", func(c *Config) { c.Database.Enabled = true; c.Database.DSN = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
