// Package config loads the engine configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/bookpulse/engine/internal/cache"
	"github.com/bookpulse/engine/internal/infrastructure/db"
	httpapi "github.com/bookpulse/engine/internal/interfaces/http"
	"github.com/bookpulse/engine/internal/stream"
)

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Pretty bool   `yaml:"pretty"`
}

// Config is the full engine configuration.
type Config struct {
	Log      LogConfig            `yaml:"log"`
	Database db.Config            `yaml:"database"`
	Cache    cache.Config         `yaml:"cache"`
	Server   httpapi.ServerConfig `yaml:"server"`
	Stream   stream.Config        `yaml:"stream"`

	// Venues and Symbols drive the refresh jobs and the aggregator.
	Venues  []string `yaml:"venues"`
	Symbols []string `yaml:"symbols"`
	// Depth is the ladder depth requested from venue gateways.
	Depth int `yaml:"depth"`

	// JobFile points at the scheduler job definitions.
	JobFile string `yaml:"job_file"`
}

// Default returns the baked-in configuration.
func Default() *Config {
	return &Config{
		Log:      LogConfig{Level: "info"},
		Database: db.DefaultConfig(),
		Cache:    cache.DefaultConfig(),
		Server:   httpapi.DefaultServerConfig(),
		Stream:   stream.DefaultConfig(),
		Venues:   []string{"binance", "coinbase", "okx"},
		Symbols:  []string{"BTC-USD"},
		Depth:    50,
		JobFile:  "config/jobs.yaml",
	}
}

// Load reads the YAML file when it exists, then applies environment
// overrides. A missing file is not an error; defaults carry.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read config file %s: %w", path, err)
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot start with.
func (c *Config) Validate() error {
	if len(c.Venues) == 0 {
		return fmt.Errorf("at least one venue is required")
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	if c.Depth <= 0 {
		return fmt.Errorf("depth must be positive, got %d", c.Depth)
	}
	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("database enabled but no DSN configured")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
		cfg.Database.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.Addr = v
		cfg.Cache.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("STREAM_URL"); v != "" {
		cfg.Stream.URL = v
	}
}
