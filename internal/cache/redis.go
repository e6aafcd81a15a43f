// Package cache is the Redis hot layer for the latest snapshot and signal
// per venue/symbol. It is read-through only: misses and failures fall back
// to storage, never to an error the caller must handle.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/bookpulse/engine/internal/domain"
	"github.com/bookpulse/engine/internal/pulse"
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB"`
	TTL      time.Duration `yaml:"ttl"`
	Enabled  bool          `yaml:"enabled" env:"REDIS_ENABLED"`
}

// DefaultConfig keeps entries hot for 30 seconds.
func DefaultConfig() Config {
	return Config{
		Addr: "localhost:6379",
		TTL:  30 * time.Second,
	}
}

// HotCache caches the latest snapshot and signal per venue/symbol.
type HotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis and verifies connectivity.
func New(cfg Config) (*HotCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultConfig().TTL
	}
	return &HotCache{client: rdb, ttl: ttl}, nil
}

// NewWithClient wraps an existing client; used by tests.
func NewWithClient(client *redis.Client, ttl time.Duration) *HotCache {
	if ttl <= 0 {
		ttl = DefaultConfig().TTL
	}
	return &HotCache{client: client, ttl: ttl}
}

func snapshotKey(venue, symbol string) string {
	return fmt.Sprintf("book:%s:%s:latest", venue, symbol)
}

func signalKey(venue, symbol string) string {
	return fmt.Sprintf("signal:%s:%s:latest", venue, symbol)
}

// GetSnapshot returns the cached latest snapshot. Any failure is a miss.
func (c *HotCache) GetSnapshot(ctx context.Context, venue, symbol string) (*domain.Snapshot, bool) {
	data, err := c.client.Get(ctx, snapshotKey(venue, symbol)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("venue", venue).Str("symbol", symbol).
				Msg("snapshot cache read failed")
		}
		return nil, false
	}

	var s domain.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		log.Warn().Err(err).Msg("snapshot cache entry corrupt")
		return nil, false
	}
	return &s, true
}

// SetSnapshot stores the latest snapshot with the configured TTL.
func (c *HotCache) SetSnapshot(ctx context.Context, s *domain.Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := c.client.Set(ctx, snapshotKey(s.Venue, s.Symbol), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set snapshot: %w", err)
	}
	return nil
}

// GetSignal returns the cached latest pulse signal. Any failure is a miss.
func (c *HotCache) GetSignal(ctx context.Context, venue, symbol string) (*pulse.Signal, bool) {
	data, err := c.client.Get(ctx, signalKey(venue, symbol)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("venue", venue).Str("symbol", symbol).
				Msg("signal cache read failed")
		}
		return nil, false
	}

	var sig pulse.Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		log.Warn().Err(err).Msg("signal cache entry corrupt")
		return nil, false
	}
	return &sig, true
}

// SetSignal stores the latest pulse signal with the configured TTL.
func (c *HotCache) SetSignal(ctx context.Context, sig *pulse.Signal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	if err := c.client.Set(ctx, signalKey(sig.Venue, sig.Symbol), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set signal: %w", err)
	}
	return nil
}

// Invalidate drops the cached entries for a venue/symbol.
func (c *HotCache) Invalidate(ctx context.Context, venue, symbol string) error {
	if err := c.client.Del(ctx, snapshotKey(venue, symbol), signalKey(venue, symbol)).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *HotCache) Close() error {
	return c.client.Close()
}
