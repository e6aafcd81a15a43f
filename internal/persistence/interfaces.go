// Package persistence defines the storage interfaces for snapshots, derived
// metrics, detections and signals. The postgres subpackage implements them.
package persistence

import (
	"context"
	"time"

	"github.com/bookpulse/engine/internal/detect"
	"github.com/bookpulse/engine/internal/domain"
	"github.com/bookpulse/engine/internal/liquidity"
	"github.com/bookpulse/engine/internal/pulse"
)

// TimeRange is a closed query window.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Detection is the persisted form of any detector hit. Payload carries the
// detector-specific record as JSONB.
type Detection struct {
	ID        string                 `json:"id" db:"id"`
	Venue     string                 `json:"venue" db:"venue"`
	Symbol    string                 `json:"symbol" db:"symbol"`
	Timestamp time.Time              `json:"timestamp" db:"ts"`
	Kind      string                 `json:"kind" db:"kind"` // whale, iceberg, spoofing, cluster
	Payload   map[string]interface{} `json:"payload" db:"payload"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
}

// SnapshotRepo stores normalized order-book snapshots.
type SnapshotRepo interface {
	// Insert persists one snapshot; ladders go in as JSONB.
	Insert(ctx context.Context, s *domain.Snapshot) error

	// Latest returns the most recent snapshot for a venue/symbol, failing
	// with domain.ErrInsufficientData when none exists.
	Latest(ctx context.Context, venue, symbol string) (*domain.Snapshot, error)

	// ListRange returns snapshots in [tr.From, tr.To] in ascending time
	// order, capped at limit.
	ListRange(ctx context.Context, venue, symbol string, tr TimeRange, limit int) ([]*domain.Snapshot, error)

	// Prune deletes snapshots older than the cutoff, returning rows removed.
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// DeltaRepo stores snapshot-to-snapshot diffs.
type DeltaRepo interface {
	Insert(ctx context.Context, d *domain.Delta) error
	ListRange(ctx context.Context, venue, symbol string, tr TimeRange, limit int) ([]*domain.Delta, error)
}

// MetricsRepo stores per-snapshot derived metrics.
type MetricsRepo interface {
	InsertImbalance(ctx context.Context, rec *liquidity.ImbalanceRecord) error
	ListImbalances(ctx context.Context, venue, symbol string, tr TimeRange, limit int) ([]*liquidity.ImbalanceRecord, error)

	InsertScore(ctx context.Context, score *liquidity.Score) error
	// LatestScore fails with domain.ErrInsufficientData when no score has
	// been stored yet.
	LatestScore(ctx context.Context, venue, symbol string) (*liquidity.Score, error)
}

// ZoneRepo stores liquidity zones. Zones are the one mutable entity: the
// reconcile job flips Active and refreshes LastSeenAt in place.
type ZoneRepo interface {
	// Upsert inserts a zone or refreshes its size/touch bookkeeping, keyed
	// by id.
	Upsert(ctx context.Context, z *detect.LiquidityZone) error

	// ListActive returns currently active zones for a venue/symbol.
	ListActive(ctx context.Context, venue, symbol string) ([]*detect.LiquidityZone, error)

	// Touch refreshes LastSeenAt for a zone still visible in the book.
	Touch(ctx context.Context, id string, seenAt time.Time) error

	// Deactivate marks a zone no longer visible.
	Deactivate(ctx context.Context, id string) error
}

// DetectionRepo stores detector hits uniformly.
type DetectionRepo interface {
	Insert(ctx context.Context, d *Detection) error
	ListRecent(ctx context.Context, venue, symbol string, limit int) ([]*Detection, error)
	ListByKind(ctx context.Context, kind string, tr TimeRange, limit int) ([]*Detection, error)
}

// SignalRepo stores pulse signals.
type SignalRepo interface {
	Insert(ctx context.Context, sig *pulse.Signal) error
	// Latest fails with domain.ErrInsufficientData when no signal exists.
	Latest(ctx context.Context, venue, symbol string) (*pulse.Signal, error)
	ListRange(ctx context.Context, venue, symbol string, tr TimeRange, limit int) ([]*pulse.Signal, error)
}

// TradeRepo stores trade prints for the footprint branch.
type TradeRepo interface {
	InsertBatch(ctx context.Context, trades []domain.Trade) error
	ListRange(ctx context.Context, venue, symbol string, tr TimeRange, limit int) ([]domain.Trade, error)
	Count(ctx context.Context, venue, symbol string, tr TimeRange) (int64, error)
}

// Repository aggregates all persistence interfaces.
type Repository struct {
	Snapshots  SnapshotRepo
	Deltas     DeltaRepo
	Metrics    MetricsRepo
	Zones      ZoneRepo
	Detections DetectionRepo
	Signals    SignalRepo
	Trades     TradeRepo
}

// HealthCheck reports storage health.
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth monitors the persistence layer.
type RepositoryHealth interface {
	Health(ctx context.Context) HealthCheck
	Ping(ctx context.Context) error
}
