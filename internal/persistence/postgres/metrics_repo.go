package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bookpulse/engine/internal/domain"
	"github.com/bookpulse/engine/internal/liquidity"
	"github.com/bookpulse/engine/internal/persistence"
)

type metricsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewMetricsRepo creates a PostgreSQL metrics repository for imbalance
// records and liquidity scores.
func NewMetricsRepo(db *sqlx.DB, timeout time.Duration) persistence.MetricsRepo {
	return &metricsRepo{db: db, timeout: timeout}
}

func (r *metricsRepo) InsertImbalance(ctx context.Context, rec *liquidity.ImbalanceRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO imbalances (venue, symbol, ts,
			imbalance_5, imbalance_10, imbalance_20, imbalance_50,
			volume_imbalance, pressure_score, momentum, cumulative_pressure)
		VALUES (:venue, :symbol, :ts,
			:imbalance_5, :imbalance_10, :imbalance_20, :imbalance_50,
			:volume_imbalance, :pressure_score, :momentum, :cumulative_pressure)`

	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("failed to insert imbalance record: %w", err)
	}
	return nil
}

func (r *metricsRepo) ListImbalances(ctx context.Context, venue, symbol string, tr persistence.TimeRange, limit int) ([]*liquidity.ImbalanceRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT venue, symbol, ts,
			imbalance_5, imbalance_10, imbalance_20, imbalance_50,
			volume_imbalance, pressure_score, momentum, cumulative_pressure
		FROM imbalances
		WHERE venue = $1 AND symbol = $2 AND ts >= $3 AND ts <= $4
		ORDER BY ts ASC
		LIMIT $5`

	var records []*liquidity.ImbalanceRecord
	if err := r.db.SelectContext(ctx, &records, query, venue, symbol, tr.From, tr.To, limit); err != nil {
		return nil, fmt.Errorf("failed to query imbalance records: %w", err)
	}
	return records, nil
}

func (r *metricsRepo) InsertScore(ctx context.Context, score *liquidity.Score) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO liquidity_scores (venue, symbol, ts,
			overall, depth_score, spread_score, volume_score, stability_score, regime)
		VALUES (:venue, :symbol, :ts,
			:overall, :depth_score, :spread_score, :volume_score, :stability_score, :regime)`

	if _, err := r.db.NamedExecContext(ctx, query, score); err != nil {
		return fmt.Errorf("failed to insert liquidity score: %w", err)
	}
	return nil
}

func (r *metricsRepo) LatestScore(ctx context.Context, venue, symbol string) (*liquidity.Score, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT venue, symbol, ts,
			overall, depth_score, spread_score, volume_score, stability_score, regime
		FROM liquidity_scores
		WHERE venue = $1 AND symbol = $2
		ORDER BY ts DESC
		LIMIT 1`

	var score liquidity.Score
	if err := r.db.GetContext(ctx, &score, query, venue, symbol); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no liquidity score stored for %s/%s", domain.ErrInsufficientData, venue, symbol)
		}
		return nil, fmt.Errorf("failed to get latest liquidity score: %w", err)
	}
	return &score, nil
}
