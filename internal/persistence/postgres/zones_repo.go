package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bookpulse/engine/internal/detect"
	"github.com/bookpulse/engine/internal/persistence"
)

type zonesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewZonesRepo creates a PostgreSQL liquidity-zone repository.
func NewZonesRepo(db *sqlx.DB, timeout time.Duration) persistence.ZoneRepo {
	return &zonesRepo{db: db, timeout: timeout}
}

func (r *zonesRepo) Upsert(ctx context.Context, z *detect.LiquidityZone) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO liquidity_zones (id, venue, symbol, side, price_level,
			total_liquidity, zone_type, strength, confidence,
			is_active, first_seen_at, last_seen_at)
		VALUES (:id, :venue, :symbol, :side, :price_level,
			:total_liquidity, :zone_type, :strength, :confidence,
			:is_active, :first_seen_at, :last_seen_at)
		ON CONFLICT (id) DO UPDATE SET
			total_liquidity = EXCLUDED.total_liquidity,
			strength = EXCLUDED.strength,
			confidence = EXCLUDED.confidence,
			is_active = EXCLUDED.is_active,
			last_seen_at = EXCLUDED.last_seen_at`

	if _, err := r.db.NamedExecContext(ctx, query, z); err != nil {
		return fmt.Errorf("failed to upsert liquidity zone: %w", err)
	}
	return nil
}

func (r *zonesRepo) ListActive(ctx context.Context, venue, symbol string) ([]*detect.LiquidityZone, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, venue, symbol, side, price_level,
			total_liquidity, zone_type, strength, confidence,
			is_active, first_seen_at, last_seen_at
		FROM liquidity_zones
		WHERE venue = $1 AND symbol = $2 AND is_active
		ORDER BY strength DESC`

	var zones []*detect.LiquidityZone
	if err := r.db.SelectContext(ctx, &zones, query, venue, symbol); err != nil {
		return nil, fmt.Errorf("failed to query active zones: %w", err)
	}
	return zones, nil
}

func (r *zonesRepo) Touch(ctx context.Context, id string, seenAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`UPDATE liquidity_zones SET last_seen_at = $2, is_active = TRUE WHERE id = $1`, id, seenAt)
	if err != nil {
		return fmt.Errorf("failed to touch zone %s: %w", id, err)
	}
	return requireOneRow(res, "touch", id)
}

func (r *zonesRepo) Deactivate(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`UPDATE liquidity_zones SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate zone %s: %w", id, err)
	}
	return requireOneRow(res, "deactivate", id)
}
