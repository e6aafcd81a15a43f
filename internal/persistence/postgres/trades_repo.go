package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bookpulse/engine/internal/domain"
	"github.com/bookpulse/engine/internal/persistence"
)

type tradesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTradesRepo creates a PostgreSQL trade-print repository.
func NewTradesRepo(db *sqlx.DB, timeout time.Duration) persistence.TradeRepo {
	return &tradesRepo{db: db, timeout: timeout}
}

// InsertBatch writes a batch of trade prints atomically. The footprint
// stream delivers trades in bursts, so batches get a stretched timeout.
func (r *tradesRepo) InsertBatch(ctx context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(trades)/100+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin trade batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (venue, symbol, ts, price, size, is_buyer_maker)
		VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return fmt.Errorf("failed to prepare trade insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range trades {
		if _, err := stmt.ExecContext(ctx,
			t.Venue, t.Symbol, t.Timestamp, t.Price, t.Size, t.IsBuyerMaker); err != nil {
			return fmt.Errorf("failed to insert trade in batch: %w", err)
		}
	}
	return tx.Commit()
}

func (r *tradesRepo) ListRange(ctx context.Context, venue, symbol string, tr persistence.TimeRange, limit int) ([]domain.Trade, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT venue, symbol, ts, price, size, is_buyer_maker
		FROM trades
		WHERE venue = $1 AND symbol = $2 AND ts >= $3 AND ts <= $4
		ORDER BY ts ASC
		LIMIT $5`

	var trades []domain.Trade
	if err := r.db.SelectContext(ctx, &trades, query, venue, symbol, tr.From, tr.To, limit); err != nil {
		return nil, fmt.Errorf("failed to query trade range: %w", err)
	}
	return trades, nil
}

func (r *tradesRepo) Count(ctx context.Context, venue, symbol string, tr persistence.TimeRange) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT COUNT(*)
		FROM trades
		WHERE venue = $1 AND symbol = $2 AND ts >= $3 AND ts <= $4`

	var count int64
	if err := r.db.QueryRowxContext(ctx, query, venue, symbol, tr.From, tr.To).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", err)
	}
	return count, nil
}
