// Package postgres implements the persistence interfaces on PostgreSQL via
// sqlx. Ladders and detector payloads are stored as JSONB.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/bookpulse/engine/internal/domain"
	"github.com/bookpulse/engine/internal/persistence"
)

type snapshotsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSnapshotsRepo creates a PostgreSQL snapshot repository.
func NewSnapshotsRepo(db *sqlx.DB, timeout time.Duration) persistence.SnapshotRepo {
	return &snapshotsRepo{db: db, timeout: timeout}
}

func (r *snapshotsRepo) Insert(ctx context.Context, s *domain.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	bids, err := json.Marshal(s.Bids)
	if err != nil {
		return fmt.Errorf("failed to marshal bids: %w", err)
	}
	asks, err := json.Marshal(s.Asks)
	if err != nil {
		return fmt.Errorf("failed to marshal asks: %w", err)
	}

	query := `
		INSERT INTO snapshots (venue, symbol, ts, bids, asks,
			best_bid, best_ask, spread, spread_percent, mid_price,
			bid_depth_10, ask_depth_10, bid_depth_50, ask_depth_50,
			bid_levels, ask_levels, complete)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err = r.db.ExecContext(ctx, query,
		s.Venue, s.Symbol, s.Timestamp, bids, asks,
		s.BestBid, s.BestAsk, s.Spread, s.SpreadPercent, s.MidPrice,
		s.BidDepth10, s.AskDepth10, s.BidDepth50, s.AskDepth50,
		s.BidLevels, s.AskLevels, s.Complete)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate snapshot for %s/%s at %s: %w", s.Venue, s.Symbol, s.Timestamp, err)
		}
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

func (r *snapshotsRepo) Latest(ctx context.Context, venue, symbol string) (*domain.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := selectSnapshot + `
		WHERE venue = $1 AND symbol = $2
		ORDER BY ts DESC
		LIMIT 1`

	row := r.db.QueryRowxContext(ctx, query, venue, symbol)
	s, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no snapshot stored for %s/%s", domain.ErrInsufficientData, venue, symbol)
		}
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	return s, nil
}

func (r *snapshotsRepo) ListRange(ctx context.Context, venue, symbol string, tr persistence.TimeRange, limit int) ([]*domain.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := selectSnapshot + `
		WHERE venue = $1 AND symbol = $2 AND ts >= $3 AND ts <= $4
		ORDER BY ts ASC
		LIMIT $5`

	rows, err := r.db.QueryxContext(ctx, query, venue, symbol, tr.From, tr.To, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot range: %w", err)
	}
	defer rows.Close()

	var snapshots []*domain.Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot rows: %w", err)
	}
	return snapshots, nil
}

func (r *snapshotsRepo) Prune(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM snapshots WHERE ts < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return res.RowsAffected()
}

const selectSnapshot = `
	SELECT venue, symbol, ts, bids, asks,
		best_bid, best_ask, spread, spread_percent, mid_price,
		bid_depth_10, ask_depth_10, bid_depth_50, ask_depth_50,
		bid_levels, ask_levels, complete
	FROM snapshots`

// rowScanner covers both sqlx.Row and sqlx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner) (*domain.Snapshot, error) {
	var s domain.Snapshot
	var bids, asks []byte

	err := row.Scan(
		&s.Venue, &s.Symbol, &s.Timestamp, &bids, &asks,
		&s.BestBid, &s.BestAsk, &s.Spread, &s.SpreadPercent, &s.MidPrice,
		&s.BidDepth10, &s.AskDepth10, &s.BidDepth50, &s.AskDepth50,
		&s.BidLevels, &s.AskLevels, &s.Complete)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(bids, &s.Bids); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bids: %w", err)
	}
	if err := json.Unmarshal(asks, &s.Asks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal asks: %w", err)
	}
	return &s, nil
}

type deltasRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewDeltasRepo creates a PostgreSQL delta repository.
func NewDeltasRepo(db *sqlx.DB, timeout time.Duration) persistence.DeltaRepo {
	return &deltasRepo{db: db, timeout: timeout}
}

func (r *deltasRepo) Insert(ctx context.Context, d *domain.Delta) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	bids, err := json.Marshal(d.Bids)
	if err != nil {
		return fmt.Errorf("failed to marshal delta bids: %w", err)
	}
	asks, err := json.Marshal(d.Asks)
	if err != nil {
		return fmt.Errorf("failed to marshal delta asks: %w", err)
	}

	query := `
		INSERT INTO deltas (venue, symbol, ts, bids, asks, kind)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = r.db.ExecContext(ctx, query, d.Venue, d.Symbol, d.Timestamp, bids, asks, string(d.Kind))
	if err != nil {
		return fmt.Errorf("failed to insert delta: %w", err)
	}
	return nil
}

func (r *deltasRepo) ListRange(ctx context.Context, venue, symbol string, tr persistence.TimeRange, limit int) ([]*domain.Delta, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT venue, symbol, ts, bids, asks, kind
		FROM deltas
		WHERE venue = $1 AND symbol = $2 AND ts >= $3 AND ts <= $4
		ORDER BY ts ASC
		LIMIT $5`

	rows, err := r.db.QueryxContext(ctx, query, venue, symbol, tr.From, tr.To, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query delta range: %w", err)
	}
	defer rows.Close()

	var deltas []*domain.Delta
	for rows.Next() {
		var d domain.Delta
		var bids, asks []byte
		var kind string
		if err := rows.Scan(&d.Venue, &d.Symbol, &d.Timestamp, &bids, &asks, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan delta: %w", err)
		}
		if err := json.Unmarshal(bids, &d.Bids); err != nil {
			return nil, fmt.Errorf("failed to unmarshal delta bids: %w", err)
		}
		if err := json.Unmarshal(asks, &d.Asks); err != nil {
			return nil, fmt.Errorf("failed to unmarshal delta asks: %w", err)
		}
		d.Kind = domain.ChangeKind(kind)
		deltas = append(deltas, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating delta rows: %w", err)
	}
	return deltas, nil
}
