package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bookpulse/engine/internal/domain"
	"github.com/bookpulse/engine/internal/persistence"
	"github.com/bookpulse/engine/internal/pulse"
)

type detectionsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewDetectionsRepo creates a PostgreSQL repository for detector hits.
func NewDetectionsRepo(db *sqlx.DB, timeout time.Duration) persistence.DetectionRepo {
	return &detectionsRepo{db: db, timeout: timeout}
}

func (r *detectionsRepo) Insert(ctx context.Context, d *persistence.Detection) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	payload, err := json.Marshal(d.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal detection payload: %w", err)
	}

	query := `
		INSERT INTO detections (id, venue, symbol, ts, kind, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err = r.db.QueryRowxContext(ctx, query,
		d.ID, d.Venue, d.Symbol, d.Timestamp, d.Kind, payload).Scan(&d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert detection: %w", err)
	}
	return nil
}

func (r *detectionsRepo) ListRecent(ctx context.Context, venue, symbol string, limit int) ([]*persistence.Detection, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := selectDetection + `
		WHERE venue = $1 AND symbol = $2
		ORDER BY ts DESC
		LIMIT $3`

	rows, err := r.db.QueryxContext(ctx, query, venue, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent detections: %w", err)
	}
	defer rows.Close()
	return scanDetections(rows)
}

func (r *detectionsRepo) ListByKind(ctx context.Context, kind string, tr persistence.TimeRange, limit int) ([]*persistence.Detection, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := selectDetection + `
		WHERE kind = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts DESC
		LIMIT $4`

	rows, err := r.db.QueryxContext(ctx, query, kind, tr.From, tr.To, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections by kind: %w", err)
	}
	defer rows.Close()
	return scanDetections(rows)
}

const selectDetection = `
	SELECT id, venue, symbol, ts, kind, payload, created_at
	FROM detections`

func scanDetections(rows *sqlx.Rows) ([]*persistence.Detection, error) {
	var detections []*persistence.Detection
	for rows.Next() {
		var d persistence.Detection
		var payload []byte
		if err := rows.Scan(&d.ID, &d.Venue, &d.Symbol, &d.Timestamp, &d.Kind, &payload, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &d.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal detection payload: %w", err)
			}
		}
		detections = append(detections, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating detection rows: %w", err)
	}
	return detections, nil
}

type signalsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSignalsRepo creates a PostgreSQL pulse-signal repository.
func NewSignalsRepo(db *sqlx.DB, timeout time.Duration) persistence.SignalRepo {
	return &signalsRepo{db: db, timeout: timeout}
}

func (r *signalsRepo) Insert(ctx context.Context, sig *pulse.Signal) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	components, err := json.Marshal(sig.Components)
	if err != nil {
		return fmt.Errorf("failed to marshal signal components: %w", err)
	}

	query := `
		INSERT INTO signals (id, venue, symbol, ts, direction, strength,
			confidence, combined, components, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.ExecContext(ctx, query,
		sig.ID, sig.Venue, sig.Symbol, sig.Timestamp, string(sig.Direction),
		sig.Strength, sig.Confidence, sig.Combined, components, sig.Reason)
	if err != nil {
		return fmt.Errorf("failed to insert signal: %w", err)
	}
	return nil
}

func (r *signalsRepo) Latest(ctx context.Context, venue, symbol string) (*pulse.Signal, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := selectSignal + `
		WHERE venue = $1 AND symbol = $2
		ORDER BY ts DESC
		LIMIT 1`

	row := r.db.QueryRowxContext(ctx, query, venue, symbol)
	sig, err := scanSignal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no signal stored for %s/%s", domain.ErrInsufficientData, venue, symbol)
		}
		return nil, fmt.Errorf("failed to get latest signal: %w", err)
	}
	return sig, nil
}

func (r *signalsRepo) ListRange(ctx context.Context, venue, symbol string, tr persistence.TimeRange, limit int) ([]*pulse.Signal, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := selectSignal + `
		WHERE venue = $1 AND symbol = $2 AND ts >= $3 AND ts <= $4
		ORDER BY ts ASC
		LIMIT $5`

	rows, err := r.db.QueryxContext(ctx, query, venue, symbol, tr.From, tr.To, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query signal range: %w", err)
	}
	defer rows.Close()

	var signals []*pulse.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signal rows: %w", err)
	}
	return signals, nil
}

const selectSignal = `
	SELECT id, venue, symbol, ts, direction, strength, confidence, combined,
		components, reason
	FROM signals`

func scanSignal(row rowScanner) (*pulse.Signal, error) {
	var sig pulse.Signal
	var direction string
	var components []byte

	err := row.Scan(&sig.ID, &sig.Venue, &sig.Symbol, &sig.Timestamp,
		&direction, &sig.Strength, &sig.Confidence, &sig.Combined,
		&components, &sig.Reason)
	if err != nil {
		return nil, err
	}

	sig.Direction = pulse.Direction(direction)
	if len(components) > 0 {
		if err := json.Unmarshal(components, &sig.Components); err != nil {
			return nil, fmt.Errorf("failed to unmarshal signal components: %w", err)
		}
	}
	return &sig, nil
}

// requireOneRow fails when an update touched nothing, surfacing missing ids.
func requireOneRow(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected for %s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s touched no rows for id %s", op, id)
	}
	return nil
}
