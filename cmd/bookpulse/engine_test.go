package main

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookpulse/engine/internal/config"
	"github.com/bookpulse/engine/internal/domain"
	"github.com/bookpulse/engine/internal/liquidity"
	"github.com/bookpulse/engine/internal/persistence"
	"github.com/bookpulse/engine/internal/pulse"
	"github.com/bookpulse/engine/internal/scheduler"
	"github.com/bookpulse/engine/internal/snapshot"
	"github.com/bookpulse/engine/internal/telemetry"
)

type memSnapshotRepo struct {
	latest *domain.Snapshot
}

func (m *memSnapshotRepo) Insert(ctx context.Context, s *domain.Snapshot) error {
	m.latest = s
	return nil
}

func (m *memSnapshotRepo) Latest(ctx context.Context, venue, symbol string) (*domain.Snapshot, error) {
	if m.latest == nil {
		return nil, fmt.Errorf("%w: no snapshot stored", domain.ErrInsufficientData)
	}
	return m.latest, nil
}

func (m *memSnapshotRepo) ListRange(ctx context.Context, venue, symbol string, tr persistence.TimeRange, limit int) ([]*domain.Snapshot, error) {
	if m.latest == nil {
		return nil, nil
	}
	return []*domain.Snapshot{m.latest}, nil
}

func (m *memSnapshotRepo) Prune(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type memMetricsRepo struct {
	imbalances []*liquidity.ImbalanceRecord
}

func (m *memMetricsRepo) InsertImbalance(ctx context.Context, rec *liquidity.ImbalanceRecord) error {
	m.imbalances = append(m.imbalances, rec)
	return nil
}

func (m *memMetricsRepo) ListImbalances(ctx context.Context, venue, symbol string, tr persistence.TimeRange, limit int) ([]*liquidity.ImbalanceRecord, error) {
	return m.imbalances, nil
}

func (m *memMetricsRepo) InsertScore(ctx context.Context, score *liquidity.Score) error {
	return nil
}

func (m *memMetricsRepo) LatestScore(ctx context.Context, venue, symbol string) (*liquidity.Score, error) {
	return nil, fmt.Errorf("%w: no score stored", domain.ErrInsufficientData)
}

type memSignalRepo struct {
	inserted []*pulse.Signal
}

func (m *memSignalRepo) Insert(ctx context.Context, sig *pulse.Signal) error {
	m.inserted = append(m.inserted, sig)
	return nil
}

func (m *memSignalRepo) Latest(ctx context.Context, venue, symbol string) (*pulse.Signal, error) {
	return nil, fmt.Errorf("%w: no signal stored", domain.ErrInsufficientData)
}

func (m *memSignalRepo) ListRange(ctx context.Context, venue, symbol string, tr persistence.TimeRange, limit int) ([]*pulse.Signal, error) {
	return nil, nil
}

func jobEngine(snaps *memSnapshotRepo, metrics *memMetricsRepo, signals *memSignalRepo) *engine {
	repo := &persistence.Repository{
		Snapshots: snaps,
		Metrics:   metrics,
		Signals:   signals,
	}
	return &engine{
		cfg:        config.Default(),
		metrics:    telemetry.NewMetrics(),
		repo:       repo,
		snapshots:  snapshot.NewService(snaps, nil),
		calculator: liquidity.NewCalculator(),
		scorer:     liquidity.NewScorer(liquidity.DefaultScorerConfig()),
		generator:  pulse.NewGenerator(pulse.DefaultConfig()),
	}
}

func sidedBook(i int, bidSize, askSize float64) *domain.Snapshot {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Second)
	bids := make([]domain.PriceLevel, 10)
	asks := make([]domain.PriceLevel, 10)
	for j := 0; j < 10; j++ {
		bids[j] = domain.PriceLevel{Price: 100 - float64(j)*0.01, Size: bidSize}
		asks[j] = domain.PriceLevel{Price: 100.01 + float64(j)*0.01, Size: askSize}
	}
	return domain.NewSnapshot("binance", "BTC-USD", ts, bids, asks, 0)
}

func TestRefreshMetricsChainsMomentum(t *testing.T) {
	metrics := &memMetricsRepo{}
	e := jobEngine(&memSnapshotRepo{}, metrics, &memSignalRepo{})
	ctx := context.Background()

	e.refreshMetrics(ctx, sidedBook(0, 10, 1)) // bid-heavy
	e.refreshMetrics(ctx, sidedBook(1, 1, 10)) // ask-heavy

	require.Len(t, metrics.imbalances, 2)
	first, second := metrics.imbalances[0], metrics.imbalances[1]

	assert.Zero(t, first.Momentum)
	assert.Positive(t, first.PressureScore)
	assert.Negative(t, second.PressureScore)

	assert.InDelta(t, second.PressureScore-first.PressureScore, second.Momentum, 1e-9)
	assert.NotZero(t, second.Momentum)
	assert.InDelta(t, first.PressureScore+second.PressureScore, second.CumulativePressure, 1e-9)
}

func TestSignalComputeCarriesStoredMomentum(t *testing.T) {
	snap := sidedBook(5, 10, 1)
	snaps := &memSnapshotRepo{latest: snap}
	metrics := &memMetricsRepo{imbalances: []*liquidity.ImbalanceRecord{{
		Venue:         "binance",
		Symbol:        "BTC-USD",
		Timestamp:     snap.Timestamp.Add(-5 * time.Second),
		PressureScore: -80,
	}}}
	signals := &memSignalRepo{}
	e := jobEngine(snaps, metrics, signals)

	job := scheduler.Job{
		Name: "signal-compute",
		Type: "signal.compute",
		Config: scheduler.JobConfig{
			Venues:  []string{"binance"},
			Symbols: []string{"BTC-USD"},
		},
	}
	require.NoError(t, e.runSignalCompute(context.Background(), job))

	require.Len(t, signals.inserted, 1)
	sig := signals.inserted[0]

	expected := liquidity.NewCalculator().Compute(snap, metrics.imbalances[0])
	assert.InDelta(t, expected.Momentum, sig.Components.Momentum, 1e-9)
	assert.NotZero(t, sig.Components.Momentum)
	assert.Equal(t, pulse.Bullish, sig.Direction)
}
