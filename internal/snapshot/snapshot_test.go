package snapshot

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookpulse/engine/internal/domain"
	"github.com/bookpulse/engine/internal/gateway"
	"github.com/bookpulse/engine/internal/persistence"
)

var snapTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func snapAt(ts time.Time, bids, asks []domain.PriceLevel) *domain.Snapshot {
	return domain.NewSnapshot("binance", "BTC-USD", ts, bids, asks, 0)
}

func TestDiffClassifiesChanges(t *testing.T) {
	base := snapAt(snapTime,
		[]domain.PriceLevel{{Price: 100, Size: 2}, {Price: 99, Size: 3}},
		[]domain.PriceLevel{{Price: 101, Size: 1}})

	t.Run("identical_snapshots_empty_delta", func(t *testing.T) {
		d := Diff(base, base)
		assert.True(t, d.Empty())
	})

	t.Run("new_level_is_add", func(t *testing.T) {
		next := snapAt(snapTime.Add(time.Second),
			[]domain.PriceLevel{{Price: 100, Size: 2}, {Price: 99, Size: 3}, {Price: 98, Size: 5}},
			[]domain.PriceLevel{{Price: 101, Size: 1}})
		d := Diff(base, next)
		assert.Equal(t, domain.ChangeAdd, d.Kind)
		require.Len(t, d.Bids, 1)
		assert.Equal(t, 98.0, d.Bids[0].Price)
		assert.Equal(t, 5.0, d.Bids[0].Size)
	})

	t.Run("size_change_is_update", func(t *testing.T) {
		next := snapAt(snapTime.Add(time.Second),
			[]domain.PriceLevel{{Price: 100, Size: 7}, {Price: 99, Size: 3}},
			[]domain.PriceLevel{{Price: 101, Size: 1}})
		d := Diff(base, next)
		assert.Equal(t, domain.ChangeUpdate, d.Kind)
		require.Len(t, d.Bids, 1)
		assert.Equal(t, 7.0, d.Bids[0].Size)
	})

	t.Run("vanished_level_is_remove_with_size_zero", func(t *testing.T) {
		next := snapAt(snapTime.Add(time.Second),
			[]domain.PriceLevel{{Price: 100, Size: 2}},
			[]domain.PriceLevel{{Price: 101, Size: 1}})
		d := Diff(base, next)
		assert.Equal(t, domain.ChangeRemove, d.Kind)
		require.Len(t, d.Bids, 1)
		assert.Equal(t, 99.0, d.Bids[0].Price)
		assert.Equal(t, 0.0, d.Bids[0].Size)
	})

	t.Run("remove_wins_over_update_and_add", func(t *testing.T) {
		next := snapAt(snapTime.Add(time.Second),
			[]domain.PriceLevel{{Price: 100, Size: 9}, {Price: 98, Size: 5}},
			[]domain.PriceLevel{{Price: 101, Size: 1}})
		d := Diff(base, next)
		assert.Equal(t, domain.ChangeRemove, d.Kind)
		assert.Len(t, d.Bids, 3)
	})
}

// memRepo is an in-memory SnapshotRepo for service tests.
type memRepo struct {
	snapshots []*domain.Snapshot
	insertErr error
}

func (m *memRepo) Insert(ctx context.Context, s *domain.Snapshot) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.snapshots = append(m.snapshots, s)
	return nil
}

func (m *memRepo) Latest(ctx context.Context, venue, symbol string) (*domain.Snapshot, error) {
	if len(m.snapshots) == 0 {
		return nil, fmt.Errorf("%w: nothing stored", domain.ErrInsufficientData)
	}
	return m.snapshots[len(m.snapshots)-1], nil
}

func (m *memRepo) ListRange(ctx context.Context, venue, symbol string, tr persistence.TimeRange, limit int) ([]*domain.Snapshot, error) {
	var out []*domain.Snapshot
	for _, s := range m.snapshots {
		if !s.Timestamp.Before(tr.From) && !s.Timestamp.After(tr.To) {
			out = append(out, s)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memRepo) Prune(ctx context.Context, before time.Time) (int64, error) {
	kept := m.snapshots[:0]
	var pruned int64
	for _, s := range m.snapshots {
		if s.Timestamp.Before(before) {
			pruned++
			continue
		}
		kept = append(kept, s)
	}
	m.snapshots = kept
	return pruned, nil
}

type memDeltas struct {
	deltas []*domain.Delta
}

func (m *memDeltas) Insert(ctx context.Context, d *domain.Delta) error {
	m.deltas = append(m.deltas, d)
	return nil
}

func (m *memDeltas) ListRange(ctx context.Context, venue, symbol string, tr persistence.TimeRange, limit int) ([]*domain.Delta, error) {
	return m.deltas, nil
}

type scriptedGateway struct {
	venue string
	books []*gateway.RawBook
	calls int
}

func (g *scriptedGateway) Venue() string { return g.venue }

func (g *scriptedGateway) FetchOrderBook(ctx context.Context, symbol string, depthLimit int) (*gateway.RawBook, error) {
	if g.calls >= len(g.books) {
		return nil, errors.New("no more scripted books")
	}
	book := g.books[g.calls]
	g.calls++
	return book, nil
}

func rawBook(at time.Time, bidSize float64) *gateway.RawBook {
	return &gateway.RawBook{
		Venue:     "binance",
		Symbol:    "BTC-USD",
		Bids:      []domain.PriceLevel{{Price: 100, Size: bidSize}},
		Asks:      []domain.PriceLevel{{Price: 101, Size: 1}},
		FetchedAt: at,
	}
}

func TestRefreshStoresSnapshotAndDelta(t *testing.T) {
	gw := &scriptedGateway{venue: "binance", books: []*gateway.RawBook{
		rawBook(snapTime, 2),
		rawBook(snapTime.Add(time.Second), 5),
	}}
	repo := &memRepo{}
	deltas := &memDeltas{}
	svc := NewService(repo, []gateway.OrderBookGateway{gw}, WithDeltaRepo(deltas))

	first, delta, err := svc.Refresh(context.Background(), "binance", "BTC-USD", 10)
	require.NoError(t, err)
	assert.Nil(t, delta, "first observation has nothing to diff against")
	assert.Len(t, repo.snapshots, 1)

	second, delta, err := svc.Refresh(context.Background(), "binance", "BTC-USD", 10)
	require.NoError(t, err)
	require.NotNil(t, delta)
	assert.Equal(t, domain.ChangeUpdate, delta.Kind)
	assert.Len(t, deltas.deltas, 1)
	assert.True(t, second.Timestamp.After(first.Timestamp))
}

func TestFetchRejectsUnknownVenue(t *testing.T) {
	svc := NewService(&memRepo{}, nil)
	_, err := svc.Fetch(context.Background(), "nope", "BTC-USD", 10)
	require.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestLatestPrefersCache(t *testing.T) {
	cached := snapAt(snapTime, []domain.PriceLevel{{Price: 100, Size: 1}}, nil)
	svc := NewService(&memRepo{}, nil, WithCache(&staticCache{snap: cached}))

	got, err := svc.Latest(context.Background(), "binance", "BTC-USD")
	require.NoError(t, err)
	assert.Same(t, cached, got)
}

func TestLatestFallsThroughToStorage(t *testing.T) {
	repo := &memRepo{}
	stored := snapAt(snapTime, []domain.PriceLevel{{Price: 100, Size: 1}}, nil)
	require.NoError(t, repo.Insert(context.Background(), stored))

	svc := NewService(repo, nil, WithCache(&staticCache{}))
	got, err := svc.Latest(context.Background(), "binance", "BTC-USD")
	require.NoError(t, err)
	assert.Same(t, stored, got)
}

func TestHistoricalRejectsInvertedWindow(t *testing.T) {
	svc := NewService(&memRepo{}, nil)
	_, err := svc.Historical(context.Background(), "binance", "BTC-USD",
		snapTime, snapTime.Add(-time.Hour), 10)
	require.ErrorIs(t, err, domain.ErrInvalidParameter)
}

type staticCache struct {
	snap *domain.Snapshot
}

func (c *staticCache) GetSnapshot(ctx context.Context, venue, symbol string) (*domain.Snapshot, bool) {
	return c.snap, c.snap != nil
}

func (c *staticCache) SetSnapshot(ctx context.Context, s *domain.Snapshot) error {
	c.snap = s
	return nil
}
