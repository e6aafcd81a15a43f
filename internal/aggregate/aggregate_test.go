package aggregate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookpulse/engine/internal/domain"
	"github.com/bookpulse/engine/internal/gateway"
)

func venueSnap(venue string, bids, asks []domain.PriceLevel) *domain.Snapshot {
	return domain.NewSnapshot(venue, "BTC-USD", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), bids, asks, 0)
}

func TestMergeSumsSizesAndUnionsVenues(t *testing.T) {
	a := venueSnap("binance",
		[]domain.PriceLevel{{Price: 100, Size: 2}, {Price: 99, Size: 1}},
		[]domain.PriceLevel{{Price: 101, Size: 3}})
	b := venueSnap("okx",
		[]domain.PriceLevel{{Price: 100, Size: 5}},
		[]domain.PriceLevel{{Price: 100.5, Size: 1}})

	book := Merge("BTC-USD", []*domain.Snapshot{a, b})

	require.Len(t, book.Bids, 2)
	top := book.Bids[0]
	assert.Equal(t, 100.0, top.Price)
	assert.Equal(t, 7.0, top.Size)
	assert.Equal(t, 2.0, top.Venues["binance"])
	assert.Equal(t, 5.0, top.Venues["okx"])

	assert.Equal(t, 100.0, book.BestBid)
	assert.Equal(t, 100.5, book.BestAsk)
	assert.Equal(t, "okx", book.BestAskVenue)
	assert.ElementsMatch(t, []string{"binance", "okx"}, book.Venues)

	// Merged ladders keep their ordering invariants.
	for i := 1; i < len(book.Bids); i++ {
		assert.Greater(t, book.Bids[i-1].Price, book.Bids[i].Price)
	}
	for i := 1; i < len(book.Asks); i++ {
		assert.Less(t, book.Asks[i-1].Price, book.Asks[i].Price)
	}
}

type stubGateway struct {
	venue string
	book  *gateway.RawBook
	err   error
}

func (s *stubGateway) Venue() string { return s.venue }

func (s *stubGateway) FetchOrderBook(ctx context.Context, symbol string, depthLimit int) (*gateway.RawBook, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.book, nil
}

func TestFetchDegradesOnVenueFailure(t *testing.T) {
	ok := &stubGateway{venue: "binance", book: &gateway.RawBook{
		Venue: "binance", Symbol: "BTC-USD",
		Bids:      []domain.PriceLevel{{Price: 100, Size: 1}},
		Asks:      []domain.PriceLevel{{Price: 101, Size: 1}},
		FetchedAt: time.Now(),
	}}
	down := &stubGateway{venue: "okx", err: errors.New("connection refused")}

	agg := NewAggregator(DefaultConfig(), ok, down)
	book, err := agg.Fetch(context.Background(), "BTC-USD", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"binance"}, book.Venues)
	assert.Equal(t, []string{"okx"}, book.Excluded)
}

func TestFetchAllVenuesDownFails(t *testing.T) {
	down1 := &stubGateway{venue: "binance", err: errors.New("boom")}
	down2 := &stubGateway{venue: "okx", err: errors.New("boom")}

	agg := NewAggregator(DefaultConfig(), down1, down2)
	_, err := agg.Fetch(context.Background(), "BTC-USD", 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrVenueUnreachable))
}

func TestRouteSplitsProportionally(t *testing.T) {
	a := venueSnap("binance", nil, []domain.PriceLevel{{Price: 101, Size: 6}})
	b := venueSnap("okx", nil, []domain.PriceLevel{{Price: 101, Size: 3}})
	book := Merge("BTC-USD", []*domain.Snapshot{a, b})

	agg := NewAggregator(DefaultConfig())
	plan, err := agg.Route(book, domain.Buy, 3)
	require.NoError(t, err)

	// The 101 level is 6:3 binance:okx, so 3 splits 2:1.
	fills := map[string]float64{}
	for _, f := range plan.Fills {
		fills[f.Venue] += f.Size
	}
	assert.InDelta(t, 2.0, fills["binance"], 1e-9)
	assert.InDelta(t, 1.0, fills["okx"], 1e-9)
	assert.Equal(t, 2, plan.VenuesUsed)

	// Fee-adjusted price: 101 * 1.001.
	assert.InDelta(t, 101*1.001, plan.AvgEffectivePrice, 1e-9)
	assert.InDelta(t, 101*3*0.001, plan.TotalFeesPaid, 1e-9)
}

func TestRouteBeatsSingleVenue(t *testing.T) {
	// binance has a thin cheap level, okx deep but pricier: splitting wins.
	a := venueSnap("binance", nil, []domain.PriceLevel{{Price: 100, Size: 2}, {Price: 110, Size: 20}})
	b := venueSnap("okx", nil, []domain.PriceLevel{{Price: 102, Size: 20}})
	book := Merge("BTC-USD", []*domain.Snapshot{a, b})

	agg := NewAggregator(DefaultConfig())
	plan, err := agg.Route(book, domain.Buy, 10)
	require.NoError(t, err)

	assert.NotEmpty(t, plan.BestSingleVenue)
	assert.Greater(t, plan.SavingsPercent, 0.0)
	assert.Less(t, plan.AvgEffectivePrice, plan.BestSinglePrice)
}

func TestRouteInsufficientAcrossAllVenues(t *testing.T) {
	a := venueSnap("binance", nil, []domain.PriceLevel{{Price: 101, Size: 1}})
	book := Merge("BTC-USD", []*domain.Snapshot{a})

	agg := NewAggregator(DefaultConfig())
	_, err := agg.Route(book, domain.Buy, 5)
	require.Error(t, err)

	var le *domain.LiquidityError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, 1.0, le.Filled)
}

func TestArbitrageEmittedAboveFloor(t *testing.T) {
	// Buy on binance at 100, sell on okx at 101: ~0.8% net after 2x0.1% fees.
	a := venueSnap("binance",
		[]domain.PriceLevel{{Price: 99.9, Size: 5}},
		[]domain.PriceLevel{{Price: 100, Size: 5}})
	b := venueSnap("okx",
		[]domain.PriceLevel{{Price: 101, Size: 3}},
		[]domain.PriceLevel{{Price: 101.1, Size: 3}})
	book := Merge("BTC-USD", []*domain.Snapshot{a, b})

	agg := NewAggregator(DefaultConfig())
	opps := agg.FindArbitrage(book)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, "binance", opp.BuyVenue)
	assert.Equal(t, "okx", opp.SellVenue)
	assert.Equal(t, 3.0, opp.MaxSize)
	assert.InDelta(t, 1.0, opp.GrossProfitPercent, 1e-9)
	assert.Greater(t, opp.NetProfitPercent, DefaultConfig().MinArbProfitPercent)
	assert.Less(t, opp.NetProfitPercent, opp.GrossProfitPercent)
	assert.Greater(t, opp.NetProfitUSD, 0.0)
}

func TestArbitrageIdenticalPricesYieldNothing(t *testing.T) {
	a := venueSnap("binance",
		[]domain.PriceLevel{{Price: 100, Size: 5}},
		[]domain.PriceLevel{{Price: 100.1, Size: 5}})
	b := venueSnap("okx",
		[]domain.PriceLevel{{Price: 100, Size: 5}},
		[]domain.PriceLevel{{Price: 100.1, Size: 5}})
	book := Merge("BTC-USD", []*domain.Snapshot{a, b})

	agg := NewAggregator(DefaultConfig())
	assert.Empty(t, agg.FindArbitrage(book))
}

func TestArbitrageBelowFloorSuppressed(t *testing.T) {
	// 0.15% gross shrinks below the 0.1% floor after 0.2% total fees.
	a := venueSnap("binance", nil, []domain.PriceLevel{{Price: 100, Size: 5}})
	b := venueSnap("okx", []domain.PriceLevel{{Price: 100.15, Size: 5}}, nil)
	book := Merge("BTC-USD", []*domain.Snapshot{a, b})

	agg := NewAggregator(DefaultConfig())
	assert.Empty(t, agg.FindArbitrage(book))
}

func TestHHISingleVenueIs10000(t *testing.T) {
	a := venueSnap("binance",
		[]domain.PriceLevel{{Price: 100, Size: 5}},
		[]domain.PriceLevel{{Price: 101, Size: 5}})
	book := Merge("BTC-USD", []*domain.Snapshot{a})

	dist := Distribution(book)
	assert.InDelta(t, 10000.0, dist.HHI, 1e-9)
	assert.InDelta(t, 1.0, dist.EffectiveVenues, 1e-9)
}

func TestHHIDecreasesAsLiquiditySpreads(t *testing.T) {
	mk := func(venues int) *LiquidityDistribution {
		snaps := make([]*domain.Snapshot, venues)
		names := []string{"a", "b", "c", "d", "e"}
		for i := 0; i < venues; i++ {
			snaps[i] = venueSnap(names[i],
				[]domain.PriceLevel{{Price: 100, Size: 5}},
				[]domain.PriceLevel{{Price: 101, Size: 5}})
		}
		return Distribution(Merge("BTC-USD", snaps))
	}

	prev := mk(1).HHI
	for n := 2; n <= 5; n++ {
		cur := mk(n).HHI
		assert.Less(t, cur, prev, "HHI must fall as equal-share venues are added")
		prev = cur
	}
	assert.InDelta(t, 2000.0, mk(5).HHI, 1e-6)
	assert.InDelta(t, 5.0, mk(5).EffectiveVenues, 1e-6)
}

func TestScoreVenuesRanking(t *testing.T) {
	deepBids := make([]domain.PriceLevel, 50)
	deepAsks := make([]domain.PriceLevel, 50)
	for i := range deepBids {
		deepBids[i] = domain.PriceLevel{Price: 100 - 0.001*float64(i), Size: 200}
		deepAsks[i] = domain.PriceLevel{Price: 100.001 + 0.001*float64(i), Size: 200}
	}
	deep := venueSnap("binance", deepBids, deepAsks)
	thin := venueSnap("okx",
		[]domain.PriceLevel{{Price: 95, Size: 0.5}},
		[]domain.PriceLevel{{Price: 105, Size: 0.5}})

	book := Merge("BTC-USD", []*domain.Snapshot{deep, thin})
	scores := ScoreVenues(book, QualityScoreConfig{})
	require.Len(t, scores, 2)

	assert.Equal(t, "binance", scores[0].Venue)
	assert.Equal(t, 1, scores[0].Rank)
	assert.Equal(t, 2, scores[1].Rank)
	assert.Greater(t, scores[0].Overall, scores[1].Overall)
	assert.Equal(t, TierThin, scores[1].Tier)
}
