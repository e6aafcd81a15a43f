package impact

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookpulse/engine/internal/domain"
)

func book(bids, asks []domain.PriceLevel) *domain.Snapshot {
	return domain.NewSnapshot("binance", "BTC-USD", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), bids, asks, 0)
}

func twoLevelAsks() *domain.Snapshot {
	return book(
		[]domain.PriceLevel{{Price: 100, Size: 5}},
		[]domain.PriceLevel{{Price: 101, Size: 4}, {Price: 102, Size: 6}},
	)
}

func TestEstimateMarketBuyExactScenario(t *testing.T) {
	p := NewPlanner(DefaultConfig())

	est, err := p.Estimate(twoLevelAsks(), domain.Buy, 10)
	require.NoError(t, err)

	// avg = (101*4 + 102*6)/10 = 101.6
	assert.InDelta(t, 101.6, est.AvgPrice, 1e-9)
	assert.Equal(t, 101.0, est.BestPrice)
	assert.Equal(t, 102.0, est.WorstPrice)
	assert.InDelta(t, 0.594059405940594, est.ImpactPercent, 1e-9)
	assert.InDelta(t, 100.0, est.LiquidityConsumedPercent, 1e-9)

	require.Len(t, est.ExecutionPath, 2)
	assert.Equal(t, Fill{Price: 101, Size: 4, Cumulative: 4}, est.ExecutionPath[0])
	assert.Equal(t, Fill{Price: 102, Size: 6, Cumulative: 10}, est.ExecutionPath[1])
}

func TestEstimateInsufficientLiquidity(t *testing.T) {
	p := NewPlanner(DefaultConfig())

	_, err := p.Estimate(twoLevelAsks(), domain.Buy, 20)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientLiquidity))

	var le *domain.LiquidityError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, 20.0, le.Requested)
	assert.Equal(t, 10.0, le.Filled)
}

func TestEstimateAvgBetweenBestAndWorst(t *testing.T) {
	p := NewPlanner(DefaultConfig())
	s := book(
		[]domain.PriceLevel{{Price: 100, Size: 3}, {Price: 99, Size: 5}, {Price: 98, Size: 10}},
		[]domain.PriceLevel{{Price: 101, Size: 3}, {Price: 103, Size: 5}, {Price: 110, Size: 10}},
	)

	for _, side := range []domain.OrderSide{domain.Buy, domain.Sell} {
		for _, size := range []float64{1, 4, 9, 17} {
			est, err := p.Estimate(s, side, size)
			require.NoError(t, err)
			lo, hi := est.BestPrice, est.WorstPrice
			if lo > hi {
				lo, hi = hi, lo
			}
			assert.GreaterOrEqual(t, est.AvgPrice, lo)
			assert.LessOrEqual(t, est.AvgPrice, hi)
			assert.GreaterOrEqual(t, est.ImpactPercent, 0.0)
		}
	}
}

func TestEstimateSellWalksBids(t *testing.T) {
	p := NewPlanner(DefaultConfig())
	s := book(
		[]domain.PriceLevel{{Price: 100, Size: 2}, {Price: 99, Size: 3}},
		[]domain.PriceLevel{{Price: 101, Size: 1}},
	)

	est, err := p.Estimate(s, domain.Sell, 5)
	require.NoError(t, err)
	assert.Equal(t, 100.0, est.BestPrice)
	assert.Equal(t, 99.0, est.WorstPrice)
	assert.InDelta(t, (100.0*2+99.0*3)/5, est.AvgPrice, 1e-9)
}

func TestEstimateImpactSplit(t *testing.T) {
	p := NewPlanner(DefaultConfig())
	est, err := p.Estimate(twoLevelAsks(), domain.Buy, 10)
	require.NoError(t, err)

	// Order is 10 of 15 total book volume: permanent ratio caps at 0.5.
	assert.InDelta(t, est.ImpactPercent*0.5, est.PermanentPercent, 1e-9)
	assert.InDelta(t, est.ImpactPercent, est.PermanentPercent+est.TemporaryPercent, 1e-9)

	// A tiny order keeps most impact temporary.
	small, err := p.Estimate(twoLevelAsks(), domain.Buy, 0.1)
	require.NoError(t, err)
	assert.Greater(t, small.TemporaryPercent, small.PermanentPercent)
}

func TestEstimateRejectsNonPositiveSize(t *testing.T) {
	p := NewPlanner(DefaultConfig())
	_, err := p.Estimate(twoLevelAsks(), domain.Buy, 0)
	assert.True(t, errors.Is(err, domain.ErrInsufficientLiquidity))
}

func TestCurveMonotoneImpact(t *testing.T) {
	p := NewPlanner(Config{CurveSteps: 8, CurveSizeMultiple: 2})
	s := book(
		[]domain.PriceLevel{{Price: 100, Size: 10}},
		[]domain.PriceLevel{{Price: 101, Size: 5}, {Price: 102, Size: 5}, {Price: 104, Size: 5}, {Price: 108, Size: 5}},
	)

	curve, err := p.Curve(s, domain.Buy)
	require.NoError(t, err)
	require.Len(t, curve.Points, 8)

	prev := -1.0
	for _, pt := range curve.Points {
		if !pt.Fillable {
			continue
		}
		assert.GreaterOrEqual(t, pt.ImpactPercent, prev)
		prev = pt.ImpactPercent
	}
	assert.Greater(t, curve.Elasticity, 0.0, "widening book steepens impact per unit")
}

func TestCurveMarksUnfillableTail(t *testing.T) {
	p := NewPlanner(Config{CurveSteps: 4, CurveSizeMultiple: 8})
	s := book(nil, []domain.PriceLevel{{Price: 101, Size: 1}})

	curve, err := p.Curve(s, domain.Buy)
	require.NoError(t, err)

	unfillable := 0
	for _, pt := range curve.Points {
		if !pt.Fillable {
			unfillable++
		}
	}
	assert.Greater(t, unfillable, 0)
}

func TestPlanStrategySelection(t *testing.T) {
	p := NewPlanner(DefaultConfig())

	// Deep flat book: negligible impact, single market order.
	deepAsks := make([]domain.PriceLevel, 100)
	for i := range deepAsks {
		deepAsks[i] = domain.PriceLevel{Price: 100 + float64(i)*0.001, Size: 1000}
	}
	deep := book([]domain.PriceLevel{{Price: 99.999, Size: 1000}}, deepAsks)

	plan, err := p.Plan(deep, domain.Buy, 500)
	require.NoError(t, err)
	assert.Equal(t, StrategyMarket, plan.Strategy)
	assert.Equal(t, 1, plan.Splits)

	// Modest impact: a handful of slices, TWAP.
	plan, err = p.Plan(twoLevelAsks(), domain.Buy, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, plan.Splits) // ceil(0.594 / 0.25)
	assert.Equal(t, StrategyTWAP, plan.Strategy)
	assert.InDelta(t, 10.0/3.0, plan.SplitSize, 1e-9)

	// Steep book, many slices, heavy consumption: adaptive.
	steep := book(
		[]domain.PriceLevel{{Price: 100, Size: 100}},
		[]domain.PriceLevel{{Price: 101, Size: 10}, {Price: 105, Size: 10}, {Price: 115, Size: 10}},
	)
	plan, err = p.Plan(steep, domain.Buy, 28)
	require.NoError(t, err)
	assert.Greater(t, plan.Splits, 5)
	assert.Equal(t, StrategyAdaptive, plan.Strategy)
}

func TestPlanPropagatesLiquidityError(t *testing.T) {
	p := NewPlanner(DefaultConfig())
	_, err := p.Plan(twoLevelAsks(), domain.Buy, 100)
	assert.True(t, errors.Is(err, domain.ErrInsufficientLiquidity))
}
