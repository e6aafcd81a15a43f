package liquidity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookpulse/engine/internal/domain"
)

func snap(bids, asks []domain.PriceLevel) *domain.Snapshot {
	return domain.NewSnapshot("binance", "BTC-USD", time.Now(), bids, asks, 0)
}

func TestImbalanceBalancedBook(t *testing.T) {
	// bids 100*2 + 99*3 = 497, asks 101*1 + 102*4 = 509: slightly ask-heavy.
	s := snap(
		[]domain.PriceLevel{{Price: 100, Size: 2}, {Price: 99, Size: 3}},
		[]domain.PriceLevel{{Price: 101, Size: 1}, {Price: 102, Size: 4}},
	)
	got := ImbalanceAt(s, 2)
	assert.InDelta(t, (497.0-509.0)/(497.0+509.0), got, 1e-9)
}

func TestImbalanceExactlyBalanced(t *testing.T) {
	// Equal notional on both sides yields exactly zero.
	s := snap(
		[]domain.PriceLevel{{Price: 100, Size: 5}},
		[]domain.PriceLevel{{Price: 100, Size: 5}},
	)
	assert.Equal(t, 0.0, ImbalanceAt(s, 2))
}

func TestImbalanceBounds(t *testing.T) {
	oneSided := snap([]domain.PriceLevel{{Price: 100, Size: 5}}, nil)
	assert.Equal(t, 1.0, ImbalanceAt(oneSided, 5))

	empty := snap(nil, nil)
	assert.Equal(t, 0.0, ImbalanceAt(empty, 5))

	for _, depth := range []int{5, 10, 20, 50} {
		v := ImbalanceAt(oneSided, depth)
		assert.GreaterOrEqual(t, v, -1.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestComputeMomentumDefaultsToZero(t *testing.T) {
	calc := NewCalculator()
	s := snap(
		[]domain.PriceLevel{{Price: 100, Size: 10}},
		[]domain.PriceLevel{{Price: 101, Size: 2}},
	)

	first := calc.Compute(s, nil)
	assert.Equal(t, 0.0, first.Momentum)
	assert.Equal(t, first.PressureScore, first.CumulativePressure)

	// A more bid-heavy book must raise pressure and produce positive momentum.
	s2 := snap(
		[]domain.PriceLevel{{Price: 100, Size: 20}},
		[]domain.PriceLevel{{Price: 101, Size: 1}},
	)
	second := calc.Compute(s2, first)
	assert.Greater(t, second.Momentum, 0.0)
	assert.InDelta(t, first.CumulativePressure+second.PressureScore, second.CumulativePressure, 1e-9)
}

func TestPressureScoreBounds(t *testing.T) {
	calc := NewCalculator()
	bidOnly := snap([]domain.PriceLevel{{Price: 100, Size: 50}}, nil)
	rec := calc.Compute(bidOnly, nil)
	assert.InDelta(t, 100.0, rec.PressureScore, 1e-9)

	askOnly := snap(nil, []domain.PriceLevel{{Price: 100, Size: 50}})
	rec = calc.Compute(askOnly, nil)
	assert.InDelta(t, -100.0, rec.PressureScore, 1e-9)
}

func TestComputeWindowChains(t *testing.T) {
	calc := NewCalculator()
	snaps := []*domain.Snapshot{
		snap([]domain.PriceLevel{{Price: 100, Size: 1}}, []domain.PriceLevel{{Price: 101, Size: 1}}),
		snap([]domain.PriceLevel{{Price: 100, Size: 3}}, []domain.PriceLevel{{Price: 101, Size: 1}}),
		snap([]domain.PriceLevel{{Price: 100, Size: 6}}, []domain.PriceLevel{{Price: 101, Size: 1}}),
	}
	records := calc.ComputeWindow(snaps)
	require.Len(t, records, 3)
	assert.Equal(t, 0.0, records[0].Momentum)
	assert.Greater(t, records[1].Momentum, 0.0)
	assert.Greater(t, records[2].CumulativePressure, records[1].CumulativePressure)
}

func TestConsistentSign(t *testing.T) {
	rec := &ImbalanceRecord{Imbalance5: 0.2, Imbalance10: 0.1, Imbalance20: 0, Imbalance50: 0.05}
	assert.True(t, rec.ConsistentSign())

	rec.Imbalance50 = -0.05
	assert.False(t, rec.ConsistentSign())
}

func TestRegimeBands(t *testing.T) {
	assert.Equal(t, RegimeAbundant, RegimeFor(80))
	assert.Equal(t, RegimeNormal, RegimeFor(79.9))
	assert.Equal(t, RegimeNormal, RegimeFor(60))
	assert.Equal(t, RegimeScarce, RegimeFor(59.9))
	assert.Equal(t, RegimeScarce, RegimeFor(40))
	assert.Equal(t, RegimeCrisis, RegimeFor(39.9))
}

func TestScoreDeepTightBook(t *testing.T) {
	scorer := NewScorer(DefaultScorerConfig())

	bids := make([]domain.PriceLevel, 50)
	asks := make([]domain.PriceLevel, 50)
	for i := 0; i < 50; i++ {
		bids[i] = domain.PriceLevel{Price: 50000 - float64(i), Size: 1}
		asks[i] = domain.PriceLevel{Price: 50001 + float64(i), Size: 1}
	}
	s := snap(bids, asks)

	score := scorer.Score(s, nil)
	assert.GreaterOrEqual(t, score.Overall, 60.0, "deep tight book should be at least normal")
	assert.Equal(t, 100.0, score.DepthScore)
	assert.Equal(t, 100.0, score.VolumeScore)
	assert.Equal(t, RegimeFor(score.Overall), score.Regime)
}

func TestScoreThinBook(t *testing.T) {
	scorer := NewScorer(DefaultScorerConfig())
	s := snap(
		[]domain.PriceLevel{{Price: 90, Size: 0.1}},
		[]domain.PriceLevel{{Price: 110, Size: 0.1}},
	)

	score := scorer.Score(s, nil)
	assert.Less(t, score.Overall, 40.0)
	assert.Equal(t, RegimeCrisis, score.Regime)
}

func TestStabilityScoreUsesHistory(t *testing.T) {
	scorer := NewScorer(DefaultScorerConfig())
	stable := []*domain.Snapshot{
		snap([]domain.PriceLevel{{Price: 100, Size: 10}}, []domain.PriceLevel{{Price: 101, Size: 10}}),
		snap([]domain.PriceLevel{{Price: 100, Size: 10}}, []domain.PriceLevel{{Price: 101, Size: 10}}),
		snap([]domain.PriceLevel{{Price: 100, Size: 10}}, []domain.PriceLevel{{Price: 101, Size: 10}}),
	}
	volatile := []*domain.Snapshot{
		snap([]domain.PriceLevel{{Price: 100, Size: 1}}, []domain.PriceLevel{{Price: 101, Size: 1}}),
		snap([]domain.PriceLevel{{Price: 100, Size: 40}}, []domain.PriceLevel{{Price: 101, Size: 40}}),
		snap([]domain.PriceLevel{{Price: 100, Size: 2}}, []domain.PriceLevel{{Price: 101, Size: 2}}),
	}

	s := stable[0]
	assert.Greater(t,
		scorer.Score(s, stable).StabilityScore,
		scorer.Score(s, volatile).StabilityScore)
}
