package pulse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookpulse/engine/internal/domain"
	"github.com/bookpulse/engine/internal/liquidity"
)

func bookWithSizes(bidSize, askSize float64) *domain.Snapshot {
	bids := make([]domain.PriceLevel, 10)
	asks := make([]domain.PriceLevel, 10)
	for i := 0; i < 10; i++ {
		bids[i] = domain.PriceLevel{Price: 100 - 0.01*float64(i), Size: bidSize}
		asks[i] = domain.PriceLevel{Price: 100.01 + 0.01*float64(i), Size: askSize}
	}
	return domain.NewSnapshot("binance", "BTC-USD", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), bids, asks, 0)
}

func signalInputs(t *testing.T, s *domain.Snapshot) (*liquidity.ImbalanceRecord, *liquidity.Score) {
	t.Helper()
	imb := liquidity.NewCalculator().Compute(s, nil)
	score := liquidity.NewScorer(liquidity.ScorerConfig{}).Score(s, nil)
	return imb, score
}

func TestGenerateBullishOnBidHeavyBook(t *testing.T) {
	s := bookWithSizes(100, 10)
	imb, score := signalInputs(t, s)

	g := NewGenerator(Config{})
	sig, err := g.Generate(s, imb, score)
	require.NoError(t, err)

	assert.Equal(t, Bullish, sig.Direction)
	assert.Greater(t, sig.Combined, 30.0)
	assert.Greater(t, sig.Strength, 20.0)
	assert.GreaterOrEqual(t, sig.Confidence, 60.0)
	assert.NotEmpty(t, sig.ID)
	assert.NotEmpty(t, sig.Reason)

	ok, reason := g.Validate(sig)
	assert.True(t, ok, reason)
}

func TestGenerateBearishOnAskHeavyBook(t *testing.T) {
	s := bookWithSizes(10, 100)
	imb, score := signalInputs(t, s)

	g := NewGenerator(Config{})
	sig, err := g.Generate(s, imb, score)
	require.NoError(t, err)

	assert.Equal(t, Bearish, sig.Direction)
	assert.Less(t, sig.Combined, -30.0)
}

func TestGenerateNeutralOnBalancedBookIsFiltered(t *testing.T) {
	s := bookWithSizes(50, 50)
	imb, score := signalInputs(t, s)

	g := NewGenerator(Config{})
	sig, err := g.Generate(s, imb, score)
	require.NoError(t, err)

	assert.Equal(t, Neutral, sig.Direction)
	assert.InDelta(t, 0.0, sig.Combined, 1e-9)

	ok, reason := g.Validate(sig)
	assert.False(t, ok)
	assert.Contains(t, reason, "strength")
}

func TestLiquidityScalesMagnitudeNotDirection(t *testing.T) {
	s := bookWithSizes(100, 10)
	imb, _ := signalInputs(t, s)

	rich := &liquidity.Score{Overall: 95}
	poor := &liquidity.Score{Overall: 5}

	g := NewGenerator(Config{})
	sigRich, err := g.Generate(s, imb, rich)
	require.NoError(t, err)
	sigPoor, err := g.Generate(s, imb, poor)
	require.NoError(t, err)

	assert.Equal(t, sigRich.Direction, sigPoor.Direction)
	assert.Equal(t, sigRich.Combined, sigPoor.Combined)
	assert.Greater(t, sigRich.Strength, sigPoor.Strength)
}

func TestGenerateRejectsNilInputs(t *testing.T) {
	g := NewGenerator(Config{})
	_, err := g.Generate(nil, nil, nil)
	require.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestValidateRejectsConflictingIndicators(t *testing.T) {
	g := NewGenerator(Config{})

	sig := &Signal{
		Direction:  Bullish,
		Strength:   60,
		Confidence: 90,
		Components: Components{PressureScore: -15},
	}
	ok, reason := g.Validate(sig)
	assert.False(t, ok)
	assert.Contains(t, reason, "conflicts")

	sig.Components.PressureScore = 15
	ok, _ = g.Validate(sig)
	assert.True(t, ok)
}

func TestValidateRejectsLowConfidence(t *testing.T) {
	g := NewGenerator(Config{})
	sig := &Signal{Direction: Bullish, Strength: 60, Confidence: 40,
		Components: Components{PressureScore: 50}}
	ok, reason := g.Validate(sig)
	assert.False(t, ok)
	assert.Contains(t, reason, "confidence")
}

func TestDivergenceBullishOnPriceDropAgainstBidPressure(t *testing.T) {
	older := bookWithSizes(50, 50)
	// Price fell ~1% while bid pressure stays strongly positive.
	bids := make([]domain.PriceLevel, 10)
	asks := make([]domain.PriceLevel, 10)
	for i := 0; i < 10; i++ {
		bids[i] = domain.PriceLevel{Price: 99 - 0.01*float64(i), Size: 50}
		asks[i] = domain.PriceLevel{Price: 99.01 + 0.01*float64(i), Size: 50}
	}
	newer := domain.NewSnapshot("binance", "BTC-USD", older.Timestamp.Add(time.Minute), bids, asks, 0)

	d := DetectDivergence(DefaultDivergenceConfig(), older, newer, 80)
	require.NotNil(t, d)
	assert.Equal(t, BullishDivergence, d.Kind)
	assert.Negative(t, d.PriceChangePercent)
	assert.Greater(t, d.Magnitude, 0.0)
}

func TestDivergenceNilWhenPriceAndPressureAgree(t *testing.T) {
	older := bookWithSizes(50, 50)
	newer := bookWithSizes(50, 50)
	// Flat price: no divergence regardless of pressure.
	assert.Nil(t, DetectDivergence(DefaultDivergenceConfig(), older, newer, 80))
}

func TestDivergenceNilBelowThresholds(t *testing.T) {
	older := bookWithSizes(50, 50)
	bids := []domain.PriceLevel{{Price: 99.95, Size: 50}}
	asks := []domain.PriceLevel{{Price: 99.96, Size: 50}}
	newer := domain.NewSnapshot("binance", "BTC-USD", older.Timestamp.Add(time.Minute), bids, asks, 0)

	// Real move but weak pressure.
	assert.Nil(t, DetectDivergence(DefaultDivergenceConfig(), older, newer, 10))
}
