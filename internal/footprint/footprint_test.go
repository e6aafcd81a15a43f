package footprint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookpulse/engine/internal/domain"
)

var barStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func trade(at time.Duration, price, size float64, buyerMaker bool) domain.Trade {
	return domain.Trade{
		Venue:        "binance",
		Symbol:       "BTC-USD",
		Timestamp:    barStart.Add(at),
		Price:        price,
		Size:         size,
		IsBuyerMaker: buyerMaker,
	}
}

func TestBuildBucketsTradesIntoTimeframeBars(t *testing.T) {
	trades := []domain.Trade{
		trade(10*time.Second, 100.00, 2, false), // aggressive buy
		trade(40*time.Second, 100.50, 1, true),  // aggressive sell
		trade(50*time.Second, 100.00, 3, true),
		trade(65*time.Second, 99.50, 1, false), // next bar
	}

	bars := NewBuilder(Config{}).Build(trades)
	require.Len(t, bars, 2)

	first := bars[0]
	assert.Equal(t, barStart, first.Start)
	assert.Equal(t, barStart.Add(time.Minute), first.End)
	assert.Equal(t, 100.00, first.Open)
	assert.Equal(t, 100.50, first.High)
	assert.Equal(t, 100.00, first.Low)
	assert.Equal(t, 100.00, first.Close)
	assert.Equal(t, 3, first.Trades)
	assert.Equal(t, 6.0, first.TotalVolume)
	assert.Equal(t, 2.0, first.BuyVolume)
	assert.Equal(t, 4.0, first.SellVolume)
	assert.Equal(t, -2.0, first.Delta)

	// 5 units traded at 100.00 vs 1 at 100.50.
	assert.Equal(t, 100.00, first.PointOfControl)

	second := bars[1]
	assert.Equal(t, barStart.Add(time.Minute), second.Start)
	assert.Equal(t, 1, second.Trades)
}

func TestBuildRowsSortedWithPerPriceDelta(t *testing.T) {
	trades := []domain.Trade{
		trade(1*time.Second, 101, 4, false),
		trade(2*time.Second, 99, 1, true),
		trade(3*time.Second, 101, 1, true),
	}

	bars := NewBuilder(Config{}).Build(trades)
	require.Len(t, bars, 1)

	rows := bars[0].Rows
	require.Len(t, rows, 2)
	assert.Equal(t, 99.0, rows[0].Price)
	assert.Equal(t, 101.0, rows[1].Price)

	assert.Equal(t, 4.0, rows[1].BuyVolume)
	assert.Equal(t, 1.0, rows[1].SellVolume)
	assert.Equal(t, 3.0, rows[1].Delta)
	assert.InDelta(t, 0.6, rows[1].Imbalance, 1e-9)
}

func TestBuildHandlesUnsortedAndEmptyInput(t *testing.T) {
	b := NewBuilder(Config{})
	assert.Nil(t, b.Build(nil))

	trades := []domain.Trade{
		trade(65*time.Second, 101, 1, false),
		trade(5*time.Second, 100, 1, false),
	}
	bars := b.Build(trades)
	require.Len(t, bars, 2)
	assert.True(t, bars[0].Start.Before(bars[1].Start))
}

func TestBuildProfileValueAreaExpandsFromPOC(t *testing.T) {
	var trades []domain.Trade
	add := func(price, size float64) {
		trades = append(trades, trade(time.Duration(len(trades))*time.Second, price, size, false))
	}
	add(99, 10)
	add(100, 60)
	add(101, 30)

	p := NewBuilder(Config{}).BuildProfile(trades, 70)
	require.NotNil(t, p)

	assert.Equal(t, 100.0, p.PointOfControl)
	assert.Equal(t, 100.0, p.TotalVolume)
	// POC holds 60; the 30-volume neighbor above beats the 10 below, and
	// 60+30 already covers the 70% target.
	assert.Equal(t, 100.0, p.ValueAreaLow)
	assert.Equal(t, 101.0, p.ValueAreaHigh)
}

func TestBuildProfileEmptyWindow(t *testing.T) {
	assert.Nil(t, NewBuilder(Config{}).BuildProfile(nil, 70))
}

func barWith(start time.Time, open, close, volume, delta float64) *Bar {
	return &Bar{
		Venue: "binance", Symbol: "BTC-USD",
		Start: start, End: start.Add(time.Minute),
		Open: open, High: open, Low: close, Close: close,
		TotalVolume: volume,
		BuyVolume:   (volume + delta) / 2,
		SellVolume:  (volume - delta) / 2,
		Delta:       delta,
	}
}

func TestDetectAbsorptionOnHeavyFlatBar(t *testing.T) {
	bars := []*Bar{
		barWith(barStart, 100, 100.2, 10, 1),
		// Heavy selling, price barely moves: bids absorbed the flow.
		barWith(barStart.Add(time.Minute), 100, 100.02, 30, -20),
		barWith(barStart.Add(2*time.Minute), 100, 99.9, 10, -2),
	}

	patterns := DetectPatterns(DefaultPatternConfig(), bars)
	require.Len(t, patterns, 1)
	assert.Equal(t, AbsorptionBid, patterns[0].Kind)
	assert.Equal(t, 30.0, patterns[0].Volume)
	assert.Greater(t, patterns[0].VolumeRatio, 1.5)
}

func TestDetectBuyingClimax(t *testing.T) {
	bars := []*Bar{
		barWith(barStart, 100, 100.1, 10, 1),
		barWith(barStart.Add(time.Minute), 100, 100.1, 10, -1),
		// 50 volume against a 23.3 average with delta share 0.8.
		barWith(barStart.Add(2*time.Minute), 100, 102, 50, 40),
	}

	patterns := DetectPatterns(DefaultPatternConfig(), bars)
	require.Len(t, patterns, 1)
	assert.Equal(t, BuyingClimax, patterns[0].Kind)
	assert.Greater(t, patterns[0].VolumeRatio, 2.0)
}

func TestDetectNothingOnShortOrQuietWindows(t *testing.T) {
	cfg := DefaultPatternConfig()

	assert.Nil(t, DetectPatterns(cfg, []*Bar{barWith(barStart, 100, 100, 50, 40)}))

	quiet := []*Bar{
		barWith(barStart, 100, 100.5, 10, 2),
		barWith(barStart.Add(time.Minute), 100.5, 101, 10, 2),
		barWith(barStart.Add(2*time.Minute), 101, 101.5, 10, 2),
	}
	assert.Nil(t, DetectPatterns(cfg, quiet))
}
