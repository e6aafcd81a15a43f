package pulse

import (
	"fmt"
	"time"

	"github.com/bookpulse/engine/internal/domain"
)

// DivergenceKind names which way book pressure disagrees with price.
type DivergenceKind string

const (
	// BullishDivergence: price falling while bid pressure builds.
	BullishDivergence DivergenceKind = "bullish"
	// BearishDivergence: price rising while ask pressure builds.
	BearishDivergence DivergenceKind = "bearish"
)

// Divergence is a disagreement between observed price movement and the
// book's current pressure, a common precursor to reversals.
type Divergence struct {
	Venue     string    `json:"venue"`
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`

	Kind               DivergenceKind `json:"kind"`
	PriceChangePercent float64        `json:"price_change_percent"`
	PressureScore      float64        `json:"pressure_score"`
	Magnitude          float64        `json:"magnitude"` // 0-100
	Note               string         `json:"note"`
}

// DivergenceConfig sets the trip points.
type DivergenceConfig struct {
	// MinPriceMovePercent is the absolute price change needed to call the
	// move real rather than noise.
	MinPriceMovePercent float64 `yaml:"min_price_move_percent"`
	// MinPressure is the absolute pressure needed on the opposing side.
	MinPressure float64 `yaml:"min_pressure"`
}

// DefaultDivergenceConfig requires a 0.2% move against pressure of 40+.
func DefaultDivergenceConfig() DivergenceConfig {
	return DivergenceConfig{MinPriceMovePercent: 0.2, MinPressure: 40}
}

// DetectDivergence compares the price change between two snapshots with the
// current pressure score. Returns nil when price and pressure agree or
// either signal is too weak.
func DetectDivergence(cfg DivergenceConfig, older, newer *domain.Snapshot, pressure float64) *Divergence {
	if older == nil || newer == nil {
		return nil
	}
	oldMid := older.MidPrice
	newMid := newer.MidPrice
	if oldMid <= 0 || newMid <= 0 {
		return nil
	}

	change := (newMid - oldMid) / oldMid * 100
	if abs(change) < cfg.MinPriceMovePercent || abs(pressure) < cfg.MinPressure {
		return nil
	}

	var kind DivergenceKind
	switch {
	case change < 0 && pressure > 0:
		kind = BullishDivergence
	case change > 0 && pressure < 0:
		kind = BearishDivergence
	default:
		return nil
	}

	d := &Divergence{
		Venue:              newer.Venue,
		Symbol:             newer.Symbol,
		Timestamp:          newer.Timestamp,
		Kind:               kind,
		PriceChangePercent: change,
		PressureScore:      pressure,
		Magnitude:          clamp(abs(pressure)*abs(change)/cfg.MinPriceMovePercent/2, 0, 100),
	}
	d.Note = fmt.Sprintf("price moved %.2f%% against pressure %.0f", change, pressure)
	return d
}
