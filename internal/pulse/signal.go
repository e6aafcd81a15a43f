// Package pulse fuses imbalance, pressure, momentum and liquidity context
// into one directional trading signal with confidence and validation.
package pulse

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bookpulse/engine/internal/domain"
	"github.com/bookpulse/engine/internal/liquidity"
)

// Direction is the signal's stance.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
	Neutral Direction = "neutral"
)

// Components carries the inputs that produced a signal, for attribution.
type Components struct {
	Imbalance10    float64 `json:"imbalance_10"`
	PressureScore  float64 `json:"pressure_score"`
	Momentum       float64 `json:"momentum"`
	LiquidityScore float64 `json:"liquidity_score"`
}

// Signal is the composite directional output.
type Signal struct {
	ID        string    `json:"id" db:"id"`
	Venue     string    `json:"venue" db:"venue"`
	Symbol    string    `json:"symbol" db:"symbol"`
	Timestamp time.Time `json:"timestamp" db:"ts"`

	Direction  Direction  `json:"direction" db:"direction"`
	Strength   float64    `json:"strength" db:"strength"`     // 0-100
	Confidence float64    `json:"confidence" db:"confidence"` // 0-100
	Combined   float64    `json:"combined" db:"combined"`     // -100..100
	Components Components `json:"components"`
	Reason     string     `json:"reason" db:"reason"`
}

// Config tunes the blend and the validation filters.
type Config struct {
	ImbalanceWeight float64 `yaml:"imbalance_weight"`
	PressureWeight  float64 `yaml:"pressure_weight"`
	MomentumWeight  float64 `yaml:"momentum_weight"`
	// LiquidityWeight scales magnitude only, never direction.
	LiquidityWeight float64 `yaml:"liquidity_weight"`

	// DirectionThreshold is the absolute combined score past which the
	// signal leaves neutral.
	DirectionThreshold float64 `yaml:"direction_threshold"`

	MinConfidence float64 `yaml:"min_confidence"`
	MinStrength   float64 `yaml:"min_strength"`

	// TightSpreadPercent and DeepBookUSD gate the confidence bonuses.
	TightSpreadPercent float64 `yaml:"tight_spread_percent"`
	DeepBookUSD        float64 `yaml:"deep_book_usd"`
}

// DefaultConfig returns the standard 0.35/0.35/0.20/0.10 blend.
func DefaultConfig() Config {
	return Config{
		ImbalanceWeight:    0.35,
		PressureWeight:     0.35,
		MomentumWeight:     0.20,
		LiquidityWeight:    0.10,
		DirectionThreshold: 30,
		MinConfidence:      60,
		MinStrength:        20,
		TightSpreadPercent: 0.05,
		DeepBookUSD:        1_000_000,
	}
}

// Generator builds pulse signals.
type Generator struct {
	cfg Config
}

// NewGenerator builds a generator with defaults for a zero config.
func NewGenerator(cfg Config) *Generator {
	if cfg.ImbalanceWeight+cfg.PressureWeight+cfg.MomentumWeight == 0 {
		cfg = DefaultConfig()
	}
	return &Generator{cfg: cfg}
}

// Generate fuses the latest imbalance record, liquidity score and snapshot
// into a signal. All inputs are required.
func (g *Generator) Generate(s *domain.Snapshot, imb *liquidity.ImbalanceRecord, score *liquidity.Score) (*Signal, error) {
	if s == nil || imb == nil || score == nil {
		return nil, fmt.Errorf("%w: signal generation needs snapshot, imbalance and liquidity score", domain.ErrInvalidParameter)
	}

	// All three terms live on a -100..100 scale before blending.
	combined := g.cfg.ImbalanceWeight*(imb.Imbalance10*100) +
		g.cfg.PressureWeight*imb.PressureScore +
		g.cfg.MomentumWeight*clamp(imb.Momentum, -100, 100)

	direction := Neutral
	switch {
	case combined > g.cfg.DirectionThreshold:
		direction = Bullish
	case combined < -g.cfg.DirectionThreshold:
		direction = Bearish
	}

	// Liquidity scales magnitude only: a crisis book halves conviction, an
	// abundant one leaves it intact. Direction is untouched.
	liquidityFactor := (1 - g.cfg.LiquidityWeight) + g.cfg.LiquidityWeight*(score.Overall/100)
	strength := clamp(abs(combined)*liquidityFactor, 0, 100)

	sig := &Signal{
		ID:        uuid.NewString(),
		Venue:     s.Venue,
		Symbol:    s.Symbol,
		Timestamp: s.Timestamp,
		Direction: direction,
		Strength:  strength,
		Combined:  combined,
		Components: Components{
			Imbalance10:    imb.Imbalance10,
			PressureScore:  imb.PressureScore,
			Momentum:       imb.Momentum,
			LiquidityScore: score.Overall,
		},
	}
	sig.Confidence = g.confidence(s, imb, score)
	sig.Reason = g.explain(sig)
	return sig, nil
}

// confidence starts at 50 and adds bounded bonuses for liquidity quality,
// cross-depth imbalance agreement, spread tightness and absolute depth.
func (g *Generator) confidence(s *domain.Snapshot, imb *liquidity.ImbalanceRecord, score *liquidity.Score) float64 {
	conf := 50.0

	conf += 20 * score.Overall / 100

	if imb.ConsistentSign() {
		conf += 15
	}

	if s.SpreadPercent > 0 && s.SpreadPercent <= g.cfg.TightSpreadPercent {
		conf += 10
	}

	if s.BidDepth50+s.AskDepth50 >= g.cfg.DeepBookUSD {
		conf += 5
	}

	return clamp(conf, 0, 100)
}

func (g *Generator) explain(sig *Signal) string {
	switch sig.Direction {
	case Bullish:
		return fmt.Sprintf("bid pressure %.0f with imbalance %.2f, combined %.0f above +%.0f",
			sig.Components.PressureScore, sig.Components.Imbalance10, sig.Combined, g.cfg.DirectionThreshold)
	case Bearish:
		return fmt.Sprintf("ask pressure %.0f with imbalance %.2f, combined %.0f below -%.0f",
			sig.Components.PressureScore, sig.Components.Imbalance10, sig.Combined, g.cfg.DirectionThreshold)
	default:
		return fmt.Sprintf("combined %.0f inside the +/-%.0f neutral band", sig.Combined, g.cfg.DirectionThreshold)
	}
}

// Validate filters signals not worth surfacing: weak, unconfident, or
// internally conflicted (direction disagreeing with pressure sign). It
// returns whether the signal passes and the first failed check.
func (g *Generator) Validate(sig *Signal) (bool, string) {
	if sig.Confidence < g.cfg.MinConfidence {
		return false, fmt.Sprintf("confidence %.0f below minimum %.0f", sig.Confidence, g.cfg.MinConfidence)
	}
	if sig.Strength < g.cfg.MinStrength {
		return false, fmt.Sprintf("strength %.0f below minimum %.0f", sig.Strength, g.cfg.MinStrength)
	}
	if sig.Direction == Bullish && sig.Components.PressureScore < 0 {
		return false, "bullish direction conflicts with negative pressure"
	}
	if sig.Direction == Bearish && sig.Components.PressureScore > 0 {
		return false, "bearish direction conflicts with positive pressure"
	}
	return true, ""
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
