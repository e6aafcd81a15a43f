package analytics

import (
	"math"
	"time"

	"github.com/bookpulse/engine/internal/domain"
)

// ToxicityMetrics decomposes adverse selection cost against observed
// spreads over a window of snapshots.
type ToxicityMetrics struct {
	Venue     string    `json:"venue" db:"venue"`
	Symbol    string    `json:"symbol" db:"symbol"`
	Timestamp time.Time `json:"timestamp" db:"ts"`

	EffectiveSpread   float64 `json:"effective_spread" db:"effective_spread"`
	RealizedSpread    float64 `json:"realized_spread" db:"realized_spread"`
	AdverseCost       float64 `json:"adverse_cost" db:"adverse_cost"`
	PriceReversalRate float64 `json:"price_reversal_rate" db:"price_reversal_rate"` // 0-1
	AvgPriceImpact    float64 `json:"avg_price_impact" db:"avg_price_impact"`       // 0-1, spread-relative

	Score float64       `json:"score" db:"score"` // 0-100
	Level ToxicityLevel `json:"level" db:"level"`
}

// ToxicityConfig tunes the realized-spread delay and component weights.
type ToxicityConfig struct {
	// DelaySnapshots is how far forward the mid must be sampled to measure
	// post-trade price drift.
	DelaySnapshots int     `yaml:"delay_snapshots"`
	AdverseWeight  float64 `yaml:"adverse_weight"`
	ReversalWeight float64 `yaml:"reversal_weight"`
	ImpactWeight   float64 `yaml:"impact_weight"`
}

// DefaultToxicityConfig uses a 5-snapshot delay and 0.4/0.3/0.3 weights.
func DefaultToxicityConfig() ToxicityConfig {
	return ToxicityConfig{
		DelaySnapshots: 5,
		AdverseWeight:  0.4,
		ReversalWeight: 0.3,
		ImpactWeight:   0.3,
	}
}

// ToxicityCalculator measures order-flow toxicity from spread decay.
type ToxicityCalculator struct {
	cfg ToxicityConfig
}

// NewToxicityCalculator builds a calculator with defaults for zero values.
func NewToxicityCalculator(cfg ToxicityConfig) *ToxicityCalculator {
	def := DefaultToxicityConfig()
	if cfg.DelaySnapshots <= 0 {
		cfg.DelaySnapshots = def.DelaySnapshots
	}
	if cfg.AdverseWeight+cfg.ReversalWeight+cfg.ImpactWeight == 0 {
		cfg.AdverseWeight = def.AdverseWeight
		cfg.ReversalWeight = def.ReversalWeight
		cfg.ImpactWeight = def.ImpactWeight
	}
	return &ToxicityCalculator{cfg: cfg}
}

// Compute derives toxicity over a chronological window. The window must
// exceed the delay by at least one snapshot.
func (c *ToxicityCalculator) Compute(snapshots []*domain.Snapshot) (*ToxicityMetrics, error) {
	need := c.cfg.DelaySnapshots + 2
	if len(snapshots) < need {
		return nil, &domain.SampleSizeError{Op: "toxicity", Need: need, Got: len(snapshots)}
	}

	// Effective spread: mean observed spread across the window.
	effective := 0.0
	for _, s := range snapshots {
		effective += s.Spread
	}
	effective /= float64(len(snapshots))

	// Adverse selection cost: mean absolute mid drift measured
	// DelaySnapshots forward. The realized spread is what remains of the
	// effective spread after the drift eats into it.
	adverse := 0.0
	drifts := 0
	for i := 0; i+c.cfg.DelaySnapshots < len(snapshots); i++ {
		adverse += math.Abs(snapshots[i+c.cfg.DelaySnapshots].MidPrice - snapshots[i].MidPrice)
		drifts++
	}
	adverse /= float64(drifts)
	realized := effective - adverse

	// Reversal rate: fraction of consecutive mid moves flipping sign.
	reversals, moves := 0, 0
	prevDir := 0.0
	for i := 1; i < len(snapshots); i++ {
		d := snapshots[i].MidPrice - snapshots[i-1].MidPrice
		if d == 0 {
			continue
		}
		if prevDir != 0 && d*prevDir < 0 {
			reversals++
		}
		if prevDir != 0 {
			moves++
		}
		prevDir = d
	}
	reversalRate := 0.0
	if moves > 0 {
		reversalRate = float64(reversals) / float64(moves)
	}

	// Average per-step impact relative to the effective spread.
	stepImpact := 0.0
	for i := 1; i < len(snapshots); i++ {
		stepImpact += math.Abs(snapshots[i].MidPrice - snapshots[i-1].MidPrice)
	}
	stepImpact /= float64(len(snapshots) - 1)
	impactNorm := 0.0
	if effective > 0 {
		impactNorm = clamp01(stepImpact / effective)
	}

	adverseNorm := 0.0
	if effective > 0 {
		adverseNorm = clamp01(adverse / effective)
	}

	score := 100 * (c.cfg.AdverseWeight*adverseNorm +
		c.cfg.ReversalWeight*reversalRate +
		c.cfg.ImpactWeight*impactNorm)
	score = math.Min(math.Max(score, 0), 100)

	last := snapshots[len(snapshots)-1]
	return &ToxicityMetrics{
		Venue:             last.Venue,
		Symbol:            last.Symbol,
		Timestamp:         last.Timestamp,
		EffectiveSpread:   effective,
		RealizedSpread:    realized,
		AdverseCost:       adverse,
		PriceReversalRate: reversalRate,
		AvgPriceImpact:    impactNorm,
		Score:             score,
		Level:             LevelFor(score),
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
