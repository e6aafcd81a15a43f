package liquidity

import (
	"math"
	"time"

	"github.com/bookpulse/engine/internal/domain"
)

// Regime labels a liquidity score band.
type Regime string

const (
	RegimeAbundant Regime = "abundant" // score >= 80
	RegimeNormal   Regime = "normal"   // score >= 60
	RegimeScarce   Regime = "scarce"   // score >= 40
	RegimeCrisis   Regime = "crisis"   // below 40
)

// Score is a composite 0-100 book quality measure with its components.
type Score struct {
	Venue     string    `json:"venue" db:"venue"`
	Symbol    string    `json:"symbol" db:"symbol"`
	Timestamp time.Time `json:"timestamp" db:"ts"`

	Overall        float64 `json:"overall" db:"overall"`
	DepthScore     float64 `json:"depth_score" db:"depth_score"`
	SpreadScore    float64 `json:"spread_score" db:"spread_score"`
	VolumeScore    float64 `json:"volume_score" db:"volume_score"`
	StabilityScore float64 `json:"stability_score" db:"stability_score"`

	Regime Regime `json:"regime" db:"regime"`
}

// ScorerConfig holds the blend weights and reference scales.
type ScorerConfig struct {
	DepthWeight     float64 `yaml:"depth_weight"`
	SpreadWeight    float64 `yaml:"spread_weight"`
	VolumeWeight    float64 `yaml:"volume_weight"`
	StabilityWeight float64 `yaml:"stability_weight"`

	// ReferenceDepthUSD is the per-side notional that earns a full depth
	// score.
	ReferenceDepthUSD float64 `yaml:"reference_depth_usd"`
	// ReferenceLevels is the per-side level count that earns a full volume
	// (density) score.
	ReferenceLevels int `yaml:"reference_levels"`
	// SpreadFloorPercent is the spread at or below which tightness is
	// perfect.
	SpreadFloorPercent float64 `yaml:"spread_floor_percent"`
}

// DefaultScorerConfig returns the standard weights and scales.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		DepthWeight:        0.35,
		SpreadWeight:       0.30,
		VolumeWeight:       0.20,
		StabilityWeight:    0.15,
		ReferenceDepthUSD:  500_000,
		ReferenceLevels:    50,
		SpreadFloorPercent: 0.01,
	}
}

// Scorer computes composite liquidity scores.
type Scorer struct {
	cfg ScorerConfig
}

// NewScorer builds a scorer; zero-value weights fall back to defaults.
func NewScorer(cfg ScorerConfig) *Scorer {
	def := DefaultScorerConfig()
	if cfg.DepthWeight+cfg.SpreadWeight+cfg.VolumeWeight+cfg.StabilityWeight == 0 {
		cfg = def
	}
	if cfg.ReferenceDepthUSD <= 0 {
		cfg.ReferenceDepthUSD = def.ReferenceDepthUSD
	}
	if cfg.ReferenceLevels <= 0 {
		cfg.ReferenceLevels = def.ReferenceLevels
	}
	if cfg.SpreadFloorPercent <= 0 {
		cfg.SpreadFloorPercent = def.SpreadFloorPercent
	}
	return &Scorer{cfg: cfg}
}

// Score grades a single snapshot; history, when non-empty, feeds the
// stability component through depth variance across the window.
func (sc *Scorer) Score(s *domain.Snapshot, history []*domain.Snapshot) *Score {
	out := &Score{
		Venue:     s.Venue,
		Symbol:    s.Symbol,
		Timestamp: s.Timestamp,
	}

	out.DepthScore = sc.depthScore(s)
	out.SpreadScore = sc.spreadScore(s)
	out.VolumeScore = sc.volumeScore(s)
	out.StabilityScore = sc.stabilityScore(s, history)

	out.Overall = clamp(
		sc.cfg.DepthWeight*out.DepthScore+
			sc.cfg.SpreadWeight*out.SpreadScore+
			sc.cfg.VolumeWeight*out.VolumeScore+
			sc.cfg.StabilityWeight*out.StabilityScore,
		0, 100)

	out.Regime = RegimeFor(out.Overall)
	return out
}

// RegimeFor maps a score onto the fixed regime bands.
func RegimeFor(score float64) Regime {
	switch {
	case score >= 80:
		return RegimeAbundant
	case score >= 60:
		return RegimeNormal
	case score >= 40:
		return RegimeScarce
	default:
		return RegimeCrisis
	}
}

func (sc *Scorer) depthScore(s *domain.Snapshot) float64 {
	// Score each side against the reference and take the weaker one: a
	// book is only as liquid as its thinner side.
	bid := s.DepthAt(domain.SideBid, 50) / sc.cfg.ReferenceDepthUSD
	ask := s.DepthAt(domain.SideAsk, 50) / sc.cfg.ReferenceDepthUSD
	return clamp(math.Min(bid, ask)*100, 0, 100)
}

func (sc *Scorer) spreadScore(s *domain.Snapshot) float64 {
	if s.BidLevels == 0 || s.AskLevels == 0 {
		return 0
	}
	if s.SpreadPercent <= sc.cfg.SpreadFloorPercent {
		return 100
	}
	// Inverse tightness: halves every doubling past the floor.
	return clamp(100*sc.cfg.SpreadFloorPercent/s.SpreadPercent, 0, 100)
}

func (sc *Scorer) volumeScore(s *domain.Snapshot) float64 {
	levels := math.Min(float64(s.BidLevels), float64(s.AskLevels))
	return clamp(levels/float64(sc.cfg.ReferenceLevels)*100, 0, 100)
}

// stabilityScore measures depth variance across the window; without
// history it returns a neutral 50 so the component neither helps nor hurts.
func (sc *Scorer) stabilityScore(s *domain.Snapshot, history []*domain.Snapshot) float64 {
	if len(history) < 2 {
		return 50
	}

	depths := make([]float64, 0, len(history))
	for _, h := range history {
		depths = append(depths, h.DepthAt(domain.SideBid, 50)+h.DepthAt(domain.SideAsk, 50))
	}

	mean := 0.0
	for _, d := range depths {
		mean += d
	}
	mean /= float64(len(depths))
	if mean == 0 {
		return 0
	}

	variance := 0.0
	for _, d := range depths {
		variance += (d - mean) * (d - mean)
	}
	variance /= float64(len(depths))

	// Coefficient of variation of 0 is perfectly stable; 1+ is chaos.
	cv := math.Sqrt(variance) / mean
	return clamp((1-cv)*100, 0, 100)
}
