package aggregate

import (
	"math"
	"sort"
	"time"

	"github.com/bookpulse/engine/internal/domain"
)

// VenueTier buckets an overall quality score.
type VenueTier string

const (
	TierPrime    VenueTier = "prime"    // >= 80
	TierStandard VenueTier = "standard" // >= 55
	TierThin     VenueTier = "thin"
)

// ExchangeQualityScore ranks one venue's book quality for a symbol.
type ExchangeQualityScore struct {
	Venue     string    `json:"venue"`
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`

	LiquidityScore float64 `json:"liquidity_score"`
	SpreadScore    float64 `json:"spread_score"`
	DepthScore     float64 `json:"depth_score"`
	StabilityScore float64 `json:"stability_score"`

	Overall float64   `json:"overall"`
	Tier    VenueTier `json:"tier"`
	Rank    int       `json:"rank"` // 1 = best
}

// LiquidityDistribution measures cross-venue concentration.
type LiquidityDistribution struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`

	// Shares maps venue to its share of total notional, 0-1.
	Shares map[string]float64 `json:"shares"`
	// HHI is the Herfindahl index over percent shares: 10000 means one
	// venue holds everything.
	HHI float64 `json:"hhi"`
	// EffectiveVenues is 10000 / HHI.
	EffectiveVenues float64 `json:"effective_venues"`
}

// QualityScoreConfig tunes the venue scoring references.
type QualityScoreConfig struct {
	ReferenceDepthUSD  float64 `yaml:"reference_depth_usd"`
	ReferenceLevels    int     `yaml:"reference_levels"`
	SpreadFloorPercent float64 `yaml:"spread_floor_percent"`
}

// DefaultQualityScoreConfig mirrors the liquidity scorer scales.
func DefaultQualityScoreConfig() QualityScoreConfig {
	return QualityScoreConfig{
		ReferenceDepthUSD:  500_000,
		ReferenceLevels:    50,
		SpreadFloorPercent: 0.01,
	}
}

// ScoreVenues grades every contributing venue of an aggregated book and
// ranks them by descending overall score. A venue that failed to fetch is
// simply absent; quality scoring tolerates individual venue failures.
func ScoreVenues(book *AggregatedOrderBook, cfg QualityScoreConfig) []*ExchangeQualityScore {
	def := DefaultQualityScoreConfig()
	if cfg.ReferenceDepthUSD <= 0 {
		cfg.ReferenceDepthUSD = def.ReferenceDepthUSD
	}
	if cfg.ReferenceLevels <= 0 {
		cfg.ReferenceLevels = def.ReferenceLevels
	}
	if cfg.SpreadFloorPercent <= 0 {
		cfg.SpreadFloorPercent = def.SpreadFloorPercent
	}

	scores := make([]*ExchangeQualityScore, 0, len(book.PerVenue))
	for venue, s := range book.PerVenue {
		score := &ExchangeQualityScore{
			Venue:     venue,
			Symbol:    book.Symbol,
			Timestamp: s.Timestamp,
		}

		depth := math.Min(s.DepthAt(domain.SideBid, 50), s.DepthAt(domain.SideAsk, 50))
		score.DepthScore = clamp(depth/cfg.ReferenceDepthUSD*100, 0, 100)

		if s.SpreadPercent > 0 {
			score.SpreadScore = clamp(100*cfg.SpreadFloorPercent/s.SpreadPercent, 0, 100)
		} else if s.BidLevels > 0 && s.AskLevels > 0 {
			score.SpreadScore = 100
		}

		levels := math.Min(float64(s.BidLevels), float64(s.AskLevels))
		score.LiquidityScore = clamp(levels/float64(cfg.ReferenceLevels)*100, 0, 100)

		// Stability needs history the aggregated fetch does not carry; a
		// neutral placeholder keeps the blend comparable across venues.
		score.StabilityScore = 50

		score.Overall = 0.30*score.DepthScore + 0.30*score.SpreadScore +
			0.25*score.LiquidityScore + 0.15*score.StabilityScore
		score.Tier = tierFor(score.Overall)
		scores = append(scores, score)
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Overall != scores[j].Overall {
			return scores[i].Overall > scores[j].Overall
		}
		return scores[i].Venue < scores[j].Venue
	})
	for i, s := range scores {
		s.Rank = i + 1
	}
	return scores
}

func tierFor(overall float64) VenueTier {
	switch {
	case overall >= 80:
		return TierPrime
	case overall >= 55:
		return TierStandard
	default:
		return TierThin
	}
}

// Distribution computes per-venue liquidity shares and the Herfindahl
// index over the aggregated book.
func Distribution(book *AggregatedOrderBook) *LiquidityDistribution {
	dist := &LiquidityDistribution{
		Symbol:    book.Symbol,
		Timestamp: book.Timestamp,
		Shares:    make(map[string]float64, len(book.PerVenue)),
	}

	total := 0.0
	perVenue := make(map[string]float64, len(book.PerVenue))
	for venue, s := range book.PerVenue {
		n := s.TotalNotional()
		perVenue[venue] = n
		total += n
	}
	if total == 0 {
		return dist
	}

	for venue, n := range perVenue {
		share := n / total
		dist.Shares[venue] = share
		dist.HHI += (share * 100) * (share * 100)
	}
	if dist.HHI > 0 {
		dist.EffectiveVenues = 10000 / dist.HHI
	}
	return dist
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
