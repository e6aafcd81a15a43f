// Package detect holds the manipulation and anomaly detectors: statistical
// large-order outliers, iceberg renewal patterns, spoofing lifecycles,
// order clustering and persistent liquidity zones. Detectors rebuild their
// state per analysis window; nothing here is long-lived.
package detect

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bookpulse/engine/internal/domain"
)

// OrderClass labels a large-order detection by z-score band.
type OrderClass string

const (
	ClassWhale            OrderClass = "whale"         // z > 5
	ClassInstitutional    OrderClass = "institutional" // z > 4
	ClassLargeRetail      OrderClass = "large_retail"  // z > 3
	ClassPotentialIceberg OrderClass = "potential_iceberg"
)

// LargeOrderDetection flags a statistically outlying resting order.
type LargeOrderDetection struct {
	ID        string      `json:"id" db:"id"`
	Venue     string      `json:"venue" db:"venue"`
	Symbol    string      `json:"symbol" db:"symbol"`
	Timestamp time.Time   `json:"timestamp" db:"ts"`
	Side      domain.Side `json:"side" db:"side"`

	Price          float64    `json:"price" db:"price"`
	SizeUSD        float64    `json:"size_usd" db:"size_usd"`
	ZScore         float64    `json:"z_score" db:"z_score"`
	PercentileRank float64    `json:"percentile_rank" db:"percentile_rank"` // 0-100
	Classification OrderClass `json:"classification" db:"classification"`

	// DistanceFromMid is the signed percent distance of the level from mid.
	DistanceFromMid float64 `json:"distance_from_mid" db:"distance_from_mid"`
	// MarketShare is the level's share of its side's notional, 0-1.
	MarketShare float64 `json:"market_share" db:"market_share"`
}

// WhaleConfig tunes the outlier threshold.
type WhaleConfig struct {
	// StdDevThreshold is k in the mean + k*stddev flagging rule.
	StdDevThreshold float64 `yaml:"std_dev_threshold"`
}

// DefaultWhaleConfig flags levels three standard deviations out.
func DefaultWhaleConfig() WhaleConfig {
	return WhaleConfig{StdDevThreshold: 3}
}

// WhaleDetector finds outlier levels in a single snapshot.
type WhaleDetector struct {
	cfg WhaleConfig
}

// NewWhaleDetector builds a detector; non-positive k falls back to 3.
func NewWhaleDetector(cfg WhaleConfig) *WhaleDetector {
	if cfg.StdDevThreshold <= 0 {
		cfg.StdDevThreshold = DefaultWhaleConfig().StdDevThreshold
	}
	return &WhaleDetector{cfg: cfg}
}

// Detect computes notional statistics across both sides and flags levels at
// or beyond mean + k*stddev. It needs at least three levels total to have
// meaningful dispersion.
func (d *WhaleDetector) Detect(s *domain.Snapshot) ([]*LargeOrderDetection, error) {
	notionals := make([]float64, 0, len(s.Bids)+len(s.Asks))
	for _, l := range s.Bids {
		notionals = append(notionals, l.Notional())
	}
	for _, l := range s.Asks {
		notionals = append(notionals, l.Notional())
	}
	if len(notionals) < 3 {
		return nil, &domain.SampleSizeError{Op: "whale detect", Need: 3, Got: len(notionals)}
	}

	mean, stddev := meanStdDev(notionals)
	if stddev == 0 {
		return nil, nil // perfectly uniform book, no outliers possible
	}
	threshold := mean + d.cfg.StdDevThreshold*stddev

	sorted := append([]float64(nil), notionals...)
	sort.Float64s(sorted)

	bidNotional := s.SideNotional(domain.SideBid)
	askNotional := s.SideNotional(domain.SideAsk)

	var detections []*LargeOrderDetection
	scan := func(levels []domain.PriceLevel, side domain.Side, sideNotional float64) {
		for _, l := range levels {
			n := l.Notional()
			if n < threshold {
				continue
			}
			z := (n - mean) / stddev
			det := &LargeOrderDetection{
				ID:             uuid.NewString(),
				Venue:          s.Venue,
				Symbol:         s.Symbol,
				Timestamp:      s.Timestamp,
				Side:           side,
				Price:          l.Price,
				SizeUSD:        n,
				ZScore:         z,
				PercentileRank: percentileRank(sorted, n),
				Classification: classify(z),
			}
			if s.MidPrice > 0 {
				det.DistanceFromMid = (l.Price - s.MidPrice) / s.MidPrice * 100
			}
			if sideNotional > 0 {
				det.MarketShare = n / sideNotional
			}
			detections = append(detections, det)
		}
	}
	scan(s.Bids, domain.SideBid, bidNotional)
	scan(s.Asks, domain.SideAsk, askNotional)

	return detections, nil
}

func classify(z float64) OrderClass {
	switch {
	case z > 5:
		return ClassWhale
	case z > 4:
		return ClassInstitutional
	case z > 3:
		return ClassLargeRetail
	default:
		return ClassPotentialIceberg
	}
}

func meanStdDev(values []float64) (float64, float64) {
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

// percentileRank returns the percent of values at or below v.
func percentileRank(sorted []float64, v float64) float64 {
	idx := sort.Search(len(sorted), func(i int) bool { return sorted[i] > v })
	return float64(idx) / float64(len(sorted)) * 100
}
