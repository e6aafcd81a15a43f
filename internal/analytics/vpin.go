// Package analytics computes rolling-window microstructure statistics:
// VPIN order-flow toxicity, effective-spread toxicity, market noise, and
// Kyle's lambda price impact, combined into a market quality verdict.
package analytics

import (
	"math"
	"time"

	"github.com/bookpulse/engine/internal/domain"
)

// ToxicityLevel bands a 0-100 toxicity style score.
type ToxicityLevel string

const (
	ToxicityLow     ToxicityLevel = "low"     // < 25
	ToxicityMedium  ToxicityLevel = "medium"  // < 50
	ToxicityHigh    ToxicityLevel = "high"    // < 75
	ToxicityExtreme ToxicityLevel = "extreme" // >= 75
)

// LevelFor maps a 0-100 score onto the fixed toxicity bands.
func LevelFor(score float64) ToxicityLevel {
	switch {
	case score < 25:
		return ToxicityLow
	case score < 50:
		return ToxicityMedium
	case score < 75:
		return ToxicityHigh
	default:
		return ToxicityExtreme
	}
}

// VPINMetrics is the volume-synchronized probability of informed trading
// over a window of snapshots.
type VPINMetrics struct {
	Venue     string    `json:"venue" db:"venue"`
	Symbol    string    `json:"symbol" db:"symbol"`
	Timestamp time.Time `json:"timestamp" db:"ts"`

	VPIN           float64       `json:"vpin" db:"vpin"` // 0-100
	BucketNotional float64       `json:"bucket_notional" db:"bucket_notional"`
	BucketCount    int           `json:"bucket_count" db:"bucket_count"`
	BuyVolume      float64       `json:"buy_volume" db:"buy_volume"`
	SellVolume     float64       `json:"sell_volume" db:"sell_volume"`
	ToxicityLevel  ToxicityLevel `json:"toxicity_level" db:"toxicity_level"`
}

// VPINConfig tunes bucket construction.
type VPINConfig struct {
	// BucketNotional is the fixed quote-currency volume per bucket.
	BucketNotional float64 `yaml:"bucket_notional"`
	// Buckets is how many trailing buckets feed the VPIN average, and also
	// the minimum the window must produce.
	Buckets int `yaml:"buckets"`
}

// DefaultVPINConfig uses $1M buckets averaged over 50 buckets.
func DefaultVPINConfig() VPINConfig {
	return VPINConfig{BucketNotional: 1_000_000, Buckets: 50}
}

type volumeBucket struct {
	buy  float64
	sell float64
}

func (b volumeBucket) total() float64 { return b.buy + b.sell }

// VPINCalculator partitions inter-snapshot volume into fixed-notional
// buckets and measures buy/sell imbalance across them. The calculation is a
// pure function of the input window: rerunning it reproduces the result.
type VPINCalculator struct {
	cfg VPINConfig
}

// NewVPINCalculator builds a calculator, falling back to defaults for
// non-positive settings.
func NewVPINCalculator(cfg VPINConfig) *VPINCalculator {
	def := DefaultVPINConfig()
	if cfg.BucketNotional <= 0 {
		cfg.BucketNotional = def.BucketNotional
	}
	if cfg.Buckets <= 0 {
		cfg.Buckets = def.Buckets
	}
	return &VPINCalculator{cfg: cfg}
}

// Compute derives VPIN from a chronological window of snapshots. It fails
// with domain.ErrInsufficientData when fewer than cfg.Buckets full buckets
// can be formed.
func (c *VPINCalculator) Compute(snapshots []*domain.Snapshot) (*VPINMetrics, error) {
	if len(snapshots) < 2 {
		return nil, &domain.SampleSizeError{Op: "vpin", Need: 2, Got: len(snapshots)}
	}

	buckets := c.fillBuckets(snapshots)
	if len(buckets) < c.cfg.Buckets {
		return nil, &domain.SampleSizeError{Op: "vpin buckets", Need: c.cfg.Buckets, Got: len(buckets)}
	}

	// Only the trailing cfg.Buckets buckets feed the average.
	window := buckets[len(buckets)-c.cfg.Buckets:]

	var imbalance, total, buy, sell float64
	for _, b := range window {
		imbalance += math.Abs(b.buy - b.sell)
		total += b.total()
		buy += b.buy
		sell += b.sell
	}

	vpin := 0.0
	if total > 0 {
		vpin = imbalance / total * 100
	}

	last := snapshots[len(snapshots)-1]
	return &VPINMetrics{
		Venue:          last.Venue,
		Symbol:         last.Symbol,
		Timestamp:      last.Timestamp,
		VPIN:           vpin,
		BucketNotional: c.cfg.BucketNotional,
		BucketCount:    len(window),
		BuyVolume:      buy,
		SellVolume:     sell,
		ToxicityLevel:  LevelFor(vpin),
	}, nil
}

// fillBuckets classifies inter-snapshot volume with the tick rule on mid
// price, then streams it into fixed-notional buckets, splitting volume
// across bucket boundaries. Partial trailing buckets are discarded.
func (c *VPINCalculator) fillBuckets(snapshots []*domain.Snapshot) []volumeBucket {
	var buckets []volumeBucket
	current := volumeBucket{}
	currentFill := 0.0

	for i := 1; i < len(snapshots); i++ {
		prev, cur := snapshots[i-1], snapshots[i]

		bidChange := math.Abs(cur.SideNotional(domain.SideBid) - prev.SideNotional(domain.SideBid))
		askChange := math.Abs(cur.SideNotional(domain.SideAsk) - prev.SideNotional(domain.SideAsk))
		volume := bidChange + askChange
		if volume == 0 {
			continue
		}

		// Tick rule: rising mid classifies the volume as buy-driven,
		// falling as sell-driven. On an unchanged mid the volume splits
		// proportional to which side of the book moved.
		var buyShare float64
		switch {
		case cur.MidPrice > prev.MidPrice:
			buyShare = 1
		case cur.MidPrice < prev.MidPrice:
			buyShare = 0
		default:
			buyShare = askChange / volume
		}

		remaining := volume
		for remaining > 0 {
			space := c.cfg.BucketNotional - currentFill
			take := math.Min(space, remaining)
			current.buy += take * buyShare
			current.sell += take * (1 - buyShare)
			currentFill += take
			remaining -= take

			if currentFill >= c.cfg.BucketNotional {
				buckets = append(buckets, current)
				current = volumeBucket{}
				currentFill = 0
			}
		}
	}

	return buckets
}
