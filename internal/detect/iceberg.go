package detect

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/bookpulse/engine/internal/domain"
)

// IcebergDetection flags a price that keeps re-displaying similar size,
// the footprint of a hidden parent order being renewed.
type IcebergDetection struct {
	ID        string      `json:"id" db:"id"`
	Venue     string      `json:"venue" db:"venue"`
	Symbol    string      `json:"symbol" db:"symbol"`
	Timestamp time.Time   `json:"timestamp" db:"ts"`
	Side      domain.Side `json:"side" db:"side"`

	Price              float64 `json:"price" db:"price"`
	VisibleSize        float64 `json:"visible_size" db:"visible_size"` // average displayed size
	EstimatedTotalSize float64 `json:"estimated_total_size" db:"estimated_total_size"`
	RenewalCount       int     `json:"renewal_count" db:"renewal_count"`
	// Consistency is (1 - size coefficient of variation) * 100.
	Consistency float64 `json:"consistency" db:"consistency"`
}

// IcebergConfig tunes the renewal-pattern matcher.
type IcebergConfig struct {
	// MinAppearances is the minimum times a price must re-display.
	MinAppearances int `yaml:"min_appearances"`
	// MinConsistency is the minimum 0-100 size consistency.
	MinConsistency float64 `yaml:"min_consistency"`
	// HiddenSizeMultiplier scales the hidden-size estimate. The default of
	// 2 is a conservative heuristic, not a calibrated bound.
	HiddenSizeMultiplier float64 `yaml:"hidden_size_multiplier"`
}

// DefaultIcebergConfig requires five consistent appearances.
func DefaultIcebergConfig() IcebergConfig {
	return IcebergConfig{
		MinAppearances:       5,
		MinConsistency:       70,
		HiddenSizeMultiplier: 2,
	}
}

// IcebergDetector matches renewal patterns over a lookback window.
type IcebergDetector struct {
	cfg IcebergConfig
}

// NewIcebergDetector builds a detector with defaults for zero values.
func NewIcebergDetector(cfg IcebergConfig) *IcebergDetector {
	def := DefaultIcebergConfig()
	if cfg.MinAppearances <= 0 {
		cfg.MinAppearances = def.MinAppearances
	}
	if cfg.MinConsistency <= 0 {
		cfg.MinConsistency = def.MinConsistency
	}
	if cfg.HiddenSizeMultiplier <= 0 {
		cfg.HiddenSizeMultiplier = def.HiddenSizeMultiplier
	}
	return &IcebergDetector{cfg: cfg}
}

type sideAndPrice struct {
	side  domain.Side
	price float64
}

// Detect groups repeated appearances of the same price over the window and
// flags those re-displaying at least MinAppearances times with size
// variation low enough to clear MinConsistency.
func (d *IcebergDetector) Detect(snapshots []*domain.Snapshot) ([]*IcebergDetection, error) {
	if len(snapshots) < d.cfg.MinAppearances {
		return nil, &domain.SampleSizeError{Op: "iceberg detect", Need: d.cfg.MinAppearances, Got: len(snapshots)}
	}

	// Window-scoped arena keyed by (side, price); dropped when we return.
	sizes := make(map[sideAndPrice][]float64)
	for _, s := range snapshots {
		for _, l := range s.Bids {
			k := sideAndPrice{domain.SideBid, l.Price}
			sizes[k] = append(sizes[k], l.Size)
		}
		for _, l := range s.Asks {
			k := sideAndPrice{domain.SideAsk, l.Price}
			sizes[k] = append(sizes[k], l.Size)
		}
	}

	last := snapshots[len(snapshots)-1]
	var detections []*IcebergDetection
	for key, observed := range sizes {
		if len(observed) < d.cfg.MinAppearances {
			continue
		}

		mean, stddev := meanStdDev(observed)
		if mean == 0 {
			continue
		}
		cv := stddev / mean
		consistency := math.Max(0, (1-cv)*100)
		if consistency <= d.cfg.MinConsistency {
			continue
		}

		appearances := float64(len(observed))
		estimated := mean*appearances*d.cfg.HiddenSizeMultiplier - mean

		detections = append(detections, &IcebergDetection{
			ID:                 uuid.NewString(),
			Venue:              last.Venue,
			Symbol:             last.Symbol,
			Timestamp:          last.Timestamp,
			Side:               key.side,
			Price:              key.price,
			VisibleSize:        mean,
			EstimatedTotalSize: estimated,
			RenewalCount:       len(observed),
			Consistency:        consistency,
		})
	}

	return detections, nil
}
