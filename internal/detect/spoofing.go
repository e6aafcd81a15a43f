package detect

import (
	"time"

	"github.com/google/uuid"

	"github.com/bookpulse/engine/internal/domain"
)

// SpoofType classifies a manipulative placement/cancel pattern.
type SpoofType string

const (
	SpoofLayering      SpoofType = "layering"
	SpoofSpoofing      SpoofType = "spoofing"
	SpoofQuoteStuffing SpoofType = "quote_stuffing"
)

// Severity grades a spoofing detection.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
)

// SpoofingDetection flags a price exhibiting rapid place/cancel cycling
// with almost no execution.
type SpoofingDetection struct {
	ID        string      `json:"id" db:"id"`
	Venue     string      `json:"venue" db:"venue"`
	Symbol    string      `json:"symbol" db:"symbol"`
	Timestamp time.Time   `json:"timestamp" db:"ts"`
	Side      domain.Side `json:"side" db:"side"`

	Price         float64       `json:"price" db:"price"`
	Placements    int           `json:"placements" db:"placements"`
	Cancellations int           `json:"cancellations" db:"cancellations"`
	AvgLifetime   time.Duration `json:"avg_lifetime" db:"avg_lifetime"`
	ExecutionRate float64       `json:"execution_rate" db:"execution_rate"` // 0-1

	Type     SpoofType `json:"type" db:"type"`
	Severity Severity  `json:"severity" db:"severity"`
}

// SpoofingConfig tunes the lifecycle thresholds.
type SpoofingConfig struct {
	MinPlacements    int           `yaml:"min_placements"`
	MinCancellations int           `yaml:"min_cancellations"`
	MaxAvgLifetime   time.Duration `yaml:"max_avg_lifetime"`
	MaxExecutionRate float64       `yaml:"max_execution_rate"`
	// QuoteStuffingPlacements is the placement count past which the
	// pattern reads as stuffing rather than layering.
	QuoteStuffingPlacements int `yaml:"quote_stuffing_placements"`
	// SpoofingCancelRatio is the cancel/placement ratio past which the
	// pattern reads as outright spoofing.
	SpoofingCancelRatio float64 `yaml:"spoofing_cancel_ratio"`
}

// DefaultSpoofingConfig uses the standard 5/3/30s/20% thresholds.
func DefaultSpoofingConfig() SpoofingConfig {
	return SpoofingConfig{
		MinPlacements:           5,
		MinCancellations:        3,
		MaxAvgLifetime:          30 * time.Second,
		MaxExecutionRate:        0.20,
		QuoteStuffingPlacements: 20,
		SpoofingCancelRatio:     0.80,
	}
}

// SpoofingDetector tracks per-price order lifecycles across consecutive
// snapshots of one window.
type SpoofingDetector struct {
	cfg SpoofingConfig
}

// NewSpoofingDetector builds a detector with defaults for zero values.
func NewSpoofingDetector(cfg SpoofingConfig) *SpoofingDetector {
	def := DefaultSpoofingConfig()
	if cfg.MinPlacements <= 0 {
		cfg.MinPlacements = def.MinPlacements
	}
	if cfg.MinCancellations <= 0 {
		cfg.MinCancellations = def.MinCancellations
	}
	if cfg.MaxAvgLifetime <= 0 {
		cfg.MaxAvgLifetime = def.MaxAvgLifetime
	}
	if cfg.MaxExecutionRate <= 0 {
		cfg.MaxExecutionRate = def.MaxExecutionRate
	}
	if cfg.QuoteStuffingPlacements <= 0 {
		cfg.QuoteStuffingPlacements = def.QuoteStuffingPlacements
	}
	if cfg.SpoofingCancelRatio <= 0 {
		cfg.SpoofingCancelRatio = def.SpoofingCancelRatio
	}
	return &SpoofingDetector{cfg: cfg}
}

// lifecycle accumulates placement/cancel events for one (side, price).
type lifecycle struct {
	placements    int
	cancellations int
	totalLifetime time.Duration
	placedAt      time.Time
	live          bool
}

// Detect walks consecutive snapshot pairs, recording a placement when a
// price goes absent -> present and a cancellation when present -> absent
// with the observed lifetime. State is a window-scoped map, rebuilt per
// call.
func (d *SpoofingDetector) Detect(snapshots []*domain.Snapshot) ([]*SpoofingDetection, error) {
	if len(snapshots) < 2 {
		return nil, &domain.SampleSizeError{Op: "spoofing detect", Need: 2, Got: len(snapshots)}
	}

	cycles := make(map[sideAndPrice]*lifecycle)

	present := func(s *domain.Snapshot) map[sideAndPrice]bool {
		m := make(map[sideAndPrice]bool, len(s.Bids)+len(s.Asks))
		for _, l := range s.Bids {
			m[sideAndPrice{domain.SideBid, l.Price}] = true
		}
		for _, l := range s.Asks {
			m[sideAndPrice{domain.SideAsk, l.Price}] = true
		}
		return m
	}

	prev := present(snapshots[0])
	for key := range prev {
		cycles[key] = &lifecycle{placements: 1, placedAt: snapshots[0].Timestamp, live: true}
	}

	for i := 1; i < len(snapshots); i++ {
		cur := present(snapshots[i])
		ts := snapshots[i].Timestamp

		for key := range cur {
			if !prev[key] {
				lc := cycles[key]
				if lc == nil {
					lc = &lifecycle{}
					cycles[key] = lc
				}
				lc.placements++
				lc.placedAt = ts
				lc.live = true
			}
		}
		for key := range prev {
			if !cur[key] {
				lc := cycles[key]
				if lc != nil && lc.live {
					lc.cancellations++
					lc.totalLifetime += ts.Sub(lc.placedAt)
					lc.live = false
				}
			}
		}
		prev = cur
	}

	last := snapshots[len(snapshots)-1]
	var detections []*SpoofingDetection
	for key, lc := range cycles {
		if lc.placements < d.cfg.MinPlacements || lc.cancellations < d.cfg.MinCancellations {
			continue
		}

		avgLifetime := lc.totalLifetime / time.Duration(lc.cancellations)
		if avgLifetime >= d.cfg.MaxAvgLifetime {
			continue
		}

		execRate := float64(lc.placements-lc.cancellations) / float64(lc.placements)
		if execRate >= d.cfg.MaxExecutionRate {
			continue
		}

		detections = append(detections, &SpoofingDetection{
			ID:            uuid.NewString(),
			Venue:         last.Venue,
			Symbol:        last.Symbol,
			Timestamp:     last.Timestamp,
			Side:          key.side,
			Price:         key.price,
			Placements:    lc.placements,
			Cancellations: lc.cancellations,
			AvgLifetime:   avgLifetime,
			ExecutionRate: execRate,
			Type:          d.classify(lc),
			Severity:      severityFor(lc.placements, execRate),
		})
	}

	return detections, nil
}

func (d *SpoofingDetector) classify(lc *lifecycle) SpoofType {
	if lc.placements > d.cfg.QuoteStuffingPlacements {
		return SpoofQuoteStuffing
	}
	if float64(lc.cancellations) > d.cfg.SpoofingCancelRatio*float64(lc.placements) {
		return SpoofSpoofing
	}
	return SpoofLayering
}

func severityFor(placements int, execRate float64) Severity {
	switch {
	case placements >= 15 && execRate < 0.05:
		return SeverityHigh
	case placements >= 8 || execRate < 0.10:
		return SeverityModerate
	default:
		return SeverityLow
	}
}
