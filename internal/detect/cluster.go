package detect

import (
	"time"

	"github.com/bookpulse/engine/internal/domain"
)

// Intention is the heuristic read of what a cluster is doing.
type Intention string

const (
	IntentSupport      Intention = "support"
	IntentResistance   Intention = "resistance"
	IntentAccumulation Intention = "accumulation"
	IntentDistribution Intention = "distribution"
)

// OrderCluster is a group of same-side levels packed within a price
// tolerance, read as a support/resistance zone.
type OrderCluster struct {
	Venue     string      `json:"venue" db:"venue"`
	Symbol    string      `json:"symbol" db:"symbol"`
	Timestamp time.Time   `json:"timestamp" db:"ts"`
	Side      domain.Side `json:"side" db:"side"`

	// CenterPrice is the notional-weighted average price of the members.
	CenterPrice   float64 `json:"center_price" db:"center_price"`
	LowPrice      float64 `json:"low_price" db:"low_price"`
	HighPrice     float64 `json:"high_price" db:"high_price"`
	MemberLevels  int     `json:"member_levels" db:"member_levels"`
	TotalNotional float64 `json:"total_notional" db:"total_notional"`

	// Strength blends member density and aggregate notional, 0-100.
	Strength  float64   `json:"strength" db:"strength"`
	Intention Intention `json:"intention" db:"intention"`
}

// ClusterConfig tunes the grouping rules.
type ClusterConfig struct {
	// TolerancePercent is the max price spread within one cluster.
	TolerancePercent float64 `yaml:"tolerance_percent"`
	// MinMembers is the minimum level count for a cluster.
	MinMembers int `yaml:"min_members"`
	// ReferenceNotional earns a full notional component at or above it.
	ReferenceNotional float64 `yaml:"reference_notional"`
}

// DefaultClusterConfig groups within 0.5% and needs three members.
func DefaultClusterConfig() ClusterConfig {
	return ClusterConfig{TolerancePercent: 0.5, MinMembers: 3, ReferenceNotional: 250_000}
}

// ClusterDetector groups adjacent same-side levels.
type ClusterDetector struct {
	cfg ClusterConfig
}

// NewClusterDetector builds a detector with defaults for zero values.
func NewClusterDetector(cfg ClusterConfig) *ClusterDetector {
	def := DefaultClusterConfig()
	if cfg.TolerancePercent <= 0 {
		cfg.TolerancePercent = def.TolerancePercent
	}
	if cfg.MinMembers <= 0 {
		cfg.MinMembers = def.MinMembers
	}
	if cfg.ReferenceNotional <= 0 {
		cfg.ReferenceNotional = def.ReferenceNotional
	}
	return &ClusterDetector{cfg: cfg}
}

// Detect scans both sides of one snapshot. Levels are already sorted, so a
// single pass groups runs whose span stays inside the tolerance.
func (d *ClusterDetector) Detect(s *domain.Snapshot) []*OrderCluster {
	var clusters []*OrderCluster
	clusters = append(clusters, d.scanSide(s, domain.SideBid)...)
	clusters = append(clusters, d.scanSide(s, domain.SideAsk)...)
	return clusters
}

func (d *ClusterDetector) scanSide(s *domain.Snapshot, side domain.Side) []*OrderCluster {
	levels := s.SideLevels(side)
	if len(levels) < d.cfg.MinMembers {
		return nil
	}

	var clusters []*OrderCluster
	start := 0
	for i := 1; i <= len(levels); i++ {
		if i < len(levels) && withinTolerance(levels[start].Price, levels[i].Price, d.cfg.TolerancePercent) {
			continue
		}
		if i-start >= d.cfg.MinMembers {
			if c := d.buildCluster(s, side, levels[start:i]); c != nil {
				clusters = append(clusters, c)
			}
		}
		start = i
	}
	return clusters
}

func withinTolerance(anchor, price, tolerancePercent float64) bool {
	if anchor == 0 {
		return false
	}
	diff := price - anchor
	if diff < 0 {
		diff = -diff
	}
	return diff/anchor*100 <= tolerancePercent
}

func (d *ClusterDetector) buildCluster(s *domain.Snapshot, side domain.Side, members []domain.PriceLevel) *OrderCluster {
	var notional, weighted float64
	low, high := members[0].Price, members[0].Price
	for _, l := range members {
		n := l.Notional()
		notional += n
		weighted += n * l.Price
		if l.Price < low {
			low = l.Price
		}
		if l.Price > high {
			high = l.Price
		}
	}
	if notional == 0 {
		return nil
	}

	// Density: member count against a 10-level-deep cluster; notional
	// against the reference. Equal halves.
	density := float64(len(members)) / 10.0
	if density > 1 {
		density = 1
	}
	sizeComponent := notional / d.cfg.ReferenceNotional
	if sizeComponent > 1 {
		sizeComponent = 1
	}
	strength := 100 * (0.5*density + 0.5*sizeComponent)

	return &OrderCluster{
		Venue:         s.Venue,
		Symbol:        s.Symbol,
		Timestamp:     s.Timestamp,
		Side:          side,
		CenterPrice:   weighted / notional,
		LowPrice:      low,
		HighPrice:     high,
		MemberLevels:  len(members),
		TotalNotional: notional,
		Strength:      strength,
		Intention:     intentionFor(side, strength),
	}
}

// intentionFor reads strong bid walls as accumulation and strong ask walls
// as distribution; weaker clusters are plain support/resistance.
func intentionFor(side domain.Side, strength float64) Intention {
	if side == domain.SideBid {
		if strength >= 70 {
			return IntentAccumulation
		}
		return IntentSupport
	}
	if strength >= 70 {
		return IntentDistribution
	}
	return IntentResistance
}
