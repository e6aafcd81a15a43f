package detect

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/bookpulse/engine/internal/domain"
)

// ZoneType labels a persistent liquidity zone.
type ZoneType string

const (
	ZoneSupport      ZoneType = "support"
	ZoneResistance   ZoneType = "resistance"
	ZoneAccumulation ZoneType = "accumulation"
	ZoneDistribution ZoneType = "distribution"
)

// LiquidityZone is a price area that keeps attracting resting liquidity
// across snapshots. Unlike every other derived entity, a zone's Active and
// LastSeenAt fields are mutated in place by Reconcile.
type LiquidityZone struct {
	ID     string      `json:"id" db:"id"`
	Venue  string      `json:"venue" db:"venue"`
	Symbol string      `json:"symbol" db:"symbol"`
	Side   domain.Side `json:"side" db:"side"`

	PriceLevel     float64  `json:"price_level" db:"price_level"`
	TotalLiquidity float64  `json:"total_liquidity" db:"total_liquidity"` // mean notional while present
	ZoneType       ZoneType `json:"zone_type" db:"zone_type"`
	Strength       float64  `json:"strength" db:"strength"`     // 0-100
	Confidence     float64  `json:"confidence" db:"confidence"` // 0-100

	Active      bool      `json:"active" db:"is_active"`
	FirstSeenAt time.Time `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at" db:"last_seen_at"`
}

// ZoneConfig tunes persistence tracking.
type ZoneConfig struct {
	// MinPersistence is the minimum snapshots a bucket must stay loaded.
	MinPersistence int `yaml:"min_persistence"`
	// IntensityThreshold is the minimum notional for a bucket to count as
	// loaded in one snapshot.
	IntensityThreshold float64 `yaml:"intensity_threshold"`
	// BucketPercent is the price-bucket width used to group levels.
	BucketPercent float64 `yaml:"bucket_percent"`
}

// DefaultZoneConfig requires five loaded snapshots at $50k intensity.
func DefaultZoneConfig() ZoneConfig {
	return ZoneConfig{MinPersistence: 5, IntensityThreshold: 50_000, BucketPercent: 0.25}
}

// ZoneTracker builds and reconciles liquidity zones.
type ZoneTracker struct {
	cfg ZoneConfig
}

// NewZoneTracker builds a tracker with defaults for zero values.
func NewZoneTracker(cfg ZoneConfig) *ZoneTracker {
	def := DefaultZoneConfig()
	if cfg.MinPersistence <= 0 {
		cfg.MinPersistence = def.MinPersistence
	}
	if cfg.IntensityThreshold <= 0 {
		cfg.IntensityThreshold = def.IntensityThreshold
	}
	if cfg.BucketPercent <= 0 {
		cfg.BucketPercent = def.BucketPercent
	}
	return &ZoneTracker{cfg: cfg}
}

type zoneObservation struct {
	hits      int
	notional  float64
	prices    float64
	firstSeen time.Time
	lastSeen  time.Time
}

// Build derives zones from a chronological window: for each (side, price
// bucket) it counts snapshots where bucket notional clears the intensity
// threshold, and emits a zone once persistence reaches MinPersistence.
func (zt *ZoneTracker) Build(snapshots []*domain.Snapshot) ([]*LiquidityZone, error) {
	if len(snapshots) < zt.cfg.MinPersistence {
		return nil, &domain.SampleSizeError{Op: "zone build", Need: zt.cfg.MinPersistence, Got: len(snapshots)}
	}

	type bucketKey struct {
		side   domain.Side
		bucket int64
	}
	obs := make(map[bucketKey]*zoneObservation)

	ref := snapshots[0].MidPrice
	if ref <= 0 {
		ref = 1
	}
	bucketWidth := ref * zt.cfg.BucketPercent / 100

	for _, s := range snapshots {
		perBucket := make(map[bucketKey]float64)
		perBucketPrice := make(map[bucketKey]float64)
		collect := func(levels []domain.PriceLevel, side domain.Side) {
			for _, l := range levels {
				k := bucketKey{side, int64(math.Floor(l.Price / bucketWidth))}
				perBucket[k] += l.Notional()
				perBucketPrice[k] += l.Price * l.Notional()
			}
		}
		collect(s.Bids, domain.SideBid)
		collect(s.Asks, domain.SideAsk)

		for k, notional := range perBucket {
			if notional < zt.cfg.IntensityThreshold {
				continue
			}
			o := obs[k]
			if o == nil {
				o = &zoneObservation{firstSeen: s.Timestamp}
				obs[k] = o
			}
			o.hits++
			o.notional += notional
			o.prices += perBucketPrice[k] / notional
			o.lastSeen = s.Timestamp
		}
	}

	last := snapshots[len(snapshots)-1]
	var zones []*LiquidityZone
	for k, o := range obs {
		if o.hits < zt.cfg.MinPersistence {
			continue
		}

		persistence := float64(o.hits) / float64(len(snapshots))
		avgNotional := o.notional / float64(o.hits)
		intensity := math.Min(avgNotional/(4*zt.cfg.IntensityThreshold), 1)
		strength := 100 * (0.6*persistence + 0.4*intensity)

		zone := &LiquidityZone{
			ID:             uuid.NewString(),
			Venue:          last.Venue,
			Symbol:         last.Symbol,
			Side:           k.side,
			PriceLevel:     o.prices / float64(o.hits),
			TotalLiquidity: avgNotional,
			Strength:       strength,
			Confidence:     100 * persistence,
			Active:         true,
			FirstSeenAt:    o.firstSeen,
			LastSeenAt:     o.lastSeen,
		}
		zone.ZoneType = zoneTypeFor(k.side, strength)
		zones = append(zones, zone)
	}

	return zones, nil
}

// Reconcile is the one sanctioned mutation step: it refreshes LastSeenAt on
// zones still loaded in the current snapshot and deactivates the rest.
// It returns only the zones whose active state flipped.
func (zt *ZoneTracker) Reconcile(zones []*LiquidityZone, current *domain.Snapshot) []*LiquidityZone {
	ref := current.MidPrice
	if ref <= 0 {
		ref = 1
	}
	halfWidth := ref * zt.cfg.BucketPercent / 100

	var changed []*LiquidityZone
	for _, z := range zones {
		notional := 0.0
		for _, l := range current.SideLevels(z.Side) {
			if math.Abs(l.Price-z.PriceLevel) <= halfWidth {
				notional += l.Notional()
			}
		}

		stillLoaded := notional >= zt.cfg.IntensityThreshold
		switch {
		case stillLoaded:
			z.LastSeenAt = current.Timestamp
			if !z.Active {
				z.Active = true
				changed = append(changed, z)
			}
		case z.Active:
			z.Active = false
			changed = append(changed, z)
		}
	}
	return changed
}

func zoneTypeFor(side domain.Side, strength float64) ZoneType {
	if side == domain.SideBid {
		if strength >= 70 {
			return ZoneAccumulation
		}
		return ZoneSupport
	}
	if strength >= 70 {
		return ZoneDistribution
	}
	return ZoneResistance
}
