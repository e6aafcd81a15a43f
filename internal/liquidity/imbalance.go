// Package liquidity derives order-flow imbalance, pressure and a composite
// liquidity score from normalized snapshots.
package liquidity

import (
	"time"

	"github.com/bookpulse/engine/internal/domain"
)

// Depths at which signed imbalance is sampled.
var imbalanceDepths = []int{5, 10, 20, 50}

// ImbalanceRecord captures the pressure state of the book at one snapshot.
type ImbalanceRecord struct {
	Venue     string    `json:"venue" db:"venue"`
	Symbol    string    `json:"symbol" db:"symbol"`
	Timestamp time.Time `json:"timestamp" db:"ts"`

	// Signed imbalance per depth, each in [-1, 1].
	Imbalance5  float64 `json:"imbalance_5" db:"imbalance_5"`
	Imbalance10 float64 `json:"imbalance_10" db:"imbalance_10"`
	Imbalance20 float64 `json:"imbalance_20" db:"imbalance_20"`
	Imbalance50 float64 `json:"imbalance_50" db:"imbalance_50"`

	// VolumeImbalance is the signed quote-currency depth difference at 50
	// levels, bids minus asks.
	VolumeImbalance float64 `json:"volume_imbalance" db:"volume_imbalance"`

	// PressureScore blends imbalance10 with normalized volume imbalance,
	// scaled to [-100, 100].
	PressureScore float64 `json:"pressure_score" db:"pressure_score"`

	// Momentum is the first difference of PressureScore against the prior
	// record; 0 on first observation.
	Momentum float64 `json:"momentum" db:"momentum"`

	// CumulativePressure sums pressure over the window that produced the
	// record; equals PressureScore when computed from a single snapshot.
	CumulativePressure float64 `json:"cumulative_pressure" db:"cumulative_pressure"`
}

// Calculator computes imbalance records. It is stateless; the previous
// record, when available, is passed in for the momentum term.
type Calculator struct {
	imbalanceWeight float64
	volumeWeight    float64
}

// NewCalculator builds a calculator with the default 0.6/0.4 pressure blend.
func NewCalculator() *Calculator {
	return &Calculator{imbalanceWeight: 0.6, volumeWeight: 0.4}
}

// ImbalanceAt computes signed imbalance at depth n using notional depth:
// (bidDepth - askDepth) / (bidDepth + askDepth). Returns 0 when both sides
// are empty.
func ImbalanceAt(s *domain.Snapshot, n int) float64 {
	bid := s.DepthAt(domain.SideBid, n)
	ask := s.DepthAt(domain.SideAsk, n)
	total := bid + ask
	if total == 0 {
		return 0
	}
	return (bid - ask) / total
}

// Compute derives the imbalance record for one snapshot. prev may be nil.
func (c *Calculator) Compute(s *domain.Snapshot, prev *ImbalanceRecord) *ImbalanceRecord {
	rec := &ImbalanceRecord{
		Venue:     s.Venue,
		Symbol:    s.Symbol,
		Timestamp: s.Timestamp,
	}

	values := make(map[int]float64, len(imbalanceDepths))
	for _, d := range imbalanceDepths {
		values[d] = ImbalanceAt(s, d)
	}
	rec.Imbalance5 = values[5]
	rec.Imbalance10 = values[10]
	rec.Imbalance20 = values[20]
	rec.Imbalance50 = values[50]

	bid50 := s.DepthAt(domain.SideBid, 50)
	ask50 := s.DepthAt(domain.SideAsk, 50)
	rec.VolumeImbalance = bid50 - ask50

	// Normalize the volume term against total visible depth so the blend
	// stays dimensionless.
	volNorm := 0.0
	if total := bid50 + ask50; total > 0 {
		volNorm = rec.VolumeImbalance / total
	}

	rec.PressureScore = clamp(100*(c.imbalanceWeight*rec.Imbalance10+c.volumeWeight*volNorm), -100, 100)

	if prev != nil {
		rec.Momentum = rec.PressureScore - prev.PressureScore
		rec.CumulativePressure = prev.CumulativePressure + rec.PressureScore
	} else {
		rec.CumulativePressure = rec.PressureScore
	}

	return rec
}

// ComputeWindow derives records for a chronological window of snapshots,
// chaining momentum and cumulative pressure through the window.
func (c *Calculator) ComputeWindow(snapshots []*domain.Snapshot) []*ImbalanceRecord {
	records := make([]*ImbalanceRecord, 0, len(snapshots))
	var prev *ImbalanceRecord
	for _, s := range snapshots {
		rec := c.Compute(s, prev)
		records = append(records, rec)
		prev = rec
	}
	return records
}

// ConsistentSign reports whether all sampled depths agree on direction.
// Zero imbalances count as agreeing with anything.
func (r *ImbalanceRecord) ConsistentSign() bool {
	sign := 0
	for _, v := range []float64{r.Imbalance5, r.Imbalance10, r.Imbalance20, r.Imbalance50} {
		switch {
		case v > 0:
			if sign < 0 {
				return false
			}
			sign = 1
		case v < 0:
			if sign > 0 {
				return false
			}
			sign = -1
		}
	}
	return true
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
