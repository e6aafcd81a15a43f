package impact

import (
	"time"

	"github.com/bookpulse/engine/internal/domain"
)

// CurvePoint is one sampled (size, impact) pair on a depth curve.
type CurvePoint struct {
	Size          float64 `json:"size"`
	ImpactPercent float64 `json:"impact_percent"`
	AvgPrice      float64 `json:"avg_price"`
	Fillable      bool    `json:"fillable"`
}

// DepthCurve samples impact across increasing order sizes on one side.
type DepthCurve struct {
	Venue     string           `json:"venue"`
	Symbol    string           `json:"symbol"`
	Timestamp time.Time        `json:"timestamp"`
	Side      domain.OrderSide `json:"side"`

	Points []CurvePoint `json:"points"`
	// Elasticity is the impact change per unit size between the first and
	// last fillable points.
	Elasticity float64 `json:"elasticity"`
}

// Curve samples cfg.CurveSteps sizes up to CurveSizeMultiple times the
// average level size of the walked side. Unfillable sizes stay on the curve
// flagged unfillable so consumers can see where the book ends.
func (p *Planner) Curve(s *domain.Snapshot, side domain.OrderSide) (*DepthCurve, error) {
	book := s.SideLevels(side.BookSide())
	if len(book) == 0 {
		return nil, &domain.SampleSizeError{Op: "depth curve", Need: 1, Got: 0}
	}

	total := 0.0
	for _, l := range book {
		total += l.Size
	}
	avgLevelSize := total / float64(len(book))
	maxSize := avgLevelSize * p.cfg.CurveSizeMultiple
	step := maxSize / float64(p.cfg.CurveSteps)

	curve := &DepthCurve{
		Venue:     s.Venue,
		Symbol:    s.Symbol,
		Timestamp: s.Timestamp,
		Side:      side,
		Points:    make([]CurvePoint, 0, p.cfg.CurveSteps),
	}

	for i := 1; i <= p.cfg.CurveSteps; i++ {
		size := step * float64(i)
		est, err := p.Estimate(s, side, size)
		if err != nil {
			curve.Points = append(curve.Points, CurvePoint{Size: size})
			continue
		}
		curve.Points = append(curve.Points, CurvePoint{
			Size:          size,
			ImpactPercent: est.ImpactPercent,
			AvgPrice:      est.AvgPrice,
			Fillable:      true,
		})
	}

	curve.Elasticity = elasticity(curve.Points)
	return curve, nil
}

// elasticity measures Δimpact/Δsize between the curve's fillable endpoints.
func elasticity(points []CurvePoint) float64 {
	var first, last *CurvePoint
	for i := range points {
		if !points[i].Fillable {
			continue
		}
		if first == nil {
			first = &points[i]
		}
		last = &points[i]
	}
	if first == nil || last == nil || last.Size == first.Size {
		return 0
	}
	return (last.ImpactPercent - first.ImpactPercent) / (last.Size - first.Size)
}
