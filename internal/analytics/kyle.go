package analytics

import (
	"fmt"
	"math"
	"time"

	"github.com/bookpulse/engine/internal/domain"
)

// MarketDepthTier classifies a Kyle lambda magnitude.
type MarketDepthTier string

const (
	DepthDeep     MarketDepthTier = "deep"     // lambda < 1e-5
	DepthModerate MarketDepthTier = "moderate" // lambda < 1e-4
	DepthShallow  MarketDepthTier = "shallow"
)

// KyleLambda is the regression coefficient of |price change| on |volume
// change| across consecutive snapshot pairs.
type KyleLambda struct {
	Venue     string    `json:"venue" db:"venue"`
	Symbol    string    `json:"symbol" db:"symbol"`
	Timestamp time.Time `json:"timestamp" db:"ts"`

	Lambda     float64         `json:"lambda" db:"lambda"`
	RSquared   float64         `json:"r_squared" db:"r_squared"`
	SampleSize int             `json:"sample_size" db:"sample_size"`
	DepthTier  MarketDepthTier `json:"depth_tier" db:"depth_tier"`
}

const kyleMinPoints = 5

// ComputeKyleLambda runs the OLS fit over a chronological window. Pairs
// with zero volume change are excluded; fewer than five remaining points,
// or a degenerate (near-constant) volume series, fail with
// domain.ErrInsufficientData.
func ComputeKyleLambda(snapshots []*domain.Snapshot) (*KyleLambda, error) {
	var xs, ys []float64
	for i := 1; i < len(snapshots); i++ {
		prev, cur := snapshots[i-1], snapshots[i]
		dv := math.Abs(cur.TotalNotional() - prev.TotalNotional())
		if dv == 0 {
			continue
		}
		xs = append(xs, dv)
		ys = append(ys, math.Abs(cur.MidPrice-prev.MidPrice))
	}

	if len(xs) < kyleMinPoints {
		return nil, &domain.SampleSizeError{Op: "kyle lambda", Need: kyleMinPoints, Got: len(xs)}
	}

	slope, r2, err := ols(xs, ys)
	if err != nil {
		return nil, fmt.Errorf("%w: kyle lambda: %v", domain.ErrInsufficientData, err)
	}

	last := snapshots[len(snapshots)-1]
	return &KyleLambda{
		Venue:      last.Venue,
		Symbol:     last.Symbol,
		Timestamp:  last.Timestamp,
		Lambda:     slope,
		RSquared:   r2,
		SampleSize: len(xs),
		DepthTier:  depthTierFor(slope),
	}, nil
}

func depthTierFor(lambda float64) MarketDepthTier {
	abs := math.Abs(lambda)
	switch {
	case abs < 1e-5:
		return DepthDeep
	case abs < 1e-4:
		return DepthModerate
	default:
		return DepthShallow
	}
}

// ols fits y = a + b*x and returns (b, r2). It rejects an x series whose
// variance is effectively zero, where the slope is undefined.
func ols(xs, ys []float64) (float64, float64, error) {
	n := float64(len(xs))

	var meanX, meanY float64
	for i := range xs {
		meanX += xs[i]
		meanY += ys[i]
	}
	meanX /= n
	meanY /= n

	var sxx, sxy, syy float64
	for i := range xs {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}

	// Relative variance guard: a flat volume series cannot identify lambda.
	if sxx <= 1e-12*meanX*meanX*n || sxx == 0 {
		return 0, 0, fmt.Errorf("volume series has no variance")
	}

	slope := sxy / sxx
	r2 := 0.0
	if syy > 0 {
		r2 = (sxy * sxy) / (sxx * syy)
	}
	return slope, r2, nil
}
