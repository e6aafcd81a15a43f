package analytics

import (
	"math"
	"time"

	"github.com/bookpulse/engine/internal/domain"
)

// NoiseMetrics reports Kaufman efficiency and related series diagnostics.
type NoiseMetrics struct {
	Venue     string    `json:"venue" db:"venue"`
	Symbol    string    `json:"symbol" db:"symbol"`
	Timestamp time.Time `json:"timestamp" db:"ts"`

	// EfficiencyRatio is |net move| / sum of |stepwise moves|, in [0,1].
	EfficiencyRatio float64 `json:"efficiency_ratio" db:"efficiency_ratio"`
	// NoiseRatio is 1 - EfficiencyRatio.
	NoiseRatio float64 `json:"noise_ratio" db:"noise_ratio"`
	// Autocorrelation is the lag-1 autocorrelation of mid returns.
	Autocorrelation float64 `json:"autocorrelation" db:"autocorrelation"`
	// TickSizeEstimate is the smallest nonzero stepwise mid move observed.
	TickSizeEstimate float64 `json:"tick_size_estimate" db:"tick_size_estimate"`

	SampleSize int `json:"sample_size" db:"sample_size"`
}

// ComputeNoise measures market efficiency over a chronological window of at
// least three snapshots.
func ComputeNoise(snapshots []*domain.Snapshot) (*NoiseMetrics, error) {
	if len(snapshots) < 3 {
		return nil, &domain.SampleSizeError{Op: "noise", Need: 3, Got: len(snapshots)}
	}

	net := math.Abs(snapshots[len(snapshots)-1].MidPrice - snapshots[0].MidPrice)
	pathLength := 0.0
	tick := math.Inf(1)
	steps := make([]float64, 0, len(snapshots)-1)

	for i := 1; i < len(snapshots); i++ {
		d := snapshots[i].MidPrice - snapshots[i-1].MidPrice
		steps = append(steps, d)
		abs := math.Abs(d)
		pathLength += abs
		if abs > 0 && abs < tick {
			tick = abs
		}
	}

	er := 0.0
	if pathLength > 0 {
		er = net / pathLength
	}
	if math.IsInf(tick, 1) {
		tick = 0
	}

	last := snapshots[len(snapshots)-1]
	return &NoiseMetrics{
		Venue:            last.Venue,
		Symbol:           last.Symbol,
		Timestamp:        last.Timestamp,
		EfficiencyRatio:  er,
		NoiseRatio:       1 - er,
		Autocorrelation:  lag1Autocorrelation(steps),
		TickSizeEstimate: tick,
		SampleSize:       len(snapshots),
	}, nil
}

func lag1Autocorrelation(series []float64) float64 {
	if len(series) < 2 {
		return 0
	}

	mean := 0.0
	for _, v := range series {
		mean += v
	}
	mean /= float64(len(series))

	var num, den float64
	for i := 0; i < len(series); i++ {
		den += (series[i] - mean) * (series[i] - mean)
		if i > 0 {
			num += (series[i] - mean) * (series[i-1] - mean)
		}
	}
	if den == 0 {
		return 0
	}
	return num / den
}
