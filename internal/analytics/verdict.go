package analytics

import (
	"fmt"
	"time"

	"github.com/bookpulse/engine/internal/domain"
)

// Recommendation is the trading stance the verdict arrives at.
type Recommendation string

const (
	RecommendFavorable Recommendation = "favorable"
	RecommendNeutral   Recommendation = "neutral"
	RecommendCaution   Recommendation = "caution"
	RecommendAvoid     Recommendation = "avoid"
)

// QualityTier grades overall market quality.
type QualityTier string

const (
	QualityExcellent QualityTier = "excellent"
	QualityGood      QualityTier = "good"
	QualityFair      QualityTier = "fair"
	QualityPoor      QualityTier = "poor"
)

// Verdict aggregates the four analytics into one assessment.
type Verdict struct {
	Venue     string    `json:"venue" db:"venue"`
	Symbol    string    `json:"symbol" db:"symbol"`
	Timestamp time.Time `json:"timestamp" db:"ts"`

	VPIN     *VPINMetrics     `json:"vpin"`
	Toxicity *ToxicityMetrics `json:"toxicity"`
	Noise    *NoiseMetrics    `json:"noise"`
	Kyle     *KyleLambda      `json:"kyle"`

	QualityScore   float64        `json:"quality_score" db:"quality_score"` // 0-100, higher is cleaner
	Quality        QualityTier    `json:"quality" db:"quality"`
	Recommendation Recommendation `json:"recommendation" db:"recommendation"`
	Reason         string         `json:"reason" db:"reason"`
}

// Analyzer runs the full microstructure suite over one window.
type Analyzer struct {
	vpin     *VPINCalculator
	toxicity *ToxicityCalculator
}

// NewAnalyzer wires the analytics calculators together.
func NewAnalyzer(vpinCfg VPINConfig, toxCfg ToxicityConfig) *Analyzer {
	return &Analyzer{
		vpin:     NewVPINCalculator(vpinCfg),
		toxicity: NewToxicityCalculator(toxCfg),
	}
}

// Analyze computes all four metrics and the combined verdict. Every
// component must succeed: partial statistics would be misleading, so the
// first failure fails the whole operation.
func (a *Analyzer) Analyze(snapshots []*domain.Snapshot) (*Verdict, error) {
	if len(snapshots) == 0 {
		return nil, &domain.SampleSizeError{Op: "analyze", Need: 1, Got: 0}
	}

	vpin, err := a.vpin.Compute(snapshots)
	if err != nil {
		return nil, fmt.Errorf("vpin: %w", err)
	}
	tox, err := a.toxicity.Compute(snapshots)
	if err != nil {
		return nil, fmt.Errorf("toxicity: %w", err)
	}
	noise, err := ComputeNoise(snapshots)
	if err != nil {
		return nil, fmt.Errorf("noise: %w", err)
	}
	kyle, err := ComputeKyleLambda(snapshots)
	if err != nil {
		return nil, fmt.Errorf("kyle lambda: %w", err)
	}

	last := snapshots[len(snapshots)-1]
	v := &Verdict{
		Venue:     last.Venue,
		Symbol:    last.Symbol,
		Timestamp: last.Timestamp,
		VPIN:      vpin,
		Toxicity:  tox,
		Noise:     noise,
		Kyle:      kyle,
	}

	v.QualityScore = qualityScore(vpin, tox, noise, kyle)
	v.Quality = qualityTierFor(v.QualityScore)
	v.Recommendation, v.Reason = recommend(v.QualityScore, vpin, tox)
	return v, nil
}

// qualityScore blends the four metrics into a 0-100 cleanliness score.
func qualityScore(vpin *VPINMetrics, tox *ToxicityMetrics, noise *NoiseMetrics, kyle *KyleLambda) float64 {
	depthScore := 100.0
	switch kyle.DepthTier {
	case DepthModerate:
		depthScore = 60
	case DepthShallow:
		depthScore = 20
	}

	score := 0.30*(100-vpin.VPIN) +
		0.30*(100-tox.Score) +
		0.20*(100*noise.EfficiencyRatio) +
		0.20*depthScore

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func qualityTierFor(score float64) QualityTier {
	switch {
	case score >= 75:
		return QualityExcellent
	case score >= 55:
		return QualityGood
	case score >= 35:
		return QualityFair
	default:
		return QualityPoor
	}
}

// recommend maps quality to a stance. Avoid is forced whenever VPIN exceeds
// 70 or toxicity exceeds 75, regardless of everything else.
func recommend(quality float64, vpin *VPINMetrics, tox *ToxicityMetrics) (Recommendation, string) {
	if vpin.VPIN > 70 {
		return RecommendAvoid, fmt.Sprintf("VPIN %.1f signals heavy informed flow", vpin.VPIN)
	}
	if tox.Score > 75 {
		return RecommendAvoid, fmt.Sprintf("toxicity %.1f signals extreme adverse selection", tox.Score)
	}

	switch {
	case quality >= 75:
		return RecommendFavorable, fmt.Sprintf("clean conditions, quality %.1f", quality)
	case quality >= 55:
		return RecommendNeutral, fmt.Sprintf("mixed conditions, quality %.1f", quality)
	case quality >= 35:
		return RecommendCaution, fmt.Sprintf("degraded conditions, quality %.1f", quality)
	default:
		return RecommendAvoid, fmt.Sprintf("hostile conditions, quality %.1f", quality)
	}
}
