package footprint

import (
	"math"
	"time"
)

// PatternKind names a footprint pattern.
type PatternKind string

const (
	// AbsorptionBid: heavy selling absorbed without price giving way.
	AbsorptionBid PatternKind = "absorption_bid"
	// AbsorptionAsk: heavy buying absorbed without price lifting.
	AbsorptionAsk PatternKind = "absorption_ask"
	BuyingClimax  PatternKind = "buying_climax"
	SellingClimax PatternKind = "selling_climax"
)

// Pattern is one detected footprint event on a bar.
type Pattern struct {
	Venue  string    `json:"venue"`
	Symbol string    `json:"symbol"`
	Start  time.Time `json:"start"`

	Kind PatternKind `json:"kind"`
	// Volume and Delta of the flagged bar.
	Volume float64 `json:"volume"`
	Delta  float64 `json:"delta"`
	// VolumeRatio is bar volume over the window average.
	VolumeRatio float64 `json:"volume_ratio"`
}

// PatternConfig sets the detection thresholds.
type PatternConfig struct {
	// AbsorptionMaxMovePercent is the largest open-to-close move that still
	// counts as absorbed.
	AbsorptionMaxMovePercent float64 `yaml:"absorption_max_move_percent"`
	// AbsorptionMinVolumeRatio is the bar-to-average volume multiple needed
	// to call the volume heavy.
	AbsorptionMinVolumeRatio float64 `yaml:"absorption_min_volume_ratio"`
	// ClimaxMinVolumeRatio is the multiple past which a bar is climactic.
	ClimaxMinVolumeRatio float64 `yaml:"climax_min_volume_ratio"`
	// ClimaxMinDeltaShare is the |delta|/volume floor for a climax.
	ClimaxMinDeltaShare float64 `yaml:"climax_min_delta_share"`
}

// DefaultPatternConfig returns the standard thresholds.
func DefaultPatternConfig() PatternConfig {
	return PatternConfig{
		AbsorptionMaxMovePercent: 0.1,
		AbsorptionMinVolumeRatio: 1.5,
		ClimaxMinVolumeRatio:     2.0,
		ClimaxMinDeltaShare:      0.6,
	}
}

// DetectPatterns scans a chronological bar window for absorption and climax
// bars. Ratios are measured against the average volume of the whole window,
// so short windows detect nothing.
func DetectPatterns(cfg PatternConfig, bars []*Bar) []*Pattern {
	if len(bars) < 3 {
		return nil
	}

	avg := 0.0
	for _, b := range bars {
		avg += b.TotalVolume
	}
	avg /= float64(len(bars))
	if avg == 0 {
		return nil
	}

	var patterns []*Pattern
	for _, b := range bars {
		ratio := b.TotalVolume / avg

		if p := classifyClimax(cfg, b, ratio); p != nil {
			patterns = append(patterns, p)
			continue
		}
		if p := classifyAbsorption(cfg, b, ratio); p != nil {
			patterns = append(patterns, p)
		}
	}
	return patterns
}

func classifyClimax(cfg PatternConfig, b *Bar, ratio float64) *Pattern {
	if ratio <= cfg.ClimaxMinVolumeRatio || b.TotalVolume == 0 {
		return nil
	}
	share := math.Abs(b.Delta) / b.TotalVolume
	if share <= cfg.ClimaxMinDeltaShare {
		return nil
	}
	kind := SellingClimax
	if b.Delta > 0 {
		kind = BuyingClimax
	}
	return &Pattern{
		Venue: b.Venue, Symbol: b.Symbol, Start: b.Start,
		Kind: kind, Volume: b.TotalVolume, Delta: b.Delta, VolumeRatio: ratio,
	}
}

func classifyAbsorption(cfg PatternConfig, b *Bar, ratio float64) *Pattern {
	if ratio < cfg.AbsorptionMinVolumeRatio || b.Open == 0 {
		return nil
	}
	move := math.Abs(b.Close-b.Open) / b.Open * 100
	if move >= cfg.AbsorptionMaxMovePercent {
		return nil
	}

	// The dominant aggressor side got absorbed by passive interest on the
	// other side of the book.
	kind := AbsorptionBid
	if b.Delta > 0 {
		kind = AbsorptionAsk
	}
	return &Pattern{
		Venue: b.Venue, Symbol: b.Symbol, Start: b.Start,
		Kind: kind, Volume: b.TotalVolume, Delta: b.Delta, VolumeRatio: ratio,
	}
}
