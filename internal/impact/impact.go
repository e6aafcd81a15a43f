// Package impact walks order books to price hypothetical market orders:
// slippage estimation, temporary/permanent impact decomposition, depth
// curves and execution strategy planning.
package impact

import (
	"math"
	"time"

	"github.com/bookpulse/engine/internal/domain"
)

// Fill is one step of an execution path.
type Fill struct {
	Price      float64 `json:"price"`
	Size       float64 `json:"size"`
	Cumulative float64 `json:"cumulative"`
}

// Estimate prices a hypothetical market order against one snapshot.
type Estimate struct {
	Venue     string           `json:"venue"`
	Symbol    string           `json:"symbol"`
	Timestamp time.Time        `json:"timestamp"`
	Side      domain.OrderSide `json:"side"`
	Size      float64          `json:"size"`

	BestPrice  float64 `json:"best_price"`
	AvgPrice   float64 `json:"avg_price"`
	WorstPrice float64 `json:"worst_price"`

	// ImpactPercent is |avg - best| / best * 100.
	ImpactPercent    float64 `json:"impact_percent"`
	TemporaryPercent float64 `json:"temporary_percent"`
	PermanentPercent float64 `json:"permanent_percent"`

	// LiquidityConsumedPercent is the filled share of the walked side.
	LiquidityConsumedPercent float64 `json:"liquidity_consumed_percent"`

	ExecutionPath []Fill `json:"execution_path"`
}

// Config holds the planner's heuristic constants. The permanent/temporary
// split ratios are heuristics carried from practice, not derived bounds.
type Config struct {
	PermanentBase     float64 `yaml:"permanent_base"`       // default 0.2
	PermanentSlope    float64 `yaml:"permanent_slope"`      // default 0.5
	PermanentCap      float64 `yaml:"permanent_cap"`        // default 0.5
	MaxImpactPerSplit float64 `yaml:"max_impact_per_split"` // percent, default 0.25
	CurveSteps        int     `yaml:"curve_steps"`          // default 10
	CurveSizeMultiple float64 `yaml:"curve_size_multiple"`  // of avg level size, default 20
}

// DefaultConfig returns the standard planner constants.
func DefaultConfig() Config {
	return Config{
		PermanentBase:     0.2,
		PermanentSlope:    0.5,
		PermanentCap:      0.5,
		MaxImpactPerSplit: 0.25,
		CurveSteps:        10,
		CurveSizeMultiple: 20,
	}
}

// Planner estimates impact and proposes execution strategies.
type Planner struct {
	cfg Config
}

// NewPlanner builds a planner with defaults for zero values.
func NewPlanner(cfg Config) *Planner {
	def := DefaultConfig()
	if cfg.PermanentBase <= 0 {
		cfg.PermanentBase = def.PermanentBase
	}
	if cfg.PermanentSlope <= 0 {
		cfg.PermanentSlope = def.PermanentSlope
	}
	if cfg.PermanentCap <= 0 {
		cfg.PermanentCap = def.PermanentCap
	}
	if cfg.MaxImpactPerSplit <= 0 {
		cfg.MaxImpactPerSplit = def.MaxImpactPerSplit
	}
	if cfg.CurveSteps <= 0 {
		cfg.CurveSteps = def.CurveSteps
	}
	if cfg.CurveSizeMultiple <= 0 {
		cfg.CurveSizeMultiple = def.CurveSizeMultiple
	}
	return &Planner{cfg: cfg}
}

// Estimate walks the side of the book a taker order of the given size and
// side would consume. A buy walks asks, a sell walks bids. It fails with
// domain.ErrInsufficientLiquidity carrying the partial fill when the book
// runs out.
func (p *Planner) Estimate(s *domain.Snapshot, side domain.OrderSide, size float64) (*Estimate, error) {
	if size <= 0 {
		return nil, &domain.LiquidityError{Requested: size, Filled: 0}
	}

	book := s.SideLevels(side.BookSide())
	if len(book) == 0 {
		return nil, &domain.LiquidityError{Requested: size, Filled: 0}
	}

	var (
		path     []Fill
		filled   float64
		notional float64
		worst    float64
	)
	for _, level := range book {
		if filled >= size {
			break
		}
		take := math.Min(level.Size, size-filled)
		filled += take
		notional += take * level.Price
		worst = level.Price
		path = append(path, Fill{Price: level.Price, Size: take, Cumulative: filled})
	}

	if filled < size {
		return nil, &domain.LiquidityError{Requested: size, Filled: filled}
	}

	best := book[0].Price
	avg := notional / size
	impact := math.Abs(avg-best) / best * 100

	sideVolume := 0.0
	for _, l := range book {
		sideVolume += l.Size
	}
	totalVolume := s.SideVolume(domain.SideBid) + s.SideVolume(domain.SideAsk)

	permanentRatio := p.cfg.PermanentBase
	if totalVolume > 0 {
		permanentRatio = math.Min(p.cfg.PermanentCap, p.cfg.PermanentBase+p.cfg.PermanentSlope*size/totalVolume)
	}

	consumed := 0.0
	if sideVolume > 0 {
		consumed = filled / sideVolume * 100
	}

	return &Estimate{
		Venue:                    s.Venue,
		Symbol:                   s.Symbol,
		Timestamp:                s.Timestamp,
		Side:                     side,
		Size:                     size,
		BestPrice:                best,
		AvgPrice:                 avg,
		WorstPrice:               worst,
		ImpactPercent:            impact,
		PermanentPercent:         impact * permanentRatio,
		TemporaryPercent:         impact * (1 - permanentRatio),
		LiquidityConsumedPercent: consumed,
		ExecutionPath:            path,
	}, nil
}
