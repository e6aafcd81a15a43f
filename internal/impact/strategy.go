package impact

import (
	"math"
	"time"

	"github.com/bookpulse/engine/internal/domain"
)

// StrategyKind names an execution style.
type StrategyKind string

const (
	StrategyMarket   StrategyKind = "market"
	StrategyTWAP     StrategyKind = "twap"
	StrategyVWAP     StrategyKind = "vwap"
	StrategyAdaptive StrategyKind = "adaptive"
)

// ExecutionPlan proposes how to work an order given its market impact.
type ExecutionPlan struct {
	Venue     string           `json:"venue"`
	Symbol    string           `json:"symbol"`
	Timestamp time.Time        `json:"timestamp"`
	Side      domain.OrderSide `json:"side"`
	Size      float64          `json:"size"`

	Strategy            StrategyKind `json:"strategy"`
	Splits              int          `json:"splits"`
	SplitSize           float64      `json:"split_size"`
	MarketImpactPercent float64      `json:"market_impact_percent"`
	Reason              string       `json:"reason"`

	Estimate *Estimate `json:"estimate"`
}

// Plan estimates the one-shot market impact of the order, derives the split
// count needed to keep per-slice impact under MaxImpactPerSplit, and picks
// a strategy: a single split executes as a market order, up to five splits
// as TWAP; consuming over 20% of the side forces adaptive; everything else
// works as VWAP.
func (p *Planner) Plan(s *domain.Snapshot, side domain.OrderSide, size float64) (*ExecutionPlan, error) {
	est, err := p.Estimate(s, side, size)
	if err != nil {
		return nil, err
	}

	splits := 1
	if est.ImpactPercent > 0 {
		splits = int(math.Ceil(est.ImpactPercent / p.cfg.MaxImpactPerSplit))
		if splits < 1 {
			splits = 1
		}
	}

	plan := &ExecutionPlan{
		Venue:               s.Venue,
		Symbol:              s.Symbol,
		Timestamp:           s.Timestamp,
		Side:                side,
		Size:                size,
		Splits:              splits,
		SplitSize:           size / float64(splits),
		MarketImpactPercent: est.ImpactPercent,
		Estimate:            est,
	}

	switch {
	case splits == 1:
		plan.Strategy = StrategyMarket
		plan.Reason = "single slice stays under the impact budget"
	case splits <= 5:
		plan.Strategy = StrategyTWAP
		plan.Reason = "few slices suffice, spread them evenly over time"
	case est.LiquidityConsumedPercent > 20:
		plan.Strategy = StrategyAdaptive
		plan.Reason = "order consumes over 20% of visible liquidity, work it adaptively"
	default:
		plan.Strategy = StrategyVWAP
		plan.Reason = "many slices needed, weight them by traded volume"
	}

	return plan, nil
}
