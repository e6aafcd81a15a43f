package aggregate

import (
	"math"
	"time"

	"github.com/bookpulse/engine/internal/domain"
)

// RouteFill is one slice of a routing plan on one venue.
type RouteFill struct {
	Venue          string  `json:"venue"`
	Price          float64 `json:"price"`
	Size           float64 `json:"size"`
	FeeRate        float64 `json:"fee_rate"`
	EffectivePrice float64 `json:"effective_price"` // fee-adjusted
}

// RoutePlan is a best-execution split of one order across venues.
type RoutePlan struct {
	Symbol    string           `json:"symbol"`
	Timestamp time.Time        `json:"timestamp"`
	Side      domain.OrderSide `json:"side"`
	Size      float64          `json:"size"`

	Fills []RouteFill `json:"fills"`

	// AvgEffectivePrice is the fee-adjusted volume-weighted fill price.
	AvgEffectivePrice float64 `json:"avg_effective_price"`
	TotalFeesPaid     float64 `json:"total_fees_paid"`

	// BestSingleVenue is the cheapest venue able to fill the whole order
	// alone, and SavingsPercent what the split saves against it. Both are
	// zero when no single venue could fill the order.
	BestSingleVenue string  `json:"best_single_venue,omitempty"`
	BestSinglePrice float64 `json:"best_single_price,omitempty"`
	SavingsPercent  float64 `json:"savings_percent"`
	VenuesUsed      int     `json:"venues_used"`
}

// Route walks the merged book for the order, splitting each consumed level
// across its contributing venues proportionally to their share of the
// level, with per-venue taker fees applied. It fails with
// domain.ErrInsufficientLiquidity when even the merged book cannot fill.
func (a *Aggregator) Route(book *AggregatedOrderBook, side domain.OrderSide, size float64) (*RoutePlan, error) {
	if size <= 0 {
		return nil, &domain.LiquidityError{Requested: size, Filled: 0}
	}

	levels := book.sideLevels(side)

	plan := &RoutePlan{
		Symbol:    book.Symbol,
		Timestamp: book.Timestamp,
		Side:      side,
		Size:      size,
	}

	var filled, effectiveNotional float64
	venuesUsed := make(map[string]bool)

	for _, level := range levels {
		if filled >= size {
			break
		}
		take := math.Min(level.Size, size-filled)

		// Split the take across contributing venues proportionally.
		for venue, contributed := range level.Venues {
			share := take * contributed / level.Size
			if share <= 0 {
				continue
			}
			fee := a.feeRate(venue)
			effective := level.Price * (1 + fee)
			if side == domain.Sell {
				effective = level.Price * (1 - fee)
			}
			plan.Fills = append(plan.Fills, RouteFill{
				Venue:          venue,
				Price:          level.Price,
				Size:           share,
				FeeRate:        fee,
				EffectivePrice: effective,
			})
			plan.TotalFeesPaid += level.Price * share * fee
			effectiveNotional += effective * share
			venuesUsed[venue] = true
		}
		filled += take
	}

	if filled+1e-12 < size {
		return nil, &domain.LiquidityError{Requested: size, Filled: filled}
	}

	plan.AvgEffectivePrice = effectiveNotional / size
	plan.VenuesUsed = len(venuesUsed)

	a.compareToSingleVenue(book, plan, side, size)
	return plan, nil
}

// compareToSingleVenue prices the order against each venue alone and
// records the savings of the split against the best one.
func (a *Aggregator) compareToSingleVenue(book *AggregatedOrderBook, plan *RoutePlan, side domain.OrderSide, size float64) {
	bestPrice := 0.0
	bestVenue := ""

	for venue, snap := range book.PerVenue {
		avg, ok := walkSingleVenue(snap, side, size)
		if !ok {
			continue
		}
		fee := a.feeRate(venue)
		effective := avg * (1 + fee)
		better := effective < bestPrice
		if side == domain.Sell {
			effective = avg * (1 - fee)
			better = effective > bestPrice
		}
		if bestVenue == "" || better {
			bestPrice = effective
			bestVenue = venue
		}
	}

	if bestVenue == "" {
		return
	}
	plan.BestSingleVenue = bestVenue
	plan.BestSinglePrice = bestPrice
	if bestPrice > 0 {
		if side == domain.Buy {
			plan.SavingsPercent = (bestPrice - plan.AvgEffectivePrice) / bestPrice * 100
		} else {
			plan.SavingsPercent = (plan.AvgEffectivePrice - bestPrice) / bestPrice * 100
		}
	}
}

func walkSingleVenue(s *domain.Snapshot, side domain.OrderSide, size float64) (float64, bool) {
	var filled, notional float64
	for _, l := range s.SideLevels(side.BookSide()) {
		if filled >= size {
			break
		}
		take := math.Min(l.Size, size-filled)
		filled += take
		notional += take * l.Price
	}
	if filled+1e-12 < size {
		return 0, false
	}
	return notional / size, true
}
