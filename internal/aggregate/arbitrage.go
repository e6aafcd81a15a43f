package aggregate

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bookpulse/engine/internal/domain"
)

// ExecutionRisk grades how likely an arbitrage is to survive execution.
type ExecutionRisk string

const (
	RiskLow    ExecutionRisk = "low"
	RiskMedium ExecutionRisk = "medium"
	RiskHigh   ExecutionRisk = "high"
)

// ArbitrageOpportunity is a cross-venue mispricing that nets positive after
// both venues' fees.
type ArbitrageOpportunity struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`

	BuyVenue  string  `json:"buy_venue"`
	BuyPrice  float64 `json:"buy_price"` // best ask on the buy venue
	SellVenue string  `json:"sell_venue"`
	SellPrice float64 `json:"sell_price"` // best bid on the sell venue

	// MaxSize is the top-of-book tradeable size on both legs.
	MaxSize float64 `json:"max_size"`

	GrossProfitPercent float64 `json:"gross_profit_percent"`
	NetProfitPercent   float64 `json:"net_profit_percent"`
	NetProfitUSD       float64 `json:"net_profit_usd"`

	Confidence    float64       `json:"confidence"` // 0-100
	ExecutionRisk ExecutionRisk `json:"execution_risk"`
}

// FindArbitrage scans every ordered venue pair of the aggregated book and
// emits opportunities whose net profit clears the configured floor. A pair
// with identical prices nets negative after fees and is never emitted.
func (a *Aggregator) FindArbitrage(book *AggregatedOrderBook) []*ArbitrageOpportunity {
	var opportunities []*ArbitrageOpportunity

	for buyVenue, buySnap := range book.PerVenue {
		if buySnap.AskLevels == 0 {
			continue
		}
		for sellVenue, sellSnap := range book.PerVenue {
			if buyVenue == sellVenue || sellSnap.BidLevels == 0 {
				continue
			}

			buyPrice := buySnap.BestAsk
			sellPrice := sellSnap.BestBid
			if sellPrice <= buyPrice {
				continue
			}

			gross := (sellPrice - buyPrice) / buyPrice * 100

			buyCost := buyPrice * (1 + a.feeRate(buyVenue))
			sellProceeds := sellPrice * (1 - a.feeRate(sellVenue))
			net := (sellProceeds - buyCost) / buyCost * 100
			if net < a.cfg.MinArbProfitPercent {
				continue
			}

			maxSize := math.Min(buySnap.Asks[0].Size, sellSnap.Bids[0].Size)

			opp := &ArbitrageOpportunity{
				ID:                 uuid.NewString(),
				Symbol:             book.Symbol,
				Timestamp:          book.Timestamp,
				BuyVenue:           buyVenue,
				BuyPrice:           buyPrice,
				SellVenue:          sellVenue,
				SellPrice:          sellPrice,
				MaxSize:            maxSize,
				GrossProfitPercent: gross,
				NetProfitPercent:   net,
				NetProfitUSD:       (sellProceeds - buyCost) * maxSize,
			}
			opp.Confidence = arbConfidence(net, buySnap, sellSnap, maxSize*buyPrice)
			opp.ExecutionRisk = riskFor(opp.Confidence, maxSize*buyPrice)
			opportunities = append(opportunities, opp)
		}
	}

	sort.Slice(opportunities, func(i, j int) bool {
		return opportunities[i].NetProfitPercent > opportunities[j].NetProfitPercent
	})
	return opportunities
}

// arbConfidence blends profit margin, spread tightness on both legs, and
// the tradeable notional into a 0-100 score.
func arbConfidence(netPercent float64, buy, sell *domain.Snapshot, notional float64) float64 {
	margin := math.Min(netPercent/1.0, 1) // 1% net profit is full marks

	tightness := 0.0
	spreads := 0
	for _, s := range []*domain.Snapshot{buy, sell} {
		if s.SpreadPercent > 0 {
			tightness += math.Min(0.05/s.SpreadPercent, 1)
			spreads++
		}
	}
	if spreads > 0 {
		tightness /= float64(spreads)
	}

	size := math.Min(notional/10_000, 1) // $10k tradeable is full marks

	return 100 * (0.4*margin + 0.3*tightness + 0.3*size)
}

// riskFor downgrades low-confidence or tiny opportunities.
func riskFor(confidence, notional float64) ExecutionRisk {
	switch {
	case confidence >= 70 && notional >= 5_000:
		return RiskLow
	case confidence >= 40 && notional >= 1_000:
		return RiskMedium
	default:
		return RiskHigh
	}
}
