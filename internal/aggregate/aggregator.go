// Package aggregate merges order books across venues and derives
// cross-venue products: smart-order-routing plans, arbitrage opportunities,
// venue quality scores and liquidity concentration.
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/bookpulse/engine/internal/domain"
	"github.com/bookpulse/engine/internal/gateway"
)

// AggregatedLevel is one merged ladder rung tagged with the venues that
// contribute to it.
type AggregatedLevel struct {
	Price  float64            `json:"price"`
	Size   float64            `json:"size"`
	Venues map[string]float64 `json:"venues"` // venue -> contributed size
}

// AggregatedOrderBook is the cross-venue merged book for one symbol.
type AggregatedOrderBook struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`

	Bids []AggregatedLevel `json:"bids"` // descending
	Asks []AggregatedLevel `json:"asks"` // ascending

	BestBid      float64 `json:"best_bid"`
	BestBidVenue string  `json:"best_bid_venue"`
	BestAsk      float64 `json:"best_ask"`
	BestAskVenue string  `json:"best_ask_venue"`

	TotalBidNotional float64 `json:"total_bid_notional"`
	TotalAskNotional float64 `json:"total_ask_notional"`

	// Venues that contributed, and venues that failed and were excluded.
	Venues   []string `json:"venues"`
	Excluded []string `json:"excluded,omitempty"`

	// PerVenue keeps the contributing snapshots for routing and quality.
	PerVenue map[string]*domain.Snapshot `json:"-"`
}

// Config tunes aggregation.
type Config struct {
	// FeeRates maps venue to taker fee rate; DefaultFeeRate covers the rest.
	FeeRates       map[string]float64 `yaml:"fee_rates"`
	DefaultFeeRate float64            `yaml:"default_fee_rate"`
	// FetchTimeout bounds each per-venue fetch.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	// MinArbProfitPercent is the net profit floor for emitting an
	// arbitrage opportunity.
	MinArbProfitPercent float64 `yaml:"min_arb_profit_percent"`
}

// DefaultConfig uses a flat 0.1% fee and a 0.1% arbitrage floor.
func DefaultConfig() Config {
	return Config{
		DefaultFeeRate:      0.001,
		FetchTimeout:        5 * time.Second,
		MinArbProfitPercent: 0.1,
	}
}

// Aggregator fans out per-venue fetches and merges the results.
type Aggregator struct {
	cfg      Config
	gateways []gateway.OrderBookGateway
}

// NewAggregator builds an aggregator over the given venue gateways.
func NewAggregator(cfg Config, gateways ...gateway.OrderBookGateway) *Aggregator {
	if cfg.DefaultFeeRate <= 0 {
		cfg.DefaultFeeRate = DefaultConfig().DefaultFeeRate
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultConfig().FetchTimeout
	}
	if cfg.MinArbProfitPercent <= 0 {
		cfg.MinArbProfitPercent = DefaultConfig().MinArbProfitPercent
	}
	return &Aggregator{cfg: cfg, gateways: gateways}
}

// feeRate returns the taker fee for a venue.
func (a *Aggregator) feeRate(venue string) float64 {
	if r, ok := a.cfg.FeeRates[venue]; ok {
		return r
	}
	return a.cfg.DefaultFeeRate
}

// Fetch pulls the book from every venue concurrently and merges whatever
// succeeds. A venue failure degrades the result instead of failing it; the
// venue lands in Excluded and is logged. Only when every venue fails does
// Fetch return domain.ErrVenueUnreachable.
func (a *Aggregator) Fetch(ctx context.Context, symbol string, depthLimit int) (*AggregatedOrderBook, error) {
	var (
		mu       sync.Mutex
		books    = make(map[string]*domain.Snapshot, len(a.gateways))
		excluded []string
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, gw := range a.gateways {
		gw := gw
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
			defer cancel()

			raw, err := gw.FetchOrderBook(fetchCtx, symbol, depthLimit)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn().Err(err).
					Str("venue", gw.Venue()).
					Str("symbol", symbol).
					Msg("venue excluded from aggregation")
				excluded = append(excluded, gw.Venue())
				return nil // degrade, never fail the group
			}
			books[gw.Venue()] = domain.NewSnapshot(raw.Venue, raw.Symbol, raw.FetchedAt, raw.Bids, raw.Asks, depthLimit)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(books) == 0 {
		return nil, fmt.Errorf("%w: all %d venues failed for %s", domain.ErrVenueUnreachable, len(a.gateways), symbol)
	}

	snapshots := make([]*domain.Snapshot, 0, len(books))
	for _, s := range books {
		snapshots = append(snapshots, s)
	}
	merged := Merge(symbol, snapshots)
	sort.Strings(excluded)
	merged.Excluded = excluded
	return merged, nil
}

// Merge combines per-venue snapshots into one book. Levels at an identical
// price sum their sizes and union their venue tags.
func Merge(symbol string, snapshots []*domain.Snapshot) *AggregatedOrderBook {
	book := &AggregatedOrderBook{
		Symbol:   symbol,
		PerVenue: make(map[string]*domain.Snapshot, len(snapshots)),
	}

	bidLevels := make(map[float64]*AggregatedLevel)
	askLevels := make(map[float64]*AggregatedLevel)

	for _, s := range snapshots {
		book.PerVenue[s.Venue] = s
		book.Venues = append(book.Venues, s.Venue)
		if s.Timestamp.After(book.Timestamp) {
			book.Timestamp = s.Timestamp
		}

		for _, l := range s.Bids {
			mergeLevel(bidLevels, s.Venue, l)
		}
		for _, l := range s.Asks {
			mergeLevel(askLevels, s.Venue, l)
		}

		if s.BidLevels > 0 && (book.BestBidVenue == "" || s.BestBid > book.BestBid) {
			book.BestBid = s.BestBid
			book.BestBidVenue = s.Venue
		}
		if s.AskLevels > 0 && (book.BestAskVenue == "" || s.BestAsk < book.BestAsk) {
			book.BestAsk = s.BestAsk
			book.BestAskVenue = s.Venue
		}
	}
	sort.Strings(book.Venues)

	book.Bids = flatten(bidLevels, true)
	book.Asks = flatten(askLevels, false)

	for _, l := range book.Bids {
		book.TotalBidNotional += l.Price * l.Size
	}
	for _, l := range book.Asks {
		book.TotalAskNotional += l.Price * l.Size
	}

	return book
}

func mergeLevel(levels map[float64]*AggregatedLevel, venue string, l domain.PriceLevel) {
	agg := levels[l.Price]
	if agg == nil {
		agg = &AggregatedLevel{Price: l.Price, Venues: make(map[string]float64, 2)}
		levels[l.Price] = agg
	}
	agg.Size += l.Size
	agg.Venues[venue] += l.Size
}

func flatten(levels map[float64]*AggregatedLevel, descending bool) []AggregatedLevel {
	out := make([]AggregatedLevel, 0, len(levels))
	for _, l := range levels {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	return out
}

// sideLevels returns the merged ladder a taker order consumes.
func (b *AggregatedOrderBook) sideLevels(side domain.OrderSide) []AggregatedLevel {
	if side == domain.Buy {
		return b.Asks
	}
	return b.Bids
}
