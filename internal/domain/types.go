// Package domain holds the canonical order-book representation shared by
// every analytics component: price levels, normalized snapshots, and the
// deltas derived between consecutive snapshots.
package domain

import (
	"sort"
	"time"
)

// Side identifies which half of the book a level belongs to.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBid {
		return SideAsk
	}
	return SideBid
}

// OrderSide is the direction of a taker order, as opposed to the book side
// it consumes: a buy walks asks, a sell walks bids.
type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

// BookSide returns the side of the book a taker order consumes.
func (o OrderSide) BookSide() Side {
	if o == Buy {
		return SideAsk
	}
	return SideBid
}

// PriceLevel is one rung of the ladder.
type PriceLevel struct {
	Price float64 `json:"price" db:"price"`
	Size  float64 `json:"size" db:"size"`
}

// Notional returns the quote-currency value resting at the level.
func (l PriceLevel) Notional() float64 {
	return l.Price * l.Size
}

// Snapshot is a normalized full order book at an instant. Bids are sorted
// strictly descending by price, asks strictly ascending; zero-size levels
// are dropped during normalization. Snapshots are append-only: once built
// they are never mutated.
type Snapshot struct {
	Venue     string    `json:"venue" db:"venue"`
	Symbol    string    `json:"symbol" db:"symbol"`
	Timestamp time.Time `json:"timestamp" db:"ts"`

	Bids []PriceLevel `json:"bids"`
	Asks []PriceLevel `json:"asks"`

	BestBid       float64 `json:"best_bid" db:"best_bid"`
	BestAsk       float64 `json:"best_ask" db:"best_ask"`
	Spread        float64 `json:"spread" db:"spread"`
	SpreadPercent float64 `json:"spread_percent" db:"spread_percent"`
	MidPrice      float64 `json:"mid_price" db:"mid_price"`

	// Pre-aggregated notional depth over the top N levels of each side.
	BidDepth10 float64 `json:"bid_depth_10" db:"bid_depth_10"`
	AskDepth10 float64 `json:"ask_depth_10" db:"ask_depth_10"`
	BidDepth50 float64 `json:"bid_depth_50" db:"bid_depth_50"`
	AskDepth50 float64 `json:"ask_depth_50" db:"ask_depth_50"`

	BidLevels int `json:"bid_levels" db:"bid_levels"`
	AskLevels int `json:"ask_levels" db:"ask_levels"`

	// Complete is true when the venue returned as many levels as requested.
	Complete bool `json:"complete" db:"complete"`
}

// NewSnapshot normalizes raw ladders into a Snapshot. Input ordering is not
// trusted: both sides are copied, filtered of non-positive sizes, and sorted.
// requestedLimit is the per-side depth asked of the venue and drives the
// completeness flag; pass 0 to skip the check.
func NewSnapshot(venue, symbol string, ts time.Time, bids, asks []PriceLevel, requestedLimit int) *Snapshot {
	s := &Snapshot{
		Venue:     venue,
		Symbol:    symbol,
		Timestamp: ts.UTC(),
		Bids:      normalizeSide(bids, SideBid),
		Asks:      normalizeSide(asks, SideAsk),
	}

	s.BidLevels = len(s.Bids)
	s.AskLevels = len(s.Asks)

	if s.BidLevels > 0 {
		s.BestBid = s.Bids[0].Price
	}
	if s.AskLevels > 0 {
		s.BestAsk = s.Asks[0].Price
	}
	if s.BidLevels > 0 && s.AskLevels > 0 {
		s.Spread = s.BestAsk - s.BestBid
		s.MidPrice = (s.BestBid + s.BestAsk) / 2
		if s.MidPrice > 0 {
			s.SpreadPercent = s.Spread / s.MidPrice * 100
		}
	}

	s.BidDepth10 = s.DepthAt(SideBid, 10)
	s.AskDepth10 = s.DepthAt(SideAsk, 10)
	s.BidDepth50 = s.DepthAt(SideBid, 50)
	s.AskDepth50 = s.DepthAt(SideAsk, 50)

	if requestedLimit > 0 {
		s.Complete = s.BidLevels >= requestedLimit && s.AskLevels >= requestedLimit
	}

	return s
}

func normalizeSide(levels []PriceLevel, side Side) []PriceLevel {
	out := make([]PriceLevel, 0, len(levels))
	for _, l := range levels {
		if l.Size > 0 && l.Price > 0 {
			out = append(out, l)
		}
	}
	if side == SideBid {
		sort.Slice(out, func(i, j int) bool { return out[i].Price > out[j].Price })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	}
	// Collapse duplicate prices so each rung is unique per side.
	dedup := out[:0]
	for _, l := range out {
		if n := len(dedup); n > 0 && dedup[n-1].Price == l.Price {
			dedup[n-1].Size += l.Size
			continue
		}
		dedup = append(dedup, l)
	}
	return dedup
}

// SideLevels returns the requested ladder.
func (s *Snapshot) SideLevels(side Side) []PriceLevel {
	if side == SideBid {
		return s.Bids
	}
	return s.Asks
}

// DepthAt sums notional value over the top n levels of a side.
func (s *Snapshot) DepthAt(side Side, n int) float64 {
	levels := s.SideLevels(side)
	if n > len(levels) {
		n = len(levels)
	}
	total := 0.0
	for _, l := range levels[:n] {
		total += l.Notional()
	}
	return total
}

// SideVolume sums raw base-currency size over the whole side.
func (s *Snapshot) SideVolume(side Side) float64 {
	total := 0.0
	for _, l := range s.SideLevels(side) {
		total += l.Size
	}
	return total
}

// SideNotional sums quote-currency value over the whole side.
func (s *Snapshot) SideNotional(side Side) float64 {
	total := 0.0
	for _, l := range s.SideLevels(side) {
		total += l.Notional()
	}
	return total
}

// TotalNotional is the combined quote-currency value of both sides.
func (s *Snapshot) TotalNotional() float64 {
	return s.SideNotional(SideBid) + s.SideNotional(SideAsk)
}

// ChangeKind classifies a delta between consecutive snapshots.
type ChangeKind string

const (
	ChangeAdd    ChangeKind = "add"    // only new price levels appeared
	ChangeRemove ChangeKind = "remove" // at least one level disappeared
	ChangeUpdate ChangeKind = "update" // sizes changed on existing levels
)

// Delta is the incremental change between two snapshots of the same
// (venue, symbol). Removed levels are carried with Size 0. Deltas are
// generated by diffing, never authored directly.
type Delta struct {
	Venue     string       `json:"venue" db:"venue"`
	Symbol    string       `json:"symbol" db:"symbol"`
	Timestamp time.Time    `json:"timestamp" db:"ts"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Kind      ChangeKind   `json:"kind" db:"kind"`
}

// Empty reports whether the delta carries no level changes.
func (d *Delta) Empty() bool {
	return len(d.Bids) == 0 && len(d.Asks) == 0
}

// Trade is a single trade print consumed by the footprint builder. It is
// the only input in the engine that does not originate from a book snapshot.
type Trade struct {
	Venue     string    `json:"venue" db:"venue"`
	Symbol    string    `json:"symbol" db:"symbol"`
	Timestamp time.Time `json:"timestamp" db:"ts"`
	Price     float64   `json:"price" db:"price"`
	Size      float64   `json:"size" db:"size"`
	// IsBuyerMaker is true when the aggressor was a seller.
	IsBuyerMaker bool `json:"is_buyer_maker" db:"is_buyer_maker"`
}
