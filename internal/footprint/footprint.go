// Package footprint builds bar-level buy/sell volume-at-price structures and
// session volume profiles from trade prints. It runs off the trade tape, not
// order-book snapshots.
package footprint

import (
	"math"
	"sort"
	"time"

	"github.com/bookpulse/engine/internal/domain"
)

// PriceVolume is one price row inside a footprint bar.
type PriceVolume struct {
	Price      float64 `json:"price"`
	BuyVolume  float64 `json:"buy_volume"`
	SellVolume float64 `json:"sell_volume"`
	// Delta is buy minus sell volume at this price.
	Delta float64 `json:"delta"`
	// Imbalance is delta over total, in [-1, 1].
	Imbalance float64 `json:"imbalance"`
}

// Bar is one fixed-timeframe footprint bar.
type Bar struct {
	Venue  string    `json:"venue"`
	Symbol string    `json:"symbol"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`

	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`

	// Rows is sorted by ascending price.
	Rows []PriceVolume `json:"rows"`

	TotalVolume float64 `json:"total_volume"`
	BuyVolume   float64 `json:"buy_volume"`
	SellVolume  float64 `json:"sell_volume"`
	Delta       float64 `json:"delta"`
	Trades      int     `json:"trades"`

	// PointOfControl is the price with the most traded volume in the bar.
	PointOfControl float64 `json:"point_of_control"`
}

// Config tunes bar construction.
type Config struct {
	// Timeframe is the bar width.
	Timeframe time.Duration `yaml:"timeframe"`
	// PriceStep rounds trade prices onto a grid; zero keeps raw prices.
	PriceStep float64 `yaml:"price_step"`
}

// DefaultConfig builds one-minute bars on a one-cent grid.
func DefaultConfig() Config {
	return Config{Timeframe: time.Minute, PriceStep: 0.01}
}

// Builder accumulates trades into footprint bars.
type Builder struct {
	cfg Config
}

// NewBuilder returns a builder, substituting defaults for zero fields.
func NewBuilder(cfg Config) *Builder {
	def := DefaultConfig()
	if cfg.Timeframe <= 0 {
		cfg.Timeframe = def.Timeframe
	}
	if cfg.PriceStep < 0 {
		cfg.PriceStep = 0
	}
	return &Builder{cfg: cfg}
}

// Build buckets trades into timeframe-aligned bars. Trades need not be
// sorted; empty input yields no bars. Bars come back in chronological order.
func (b *Builder) Build(trades []domain.Trade) []*Bar {
	if len(trades) == 0 {
		return nil
	}

	sorted := make([]domain.Trade, len(trades))
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var bars []*Bar
	var cur *Bar
	rows := map[float64]*PriceVolume{}

	flush := func() {
		if cur == nil {
			return
		}
		cur.Rows = flattenRows(rows)
		cur.PointOfControl = pointOfControl(cur.Rows)
		bars = append(bars, cur)
		cur = nil
		rows = map[float64]*PriceVolume{}
	}

	for _, t := range sorted {
		start := t.Timestamp.Truncate(b.cfg.Timeframe)
		if cur == nil || !start.Equal(cur.Start) {
			flush()
			cur = &Bar{
				Venue:  t.Venue,
				Symbol: t.Symbol,
				Start:  start,
				End:    start.Add(b.cfg.Timeframe),
				Open:   t.Price,
				High:   t.Price,
				Low:    t.Price,
			}
		}

		cur.High = math.Max(cur.High, t.Price)
		cur.Low = math.Min(cur.Low, t.Price)
		cur.Close = t.Price
		cur.Trades++
		cur.TotalVolume += t.Size

		price := b.snap(t.Price)
		row, ok := rows[price]
		if !ok {
			row = &PriceVolume{Price: price}
			rows[price] = row
		}
		// Buyer-maker means the aggressor sold into the bid.
		if t.IsBuyerMaker {
			row.SellVolume += t.Size
			cur.SellVolume += t.Size
		} else {
			row.BuyVolume += t.Size
			cur.BuyVolume += t.Size
		}
	}
	flush()

	for _, bar := range bars {
		bar.Delta = bar.BuyVolume - bar.SellVolume
	}
	return bars
}

func (b *Builder) snap(price float64) float64 {
	if b.cfg.PriceStep <= 0 {
		return price
	}
	return math.Round(price/b.cfg.PriceStep) * b.cfg.PriceStep
}

func flattenRows(rows map[float64]*PriceVolume) []PriceVolume {
	out := make([]PriceVolume, 0, len(rows))
	for _, r := range rows {
		r.Delta = r.BuyVolume - r.SellVolume
		if total := r.BuyVolume + r.SellVolume; total > 0 {
			r.Imbalance = r.Delta / total
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out
}

// pointOfControl picks the price with the highest total volume; ties go to
// the lower price for determinism.
func pointOfControl(rows []PriceVolume) float64 {
	poc := 0.0
	best := -1.0
	for _, r := range rows {
		total := r.BuyVolume + r.SellVolume
		if total > best {
			best = total
			poc = r.Price
		}
	}
	return poc
}
