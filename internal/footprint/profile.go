package footprint

import (
	"math"
	"sort"
	"time"

	"github.com/bookpulse/engine/internal/domain"
)

// Profile is a volume-at-price distribution over an arbitrary trade window
// with its point of control and value area.
type Profile struct {
	Venue  string    `json:"venue"`
	Symbol string    `json:"symbol"`
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`

	// Rows is sorted by ascending price.
	Rows        []PriceVolume `json:"rows"`
	TotalVolume float64       `json:"total_volume"`

	PointOfControl float64 `json:"point_of_control"`
	// ValueAreaHigh/Low bound the band holding ValueAreaPercent of volume
	// around the point of control.
	ValueAreaHigh    float64 `json:"value_area_high"`
	ValueAreaLow     float64 `json:"value_area_low"`
	ValueAreaPercent float64 `json:"value_area_percent"`
}

// BuildProfile aggregates a trade window into a volume profile on the
// builder's price grid. The value area expands outward from the point of
// control, greedily taking the larger neighbor, until the target share of
// volume is inside.
func (b *Builder) BuildProfile(trades []domain.Trade, valueAreaPercent float64) *Profile {
	if valueAreaPercent <= 0 || valueAreaPercent > 100 {
		valueAreaPercent = 70
	}
	if len(trades) == 0 {
		return nil
	}

	p := &Profile{
		Venue:            trades[0].Venue,
		Symbol:           trades[0].Symbol,
		From:             trades[0].Timestamp,
		To:               trades[0].Timestamp,
		ValueAreaPercent: valueAreaPercent,
	}

	rows := map[float64]*PriceVolume{}
	for _, t := range trades {
		if t.Timestamp.Before(p.From) {
			p.From = t.Timestamp
		}
		if t.Timestamp.After(p.To) {
			p.To = t.Timestamp
		}
		price := b.snap(t.Price)
		row, ok := rows[price]
		if !ok {
			row = &PriceVolume{Price: price}
			rows[price] = row
		}
		if t.IsBuyerMaker {
			row.SellVolume += t.Size
		} else {
			row.BuyVolume += t.Size
		}
		p.TotalVolume += t.Size
	}

	p.Rows = flattenRows(rows)
	p.PointOfControl = pointOfControl(p.Rows)
	p.ValueAreaLow, p.ValueAreaHigh = valueArea(p.Rows, p.PointOfControl, p.TotalVolume, valueAreaPercent)
	return p
}

// valueArea expands from the POC row outward, one row at a time, always
// absorbing the higher-volume neighbor first.
func valueArea(rows []PriceVolume, poc, totalVolume, percent float64) (low, high float64) {
	if len(rows) == 0 || totalVolume == 0 {
		return 0, 0
	}

	pocIdx := sort.Search(len(rows), func(i int) bool { return rows[i].Price >= poc })
	if pocIdx == len(rows) {
		pocIdx = len(rows) - 1
	}

	volumeAt := func(i int) float64 { return rows[i].BuyVolume + rows[i].SellVolume }

	lo, hi := pocIdx, pocIdx
	captured := volumeAt(pocIdx)
	target := totalVolume * percent / 100

	for captured < target && (lo > 0 || hi < len(rows)-1) {
		below := math.Inf(-1)
		if lo > 0 {
			below = volumeAt(lo - 1)
		}
		above := math.Inf(-1)
		if hi < len(rows)-1 {
			above = volumeAt(hi + 1)
		}
		if below >= above {
			lo--
			captured += below
		} else {
			hi++
			captured += above
		}
	}

	return rows[lo].Price, rows[hi].Price
}
