package snapshot

import (
	"sort"

	"github.com/bookpulse/engine/internal/domain"
)

// Diff computes the incremental change from old to new. Removed levels are
// carried with Size 0; changed levels carry their new size. Diffing a
// snapshot against itself yields an empty delta.
func Diff(old, new *domain.Snapshot) *domain.Delta {
	d := &domain.Delta{
		Venue:     new.Venue,
		Symbol:    new.Symbol,
		Timestamp: new.Timestamp,
	}

	var added, removed, updated int
	d.Bids, added, removed, updated = diffSide(old.Bids, new.Bids, added, removed, updated)
	d.Asks, added, removed, updated = diffSide(old.Asks, new.Asks, added, removed, updated)

	switch {
	case removed > 0:
		d.Kind = domain.ChangeRemove
	case updated > 0:
		d.Kind = domain.ChangeUpdate
	case added > 0:
		d.Kind = domain.ChangeAdd
	}

	sortByPrice(d.Bids, true)
	sortByPrice(d.Asks, false)
	return d
}

func diffSide(old, new []domain.PriceLevel, added, removed, updated int) ([]domain.PriceLevel, int, int, int) {
	oldByPrice := make(map[float64]float64, len(old))
	for _, l := range old {
		oldByPrice[l.Price] = l.Size
	}

	var changes []domain.PriceLevel
	for _, l := range new {
		prev, existed := oldByPrice[l.Price]
		if !existed {
			changes = append(changes, l)
			added++
			continue
		}
		if prev != l.Size {
			changes = append(changes, l)
			updated++
		}
		delete(oldByPrice, l.Price)
	}

	// Whatever stayed in the map disappeared from the book.
	for price := range oldByPrice {
		changes = append(changes, domain.PriceLevel{Price: price, Size: 0})
		removed++
	}
	return changes, added, removed, updated
}

func sortByPrice(levels []domain.PriceLevel, desc bool) {
	sort.Slice(levels, func(i, j int) bool {
		if desc {
			return levels[i].Price > levels[j].Price
		}
		return levels[i].Price < levels[j].Price
	})
}
