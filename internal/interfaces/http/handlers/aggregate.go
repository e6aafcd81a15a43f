package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/bookpulse/engine/internal/aggregate"
	httpContracts "github.com/bookpulse/engine/internal/http"
)

// fetchAggregated runs the multi-venue fetch shared by the aggregation
// endpoints.
func (h *Handlers) fetchAggregated(w http.ResponseWriter, r *http.Request) (*aggregate.AggregatedOrderBook, bool) {
	if h.aggregator == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "aggregation_unavailable",
			"no venue gateways configured for aggregation")
		return nil, false
	}
	symbol := mux.Vars(r)["symbol"]

	depth := 50
	if dStr := r.URL.Query().Get("depth"); dStr != "" {
		if parsed, err := strconv.Atoi(dStr); err == nil && parsed > 0 && parsed <= 500 {
			depth = parsed
		}
	}

	book, err := h.aggregator.Fetch(r.Context(), symbol, depth)
	if err != nil {
		h.writeDomainError(w, r, err)
		return nil, false
	}
	return book, true
}

// Aggregate handles GET /aggregate/{symbol}?depth=: the merged multi-venue
// book with per-venue quality and concentration.
func (h *Handlers) Aggregate(w http.ResponseWriter, r *http.Request) {
	book, ok := h.fetchAggregated(w, r)
	if !ok {
		return
	}

	h.writeJSON(w, http.StatusOK, httpContracts.AggregateResponse{
		Book:         book,
		Quality:      aggregate.ScoreVenues(book, aggregate.DefaultQualityScoreConfig()),
		Distribution: aggregate.Distribution(book),
	})
}

// Arbitrage handles GET /arbitrage/{symbol}?depth=: fee-adjusted cross-venue
// dislocations in the merged book.
func (h *Handlers) Arbitrage(w http.ResponseWriter, r *http.Request) {
	book, ok := h.fetchAggregated(w, r)
	if !ok {
		return
	}

	opps := h.aggregator.FindArbitrage(book)
	h.writeJSON(w, http.StatusOK, httpContracts.ArbitrageResponse{
		Opportunities: opps,
		Count:         len(opps),
	})
}

// Route handles GET /route/{symbol}?side=&size=&depth=: the cheapest
// cross-venue split for a parent order.
func (h *Handlers) Route(w http.ResponseWriter, r *http.Request) {
	side, size, msg := parseOrder(r)
	if msg != "" {
		h.writeError(w, r, http.StatusBadRequest, "invalid_parameter", msg)
		return
	}

	book, ok := h.fetchAggregated(w, r)
	if !ok {
		return
	}

	route, err := h.aggregator.Route(book, side, size)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, httpContracts.RouteResponse{Route: route})
}
