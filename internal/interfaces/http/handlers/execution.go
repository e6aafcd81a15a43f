package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/bookpulse/engine/internal/domain"
	httpContracts "github.com/bookpulse/engine/internal/http"
)

// parseOrder reads the side and size query parameters shared by the
// execution endpoints.
func parseOrder(r *http.Request) (domain.OrderSide, float64, string) {
	var side domain.OrderSide
	switch r.URL.Query().Get("side") {
	case "buy":
		side = domain.Buy
	case "sell":
		side = domain.Sell
	default:
		return "", 0, "side must be buy or sell"
	}

	size, err := strconv.ParseFloat(r.URL.Query().Get("size"), 64)
	if err != nil || size <= 0 {
		return "", 0, "size must be a positive number"
	}
	return side, size, ""
}

// Impact handles GET /impact/{venue}/{symbol}?side=&size=: the walk-the-book
// price impact estimate on the latest snapshot.
func (h *Handlers) Impact(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	side, size, msg := parseOrder(r)
	if msg != "" {
		h.writeError(w, r, http.StatusBadRequest, "invalid_parameter", msg)
		return
	}

	snap, err := h.snapshots.Latest(r.Context(), vars["venue"], vars["symbol"])
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	est, err := h.planner.Estimate(snap, side, size)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, httpContracts.ImpactResponse{Estimate: est})
}

// Plan handles GET /plan/{venue}/{symbol}?side=&size=: the split execution
// plan for a parent order.
func (h *Handlers) Plan(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	side, size, msg := parseOrder(r)
	if msg != "" {
		h.writeError(w, r, http.StatusBadRequest, "invalid_parameter", msg)
		return
	}

	snap, err := h.snapshots.Latest(r.Context(), vars["venue"], vars["symbol"])
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	plan, err := h.planner.Plan(snap, side, size)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, httpContracts.PlanResponse{Plan: plan})
}
