package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/bookpulse/engine/internal/footprint"
	httpContracts "github.com/bookpulse/engine/internal/http"
	"github.com/bookpulse/engine/internal/persistence"
)

// tradeWindowLimit caps how many trade prints a single request can pull.
const tradeWindowLimit = 10000

// Footprint handles GET /footprint/{venue}/{symbol}?from=&to=, building
// bar-level buy/sell volume-at-price from the stored trade tape.
func (h *Handlers) Footprint(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	from, to, ok := parseWindow(r)
	if !ok {
		h.writeError(w, r, http.StatusBadRequest, "invalid_parameter",
			"from and to must be RFC 3339 timestamps")
		return
	}

	tr := persistence.TimeRange{From: from, To: to}
	trades, err := h.repo.Trades.ListRange(r.Context(), vars["venue"], vars["symbol"], tr, tradeWindowLimit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	bars := h.footprints.Build(trades)
	h.writeJSON(w, http.StatusOK, httpContracts.FootprintResponse{
		Bars:     bars,
		Patterns: footprint.DetectPatterns(footprint.DefaultPatternConfig(), bars),
		Window:   httpContracts.WindowInfo{From: from, To: to, Samples: len(trades)},
	})
}

// Profile handles GET /profile/{venue}/{symbol}?from=&to=&value_area=,
// the volume profile over a trade window.
func (h *Handlers) Profile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	from, to, ok := parseWindow(r)
	if !ok {
		h.writeError(w, r, http.StatusBadRequest, "invalid_parameter",
			"from and to must be RFC 3339 timestamps")
		return
	}

	valueArea := 70.0
	if vStr := r.URL.Query().Get("value_area"); vStr != "" {
		parsed, err := strconv.ParseFloat(vStr, 64)
		if err != nil || parsed <= 0 || parsed > 100 {
			h.writeError(w, r, http.StatusBadRequest, "invalid_parameter",
				"value_area must be a percentage in (0, 100]")
			return
		}
		valueArea = parsed
	}

	tr := persistence.TimeRange{From: from, To: to}
	trades, err := h.repo.Trades.ListRange(r.Context(), vars["venue"], vars["symbol"], tr, tradeWindowLimit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, httpContracts.ProfileResponse{
		Profile: h.footprints.BuildProfile(trades, valueArea),
		Window:  httpContracts.WindowInfo{From: from, To: to, Samples: len(trades)},
	})
}
