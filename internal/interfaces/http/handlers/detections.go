package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	httpContracts "github.com/bookpulse/engine/internal/http"
)

// Zones handles GET /zones/{venue}/{symbol}: active liquidity zones,
// strongest first.
func (h *Handlers) Zones(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	zones, err := h.repo.Zones.ListActive(r.Context(), vars["venue"], vars["symbol"])
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, httpContracts.ZonesResponse{
		Zones: zones,
		Count: len(zones),
	})
}

// Detections handles GET /detections/{venue}/{symbol}?kind=&limit=: recent
// whale, iceberg, spoofing and cluster hits.
func (h *Handlers) Detections(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	limit := 50
	if lStr := r.URL.Query().Get("limit"); lStr != "" {
		if parsed, err := strconv.Atoi(lStr); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	if kind := r.URL.Query().Get("kind"); kind != "" {
		detections, err := h.repo.Detections.ListByKind(r.Context(), kind, lastHour(), limit)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, httpContracts.DetectionsResponse{
			Detections: detections,
			Count:      len(detections),
		})
		return
	}

	detections, err := h.repo.Detections.ListRecent(r.Context(), vars["venue"], vars["symbol"], limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, httpContracts.DetectionsResponse{
		Detections: detections,
		Count:      len(detections),
	})
}

// Signal handles GET /signal/{venue}/{symbol}: the latest pulse signal,
// served from the hot cache when available.
func (h *Handlers) Signal(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	venue, symbol := vars["venue"], vars["symbol"]

	if h.signals != nil {
		if sig, ok := h.signals.GetSignal(r.Context(), venue, symbol); ok {
			h.writeJSON(w, http.StatusOK, httpContracts.SignalResponse{Signal: sig, Source: "cache"})
			return
		}
	}

	sig, err := h.repo.Signals.Latest(r.Context(), venue, symbol)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, httpContracts.SignalResponse{Signal: sig, Source: "storage"})
}
