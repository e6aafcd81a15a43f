package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	httpContracts "github.com/bookpulse/engine/internal/http"
)

// Book handles GET /book/{venue}/{symbol}, the latest normalized snapshot.
func (h *Handlers) Book(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	snap, err := h.snapshots.Latest(r.Context(), vars["venue"], vars["symbol"])
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, httpContracts.SnapshotResponse{Snapshot: snap})
}

// BookHistory handles GET /book/{venue}/{symbol}/history?from=&to=&limit=.
func (h *Handlers) BookHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	from, to, ok := parseWindow(r)
	if !ok {
		h.writeError(w, r, http.StatusBadRequest, "invalid_parameter",
			"from and to must be RFC 3339 timestamps")
		return
	}

	limit := 100
	if lStr := r.URL.Query().Get("limit"); lStr != "" {
		if parsed, err := strconv.Atoi(lStr); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	snaps, err := h.snapshots.Historical(r.Context(), vars["venue"], vars["symbol"], from, to, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, httpContracts.SnapshotWindowResponse{
		Snapshots: snaps,
		Count:     len(snaps),
	})
}

// parseWindow reads the from/to query pair, defaulting to the last hour.
func parseWindow(r *http.Request) (from, to time.Time, ok bool) {
	now := time.Now().UTC()
	from, to = now.Add(-time.Hour), now

	if fStr := r.URL.Query().Get("from"); fStr != "" {
		parsed, err := time.Parse(time.RFC3339, fStr)
		if err != nil {
			return from, to, false
		}
		from = parsed
	}
	if tStr := r.URL.Query().Get("to"); tStr != "" {
		parsed, err := time.Parse(time.RFC3339, tStr)
		if err != nil {
			return from, to, false
		}
		to = parsed
	}
	return from, to, true
}
