package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	httpContracts "github.com/bookpulse/engine/internal/http"
	"github.com/bookpulse/engine/internal/liquidity"
	"github.com/bookpulse/engine/internal/persistence"
)

// lastHour is the lookback window for the previous stored imbalance record.
func lastHour() persistence.TimeRange {
	now := time.Now().UTC()
	return persistence.TimeRange{From: now.Add(-time.Hour), To: now}
}

// Imbalance handles GET /imbalance/{venue}/{symbol}: the depth-tier
// imbalance and pressure for the latest snapshot.
func (h *Handlers) Imbalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	snap, err := h.snapshots.Latest(r.Context(), vars["venue"], vars["symbol"])
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	// The previous stored record feeds the change-rate field when present.
	prevRecords, err := h.repo.Metrics.ListImbalances(r.Context(), vars["venue"], vars["symbol"],
		lastHour(), h.historyLimit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	var prev *liquidity.ImbalanceRecord
	if len(prevRecords) > 0 {
		prev = prevRecords[len(prevRecords)-1]
	}
	h.writeJSON(w, http.StatusOK, httpContracts.ImbalanceResponse{
		Imbalance: h.imbalance.Compute(snap, prev),
	})
}

// Liquidity handles GET /liquidity/{venue}/{symbol}: the composite
// liquidity score with regime classification.
func (h *Handlers) Liquidity(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	snap, err := h.snapshots.Latest(r.Context(), vars["venue"], vars["symbol"])
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	history, _, err := h.recentSnapshots(r.Context(), vars["venue"], vars["symbol"])
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, httpContracts.LiquidityResponse{
		Score: h.scorer.Score(snap, history),
	})
}

// Toxicity handles GET /toxicity/{venue}/{symbol}: VPIN, toxicity, noise,
// Kyle's lambda and the combined verdict over the recent window.
func (h *Handlers) Toxicity(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	snaps, tr, err := h.recentSnapshots(r.Context(), vars["venue"], vars["symbol"])
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	verdict, err := h.analyzer.Analyze(snaps)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, httpContracts.ToxicityResponse{
		Verdict: verdict,
		Window: httpContracts.WindowInfo{
			From:    tr.From,
			To:      tr.To,
			Samples: len(snaps),
		},
	})
}
