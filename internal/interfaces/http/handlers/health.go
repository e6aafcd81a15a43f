package handlers

import (
	"net/http"
	"time"

	httpContracts "github.com/bookpulse/engine/internal/http"
)

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := httpContracts.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Venues:    h.venues,
	}

	if h.health != nil {
		check := h.health.Health(r.Context())
		resp.Storage = &check
		if !check.Healthy {
			resp.Status = "degraded"
		}
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, resp)
}
