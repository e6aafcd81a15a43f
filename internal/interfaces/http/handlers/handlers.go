// Package handlers implements the read-only query endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/bookpulse/engine/internal/aggregate"
	"github.com/bookpulse/engine/internal/analytics"
	"github.com/bookpulse/engine/internal/domain"
	"github.com/bookpulse/engine/internal/footprint"
	httpContracts "github.com/bookpulse/engine/internal/http"
	"github.com/bookpulse/engine/internal/impact"
	"github.com/bookpulse/engine/internal/liquidity"
	"github.com/bookpulse/engine/internal/persistence"
	"github.com/bookpulse/engine/internal/pulse"
	"github.com/bookpulse/engine/internal/snapshot"
)

// SignalCache is the optional hot layer for the latest pulse signal.
type SignalCache interface {
	GetSignal(ctx context.Context, venue, symbol string) (*pulse.Signal, bool)
}

// Handlers bundles the services the query API reads from.
type Handlers struct {
	snapshots  *snapshot.Service
	repo       *persistence.Repository
	health     persistence.RepositoryHealth
	imbalance  *liquidity.Calculator
	scorer     *liquidity.Scorer
	analyzer   *analytics.Analyzer
	planner    *impact.Planner
	aggregator *aggregate.Aggregator
	footprints *footprint.Builder
	signals    SignalCache
	venues     []string
	started    time.Time

	// historyWindow bounds the snapshot window fed to windowed analytics.
	historyWindow time.Duration
	historyLimit  int
}

// Deps carries the handler dependencies. SignalCache is optional (reads fall
// through to storage); a nil Aggregator makes the aggregation endpoints
// answer 503.
type Deps struct {
	Snapshots   *snapshot.Service
	Repo        *persistence.Repository
	Health      persistence.RepositoryHealth
	Imbalance   *liquidity.Calculator
	Scorer      *liquidity.Scorer
	Analyzer    *analytics.Analyzer
	Planner     *impact.Planner
	Aggregator  *aggregate.Aggregator
	Footprints  *footprint.Builder
	SignalCache SignalCache
	Venues      []string
}

// New builds the handler set.
func New(deps Deps) *Handlers {
	if deps.Footprints == nil {
		deps.Footprints = footprint.NewBuilder(footprint.DefaultConfig())
	}
	return &Handlers{
		snapshots:     deps.Snapshots,
		repo:          deps.Repo,
		health:        deps.Health,
		imbalance:     deps.Imbalance,
		scorer:        deps.Scorer,
		analyzer:      deps.Analyzer,
		planner:       deps.Planner,
		aggregator:    deps.Aggregator,
		footprints:    deps.Footprints,
		signals:       deps.SignalCache,
		venues:        deps.Venues,
		started:       time.Now(),
		historyWindow: time.Hour,
		historyLimit:  500,
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"json_encoding_failed"}`, http.StatusInternalServerError)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID, _ := r.Context().Value(requestIDKey{}).(string)
	if requestID == "" {
		requestID = "unknown"
	}

	h.writeJSON(w, status, httpContracts.ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	})
}

// writeDomainError maps engine sentinels onto HTTP statuses.
func (h *Handlers) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidParameter):
		h.writeError(w, r, http.StatusBadRequest, "invalid_parameter", err.Error())
	case errors.Is(err, domain.ErrInsufficientData):
		h.writeError(w, r, http.StatusNotFound, "insufficient_data", err.Error())
	case errors.Is(err, domain.ErrInsufficientLiquidity):
		h.writeError(w, r, http.StatusUnprocessableEntity, "insufficient_liquidity", err.Error())
	case errors.Is(err, domain.ErrVenueUnreachable):
		h.writeError(w, r, http.StatusBadGateway, "venue_unreachable", err.Error())
	default:
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// NotFound handles 404 responses.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	h.writeError(w, r, http.StatusNotFound, "endpoint_not_found",
		"The requested endpoint does not exist")
}

// requestIDKey is the context key the server middleware stores the request
// id under.
type requestIDKey struct{}

// RequestIDKey returns the context key for the request id.
func RequestIDKey() interface{} { return requestIDKey{} }

// recentSnapshots loads the windowed history behind toxicity, scoring and
// detection endpoints.
func (h *Handlers) recentSnapshots(ctx context.Context, venue, symbol string) ([]*domain.Snapshot, persistence.TimeRange, error) {
	now := time.Now().UTC()
	tr := persistence.TimeRange{From: now.Add(-h.historyWindow), To: now}
	snaps, err := h.repo.Snapshots.ListRange(ctx, venue, symbol, tr, h.historyLimit)
	return snaps, tr, err
}
