// Package http holds the wire contracts for the read-only query API.
package http

import (
	"time"

	"github.com/bookpulse/engine/internal/aggregate"
	"github.com/bookpulse/engine/internal/analytics"
	"github.com/bookpulse/engine/internal/detect"
	"github.com/bookpulse/engine/internal/domain"
	"github.com/bookpulse/engine/internal/footprint"
	"github.com/bookpulse/engine/internal/impact"
	"github.com/bookpulse/engine/internal/liquidity"
	"github.com/bookpulse/engine/internal/persistence"
	"github.com/bookpulse/engine/internal/pulse"
)

// HealthResponse reports overall engine health.
type HealthResponse struct {
	Status    string                   `json:"status"` // healthy, degraded, down
	Timestamp time.Time                `json:"timestamp"`
	Uptime    string                   `json:"uptime"`
	Storage   *persistence.HealthCheck `json:"storage,omitempty"`
	Venues    []string                 `json:"venues"`
}

// SnapshotResponse wraps the latest normalized book snapshot.
type SnapshotResponse struct {
	Snapshot *domain.Snapshot `json:"snapshot"`
}

// SnapshotWindowResponse wraps a historical snapshot range.
type SnapshotWindowResponse struct {
	Snapshots []*domain.Snapshot `json:"snapshots"`
	Count     int                `json:"count"`
}

// ImbalanceResponse wraps the imbalance record for the latest snapshot.
type ImbalanceResponse struct {
	Imbalance *liquidity.ImbalanceRecord `json:"imbalance"`
}

// LiquidityResponse wraps the composite liquidity score.
type LiquidityResponse struct {
	Score *liquidity.Score `json:"score"`
}

// ToxicityResponse wraps the flow-quality verdict over a recent window.
type ToxicityResponse struct {
	Verdict *analytics.Verdict `json:"verdict"`
	Window  WindowInfo         `json:"window"`
}

// WindowInfo describes the input window an analysis consumed. Samples counts
// snapshots or trades depending on the endpoint.
type WindowInfo struct {
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
	Samples int       `json:"samples"`
}

// ZonesResponse lists the active liquidity zones.
type ZonesResponse struct {
	Zones []*detect.LiquidityZone `json:"zones"`
	Count int                     `json:"count"`
}

// DetectionsResponse lists recent detector hits.
type DetectionsResponse struct {
	Detections []*persistence.Detection `json:"detections"`
	Count      int                      `json:"count"`
}

// SignalResponse wraps the latest pulse signal.
type SignalResponse struct {
	Signal *pulse.Signal `json:"signal"`
	Source string        `json:"source"` // cache, storage
}

// ImpactResponse wraps a price-impact estimate.
type ImpactResponse struct {
	Estimate *impact.Estimate `json:"estimate"`
}

// PlanResponse wraps an execution plan.
type PlanResponse struct {
	Plan *impact.ExecutionPlan `json:"plan"`
}

// AggregateResponse wraps a merged multi-venue book with venue quality.
type AggregateResponse struct {
	Book         *aggregate.AggregatedOrderBook    `json:"book"`
	Quality      []*aggregate.ExchangeQualityScore `json:"quality"`
	Distribution *aggregate.LiquidityDistribution  `json:"distribution"`
}

// ArbitrageResponse lists cross-venue price dislocations.
type ArbitrageResponse struct {
	Opportunities []*aggregate.ArbitrageOpportunity `json:"opportunities"`
	Count         int                               `json:"count"`
}

// RouteResponse wraps a smart-order-routing plan.
type RouteResponse struct {
	Route *aggregate.RoutePlan `json:"route"`
}

// FootprintResponse wraps footprint bars built from the trade tape.
type FootprintResponse struct {
	Bars     []*footprint.Bar     `json:"bars"`
	Patterns []*footprint.Pattern `json:"patterns"`
	Window   WindowInfo           `json:"window"`
}

// ProfileResponse wraps a volume profile over a trade window.
type ProfileResponse struct {
	Profile *footprint.Profile `json:"profile"`
	Window  WindowInfo         `json:"window"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}
