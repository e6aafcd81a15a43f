package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bookpulse/engine/internal/aggregate"
	"github.com/bookpulse/engine/internal/analytics"
	"github.com/bookpulse/engine/internal/cache"
	"github.com/bookpulse/engine/internal/config"
	"github.com/bookpulse/engine/internal/detect"
	"github.com/bookpulse/engine/internal/domain"
	"github.com/bookpulse/engine/internal/gateway"
	"github.com/bookpulse/engine/internal/impact"
	"github.com/bookpulse/engine/internal/infrastructure/db"
	"github.com/bookpulse/engine/internal/liquidity"
	"github.com/bookpulse/engine/internal/persistence"
	"github.com/bookpulse/engine/internal/pulse"
	"github.com/bookpulse/engine/internal/scheduler"
	"github.com/bookpulse/engine/internal/snapshot"
	"github.com/bookpulse/engine/internal/telemetry"
)

// engine bundles the wired services behind serve and jobs run.
type engine struct {
	cfg     *config.Config
	metrics *telemetry.Metrics

	manager *db.Manager
	repo    *persistence.Repository
	hot     *cache.HotCache

	gateways   []gateway.OrderBookGateway
	snapshots  *snapshot.Service
	aggregator *aggregate.Aggregator

	calculator *liquidity.Calculator
	scorer     *liquidity.Scorer
	analyzer   *analytics.Analyzer
	generator  *pulse.Generator
	planner    *impact.Planner

	whales   *detect.WhaleDetector
	icebergs *detect.IcebergDetector
	spoofers *detect.SpoofingDetector
	clusters *detect.ClusterDetector
	zones    *detect.ZoneTracker
}

// buildEngine wires storage, cache, gateways and analytics. The returned
// cleanup closes connections.
func buildEngine(ctx context.Context, cfg *config.Config) (*engine, func(), error) {
	if !cfg.Database.Enabled {
		return nil, nil, fmt.Errorf("a database is required; set database.enabled or DATABASE_URL")
	}

	metrics := telemetry.NewMetrics()

	manager, err := db.NewManager(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	if err := manager.Migrate(ctx); err != nil {
		manager.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	var hot *cache.HotCache
	if cfg.Cache.Enabled {
		hot, err = cache.New(cfg.Cache)
		if err != nil {
			manager.Close()
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
	}

	gateways := buildGateways(cfg.Venues)
	repo := manager.Repository()

	opts := []snapshot.Option{
		snapshot.WithDeltaRepo(repo.Deltas),
		snapshot.WithDefaultDepth(cfg.Depth),
	}
	if hot != nil {
		opts = append(opts, snapshot.WithCache(hot))
	}

	e := &engine{
		cfg:        cfg,
		metrics:    metrics,
		manager:    manager,
		repo:       repo,
		hot:        hot,
		gateways:   gateways,
		snapshots:  snapshot.NewService(repo.Snapshots, gateways, opts...),
		aggregator: aggregate.NewAggregator(aggregate.DefaultConfig(), gateways...),
		calculator: liquidity.NewCalculator(),
		scorer:     liquidity.NewScorer(liquidity.DefaultScorerConfig()),
		analyzer:   analytics.NewAnalyzer(analytics.DefaultVPINConfig(), analytics.DefaultToxicityConfig()),
		generator:  pulse.NewGenerator(pulse.DefaultConfig()),
		planner:    impact.NewPlanner(impact.DefaultConfig()),
		whales:     detect.NewWhaleDetector(detect.DefaultWhaleConfig()),
		icebergs:   detect.NewIcebergDetector(detect.DefaultIcebergConfig()),
		spoofers:   detect.NewSpoofingDetector(detect.DefaultSpoofingConfig()),
		clusters:   detect.NewClusterDetector(detect.DefaultClusterConfig()),
		zones:      detect.NewZoneTracker(detect.DefaultZoneConfig()),
	}

	cleanup := func() {
		if hot != nil {
			hot.Close()
		}
		manager.Close()
	}
	return e, cleanup, nil
}

func buildGateways(venues []string) []gateway.OrderBookGateway {
	out := make([]gateway.OrderBookGateway, 0, len(venues))
	for _, venue := range venues {
		var inner gateway.OrderBookGateway
		switch venue {
		case "binance":
			inner = gateway.NewBinanceGateway()
		case "coinbase":
			inner = gateway.NewCoinbaseGateway()
		case "okx":
			inner = gateway.NewOKXGateway()
		default:
			log.Warn().Str("venue", venue).Msg("unknown venue, skipping")
			continue
		}
		out = append(out, gateway.NewResilientGateway(inner, gateway.DefaultResilienceConfig()))
	}
	return out
}

// registerJobs binds the recompute runners onto the scheduler.
func (e *engine) registerJobs(sched *scheduler.Scheduler) {
	sched.Register("snapshot.refresh", e.runSnapshotRefresh)
	sched.Register("vpin.refresh", e.runVPINRefresh)
	sched.Register("signal.compute", e.runSignalCompute)
	sched.Register("zones.reconcile", e.runZonesReconcile)
	sched.Register("snapshots.prune", e.runSnapshotsPrune)
}

// pairs resolves the venue/symbol grid a job operates on.
func (e *engine) pairs(job scheduler.Job) ([]string, []string) {
	venues, symbols := job.Config.Venues, job.Config.Symbols
	if len(venues) == 0 {
		venues = e.cfg.Venues
	}
	if len(symbols) == 0 {
		symbols = e.cfg.Symbols
	}
	return venues, symbols
}

// window loads the recent snapshot history one pair's analytics consume.
func (e *engine) window(ctx context.Context, venue, symbol string) ([]*domain.Snapshot, error) {
	now := time.Now().UTC()
	tr := persistence.TimeRange{From: now.Add(-time.Hour), To: now}
	return e.repo.Snapshots.ListRange(ctx, venue, symbol, tr, 500)
}

// latestImbalance loads the most recent stored imbalance record so the
// momentum chain carries across scheduled recomputes. Nil when none exists.
func (e *engine) latestImbalance(ctx context.Context, venue, symbol string) *liquidity.ImbalanceRecord {
	now := time.Now().UTC()
	tr := persistence.TimeRange{From: now.Add(-time.Hour), To: now}
	records, err := e.repo.Metrics.ListImbalances(ctx, venue, symbol, tr, 500)
	if err != nil {
		log.Warn().Err(err).Str("venue", venue).Str("symbol", symbol).
			Msg("previous imbalance load failed")
		return nil
	}
	if len(records) == 0 {
		return nil
	}
	return records[len(records)-1]
}

// runSnapshotRefresh fetches, diffs and persists the book for every pair,
// then refreshes the per-snapshot metrics and snapshot-local detectors.
func (e *engine) runSnapshotRefresh(ctx context.Context, job scheduler.Job) error {
	venues, symbols := e.pairs(job)
	depth := job.Config.Depth
	if depth <= 0 {
		depth = e.cfg.Depth
	}

	var firstErr error
	for _, venue := range venues {
		for _, symbol := range symbols {
			start := time.Now()
			snap, _, err := e.snapshots.Refresh(ctx, venue, symbol, depth)
			e.metrics.ObserveFetch(venue, time.Since(start), err)
			if err != nil {
				log.Warn().Err(err).Str("venue", venue).Str("symbol", symbol).
					Msg("refresh failed")
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			e.metrics.SnapshotsStored.Inc()
			e.refreshMetrics(ctx, snap)
			e.scanSnapshot(ctx, snap)
		}
	}
	return firstErr
}

// refreshMetrics recomputes and stores the imbalance record and liquidity
// score for one fresh snapshot.
func (e *engine) refreshMetrics(ctx context.Context, snap *domain.Snapshot) {
	rec := e.calculator.Compute(snap, e.latestImbalance(ctx, snap.Venue, snap.Symbol))
	if err := e.repo.Metrics.InsertImbalance(ctx, rec); err != nil {
		log.Warn().Err(err).Msg("imbalance insert failed")
	}

	history, err := e.window(ctx, snap.Venue, snap.Symbol)
	if err != nil {
		log.Warn().Err(err).Msg("history load failed")
		history = nil
	}
	if err := e.repo.Metrics.InsertScore(ctx, e.scorer.Score(snap, history)); err != nil {
		log.Warn().Err(err).Msg("score insert failed")
	}
}

// scanSnapshot runs the single-snapshot detectors.
func (e *engine) scanSnapshot(ctx context.Context, snap *domain.Snapshot) {
	whales, err := e.whales.Detect(snap)
	if err != nil && !errors.Is(err, domain.ErrInsufficientData) {
		log.Warn().Err(err).Msg("whale detection failed")
	}
	for _, hit := range whales {
		e.recordDetection(ctx, "whale", snap.Venue, snap.Symbol, snap.Timestamp, hit)
	}

	for _, cluster := range e.clusters.Detect(snap) {
		e.recordDetection(ctx, "cluster", snap.Venue, snap.Symbol, snap.Timestamp, cluster)
	}
}

// runVPINRefresh recomputes the flow-quality verdict per pair and runs the
// windowed detectors.
func (e *engine) runVPINRefresh(ctx context.Context, job scheduler.Job) error {
	venues, symbols := e.pairs(job)

	var firstErr error
	for _, venue := range venues {
		for _, symbol := range symbols {
			history, err := e.window(ctx, venue, symbol)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}

			verdict, err := e.analyzer.Analyze(history)
			switch {
			case errors.Is(err, domain.ErrInsufficientData):
				log.Debug().Str("venue", venue).Str("symbol", symbol).
					Msg("not enough history for a verdict yet")
			case err != nil:
				if firstErr == nil {
					firstErr = err
				}
			default:
				log.Info().Str("venue", venue).Str("symbol", symbol).
					Float64("quality", verdict.QualityScore).
					Str("recommendation", string(verdict.Recommendation)).
					Msg("flow verdict refreshed")
			}

			e.scanWindow(ctx, venue, symbol, history)
		}
	}
	return firstErr
}

// scanWindow runs the detectors that need snapshot sequences.
func (e *engine) scanWindow(ctx context.Context, venue, symbol string, history []*domain.Snapshot) {
	now := time.Now().UTC()

	icebergs, err := e.icebergs.Detect(history)
	if err != nil && !errors.Is(err, domain.ErrInsufficientData) {
		log.Warn().Err(err).Msg("iceberg detection failed")
	}
	for _, hit := range icebergs {
		e.recordDetection(ctx, "iceberg", venue, symbol, now, hit)
	}

	spoofs, err := e.spoofers.Detect(history)
	if err != nil && !errors.Is(err, domain.ErrInsufficientData) {
		log.Warn().Err(err).Msg("spoofing detection failed")
	}
	for _, hit := range spoofs {
		e.recordDetection(ctx, "spoofing", venue, symbol, now, hit)
	}
}

// runSignalCompute regenerates the pulse signal from the latest snapshot.
func (e *engine) runSignalCompute(ctx context.Context, job scheduler.Job) error {
	venues, symbols := e.pairs(job)

	var firstErr error
	for _, venue := range venues {
		for _, symbol := range symbols {
			snap, err := e.snapshots.Latest(ctx, venue, symbol)
			if err != nil {
				if errors.Is(err, domain.ErrInsufficientData) {
					continue
				}
				if firstErr == nil {
					firstErr = err
				}
				continue
			}

			history, err := e.window(ctx, venue, symbol)
			if err != nil {
				history = nil
			}

			sig, err := e.generator.Generate(snap,
				e.calculator.Compute(snap, e.latestImbalance(ctx, venue, symbol)),
				e.scorer.Score(snap, history))
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}

			valid, reason := e.generator.Validate(sig)
			e.metrics.RecordSignal(string(sig.Direction), valid)
			if !valid {
				log.Debug().Str("venue", venue).Str("symbol", symbol).
					Str("reason", reason).Msg("signal filtered")
				continue
			}

			if err := e.repo.Signals.Insert(ctx, sig); err != nil {
				log.Warn().Err(err).Msg("signal insert failed")
				continue
			}
			if e.hot != nil {
				if err := e.hot.SetSignal(ctx, sig); err != nil {
					log.Warn().Err(err).Msg("signal cache write failed")
				}
			}
		}
	}
	return firstErr
}

// runZonesReconcile rebuilds liquidity zones and deactivates stale ones.
func (e *engine) runZonesReconcile(ctx context.Context, job scheduler.Job) error {
	venues, symbols := e.pairs(job)
	staleness := job.Config.Staleness
	if staleness <= 0 {
		staleness = 24 * time.Hour
	}

	var firstErr error
	for _, venue := range venues {
		for _, symbol := range symbols {
			history, err := e.window(ctx, venue, symbol)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}

			zones, err := e.zones.Build(history)
			if err != nil && !errors.Is(err, domain.ErrInsufficientData) {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			for _, zone := range zones {
				if err := e.repo.Zones.Upsert(ctx, zone); err != nil {
					log.Warn().Err(err).Str("zone", zone.ID).Msg("zone upsert failed")
				}
			}

			active, err := e.repo.Zones.ListActive(ctx, venue, symbol)
			if err != nil {
				continue
			}
			cutoff := time.Now().UTC().Add(-staleness)
			for _, zone := range active {
				if zone.LastSeenAt.Before(cutoff) {
					if err := e.repo.Zones.Deactivate(ctx, zone.ID); err != nil {
						log.Warn().Err(err).Str("zone", zone.ID).Msg("zone deactivate failed")
					}
				}
			}
		}
	}
	return firstErr
}

// runSnapshotsPrune drops snapshots past the retention window.
func (e *engine) runSnapshotsPrune(ctx context.Context, job scheduler.Job) error {
	retention := job.Config.Retention
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}

	pruned, err := e.repo.Snapshots.Prune(ctx, time.Now().UTC().Add(-retention))
	if err != nil {
		return err
	}
	log.Info().Int64("pruned", pruned).Dur("retention", retention).Msg("snapshots pruned")
	return nil
}

// recordDetection persists one detector hit as a JSONB payload row.
func (e *engine) recordDetection(ctx context.Context, kind, venue, symbol string, ts time.Time, hit interface{}) {
	e.metrics.Detections.WithLabelValues(kind).Inc()

	d := &persistence.Detection{
		ID:        uuid.NewString(),
		Venue:     venue,
		Symbol:    symbol,
		Timestamp: ts,
		Kind:      kind,
		Payload:   toPayload(hit),
	}
	if err := e.repo.Detections.Insert(ctx, d); err != nil {
		log.Warn().Err(err).Str("kind", kind).Msg("detection insert failed")
	}
}

// toPayload flattens a detector record into the generic JSONB shape.
func toPayload(v interface{}) map[string]interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]interface{}{"marshal_error": err.Error()}
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]interface{}{"marshal_error": err.Error()}
	}
	return out
}
