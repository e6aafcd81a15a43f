// Package snapshot is the access layer for order-book snapshots: fetching
// from venue gateways, persisting, and serving point-in-time reads.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bookpulse/engine/internal/domain"
	"github.com/bookpulse/engine/internal/gateway"
	"github.com/bookpulse/engine/internal/persistence"
)

// Cache is the optional hot layer in front of storage. Failures are logged
// and swallowed: the cache is never load-bearing.
type Cache interface {
	GetSnapshot(ctx context.Context, venue, symbol string) (*domain.Snapshot, bool)
	SetSnapshot(ctx context.Context, s *domain.Snapshot) error
}

// Service fetches, stores and serves snapshots for the venues it knows.
type Service struct {
	gateways map[string]gateway.OrderBookGateway
	repo     persistence.SnapshotRepo
	deltas   persistence.DeltaRepo
	cache    Cache

	defaultDepth int
}

// Option configures the service.
type Option func(*Service)

// WithCache attaches a hot cache.
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithDeltaRepo enables delta persistence on Refresh.
func WithDeltaRepo(r persistence.DeltaRepo) Option {
	return func(s *Service) { s.deltas = r }
}

// WithDefaultDepth overrides the default fetch depth of 50 levels.
func WithDefaultDepth(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.defaultDepth = n
		}
	}
}

// NewService builds the snapshot service over the given gateways.
func NewService(repo persistence.SnapshotRepo, gateways []gateway.OrderBookGateway, opts ...Option) *Service {
	s := &Service{
		gateways:     make(map[string]gateway.OrderBookGateway, len(gateways)),
		repo:         repo,
		defaultDepth: 50,
	}
	for _, gw := range gateways {
		s.gateways[gw.Venue()] = gw
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch pulls a fresh book from the venue and normalizes it. Nothing is
// persisted; use Refresh for the fetch-store-diff cycle.
func (s *Service) Fetch(ctx context.Context, venue, symbol string, depthLimit int) (*domain.Snapshot, error) {
	gw, ok := s.gateways[venue]
	if !ok {
		return nil, fmt.Errorf("%w: unknown venue %q", domain.ErrInvalidParameter, venue)
	}
	if depthLimit <= 0 {
		depthLimit = s.defaultDepth
	}

	raw, err := gw.FetchOrderBook(ctx, symbol, depthLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%s: %w", venue, symbol, err)
	}

	snap := domain.NewSnapshot(venue, symbol, raw.FetchedAt, raw.Bids, raw.Asks, depthLimit)
	return snap, nil
}

// Refresh fetches, diffs against the stored latest, and persists both the
// snapshot and (when a delta repo is wired) the delta. The new snapshot is
// returned along with the delta, which is nil on the first observation.
func (s *Service) Refresh(ctx context.Context, venue, symbol string, depthLimit int) (*domain.Snapshot, *domain.Delta, error) {
	snap, err := s.Fetch(ctx, venue, symbol, depthLimit)
	if err != nil {
		return nil, nil, err
	}

	var delta *domain.Delta
	prev, err := s.repo.Latest(ctx, venue, symbol)
	switch {
	case err == nil:
		delta = Diff(prev, snap)
	case errors.Is(err, domain.ErrInsufficientData):
		// First observation for this venue/symbol.
	default:
		return nil, nil, fmt.Errorf("load previous snapshot: %w", err)
	}

	if err := s.repo.Insert(ctx, snap); err != nil {
		return nil, nil, fmt.Errorf("store snapshot: %w", err)
	}

	if delta != nil && !delta.Empty() && s.deltas != nil {
		if err := s.deltas.Insert(ctx, delta); err != nil {
			return nil, nil, fmt.Errorf("store delta: %w", err)
		}
	}

	if s.cache != nil {
		if err := s.cache.SetSnapshot(ctx, snap); err != nil {
			log.Warn().Err(err).Str("venue", venue).Str("symbol", symbol).
				Msg("snapshot cache write failed")
		}
	}
	return snap, delta, nil
}

// Latest serves the most recent snapshot, preferring the cache.
func (s *Service) Latest(ctx context.Context, venue, symbol string) (*domain.Snapshot, error) {
	if s.cache != nil {
		if snap, ok := s.cache.GetSnapshot(ctx, venue, symbol); ok {
			return snap, nil
		}
	}
	return s.repo.Latest(ctx, venue, symbol)
}

// Historical returns stored snapshots within [from, to], ascending, capped
// at limit.
func (s *Service) Historical(ctx context.Context, venue, symbol string, from, to time.Time, limit int) ([]*domain.Snapshot, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: historical window ends before it starts", domain.ErrInvalidParameter)
	}
	if limit <= 0 {
		limit = 1000
	}
	return s.repo.ListRange(ctx, venue, symbol, persistence.TimeRange{From: from, To: to}, limit)
}
