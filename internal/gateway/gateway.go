// Package gateway fetches raw order books from trading venues. Each venue
// adapter implements the single-capability OrderBookGateway interface; the
// rest of the engine never sees venue-specific payloads.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/bookpulse/engine/internal/domain"
)

// RawBook is a venue payload normalized only as far as numeric ladders.
// Sorting, deduplication and derived metrics happen in the snapshot layer.
type RawBook struct {
	Venue     string
	Symbol    string
	Sequence  int64
	Bids      []domain.PriceLevel
	Asks      []domain.PriceLevel
	FetchedAt time.Time
}

// OrderBookGateway is the one capability the engine requires of a venue.
type OrderBookGateway interface {
	Venue() string
	FetchOrderBook(ctx context.Context, symbol string, depthLimit int) (*RawBook, error)
}

// ResilientGateway wraps a venue adapter with a circuit breaker and a rate
// limiter. A tripped breaker or an exhausted limiter surfaces as
// domain.ErrVenueUnreachable so aggregation can degrade instead of failing.
type ResilientGateway struct {
	inner   OrderBookGateway
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// ResilienceConfig tunes the per-venue breaker and limiter.
type ResilienceConfig struct {
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
	RequestsPerSec   float64       `yaml:"requests_per_sec"`
	Burst            int           `yaml:"burst"`
}

// DefaultResilienceConfig mirrors typical venue REST limits.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		RequestsPerSec:   10,
		Burst:            20,
	}
}

// NewResilientGateway wraps inner with breaker and limiter per cfg.
func NewResilientGateway(inner OrderBookGateway, cfg ResilienceConfig) *ResilientGateway {
	settings := gobreaker.Settings{
		Name:        inner.Venue(),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("venue", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("venue breaker state change")
		},
	}

	return &ResilientGateway{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
	}
}

// Venue reports the wrapped adapter's venue name.
func (g *ResilientGateway) Venue() string {
	return g.inner.Venue()
}

// FetchOrderBook rate-limits and breaker-guards the wrapped fetch.
func (g *ResilientGateway) FetchOrderBook(ctx context.Context, symbol string, depthLimit int) (*RawBook, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s rate limit wait: %v", domain.ErrVenueUnreachable, g.inner.Venue(), err)
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.FetchOrderBook(ctx, symbol, depthLimit)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrVenueUnreachable, g.inner.Venue(), err)
	}

	return result.(*RawBook), nil
}
