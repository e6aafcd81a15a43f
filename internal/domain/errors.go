package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the engine. Callers match with errors.Is; the
// engine never retries internally, retry policy belongs to the caller.
var (
	// ErrInsufficientData means fewer snapshots or trades were available
	// than an algorithm's minimum sample size.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInsufficientLiquidity means the book could not fill a requested
	// size. The wrapping LiquidityError carries the partial fill achieved.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// ErrVenueUnreachable means one venue failed during a multi-venue
	// operation. Aggregation degrades and continues without the venue.
	ErrVenueUnreachable = errors.New("venue unreachable")

	// ErrInvalidParameter means a malformed timeframe or threshold was
	// rejected before any computation ran.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// LiquidityError reports a partial fill against an order book walk.
type LiquidityError struct {
	Requested float64
	Filled    float64
}

func (e *LiquidityError) Error() string {
	return fmt.Sprintf("insufficient liquidity: filled %.8g of %.8g requested", e.Filled, e.Requested)
}

func (e *LiquidityError) Unwrap() error {
	return ErrInsufficientLiquidity
}

// SampleSizeError reports an algorithm that could not reach its minimum
// sample.
type SampleSizeError struct {
	Op   string
	Need int
	Got  int
}

func (e *SampleSizeError) Error() string {
	return fmt.Sprintf("%s: need at least %d samples, got %d", e.Op, e.Need, e.Got)
}

func (e *SampleSizeError) Unwrap() error {
	return ErrInsufficientData
}
