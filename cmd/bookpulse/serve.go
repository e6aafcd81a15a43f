package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/bookpulse/engine/internal/interfaces/http"
	"github.com/bookpulse/engine/internal/interfaces/http/handlers"
	"github.com/bookpulse/engine/internal/scheduler"
	"github.com/bookpulse/engine/internal/stream"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the engine: scheduler, trade streams and the query API",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, cleanup, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	sched, err := scheduler.NewFromFile(cfg.JobFile, e.metrics)
	if err != nil {
		return err
	}
	e.registerJobs(sched)

	deps := handlers.Deps{
		Snapshots:  e.snapshots,
		Repo:       e.repo,
		Health:     e.manager.Health(),
		Imbalance:  e.calculator,
		Scorer:     e.scorer,
		Analyzer:   e.analyzer,
		Planner:    e.planner,
		Aggregator: e.aggregator,
		Venues:     cfg.Venues,
	}
	if e.hot != nil {
		deps.SignalCache = e.hot
	}

	server, err := httpapi.NewServer(cfg.Server, deps, e.metrics)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return sched.Start(ctx) })

	g.Go(func() error {
		if err := server.Start(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	// The trade stream covers the footprint branch; Binance is the only
	// venue with an aggregate-trade websocket wired.
	for _, symbol := range cfg.Symbols {
		ts := stream.NewTradeStream(cfg.Stream, "binance", symbol, e.repo.Trades, e.metrics)
		g.Go(func() error { return ts.Run(ctx) })
	}

	log.Info().Str("addr", server.GetAddress()).Strs("venues", cfg.Venues).
		Strs("symbols", cfg.Symbols).Msg("engine started")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("engine stopped")
	return nil
}
