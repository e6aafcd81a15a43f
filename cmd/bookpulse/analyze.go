package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bookpulse/engine/internal/aggregate"
	"github.com/bookpulse/engine/internal/domain"
	"github.com/bookpulse/engine/internal/impact"
	"github.com/bookpulse/engine/internal/liquidity"
	"github.com/bookpulse/engine/internal/snapshot"
)

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <venue> <symbol>",
		Short: "One-shot microstructure analysis of a live order book",
		Long:  "Fetches the current book from one venue and prints imbalance,\nliquidity score and (optionally) a price-impact estimate as JSON.",
		Args:  cobra.ExactArgs(2),
		RunE:  runAnalyze,
	}
	cmd.Flags().Int("depth", 50, "Ladder depth to request")
	cmd.Flags().String("side", "", "Order side for the impact estimate (buy|sell)")
	cmd.Flags().Float64("size", 0, "Order size for the impact estimate, in base units")
	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(cmd); err != nil {
		return err
	}
	venue, symbol := args[0], args[1]
	depth, _ := cmd.Flags().GetInt("depth")

	gateways := buildGateways([]string{venue})
	if len(gateways) == 0 {
		return fmt.Errorf("%w: unsupported venue %q", domain.ErrInvalidParameter, venue)
	}

	svc := snapshot.NewService(nil, gateways, snapshot.WithDefaultDepth(depth))
	snap, err := svc.Fetch(cmd.Context(), venue, symbol, depth)
	if err != nil {
		return err
	}

	out := map[string]interface{}{
		"snapshot":  snap,
		"imbalance": liquidity.NewCalculator().Compute(snap, nil),
		"liquidity": liquidity.NewScorer(liquidity.DefaultScorerConfig()).Score(snap, nil),
	}

	side, _ := cmd.Flags().GetString("side")
	size, _ := cmd.Flags().GetFloat64("size")
	if side != "" && size > 0 {
		orderSide := domain.Buy
		if side == "sell" {
			orderSide = domain.Sell
		} else if side != "buy" {
			return fmt.Errorf("%w: side must be buy or sell", domain.ErrInvalidParameter)
		}

		planner := impact.NewPlanner(impact.DefaultConfig())
		est, err := planner.Estimate(snap, orderSide, size)
		if err != nil {
			return err
		}
		plan, err := planner.Plan(snap, orderSide, size)
		if err != nil {
			return err
		}
		out["impact"] = est
		out["plan"] = plan
	}

	return printJSON(out)
}

func newAggregateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate <symbol>",
		Short: "One-shot multi-venue aggregation with quality and arbitrage",
		Args:  cobra.ExactArgs(1),
		RunE:  runAggregate,
	}
	cmd.Flags().Int("depth", 50, "Ladder depth to request per venue")
	cmd.Flags().String("side", "", "Order side for the routing plan (buy|sell)")
	cmd.Flags().Float64("size", 0, "Order size for the routing plan, in base units")
	return cmd
}

func runAggregate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	symbol := args[0]
	depth, _ := cmd.Flags().GetInt("depth")

	agg := aggregate.NewAggregator(aggregate.DefaultConfig(), buildGateways(cfg.Venues)...)
	book, err := agg.Fetch(cmd.Context(), symbol, depth)
	if err != nil {
		return err
	}

	out := map[string]interface{}{
		"book":         book,
		"quality":      aggregate.ScoreVenues(book, aggregate.DefaultQualityScoreConfig()),
		"distribution": aggregate.Distribution(book),
		"arbitrage":    agg.FindArbitrage(book),
	}

	side, _ := cmd.Flags().GetString("side")
	size, _ := cmd.Flags().GetFloat64("size")
	if side != "" && size > 0 {
		orderSide := domain.Buy
		if side == "sell" {
			orderSide = domain.Sell
		} else if side != "buy" {
			return fmt.Errorf("%w: side must be buy or sell", domain.ErrInvalidParameter)
		}
		route, err := agg.Route(book, orderSide, size)
		if err != nil {
			return err
		}
		out["route"] = route
	}

	return printJSON(out)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
