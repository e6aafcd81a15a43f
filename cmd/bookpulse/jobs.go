package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bookpulse/engine/internal/scheduler"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and run the configured recompute jobs",
	}
	cmd.AddCommand(newJobsListCmd(), newJobsRunCmd())
	return cmd
}

func newJobsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the jobs defined in the job file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			jobCfg, err := scheduler.LoadConfig(cfg.JobFile)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTYPE\tEVERY\tENABLED\tDESCRIPTION")
			for _, job := range jobCfg.Jobs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
					job.Name, job.Type, job.Every, job.Enabled, job.Description)
			}
			return w.Flush()
		},
	}
}

func newJobsRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <name>",
		Short: "Run a single job once and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			e, cleanup, err := buildEngine(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			sched, err := scheduler.NewFromFile(cfg.JobFile, e.metrics)
			if err != nil {
				return err
			}
			e.registerJobs(sched)

			result, err := sched.RunJob(cmd.Context(), args[0], dryRun)
			if err != nil {
				return err
			}
			fmt.Printf("job %s finished in %s (success=%t)\n",
				result.JobName, result.Duration, result.Success)
			return nil
		},
	}
	cmd.Flags().Bool("dry-run", false, "Resolve the job without executing its runner")
	return cmd
}
