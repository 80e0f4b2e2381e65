package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChuLiYu/drf-sim/internal/report"
	"github.com/ChuLiYu/drf-sim/internal/storage/eventlog"
	"github.com/ChuLiYu/drf-sim/internal/worker"
)

func (a *app) buildSweepCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a scenario once per decline filter duration",
		Long:  "Run independent copies of a scenario in a worker pool, one per --values entry, and compare tasks launched per framework",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSweep(cmd)
		},
	}

	addScenarioFlags(cmd)
	cmd.Flags().IntSlice(keyValues, []int{1, 5, 10}, "filter durations to try")
	cmd.Flags().Int(keyWorkers, 4, "number of concurrent simulations")
	cmd.Flags().Duration(keyTimeout, time.Minute, "per-simulation timeout")
	cmd.Flags().Bool(keyJSON, false, "print results as json")

	return cmd
}

func (a *app) runSweep(cmd *cobra.Command) error {
	s, err := a.loadScenario()
	if err != nil {
		return fmt.Errorf("failed to load scenario: %w", err)
	}

	values := a.v.GetIntSlice(keyValues)
	if len(values) == 0 {
		return fmt.Errorf("no filter durations given (use --values)")
	}
	for _, v := range values {
		if v < 1 {
			return fmt.Errorf("filter duration must be at least 1, got %d", v)
		}
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	tasks := worker.FilterTicksSweep(s, values, a.v.GetDuration(keyTimeout))
	slog.Info("Starting sweep", "scenario", s.Name, "runs", len(tasks), "workers", a.v.GetInt(keyWorkers))

	results, err := worker.Sweep(ctx, tasks, a.v.GetInt(keyWorkers), worker.RunScenario)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	if a.v.GetBool(keyJSON) {
		return writeJSON(cmd.OutOrStdout(), sweepRows(results))
	}
	return renderSweep(cmd.OutOrStdout(), results)
}

func (a *app) buildEventsCommand() *cobra.Command {
	var (
		names    []string
		stats    bool
		validate bool
	)

	cmd := &cobra.Command{
		Use:   "events <file>",
		Short: "Dump, summarize or validate an event log",
		Long:  "Print an event log line by line (optionally only some event names), summarize it with --stats, or check checksums and sequence continuity with --validate. Rotated .gz files are read transparently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if !eventlog.Exists(path) {
				return fmt.Errorf("event log not found: %s", path)
			}
			out := cmd.OutOrStdout()

			if validate {
				if err := eventlog.Validate(path); err != nil {
					return fmt.Errorf("event log invalid: %w", err)
				}
				fmt.Fprintf(out, "%s: ok\n", path)
				return nil
			}
			if stats {
				st, err := eventlog.GetStats(path)
				if err != nil {
					return err
				}
				if a.v.GetBool(keyJSON) {
					return writeJSON(out, st)
				}
				return renderStats(out, path, st)
			}
			return eventlog.Dump(path, out, names...)
		},
	}

	cmd.Flags().StringSliceVar(&names, "name", nil, "only print these event names")
	cmd.Flags().BoolVar(&stats, "stats", false, "print record counts per event name")
	cmd.Flags().BoolVar(&validate, "validate", false, "verify checksums and sequence numbers")
	cmd.Flags().Bool(keyJSON, false, "print --stats as json")

	return cmd
}

func (a *app) buildStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <report>",
		Short: "Show the status recorded in a saved report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := report.NewManager(args[0]).Load()
			if err != nil {
				return fmt.Errorf("failed to load report: %w", err)
			}
			if a.v.GetBool(keyJSON) {
				return writeJSON(cmd.OutOrStdout(), r)
			}
			return renderReport(cmd.OutOrStdout(), r)
		},
	}

	cmd.Flags().Bool(keyJSON, false, "print the report as json")
	return cmd
}
