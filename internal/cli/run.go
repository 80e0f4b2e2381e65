package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ChuLiYu/drf-sim/internal/config"
	"github.com/ChuLiYu/drf-sim/internal/controller"
	"github.com/ChuLiYu/drf-sim/internal/metrics"
	"github.com/ChuLiYu/drf-sim/internal/storage/eventlog"
	"github.com/ChuLiYu/drf-sim/internal/tracing"
)

func (a *app) buildRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario to completion and print the result",
		Long:  "Run a built-in or file scenario for its configured ticks, then print agent usage, dominant shares and framework counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSimulation(cmd)
		},
	}

	addScenarioFlags(cmd)
	cmd.Flags().String(keyEvents, "", "write the event log to this file")
	cmd.Flags().String(keyReport, "", "write the final report (json) to this file")
	cmd.Flags().String(keyMetricsAddr, "", "serve Prometheus metrics on this address while running")
	cmd.Flags().String(keyTraceFile, "", "write tick spans to this file (\"-\" for stdout)")
	cmd.Flags().Bool(keyLogEvents, false, "log every simulation event at info level")
	cmd.Flags().Bool(keyJSON, false, "print the report as json")

	return cmd
}

func (a *app) runSimulation(cmd *cobra.Command) error {
	s, err := a.loadScenario()
	if err != nil {
		return fmt.Errorf("failed to load scenario: %w", err)
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	shutdownTracing, err := a.startTracing()
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	opts, stopMetrics := a.controllerOptions()
	defer stopMetrics()

	ctrl, err := controller.New(s, opts)
	if err != nil {
		return fmt.Errorf("failed to create controller: %w", err)
	}
	defer ctrl.Close()

	slog.Info("Running scenario", "scenario", s.Name, "ticks", s.Ticks, "filter_ticks", s.FilterTicks, "run_id", ctrl.RunID())
	r, err := ctrl.Run(ctx)
	if err != nil {
		if !interrupted(err) {
			return fmt.Errorf("simulation failed: %w", err)
		}
		slog.Warn("Interrupted, writing partial report", "now", ctrl.Now())
		if r, err = ctrl.WriteReport(); err != nil {
			return err
		}
	}

	if a.v.GetBool(keyJSON) {
		return writeJSON(cmd.OutOrStdout(), r)
	}
	return renderReport(cmd.OutOrStdout(), r)
}

// controllerOptions 依設定組出 controller.Options；metrics 伺服器在此啟動
func (a *app) controllerOptions() (controller.Options, func()) {
	opts := controller.Options{
		EventLogPath:    a.v.GetString(keyEvents),
		EventLogOptions: eventlog.DefaultOptions(),
		ReportPath:      a.v.GetString(keyReport),
	}
	opts.EventLogOptions.CompressRotated = a.v.GetBool(keyCompress)
	if a.v.GetBool(keyLogEvents) {
		opts.EventLogger = slog.Default()
		opts.EventLogLevel = slog.LevelInfo
	}

	addr := a.v.GetString(keyMetricsAddr)
	if addr == "" {
		return opts, func() {}
	}

	reg := prometheus.NewRegistry()
	opts.Registerer = reg
	srv := metrics.NewServer(addr, reg)
	go func() {
		slog.Info("Starting metrics server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server error", "error", err)
		}
	}()
	return opts, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

// startTracing 設定 trace-file 時安裝 stdout exporter
func (a *app) startTracing() (tracing.ShutdownFunc, error) {
	path := a.v.GetString(keyTraceFile)
	if path == "" {
		return func(context.Context) error { return nil }, nil
	}
	if path == "-" {
		path = ""
	}
	shutdown, err := tracing.Init("drfsim", Version, path)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	return shutdown, nil
}

func (a *app) buildScenarioCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "scenario [name]",
		Short: "List built-in scenarios or print one",
		Long:  "Without arguments, list built-in scenario names. With a name, print that scenario in a format config.Load accepts, ready to copy and edit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, name := range config.BuiltinNames() {
					fmt.Fprintln(out, name)
				}
				return nil
			}
			s, err := config.Builtin(args[0])
			if err != nil {
				return err
			}
			return config.Encode(out, s, format)
		},
	}

	cmd.Flags().StringVar(&format, "format", config.FormatYAML, "output format: yaml or toml")
	return cmd
}
