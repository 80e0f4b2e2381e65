package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChuLiYu/drf-sim/internal/controller"
	"github.com/ChuLiYu/drf-sim/internal/server"
)

func (a *app) buildServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a live simulation over gRPC",
		Long: `Build a scenario and expose it through the drfsim.v1.Inspector gRPC service.
Clients advance time with Tick and read state with Snapshot. With --interval the
server also advances one tick per interval until the scenario's tick count.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd)
		},
	}

	addScenarioFlags(cmd)
	cmd.Flags().String(keyListen, ":50051", "gRPC listen address")
	cmd.Flags().Duration(keyInterval, 0, "advance one tick per interval (0 disables)")
	cmd.Flags().String(keyEvents, "", "write the event log to this file")
	cmd.Flags().Bool(keyCompress, false, "gzip event logs rotated on SIGHUP")
	cmd.Flags().String(keyReport, "", "write the final report (json) to this file on shutdown")
	cmd.Flags().String(keyMetricsAddr, "", "serve Prometheus metrics on this address")
	cmd.Flags().Bool(keyLogEvents, false, "log every simulation event at info level")

	return cmd
}

func (a *app) runServe(cmd *cobra.Command) error {
	s, err := a.loadScenario()
	if err != nil {
		return fmt.Errorf("failed to load scenario: %w", err)
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	opts, stopMetrics := a.controllerOptions()
	defer stopMetrics()

	ctrl, err := controller.New(s, opts)
	if err != nil {
		return fmt.Errorf("failed to create controller: %w", err)
	}
	defer ctrl.Close()

	addr := a.v.GetString(keyListen)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if every := a.v.GetDuration(keyInterval); every > 0 {
		go autoTick(ctx, ctrl, every)
	}
	if a.v.GetString(keyEvents) != "" {
		go rotateOnHangup(ctx, ctrl)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Serving scenario %s on %s (run %s)\n", s.Name, lis.Addr(), ctrl.RunID())
	if err := server.Serve(ctx, lis, ctrl); err != nil {
		return err
	}

	slog.Info("Shutting down", "now", ctrl.Now())
	if _, err := ctrl.WriteReport(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// autoTick 每個 interval 推進一個 tick，直到情境的 tick 數或 ctx 結束
func autoTick(ctx context.Context, ctrl *controller.Controller, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	limit := int64(ctrl.Scenario().Ticks)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctrl.Now() >= limit {
				slog.Info("Scenario tick count reached", "now", ctrl.Now())
				return
			}
			if err := ctrl.Tick(ctx, 1); err != nil {
				if !interrupted(err) {
					slog.Error("Auto tick failed", "error", err)
				}
				return
			}
		}
	}
}

// rotateOnHangup 每次收到 SIGHUP 旋轉事件日誌
func rotateOnHangup(ctx context.Context, ctrl *controller.Controller) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			rotated, err := ctrl.RotateEventLog()
			if err != nil {
				slog.Error("Event log rotation failed", "error", err)
				continue
			}
			slog.Info("Event log rotated", "rotated", rotated)
		}
	}
}

func (a *app) buildInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Query a served simulation",
		Long:  "Connect to a drfsim serve instance, optionally advance it by --tick ticks, and print its current report (or its scenario with --scenario-only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInspect(cmd)
		},
	}

	cmd.Flags().String(keyAddr, "localhost:50051", "inspector address")
	cmd.Flags().Int(keyTick, 0, "advance the simulation by this many ticks first")
	cmd.Flags().Bool(keyScenarioOnly, false, "print the served scenario instead of the report")
	cmd.Flags().Duration(keyTimeout, 10*time.Second, "request timeout")
	cmd.Flags().Bool(keyJSON, false, "print as json")

	return cmd
}

func (a *app) runInspect(cmd *cobra.Command) error {
	addr := a.v.GetString(keyAddr)
	client, conn, err := server.Dial(addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), a.v.GetDuration(keyTimeout))
	defer cancel()

	out := cmd.OutOrStdout()

	if a.v.GetBool(keyScenarioOnly) {
		s, err := client.Scenario(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch scenario: %w", err)
		}
		return writeJSON(out, s)
	}

	if n := a.v.GetInt(keyTick); n > 0 {
		now, err := client.Tick(ctx, n)
		if err != nil {
			return fmt.Errorf("failed to tick: %w", err)
		}
		slog.Info("Advanced simulation", "ticks", n, "now", now)
	}

	r, err := client.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	if a.v.GetBool(keyJSON) {
		return writeJSON(out, r)
	}
	return renderReport(out, r)
}
