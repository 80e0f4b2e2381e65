// ============================================================================
// drfsim CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra commands for running, sweeping, serving and inspecting
// DRF allocation simulations
//
// Command Structure:
//   drfsim                         # Root command
//   ├── run                        # Run one scenario to completion
//   ├── sweep                      # Run a scenario once per filter duration
//   ├── serve                      # Expose a live simulation over gRPC
//   ├── inspect                    # Query (and advance) a served simulation
//   ├── events <file>              # Dump / summarize / validate an event log
//   ├── status <report>            # Render a saved report
//   ├── scenario [name]            # List or print built-in scenarios
//   ├── --config                   # Settings file (yaml/toml/json)
//   └── --log-level                # debug, info, warn, error
//
// Settings:
//   Every flag can also be set through the settings file or a DRFSIM_*
//   environment variable (dashes become underscores, e.g.
//   DRFSIM_FILTER_TICKS=10). Precedence: flag > env > file > default.
//
// Scenario selection:
//   --file/-f loads a scenario from yaml or toml; otherwise --scenario/-s
//   picks a built-in (drf-share, filter-starvation, short-lived).
//   --ticks and --filter-ticks override the scenario when > 0.
//
// Examples:
//   ./drfsim run -s drf-share
//   ./drfsim run -f scenarios/custom.yaml --events run.log --report run.json
//   ./drfsim sweep -s filter-starvation --values 1,5,10 --workers 4
//   ./drfsim serve -s short-lived --listen :50051 --metrics-addr :9090
//   ./drfsim inspect --addr localhost:50051 --tick 5
//   ./drfsim events run.log --name resource_offer,decline_offer
//
// Signal Handling:
//   run, sweep and serve stop on SIGINT / SIGTERM; run and serve still
//   write the report for the ticks already simulated.
//   serve rotates its event log on SIGHUP (gzip with --compress-rotated).
//
// ============================================================================

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ChuLiYu/drf-sim/internal/config"
)

// Version 版本號
const Version = "1.0.0"

const envPrefix = "DRFSIM"

// Setting keys (identical to flag names)
const (
	keyConfig      = "config"
	keyLogLevel    = "log-level"
	keyScenario    = "scenario"
	keyFile        = "file"
	keyTicks       = "ticks"
	keyFilterTicks = "filter-ticks"
	keyEvents      = "events"
	keyReport      = "report"
	keyMetricsAddr = "metrics-addr"
	keyTraceFile   = "trace-file"
	keyLogEvents   = "log-events"
	keyJSON        = "json"
	keyValues      = "values"
	keyWorkers     = "workers"
	keyTimeout     = "timeout"
	keyListen      = "listen"
	keyAddr        = "addr"
	keyTick        = "tick"
	keyInterval    = "interval"
	keyCompress    = "compress-rotated"

	keyScenarioOnly = "scenario-only"
)

// app 每個 BuildCLI 呼叫擁有獨立的設定
type app struct {
	v *viper.Viper
}

// BuildCLI 建立 root 命令與所有子命令
func BuildCLI() *cobra.Command {
	a := &app{v: viper.New()}
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:   "drfsim",
		Short: "drfsim: a discrete-event simulator of DRF cluster allocation",
		Long: `drfsim simulates a cluster allocator that offers agent resources to
frameworks in Dominant Resource Fairness order:
- per-agent dominant share bookkeeping
- offer / launch / decline with refusal filters
- task durations and completion status updates
- event logs, reports, Prometheus metrics and a gRPC inspector`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	rootCmd.PersistentFlags().StringP(keyConfig, "c", "", "settings file (yaml, toml or json)")
	rootCmd.PersistentFlags().String(keyLogLevel, "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(a.buildRunCommand())
	rootCmd.AddCommand(a.buildSweepCommand())
	rootCmd.AddCommand(a.buildServeCommand())
	rootCmd.AddCommand(a.buildInspectCommand())
	rootCmd.AddCommand(a.buildEventsCommand())
	rootCmd.AddCommand(a.buildStatusCommand())
	rootCmd.AddCommand(a.buildScenarioCommand())

	return rootCmd
}

// Execute 執行 CLI，回傳 process exit code
func Execute() int {
	rootCmd := BuildCLI()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// setup 綁定旗標、讀取設定檔、設定日誌等級
func (a *app) setup(cmd *cobra.Command) error {
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	if path := a.v.GetString(keyConfig); path != "" {
		a.v.SetConfigFile(path)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(a.v.GetString(keyLogLevel))); err != nil {
		return fmt.Errorf("invalid log level %q: %w", a.v.GetString(keyLogLevel), err)
	}
	slog.SetLogLoggerLevel(level)
	return nil
}

// addScenarioFlags 選擇與覆寫情境的共用旗標
func addScenarioFlags(cmd *cobra.Command) {
	cmd.Flags().StringP(keyScenario, "s", "drf-share", "built-in scenario name")
	cmd.Flags().StringP(keyFile, "f", "", "scenario file (yaml or toml); overrides --scenario")
	cmd.Flags().Int(keyTicks, 0, "override the scenario tick count (0 keeps it)")
	cmd.Flags().Int(keyFilterTicks, 0, "override the decline filter duration (0 keeps it)")
}

// loadScenario 依設定載入情境並套用覆寫
func (a *app) loadScenario() (*config.Scenario, error) {
	var (
		s   *config.Scenario
		err error
	)
	if path := a.v.GetString(keyFile); path != "" {
		s, err = config.Load(path)
	} else {
		s, err = config.Builtin(a.v.GetString(keyScenario))
	}
	if err != nil {
		return nil, err
	}

	if n := a.v.GetInt(keyTicks); n > 0 {
		s.Ticks = n
	}
	if n := a.v.GetInt(keyFilterTicks); n > 0 {
		s.FilterTicks = n
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// signalContext 收到 SIGINT / SIGTERM 時取消
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// interrupted 判斷錯誤是否僅為取消
func interrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}
