package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/drf-sim/internal/config"
	"github.com/ChuLiYu/drf-sim/internal/controller"
	"github.com/ChuLiYu/drf-sim/internal/report"
	"github.com/ChuLiYu/drf-sim/internal/server"
	"github.com/ChuLiYu/drf-sim/pkg/types"
)

// executeCLI runs the CLI with args and returns everything written to stdout
func executeCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { slog.SetLogLoggerLevel(slog.LevelInfo) })

	cmd := BuildCLI()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func decodeReport(t *testing.T, out string) *report.Report {
	t.Helper()
	var r report.Report
	require.NoError(t, json.Unmarshal([]byte(out), &r), "output should be a json report: %s", out)
	return &r
}

func launched(t *testing.T, r *report.Report, name types.FrameworkID) int {
	t.Helper()
	f, ok := r.Framework(name)
	require.True(t, ok, "framework %s missing from report", name)
	return f.Stats.Launched
}

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "drfsim", cmd.Use, "Root command should be 'drfsim'")
	assert.Equal(t, "1.0.0", cmd.Version, "Version should be 1.0.0")

	// 檢查子命令
	commands := cmd.Commands()
	assert.Len(t, commands, 7, "Should have 7 subcommands")

	commandNames := make(map[string]bool)
	for _, c := range commands {
		commandNames[c.Name()] = true
	}
	for _, name := range []string{"run", "sweep", "serve", "inspect", "events", "status", "scenario"} {
		assert.True(t, commandNames[name], "Should have '%s' command", name)
	}

	// 檢查持久化標誌
	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag, "Should have --config flag")
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "", configFlag.DefValue, "Settings file should be optional")

	levelFlag := cmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, levelFlag, "Should have --log-level flag")
	assert.Equal(t, "info", levelFlag.DefValue)
}

func TestBuildRunCommand(t *testing.T) {
	a := &app{}
	cmd := a.buildRunCommand()

	assert.Equal(t, "run", cmd.Use, "Command should be 'run'")
	assert.NotNil(t, cmd.RunE, "RunE function should be set")

	fileFlag := cmd.Flags().Lookup("file")
	require.NotNil(t, fileFlag, "Should have --file flag")
	assert.Equal(t, "f", fileFlag.Shorthand, "Should have -f shorthand")

	scenarioFlag := cmd.Flags().Lookup("scenario")
	require.NotNil(t, scenarioFlag, "Should have --scenario flag")
	assert.Equal(t, "drf-share", scenarioFlag.DefValue)

	for _, name := range []string{"ticks", "filter-ticks", "events", "report", "metrics-addr", "trace-file", "json"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "Should have --%s flag", name)
	}
}

func TestScenarioList(t *testing.T) {
	out, err := executeCLI(t, "scenario")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, config.BuiltinNames(), lines)
}

func TestScenarioPrint(t *testing.T) {
	for _, format := range []string{config.FormatYAML, config.FormatTOML} {
		t.Run(format, func(t *testing.T) {
			out, err := executeCLI(t, "scenario", "short-lived", "--format", format)
			require.NoError(t, err)

			s, err := config.Decode(strings.NewReader(out), format)
			require.NoError(t, err)
			want, err := config.Builtin("short-lived")
			require.NoError(t, err)
			assert.Equal(t, want, s)
		})
	}
}

func TestScenarioUnknown(t *testing.T) {
	_, err := executeCLI(t, "scenario", "nope")
	assert.Error(t, err)
}

func TestRunJSON(t *testing.T) {
	out, err := executeCLI(t, "run", "-s", "drf-share", "--json")
	require.NoError(t, err)

	r := decodeReport(t, out)
	assert.Equal(t, "drf-share", r.Scenario)
	assert.Equal(t, int64(10), r.Ticks)
	assert.Equal(t, 2, launched(t, r, "A"))
	assert.Equal(t, 3, launched(t, r, "B"))
	assert.InDelta(t, 2.0/3, r.Share("default", "A"), 1e-9)
}

func TestRunTable(t *testing.T) {
	out, err := executeCLI(t, "run", "-s", "drf-share")
	require.NoError(t, err)

	assert.Contains(t, out, "Scenario: drf-share")
	assert.Contains(t, out, "AGENT")
	assert.Contains(t, out, "FRAMEWORK")
	assert.Contains(t, out, "0.6667")
}

func TestRunTicksOverride(t *testing.T) {
	out, err := executeCLI(t, "run", "-s", "drf-share", "--ticks", "3", "--json")
	require.NoError(t, err)
	assert.Equal(t, int64(3), decodeReport(t, out).Ticks)
}

func TestRunFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.yaml")
	content := `
name: tiny
ticks: 2
agents:
  - name: only
    resources: [2, 2]
frameworks:
  - name: solo
    policy: launcher
    task: [1, 1]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	out, err := executeCLI(t, "run", "-f", path, "--json")
	require.NoError(t, err)

	r := decodeReport(t, out)
	assert.Equal(t, "tiny", r.Scenario)
	assert.Equal(t, 2, launched(t, r, "solo"))
}

func TestRunUnknownScenario(t *testing.T) {
	_, err := executeCLI(t, "run", "-s", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load scenario")
}

func TestInvalidLogLevel(t *testing.T) {
	cmd := BuildCLI()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--log-level", "loud", "scenario"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestFilterTicksFromEnv(t *testing.T) {
	out, err := executeCLI(t, "run", "-s", "filter-starvation", "--json")
	require.NoError(t, err)
	assert.Equal(t, 0, launched(t, decodeReport(t, out), "F"), "F starves with the default filter")

	t.Setenv("DRFSIM_FILTER_TICKS", "10")
	out, err = executeCLI(t, "run", "-s", "filter-starvation", "--json")
	require.NoError(t, err)
	assert.Equal(t, 5, launched(t, decodeReport(t, out), "F"))
}

func TestSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drfsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scenario: filter-starvation\nfilter-ticks: 10\n"), 0644))

	out, err := executeCLI(t, "--config", path, "run", "--json")
	require.NoError(t, err)

	r := decodeReport(t, out)
	assert.Equal(t, "filter-starvation", r.Scenario)
	assert.Equal(t, 5, launched(t, r, "F"))
}

func TestSettingsFileMissing(t *testing.T) {
	_, err := executeCLI(t, "--config", "/nonexistent/drfsim.yaml", "scenario")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestRunArtifacts(t *testing.T) {
	dir := t.TempDir()
	events := filepath.Join(dir, "events.jsonl")
	reportPath := filepath.Join(dir, "report.json")

	_, err := executeCLI(t, "run", "-s", "short-lived", "--events", events, "--report", reportPath)
	require.NoError(t, err)

	out, err := executeCLI(t, "events", events, "--validate")
	require.NoError(t, err)
	assert.Contains(t, out, "ok")

	out, err = executeCLI(t, "events", events, "--stats", "--json")
	require.NoError(t, err)
	var stats struct {
		TotalRecords int            `json:"total_records"`
		Names        map[string]int `json:"names"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 15, stats.Names["tick"])
	assert.Positive(t, stats.Names["status_update"])

	out, err = executeCLI(t, "events", events, "--stats")
	require.NoError(t, err)
	assert.Contains(t, out, "EVENT")
	assert.Contains(t, out, "launch_task")

	out, err = executeCLI(t, "events", events, "--name", "add_agent")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "add_agent")

	out, err = executeCLI(t, "status", reportPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Scenario: short-lived")

	out, err = executeCLI(t, "status", reportPath, "--json")
	require.NoError(t, err)
	assert.Equal(t, int64(15), decodeReport(t, out).Ticks)
}

func TestEventsMissingFile(t *testing.T) {
	_, err := executeCLI(t, "events", filepath.Join(t.TempDir(), "missing.jsonl"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestStatusMissingReport(t *testing.T) {
	_, err := executeCLI(t, "status", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, report.ErrReportNotFound)
}

func TestSweep(t *testing.T) {
	out, err := executeCLI(t, "sweep", "-s", "filter-starvation", "--values", "5,10", "--workers", "2", "--json")
	require.NoError(t, err)

	var rows []sweepRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)

	assert.Equal(t, "filter-starvation/filter_ticks=5", rows[0].Task)
	assert.Equal(t, "filter-starvation/filter_ticks=10", rows[1].Task)
	require.NotNil(t, rows[0].Report)
	require.NotNil(t, rows[1].Report)
	assert.Equal(t, 0, launched(t, rows[0].Report, "F"))
	assert.Equal(t, 5, launched(t, rows[1].Report, "F"))
}

func TestSweepTable(t *testing.T) {
	out, err := executeCLI(t, "sweep", "-s", "drf-share", "--values", "1,2")
	require.NoError(t, err)
	assert.Contains(t, out, "TASK")
	assert.Contains(t, out, "drf-share/filter_ticks=1")
	assert.Contains(t, out, "drf-share/filter_ticks=2")
}

func TestSweepRejectsBadValues(t *testing.T) {
	_, err := executeCLI(t, "sweep", "--values", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 1")
}

func TestInspect(t *testing.T) {
	s, err := config.Builtin("drf-share")
	require.NoError(t, err)
	ctrl, err := controller.New(s, controller.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { ctrl.Close() })

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, lis, ctrl) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	addr := lis.Addr().String()

	out, err := executeCLI(t, "inspect", "--addr", addr, "--tick", "3", "--json")
	require.NoError(t, err)
	assert.Equal(t, int64(3), decodeReport(t, out).Ticks)
	assert.Equal(t, int64(3), ctrl.Now())

	out, err = executeCLI(t, "inspect", "--addr", addr)
	require.NoError(t, err)
	assert.Contains(t, out, "Scenario: drf-share")

	out, err = executeCLI(t, "inspect", "--addr", addr, "--scenario-only")
	require.NoError(t, err)
	var got config.Scenario
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "drf-share", got.Name)
}
