package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ChuLiYu/drf-sim/internal/config"
	"github.com/ChuLiYu/drf-sim/internal/controller"
	"github.com/ChuLiYu/drf-sim/internal/storage/eventlog"
	"github.com/ChuLiYu/drf-sim/internal/worker"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run cmd/demo/main.go <share|starvation|lifecycle|all>")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch mode := os.Args[1]; mode {
	case "share":
		err = demoShare(ctx)
	case "starvation":
		err = demoStarvation(ctx)
	case "lifecycle":
		err = demoLifecycle(ctx)
	case "all":
		err = demoAll(ctx)
	default:
		err = fmt.Errorf("unknown mode %q", mode)
	}
	if err != nil {
		log.Fatalf("Demo failed: %v", err)
	}
}

// demoShare 逐 tick 顯示兩個框架的主導佔比如何收斂
func demoShare(ctx context.Context) error {
	ctrl, err := newController("drf-share", controller.Options{})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	fmt.Printf("✓ Scenario drf-share: agent [9, 18], A asks [3, 1], B asks [1, 4]\n\n")
	for ctrl.Now() < int64(ctrl.Scenario().Ticks) {
		if err := ctrl.Tick(ctx, 1); err != nil {
			return err
		}
		r := ctrl.Report()
		fmt.Printf("📊 tick %2d  share A=%.3f  B=%.3f\n",
			ctrl.Now()-1, r.Share("default", "A"), r.Share("default", "B"))
	}

	r := ctrl.Report()
	a, _ := r.Framework("A")
	b, _ := r.Framework("B")
	fmt.Printf("\n✓ A launched %d tasks, B launched %d tasks\n", a.Stats.Launched, b.Stats.Launched)
	fmt.Printf("💡 Both converge to a dominant share of 2/3\n")
	return nil
}

// demoStarvation 比較不同拒絕過濾時長下 F 能啟動的任務數
func demoStarvation(ctx context.Context) error {
	s, err := config.Builtin("filter-starvation")
	if err != nil {
		return err
	}

	fmt.Printf("✓ Scenario filter-starvation: five decliners ahead of F\n\n")
	results, err := worker.Sweep(ctx, worker.FilterTicksSweep(s, []int{1, 5, 6, 10}, 0), 4, worker.RunScenario)
	if err != nil {
		return err
	}

	for _, res := range results {
		if !res.Success() {
			fmt.Printf("⚠️  %s failed: %v\n", res.TaskID, res.Error)
			continue
		}
		f, _ := res.Report.Framework("F")
		fmt.Printf("📊 %-36s F launched %d\n", res.TaskID, f.Stats.Launched)
	}
	fmt.Printf("\n💡 F only gets an offer once the decliners' filters outlast one full rotation\n")
	return nil
}

// demoLifecycle 執行短期任務情境並顯示事件日誌中的任務生命週期
func demoLifecycle(ctx context.Context) error {
	dir, err := os.MkdirTemp("", "drfsim-demo-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	events := filepath.Join(dir, "events.jsonl")
	ctrl, err := newController("short-lived", controller.Options{
		EventLogPath:    events,
		EventLogOptions: eventlog.DefaultOptions(),
	})
	if err != nil {
		return err
	}

	r, err := ctrl.Run(ctx)
	if err != nil {
		ctrl.Close()
		return err
	}
	if err := ctrl.Close(); err != nil {
		return err
	}

	fmt.Printf("✓ Scenario short-lived finished after %d ticks (%d tasks in flight)\n\n", r.Ticks, r.InFlight)
	if err := eventlog.Dump(events, os.Stdout, "launch_task", "status_update"); err != nil {
		return err
	}

	stats, err := eventlog.GetStats(events)
	if err != nil {
		return err
	}
	fmt.Printf("\n📊 %d events, %d launches, %d status updates\n",
		stats.TotalRecords, stats.Names["launch_task"], stats.Names["status_update"])
	return nil
}

// demoAll 在 worker pool 中並行執行所有內建情境
func demoAll(ctx context.Context) error {
	var scenarios []*config.Scenario
	for _, name := range config.BuiltinNames() {
		s, err := config.Builtin(name)
		if err != nil {
			return err
		}
		scenarios = append(scenarios, s)
	}

	results, err := worker.Sweep(ctx, worker.ScenarioTasks(scenarios, 0), len(scenarios), worker.RunScenario)
	if err != nil {
		return err
	}
	for _, res := range results {
		if !res.Success() {
			fmt.Printf("⚠️  %s failed: %v\n", res.TaskID, res.Error)
			continue
		}
		fmt.Printf("\n📊 %s (%s)\n", res.TaskID, res.Duration)
		for _, f := range res.Report.Frameworks {
			fmt.Printf("  %-4s %-9s launched=%-3d declined=%-3d finished=%d\n",
				f.Name, f.Policy, f.Stats.Launched, f.Stats.Declined, f.Stats.Finished)
		}
	}
	return nil
}

func newController(name string, opts controller.Options) (*controller.Controller, error) {
	s, err := config.Builtin(name)
	if err != nil {
		return nil, err
	}
	return controller.New(s, opts)
}
