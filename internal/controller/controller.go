// ============================================================================
// DRF Simulator 控制器 - 系統組裝與執行
// ============================================================================
//
// Package: internal/controller
// 文件: controller.go
// 功能: 由情境檔組裝整個模擬，驅動 tick 並輸出報告
//
// 架構設計:
//   Controller 是唯一知道所有元件的地方：
//   - EventBus: 以 simulator 的邏輯時鐘為時間戳，分送事件給各 Sink
//   - Allocator / Agents: DRF 分配核心
//   - Frameworks: 依情境的 policy 建立 Launcher / Decliner / Backlog
//   - Sinks: 事件日誌（eventlog）、Prometheus 指標、slog、自訂 Sink
//   - Report: 模擬結束時寫出最終狀態
//
// 錯誤處理:
//   - simulator.Tick 回傳的錯誤代表狀態不一致，直接中止
//   - 框架的 Offer 回呼沒有回傳值，每個 tick 後檢查 Err()
//
// 並發安全:
//   - 所有公開方法以 mu 序列化；gRPC 與 CLI 可以同時呼叫
//
// ============================================================================

package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ChuLiYu/drf-sim/internal/allocator"
	"github.com/ChuLiYu/drf-sim/internal/config"
	"github.com/ChuLiYu/drf-sim/internal/eventbus"
	"github.com/ChuLiYu/drf-sim/internal/framework"
	"github.com/ChuLiYu/drf-sim/internal/metrics"
	"github.com/ChuLiYu/drf-sim/internal/report"
	"github.com/ChuLiYu/drf-sim/internal/resource"
	"github.com/ChuLiYu/drf-sim/internal/simulator"
	"github.com/ChuLiYu/drf-sim/internal/storage/eventlog"
	"github.com/ChuLiYu/drf-sim/pkg/types"
)

var log = slog.Default()

var (
	// ErrClosed Close 之後呼叫 Tick / Run
	ErrClosed = errors.New("controller: closed")
	// ErrNoEventLog 未設定 EventLogPath 時呼叫 RotateEventLog
	ErrNoEventLog = errors.New("controller: no event log configured")
)

// ============================================================================
// 資料結構定義
// ============================================================================

// Options Controller 配置
type Options struct {
	EventLogPath    string                // 事件日誌路徑；空字串表示不寫
	EventLogOptions eventlog.Options      // 事件日誌緩衝設定
	ReportPath      string                // 報告路徑；空字串表示不寫
	Registerer      prometheus.Registerer // 指標註冊處；nil 表示不收集
	EventLogger     *slog.Logger          // 以 slog 輸出每個事件；nil 表示不輸出
	EventLogLevel   slog.Level            // EventLogger 使用的等級
	Sinks           []eventbus.Sink       // 其他 Sink，依序附加
}

// Framework 情境中建立的框架，提供計數與錯誤
type Framework interface {
	allocator.Framework
	Stats() framework.Stats
	Err() error
}

type registeredFramework struct {
	policy string
	fw     Framework
}

// Controller 模擬控制器
type Controller struct {
	mu         sync.Mutex
	scenario   *config.Scenario
	opts       Options
	runID      string
	bus        *eventbus.Bus
	alloc      *allocator.Allocator
	sim        *simulator.Simulator
	frameworks []registeredFramework
	events     *eventlog.Log
	metrics    *metrics.Collector
	reports    *report.Manager
	closed     bool
}

// ============================================================================
// 核心方法實作
// ============================================================================

// New 由情境建立 Controller
//
// 流程：
//  1. 驗證情境
//  2. 建立 bus、allocator、simulator，並以 simulator 時鐘初始化 bus
//  3. 依序註冊 agents 與 frameworks（註冊順序決定同佔比時的先後）
func New(scenario *config.Scenario, opts Options) (*Controller, error) {
	if err := scenario.Validate(); err != nil {
		return nil, err
	}

	bus := eventbus.New()
	alloc := allocator.New(allocator.Config{FilterTicks: scenario.FilterTicks}, bus)
	c := &Controller{
		scenario: scenario,
		opts:     opts,
		runID:    report.NewRunID(),
		bus:      bus,
		alloc:    alloc,
		sim:      simulator.New(alloc, bus),
	}

	sinks, err := c.openSinks()
	if err != nil {
		return nil, err
	}
	if err := bus.Init(c.sim.Now, sinks...); err != nil {
		c.closeSinks()
		return nil, err
	}

	if err := c.register(); err != nil {
		c.closeSinks()
		return nil, err
	}

	log.Info("Controller created",
		"scenario", scenario.Name,
		"run_id", c.runID,
		"agents", len(scenario.Agents),
		"frameworks", len(scenario.Frameworks))
	return c, nil
}

func (c *Controller) openSinks() ([]eventbus.Sink, error) {
	var sinks []eventbus.Sink

	if c.opts.EventLogPath != "" {
		l, err := eventlog.Open(c.opts.EventLogPath, c.opts.EventLogOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to open event log: %w", err)
		}
		c.events = l
		sinks = append(sinks, l)
	}
	if c.opts.Registerer != nil {
		c.metrics = metrics.NewCollector(c.opts.Registerer)
		sinks = append(sinks, c.metrics)
	}
	if c.opts.EventLogger != nil {
		sinks = append(sinks, eventbus.NewLogSink(c.opts.EventLogger, c.opts.EventLogLevel))
	}
	if c.opts.ReportPath != "" {
		c.reports = report.NewManager(c.opts.ReportPath)
	}

	return append(sinks, c.opts.Sinks...), nil
}

func (c *Controller) closeSinks() error {
	if c.events == nil {
		return nil
	}
	return c.events.Close()
}

func (c *Controller) register() error {
	for _, spec := range c.scenario.Agents {
		if err := c.alloc.AddAgent(spec.Name, resource.New(spec.Resources...)); err != nil {
			return fmt.Errorf("failed to add agent %s: %w", spec.Name, err)
		}
	}

	for _, spec := range c.scenario.Frameworks {
		fw, err := Build(spec, c.alloc)
		if err != nil {
			return err
		}
		if err := c.alloc.AddFramework(fw); err != nil {
			return fmt.Errorf("failed to add framework %s: %w", spec.Name, err)
		}
		c.frameworks = append(c.frameworks, registeredFramework{policy: spec.Policy, fw: fw})
	}
	return nil
}

// Build 依 policy 建立框架
func Build(spec config.FrameworkSpec, driver framework.Driver) (Framework, error) {
	name := types.FrameworkID(spec.Name)
	opts := framework.Options{RefuseTicks: spec.RefuseTicks}

	switch spec.Policy {
	case config.PolicyLauncher:
		return framework.NewLauncher(name, driver, framework.LauncherConfig{
			Task:     resource.New(spec.Task...),
			Duration: spec.Duration,
			MaxTasks: spec.MaxTasks,
			Options:  opts,
		}), nil
	case config.PolicyDecliner:
		return framework.NewDecliner(name, driver, opts), nil
	case config.PolicyBacklog:
		demands := make([]framework.Demand, 0, len(spec.Queue))
		for _, t := range spec.Queue {
			demands = append(demands, framework.Demand{
				Resources: resource.New(t.Resources...),
				Duration:  t.Duration,
			})
		}
		return framework.NewBacklog(name, driver, opts, demands...), nil
	default:
		return nil, fmt.Errorf("%w: framework %q has unknown policy %q", config.ErrInvalidScenario, spec.Name, spec.Policy)
	}
}

// Run 執行情境設定的 tick 數，並在設定 ReportPath 時寫出報告
func (c *Controller) Run(ctx context.Context) (*report.Report, error) {
	start := time.Now()
	if err := c.Tick(ctx, c.scenario.Ticks); err != nil {
		return nil, err
	}

	r, err := c.WriteReport()
	if err != nil {
		return nil, err
	}

	log.Info("Simulation completed",
		"scenario", c.scenario.Name,
		"ticks", r.Ticks,
		"duration", time.Since(start))
	return r, nil
}

// Tick 推進 n 個 tick
//
// 每個 tick 後檢查框架的錯誤；任何錯誤都中止並回傳。
func (c *Controller) Tick(ctx context.Context, n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	for i := 0; i < n; i++ {
		start := time.Now()
		if err := c.sim.Tick(ctx, 1); err != nil {
			return err
		}
		if c.metrics != nil {
			c.metrics.ObserveTick(time.Since(start))
			c.metrics.SetInFlight(c.inFlightLocked())
		}
		for _, rf := range c.frameworks {
			if err := rf.fw.Err(); err != nil {
				return fmt.Errorf("tick %d: %w", c.sim.Now()-1, err)
			}
		}
	}

	if c.events != nil {
		if err := c.events.Flush(); err != nil {
			return fmt.Errorf("failed to flush event log: %w", err)
		}
	}
	return nil
}

// Report 取得目前狀態的報告
func (c *Controller) Report() *report.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reportLocked()
}

// WriteReport 產生報告，設定 ReportPath 時原子性寫入
func (c *Controller) WriteReport() (*report.Report, error) {
	r := c.Report()
	if c.reports == nil {
		return r, nil
	}
	if err := c.reports.Write(r); err != nil {
		return nil, err
	}
	log.Info("Report written", "path", c.reports.GetPath(), "run_id", r.RunID)
	return r, nil
}

func (c *Controller) reportLocked() *report.Report {
	summaries := make([]report.FrameworkSummary, 0, len(c.frameworks))
	for _, rf := range c.frameworks {
		s := report.FrameworkSummary{
			Name:   rf.fw.Name(),
			Policy: rf.policy,
			Stats:  rf.fw.Stats(),
		}
		if err := rf.fw.Err(); err != nil {
			s.Error = err.Error()
		}
		summaries = append(summaries, s)
	}

	return &report.Report{
		SchemaVer:   report.SchemaVersion,
		RunID:       c.runID,
		Scenario:    c.scenario.Name,
		GeneratedAt: time.Now().UTC(),
		Ticks:       c.sim.Now(),
		Rounds:      c.alloc.Round(),
		InFlight:    c.inFlightLocked(),
		LastSeq:     c.events.LastSeq(),
		Agents:      c.alloc.Status(),
		Frameworks:  summaries,
	}
}

func (c *Controller) inFlightLocked() int {
	n := 0
	for _, rf := range c.frameworks {
		n += c.alloc.InFlight(rf.fw.Name())
	}
	return n
}

// RemoveAgent 移除 agent；其上的任務資源隨 agent 一起消失
func (c *Controller) RemoveAgent(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	return c.alloc.RemoveAgent(name)
}

// Scenario 回傳情境
func (c *Controller) Scenario() *config.Scenario {
	return c.scenario
}

// RunID 回傳本次模擬的識別碼
func (c *Controller) RunID() string {
	return c.runID
}

// Now 目前的模擬時間
func (c *Controller) Now() int64 {
	return c.sim.Now()
}

// Framework 以名稱取得情境中建立的框架
func (c *Controller) Framework(name types.FrameworkID) (Framework, bool) {
	for _, rf := range c.frameworks {
		if rf.fw.Name() == name {
			return rf.fw, true
		}
	}
	return nil, false
}

// RotateEventLog 將目前的事件日誌改名保存並開新檔，回傳保存的路徑
//
// 與 Tick 互斥，旋轉不會切開同一個 tick 的事件。
func (c *Controller) RotateEventLog() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", ErrClosed
	}
	if c.events == nil {
		return "", ErrNoEventLog
	}
	return c.events.Rotate()
}

// Close 關閉事件日誌；重複呼叫為 no-op
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.closeSinks()
}
