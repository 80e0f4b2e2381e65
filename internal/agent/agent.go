// ============================================================================
// Agent - 單一節點的資源、過濾器與任務表
// ============================================================================
//
// Package: internal/agent
// 文件: agent.go
// 功能: 包裝一個 drf.Tracker，加上框架過濾器（decline 後的冷卻期）與執行中任務
//
// Tick 流程（每個模擬 tick 一次，由 simulator 驅動）:
//   1. 所有過濾器倒數 1，<= 0 時移除並發出 clear_filter
//   2. 所有有限期任務倒數 1，<= 0 時移除並向 allocator 回報 FINISHED
//      沒有 duration 的任務永遠不會被這個機制結束
//
// 迭代順序:
//   過濾器與任務都依加入順序處理，確保相同歷史得到相同事件序列。
//
// ============================================================================

package agent

import (
	"fmt"
	"log/slog"

	"github.com/ChuLiYu/drf-sim/internal/drf"
	"github.com/ChuLiYu/drf-sim/internal/eventbus"
	"github.com/ChuLiYu/drf-sim/internal/resource"
	"github.com/ChuLiYu/drf-sim/pkg/types"
)

var log = slog.Default()

// Reporter 接收任務完成通知（由 allocator 實作）
type Reporter interface {
	StatusUpdate(update types.StatusUpdate) error
}

type taskKey struct {
	framework types.FrameworkID
	task      types.TaskID
}

// Agent 單一節點
type Agent struct {
	name     string
	tracker  *drf.Tracker
	reporter Reporter
	bus      *eventbus.Bus

	filters     map[types.FrameworkID]int // 剩餘 tick 數
	filterOrder []types.FrameworkID

	tasks     map[taskKey]*types.Task
	taskOrder []taskKey
}

// New 建立 agent；bus 可為 nil
func New(name string, capacity resource.Vector, reporter Reporter, bus *eventbus.Bus) (*Agent, error) {
	tracker, err := drf.NewTracker(capacity)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", name, err)
	}
	return &Agent{
		name:     name,
		tracker:  tracker,
		reporter: reporter,
		bus:      bus,
		filters:  make(map[types.FrameworkID]int),
		tasks:    make(map[taskKey]*types.Task),
	}, nil
}

// SourceName 實作 eventbus.Source
func (a *Agent) SourceName() string { return "agent" }

// SourceID 實作 eventbus.Source
func (a *Agent) SourceID() string { return a.name }

// Name agent 名稱
func (a *Agent) Name() string { return a.name }

// Tracker 回傳佔比追蹤器
func (a *Agent) Tracker() *drf.Tracker { return a.tracker }

// AddFramework 在追蹤器註冊框架
func (a *Agent) AddFramework(id types.FrameworkID) error {
	if err := a.tracker.RegisterFramework(id); err != nil {
		return fmt.Errorf("agent %s: %w", a.name, err)
	}
	return a.publish("add_framework", map[string]any{"framework_name": id})
}

// AddFilter 安裝或覆寫過濾器；覆寫會重設倒數而不是延長
func (a *Agent) AddFilter(id types.FrameworkID, ticks int) error {
	if err := a.publish("add_filter", map[string]any{
		"framework_name": id,
		"duration":       ticks,
	}); err != nil {
		return err
	}
	if _, exists := a.filters[id]; !exists {
		a.filterOrder = append(a.filterOrder, id)
	}
	a.filters[id] = ticks
	return nil
}

// IsFiltered 過濾器存在且剩餘 tick > 0
func (a *Agent) IsFiltered(id types.FrameworkID) bool {
	remaining, ok := a.filters[id]
	return ok && remaining > 0
}

// Filters 回傳目前的過濾器（副本）
func (a *Agent) Filters() map[types.FrameworkID]int {
	out := make(map[types.FrameworkID]int, len(a.filters))
	for id, remaining := range a.filters {
		out[id] = remaining
	}
	return out
}

// LaunchTask 記錄任務；同一 (framework, task) 重複啟動會覆蓋並發出警告事件
func (a *Agent) LaunchTask(task types.Task) error {
	if err := a.publish("launch_task", task); err != nil {
		return err
	}

	key := taskKey{framework: task.Framework, task: task.ID}
	if prev, exists := a.tasks[key]; exists {
		log.Warn("Overriding task", "task", task.ID, "framework", task.Framework, "agent", a.name,
			"previous_resources", prev.Resources.String())
		// 舊任務的資源不會被回收，仍計在框架名下
		if err := a.publish("task_overwritten", map[string]any{
			"framework_name": task.Framework,
			"task_name":      task.ID,
			"resources":      prev.Resources,
		}); err != nil {
			return err
		}
	} else {
		a.taskOrder = append(a.taskOrder, key)
	}

	stored := task
	if task.Bounded() {
		d := *task.Duration
		stored.Duration = &d
	}
	a.tasks[key] = &stored
	return nil
}

// Task 查詢任務
func (a *Agent) Task(framework types.FrameworkID, id types.TaskID) (types.Task, bool) {
	t, ok := a.tasks[taskKey{framework: framework, task: id}]
	if !ok {
		return types.Task{}, false
	}
	return *t, true
}

// Tasks 依啟動順序回傳所有任務
func (a *Agent) Tasks() []types.Task {
	out := make([]types.Task, 0, len(a.taskOrder))
	for _, key := range a.taskOrder {
		out = append(out, *a.tasks[key])
	}
	return out
}

// Tick 推進 agent 的時鐘
//
// 任務完成時會同步呼叫 reporter.StatusUpdate，資源在本 tick 的
// allocation round 之前就已回收。回報錯誤代表狀態不一致，直接回傳。
func (a *Agent) Tick() error {
	// 1. 過濾器倒數
	kept := a.filterOrder[:0]
	for _, id := range a.filterOrder {
		a.filters[id]--
		if a.filters[id] > 0 {
			kept = append(kept, id)
			continue
		}
		delete(a.filters, id)
		if err := a.publish("clear_filter", map[string]any{"framework_name": id}); err != nil {
			return err
		}
	}
	a.filterOrder = kept

	// 2. 任務倒數
	var finished []taskKey
	for _, key := range a.taskOrder {
		task := a.tasks[key]
		if !task.Bounded() {
			continue
		}
		*task.Duration--
		if *task.Duration <= 0 {
			finished = append(finished, key)
		}
	}

	for _, key := range finished {
		a.removeTask(key)
		log.Debug("Task completed", "task", key.task, "framework", key.framework, "agent", a.name)

		update := types.StatusUpdate{
			Agent:     a.name,
			Framework: key.framework,
			Task:      key.task,
			Status:    types.StatusFinished,
		}
		if a.reporter == nil {
			continue
		}
		if err := a.reporter.StatusUpdate(update); err != nil {
			return fmt.Errorf("agent %s: report %s/%s: %w", a.name, key.framework, key.task, err)
		}
	}
	return nil
}

func (a *Agent) removeTask(key taskKey) {
	delete(a.tasks, key)
	for i, k := range a.taskOrder {
		if k == key {
			a.taskOrder = append(a.taskOrder[:i], a.taskOrder[i+1:]...)
			return
		}
	}
}

func (a *Agent) publish(name string, data any) error {
	if err := a.bus.Publish(a, name, data); err != nil {
		return fmt.Errorf("agent %s: publish %s: %w", a.name, name, err)
	}
	return nil
}
