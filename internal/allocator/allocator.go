// ============================================================================
// DRF Allocator - 中央資源分配協調器
// ============================================================================
//
// Package: internal/allocator
// 文件: allocator.go
// 功能: 管理所有 agent 與框架，實作 offer / launch / decline / status update 協定
//
// Allocation round（每個 tick 一次，各 agent 獨立）:
//   1. order = tracker.OrderedFrameworks()，沒有框架則跳過
//   2. avail = tracker.Available()，任一維 <= 0 則本輪跳過
//   3. 依 order 找第一個未被過濾的框架：
//      先把整個 avail 記到該框架名下（eager charge），再送出 offer
//      每個 agent 每輪最多一個 offer
//   4. 全部被過濾則本輪不送 offer
//
// Eager charge:
//   資源在框架接受之前就已計入，因此：
//   - Launch 會回收 offer 中未使用的部分
//   - Decline 會回收整個 offer
//   - 框架不回應時資源保持計入；offer 只在發出的那一輪有效，
//     過了該輪就不能再以 Launch / Decline 結算
//   這是刻意保留的行為，不要「修正」它。
//
// 錯誤分類:
//   - resource.ErrDimensionMismatch / ErrOversizedTask / ErrStaleOffer: 呼叫端可恢復，狀態不變
//   - ErrNotRegistered / ErrAlreadyRegistered: 生命週期誤用
//   - ErrConsistencyViolation: 共享狀態已損壞，必須中止
//
// 並發:
//   單一邏輯執行緒。框架的 Offer / StatusUpdate 回呼是同步的，
//   框架可以在回呼內直接呼叫 Launch / Decline。
//
// ============================================================================

package allocator

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ChuLiYu/drf-sim/internal/agent"
	"github.com/ChuLiYu/drf-sim/internal/drf"
	"github.com/ChuLiYu/drf-sim/internal/eventbus"
	"github.com/ChuLiYu/drf-sim/internal/resource"
	"github.com/ChuLiYu/drf-sim/pkg/types"
)

var log = slog.Default()

// DefaultFilterTicks decline 預設的過濾期
const DefaultFilterTicks = 5

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	// 任務需求超過 offer
	ErrOversizedTask = errors.New("allocator: task exceeds offered resources")
	// offer 不是本輪發出、已被結算，或不屬於該框架
	ErrStaleOffer = errors.New("allocator: stale offer")
	// agent 或框架未註冊
	ErrNotRegistered = errors.New("allocator: not registered")
	// agent 或框架重複註冊
	ErrAlreadyRegistered = errors.New("allocator: already registered")
	// 任務表與 agent 不同步，或回收後消耗量為負
	ErrConsistencyViolation = errors.New("allocator: consistency violation")
	// agent 容量不合法
	ErrInvalidCapacity = drf.ErrInvalidCapacity
)

// ============================================================================
// 介面與資料結構
// ============================================================================

// Framework 外部排程器的能力介面
type Framework interface {
	// Name 框架唯一名稱
	Name() types.FrameworkID
	// Offer 收到資源 offer，應在同一輪內呼叫 Launch 或 Decline
	Offer(offers []types.Offer)
	// StatusUpdate 任務狀態通知
	StatusUpdate(update types.StatusUpdate)
	// Tick 每個模擬 tick 呼叫一次，可為 no-op
	Tick()
}

// Config Allocator 配置
type Config struct {
	FilterTicks int // Decline 預設過濾期，<= 0 時使用 DefaultFilterTicks
}

// trackedTask allocator 端對任務的輕量參考，用於回收資源
type trackedTask struct {
	agent string
	task  types.Task
}

// Allocator 中央分配器
type Allocator struct {
	bus         *eventbus.Bus
	filterTicks int
	round       int64

	agents     map[string]*agent.Agent
	agentOrder []string

	frameworks     map[types.FrameworkID]Framework
	frameworkOrder []types.FrameworkID

	tasks map[types.FrameworkID]map[types.TaskID]trackedTask

	// 每個 agent 尚未結算的 offer，Launch / Decline 成功後移除
	outstanding map[string]types.Offer
}

// New 建立 Allocator；bus 可為 nil
func New(config Config, bus *eventbus.Bus) *Allocator {
	if config.FilterTicks <= 0 {
		config.FilterTicks = DefaultFilterTicks
	}
	return &Allocator{
		bus:         bus,
		filterTicks: config.FilterTicks,
		agents:      make(map[string]*agent.Agent),
		frameworks:  make(map[types.FrameworkID]Framework),
		tasks:       make(map[types.FrameworkID]map[types.TaskID]trackedTask),
		outstanding: make(map[string]types.Offer),
	}
}

// SourceName 實作 eventbus.Source
func (a *Allocator) SourceName() string { return "allocator" }

// SourceID 實作 eventbus.Source
func (a *Allocator) SourceID() string { return "drf_allocator" }

// FilterTicks 預設過濾期
func (a *Allocator) FilterTicks() int { return a.filterTicks }

// Round 已執行的 allocation round 數
func (a *Allocator) Round() int64 { return a.round }

// ============================================================================
// 註冊
// ============================================================================

// AddAgent 建立 agent，並註冊所有已知框架
func (a *Allocator) AddAgent(name string, capacity resource.Vector) error {
	if _, exists := a.agents[name]; exists {
		return fmt.Errorf("%w: agent %s", ErrAlreadyRegistered, name)
	}

	ag, err := agent.New(name, capacity, a, a.bus)
	if err != nil {
		return err
	}

	if err := a.publish("add_agent", map[string]any{
		"agent_name": name,
		"resources":  capacity,
	}); err != nil {
		return err
	}

	for _, id := range a.frameworkOrder {
		if err := ag.AddFramework(id); err != nil {
			return err
		}
	}

	a.agents[name] = ag
	a.agentOrder = append(a.agentOrder, name)
	return nil
}

// RemoveAgent 讓 agent 不再參與分配，並丟棄其任務參考
func (a *Allocator) RemoveAgent(name string) error {
	if _, exists := a.agents[name]; !exists {
		return fmt.Errorf("%w: agent %s", ErrNotRegistered, name)
	}
	if err := a.publish("remove_agent", map[string]any{"agent_name": name}); err != nil {
		return err
	}

	delete(a.agents, name)
	delete(a.outstanding, name)
	for i, n := range a.agentOrder {
		if n == name {
			a.agentOrder = append(a.agentOrder[:i], a.agentOrder[i+1:]...)
			break
		}
	}
	for _, byID := range a.tasks {
		for id, tracked := range byID {
			if tracked.agent == name {
				delete(byID, id)
			}
		}
	}
	return nil
}

// AddFramework 在所有 agent 上註冊框架
func (a *Allocator) AddFramework(fw Framework) error {
	id := fw.Name()
	if _, exists := a.frameworks[id]; exists {
		return fmt.Errorf("%w: framework %s", ErrAlreadyRegistered, id)
	}
	if err := a.publish("add_framework", map[string]any{"framework_name": id}); err != nil {
		return err
	}

	for _, name := range a.agentOrder {
		if err := a.agents[name].AddFramework(id); err != nil {
			return err
		}
	}

	a.frameworks[id] = fw
	a.frameworkOrder = append(a.frameworkOrder, id)
	a.tasks[id] = make(map[types.TaskID]trackedTask)
	return nil
}

// Agent 依名稱查詢 agent
func (a *Allocator) Agent(name string) (*agent.Agent, bool) {
	ag, ok := a.agents[name]
	return ag, ok
}

// Agents 依加入順序回傳所有 agent
func (a *Allocator) Agents() []*agent.Agent {
	out := make([]*agent.Agent, 0, len(a.agentOrder))
	for _, name := range a.agentOrder {
		out = append(out, a.agents[name])
	}
	return out
}

// Framework 依名稱查詢框架
func (a *Allocator) Framework(id types.FrameworkID) (Framework, bool) {
	fw, ok := a.frameworks[id]
	return fw, ok
}

// Frameworks 依註冊順序回傳所有框架
func (a *Allocator) Frameworks() []Framework {
	out := make([]Framework, 0, len(a.frameworkOrder))
	for _, id := range a.frameworkOrder {
		out = append(out, a.frameworks[id])
	}
	return out
}

// InFlight 框架在 allocator 任務表中的任務數
func (a *Allocator) InFlight(id types.FrameworkID) int {
	return len(a.tasks[id])
}

// ============================================================================
// 分配協定
// ============================================================================

// Tick 執行一輪分配
func (a *Allocator) Tick() error {
	return a.Allocate()
}

// Allocate 對每個 agent 執行一輪分配，每個 agent 最多一個 offer
func (a *Allocator) Allocate() error {
	a.round++
	// 上一輪未回應的 offer 保持計入，但不能再被結算
	clear(a.outstanding)

	// 框架可能在回呼中移除 agent，先複製順序
	names := make([]string, len(a.agentOrder))
	copy(names, a.agentOrder)

	for _, name := range names {
		ag, ok := a.agents[name]
		if !ok {
			continue
		}
		if err := a.allocateAgent(ag); err != nil {
			return err
		}
	}
	return nil
}

func (a *Allocator) allocateAgent(ag *agent.Agent) error {
	tracker := ag.Tracker()

	order := tracker.OrderedFrameworks()
	if len(order) == 0 {
		log.Debug("No frameworks to serve", "agent", ag.Name())
		return nil
	}

	avail := tracker.Available()
	if avail.Exhausted() {
		log.Debug("Agent is out of capacity", "agent", ag.Name(), "available", avail.String())
		return nil
	}

	for _, entry := range order {
		if ag.IsFiltered(entry.Framework) {
			log.Debug("Framework is filtered", "agent", ag.Name(), "framework", entry.Framework)
			continue
		}

		fw, ok := a.frameworks[entry.Framework]
		if !ok {
			return fmt.Errorf("%w: agent %s tracks unknown framework %s",
				ErrConsistencyViolation, ag.Name(), entry.Framework)
		}

		// Eager charge：在送出 offer 之前先計入
		if err := tracker.Allocate(entry.Framework, avail); err != nil {
			return err
		}
		share, _ := tracker.Share(entry.Framework)

		offer := types.Offer{
			Agent:     ag.Name(),
			Framework: entry.Framework,
			Resources: avail,
			Round:     a.round,
		}
		if err := a.publish("resource_offer", map[string]any{
			"agent_name":     ag.Name(),
			"framework_name": entry.Framework,
			"resources":      avail,
			"share":          share,
		}); err != nil {
			return err
		}

		a.outstanding[ag.Name()] = offer
		fw.Offer([]types.Offer{offer})
		return nil
	}

	log.Debug("All frameworks filtered", "agent", ag.Name())
	return nil
}

// Launch 以 offer 的資源啟動任務，並回收未使用的部分
//
// 錯誤處理：
//   - ErrNotRegistered: offer 的 agent 或任務的框架不存在
//   - ErrStaleOffer: offer 不是本輪發給該框架的，或已經結算過，狀態不變
//   - resource.ErrDimensionMismatch: 維度不符，狀態不變
//   - ErrOversizedTask: 任一維超過 offer，狀態不變
//   - ErrConsistencyViolation: 回收後消耗量為負
//
// 每個 offer 只能結算一次。以同一個 (framework, taskId) 重複 launch 會覆寫
// 任務參考：舊任務的資源不會被回收，會一直計在框架名下
// （task_overwritten 事件帶有舊任務的資源）。
func (a *Allocator) Launch(task types.Task, offer types.Offer) error {
	ag, ok := a.agents[offer.Agent]
	if !ok {
		return fmt.Errorf("%w: agent %s", ErrNotRegistered, offer.Agent)
	}
	if _, ok := a.frameworks[task.Framework]; !ok {
		return fmt.Errorf("%w: framework %s", ErrNotRegistered, task.Framework)
	}
	if err := a.checkOffer(task.Framework, offer); err != nil {
		return fmt.Errorf("launch %s/%s: %w", task.Framework, task.ID, err)
	}

	fits, err := task.Resources.FitsWithin(offer.Resources)
	if err != nil {
		return fmt.Errorf("launch %s/%s: %w", task.Framework, task.ID, err)
	}
	if !fits {
		log.Warn("Framework tried to launch larger task than offer resources",
			"framework", task.Framework, "task", task.ID,
			"task_resources", task.Resources.String(), "offer_resources", offer.Resources.String())
		if err := a.publish("launch_rejected", map[string]any{
			"agent_name":     offer.Agent,
			"framework_name": task.Framework,
			"task_name":      task.ID,
			"resources":      task.Resources,
			"offered":        offer.Resources,
		}); err != nil {
			return err
		}
		return fmt.Errorf("%w: task %s/%s needs %s, offer has %s",
			ErrOversizedTask, task.Framework, task.ID, task.Resources, offer.Resources)
	}

	// 回收未使用的部分
	unused, err := offer.Resources.Subtract(task.Resources)
	if err != nil {
		return err
	}
	if err := a.recover(ag, task.Framework, unused); err != nil {
		return err
	}
	delete(a.outstanding, offer.Agent)

	if err := ag.LaunchTask(task); err != nil {
		return err
	}
	if err := a.publish("launch_task", task); err != nil {
		return err
	}

	a.tasks[task.Framework][task.ID] = trackedTask{agent: ag.Name(), task: task}
	return nil
}

// Decline 以預設過濾期拒絕 offer
func (a *Allocator) Decline(framework types.FrameworkID, offer types.Offer) error {
	return a.DeclineFor(framework, offer, a.filterTicks)
}

// DeclineFor 拒絕 offer：在 agent 上安裝過濾器並回收整個 offer
func (a *Allocator) DeclineFor(framework types.FrameworkID, offer types.Offer, refuseTicks int) error {
	ag, ok := a.agents[offer.Agent]
	if !ok {
		return fmt.Errorf("%w: agent %s", ErrNotRegistered, offer.Agent)
	}
	if _, ok := a.frameworks[framework]; !ok {
		return fmt.Errorf("%w: framework %s", ErrNotRegistered, framework)
	}
	if err := a.checkOffer(framework, offer); err != nil {
		return fmt.Errorf("decline %s: %w", framework, err)
	}

	if err := a.publish("decline_offer", map[string]any{
		"framework_name":  framework,
		"agent_name":      offer.Agent,
		"resources":       offer.Resources,
		"filter_duration": refuseTicks,
	}); err != nil {
		return err
	}
	if err := a.recover(ag, framework, offer.Resources); err != nil {
		return err
	}
	delete(a.outstanding, offer.Agent)
	return ag.AddFilter(framework, refuseTicks)
}

// checkOffer 確認 offer 是本輪發給 framework 且尚未結算的那一個
func (a *Allocator) checkOffer(framework types.FrameworkID, offer types.Offer) error {
	current, ok := a.outstanding[offer.Agent]
	switch {
	case !ok:
		return fmt.Errorf("%w: no open offer on agent %s", ErrStaleOffer, offer.Agent)
	case offer.Framework != framework || current.Framework != framework:
		return fmt.Errorf("%w: offer on agent %s belongs to %s, not %s",
			ErrStaleOffer, offer.Agent, current.Framework, framework)
	case offer.Round != current.Round:
		return fmt.Errorf("%w: offer on agent %s is from round %d, current round is %d",
			ErrStaleOffer, offer.Agent, offer.Round, current.Round)
	case !offer.Resources.Equal(current.Resources):
		return fmt.Errorf("%w: offer on agent %s has %s, issued %s",
			ErrStaleOffer, offer.Agent, offer.Resources, current.Resources)
	}
	return nil
}

// StatusUpdate 處理 agent 回報的任務狀態
//
// 查不到任務代表 agent 與 allocator 任務表不同步，回傳 ErrConsistencyViolation。
func (a *Allocator) StatusUpdate(update types.StatusUpdate) error {
	tracked, ok := a.tasks[update.Framework][update.Task]
	if !ok {
		return fmt.Errorf("%w: status %s for untracked task %s/%s on agent %s",
			ErrConsistencyViolation, update.Status, update.Framework, update.Task, update.Agent)
	}
	fw, ok := a.frameworks[update.Framework]
	if !ok {
		return fmt.Errorf("%w: framework %s", ErrNotRegistered, update.Framework)
	}

	if err := a.publish("status_update", update); err != nil {
		return err
	}

	if update.Status.IsTerminal() {
		ag, ok := a.agents[update.Agent]
		if !ok {
			return fmt.Errorf("%w: status update from unknown agent %s", ErrConsistencyViolation, update.Agent)
		}
		if err := a.recover(ag, update.Framework, tracked.task.Resources); err != nil {
			return err
		}
	}

	fw.StatusUpdate(update)

	if update.Status.IsTerminal() {
		delete(a.tasks[update.Framework], update.Task)
	}
	return nil
}

// recover 將資源從框架名下回收
func (a *Allocator) recover(ag *agent.Agent, framework types.FrameworkID, r resource.Vector) error {
	if err := ag.Tracker().Recover(framework, r); err != nil {
		if errors.Is(err, drf.ErrConsistencyViolation) {
			return fmt.Errorf("%w: %w", ErrConsistencyViolation, err)
		}
		return err
	}

	share, _ := ag.Tracker().Share(framework)
	return a.publish("recover_resources", map[string]any{
		"agent_name":     ag.Name(),
		"framework_name": framework,
		"resources":      r,
		"share":          share,
	})
}

func (a *Allocator) publish(name string, data any) error {
	if err := a.bus.Publish(a, name, data); err != nil {
		return fmt.Errorf("allocator: publish %s: %w", name, err)
	}
	return nil
}
