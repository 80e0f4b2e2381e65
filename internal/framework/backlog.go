package framework

// ============================================================================
// Backlog - 以 FIFO 佇列提交任務的框架
// ============================================================================
//
// 任務狀態轉換:
//   Pending (佇列中)
//      ↓ offer 放得下 → Launch
//   Running (執行中)
//      ↓ StatusUpdate(FINISHED)
//   Finished
//
// 佇列頭放不下 offer 時整個 offer 被拒絕（不跳過佇列頭，保持 FIFO）。
// ============================================================================

import (
	"github.com/ChuLiYu/drf-sim/internal/resource"
	"github.com/ChuLiYu/drf-sim/pkg/types"
)

// Demand 佇列中的一個任務需求
type Demand struct {
	Resources resource.Vector
	Duration  int // 0 表示永不結束
}

// Backlog FIFO 佇列框架
type Backlog struct {
	base
	queue    []Demand
	running  map[types.TaskID]Demand
	finished map[types.TaskID]Demand
}

// NewBacklog 建立 Backlog
func NewBacklog(name types.FrameworkID, driver Driver, opts Options, demands ...Demand) *Backlog {
	queue := make([]Demand, len(demands))
	copy(queue, demands)
	return &Backlog{
		base:     newBase(name, driver, opts),
		queue:    queue,
		running:  make(map[types.TaskID]Demand),
		finished: make(map[types.TaskID]Demand),
	}
}

// Enqueue 追加任務需求
func (b *Backlog) Enqueue(demands ...Demand) {
	b.queue = append(b.queue, demands...)
}

// Offer 啟動佇列頭，放不下或佇列為空則拒絕
func (b *Backlog) Offer(offers []types.Offer) {
	for _, offer := range offers {
		b.stats.Offers++
		if len(b.queue) == 0 || !fits(b.queue[0].Resources, offer) {
			b.decline(offer)
			continue
		}

		head := b.queue[0]
		task := types.Task{
			Framework: b.name,
			ID:        b.nextTaskID(),
			Resources: head.Resources,
		}
		if head.Duration > 0 {
			task.Duration = types.Ticks(head.Duration)
		}
		if b.launch(task, offer) {
			b.queue = b.queue[1:]
			b.running[task.ID] = head
		}
	}
}

// StatusUpdate 把完成的任務移到 finished
func (b *Backlog) StatusUpdate(update types.StatusUpdate) {
	b.base.StatusUpdate(update)
	if !update.Status.IsTerminal() {
		return
	}
	if d, ok := b.running[update.Task]; ok {
		delete(b.running, update.Task)
		b.finished[update.Task] = d
	}
}

// Pending 佇列中尚未啟動的任務數
func (b *Backlog) Pending() int { return len(b.queue) }

// Running 執行中的任務數
func (b *Backlog) Running() int { return len(b.running) }

// Completed 已完成的任務數
func (b *Backlog) Completed() int { return len(b.finished) }
