// Package framework 提供幾個範例排程器，實作 allocator.Framework
//
// 這些框架對應經典的模擬情境：
//   - Launcher: 每次 offer 啟動固定大小的任務（DRF 佔比收斂、短期任務）
//   - Decliner: 拒絕所有 offer（過濾器飢餓）
//   - Backlog:  依 FIFO 佇列啟動任務，放不下就拒絕
package framework

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ChuLiYu/drf-sim/internal/allocator"
	"github.com/ChuLiYu/drf-sim/internal/resource"
	"github.com/ChuLiYu/drf-sim/pkg/types"
)

var log = slog.Default()

// Driver 框架回應 offer 所需的 allocator 操作
type Driver interface {
	Launch(task types.Task, offer types.Offer) error
	Decline(framework types.FrameworkID, offer types.Offer) error
	DeclineFor(framework types.FrameworkID, offer types.Offer, refuseTicks int) error
}

// Stats 框架的計數
type Stats struct {
	Offers   int `json:"offers"`
	Launched int `json:"launched"`
	Declined int `json:"declined"`
	Finished int `json:"finished"`
	Rejected int `json:"rejected"`
}

// Options 各框架共用的選項
type Options struct {
	// RefuseTicks decline 的過濾期，<= 0 使用 allocator 預設值
	RefuseTicks int
}

// base 共用的計數與錯誤處理
type base struct {
	name    types.FrameworkID
	driver  Driver
	opts    Options
	stats   Stats
	updates []types.StatusUpdate
	seq     int
	err     error
}

func newBase(name types.FrameworkID, driver Driver, opts Options) base {
	return base{name: name, driver: driver, opts: opts}
}

// Name 實作 allocator.Framework
func (b *base) Name() types.FrameworkID { return b.name }

// Tick 實作 allocator.Framework；範例框架不需要
func (b *base) Tick() {}

// StatusUpdate 實作 allocator.Framework
func (b *base) StatusUpdate(update types.StatusUpdate) {
	b.updates = append(b.updates, update)
	if update.Status.IsTerminal() {
		b.stats.Finished++
	}
	log.Debug("Status update", "framework", b.name, "task", update.Task, "status", update.Status)
}

// Stats 回傳計數
func (b *base) Stats() Stats { return b.stats }

// Updates 回傳收到的所有狀態更新
func (b *base) Updates() []types.StatusUpdate {
	out := make([]types.StatusUpdate, len(b.updates))
	copy(out, b.updates)
	return out
}

// Err 回傳第一個不可恢復的錯誤
//
// Offer 回呼沒有回傳值，一致性錯誤在這裡保留，由驅動端在 tick 後檢查。
func (b *base) Err() error { return b.err }

func (b *base) nextTaskID() types.TaskID {
	b.seq++
	return types.TaskID(strconv.Itoa(b.seq))
}

func (b *base) launch(task types.Task, offer types.Offer) bool {
	err := b.driver.Launch(task, offer)
	switch {
	case err == nil:
		b.stats.Launched++
		return true
	case errors.Is(err, allocator.ErrOversizedTask), errors.Is(err, resource.ErrDimensionMismatch):
		b.stats.Rejected++
		log.Warn("Launch rejected", "framework", b.name, "task", task.ID, "error", err)
		// 保留 eager charge 會讓資源一直被占用，改為 decline
		b.decline(offer)
		return false
	case errors.Is(err, allocator.ErrStaleOffer):
		b.stats.Rejected++
		log.Warn("Launch with stale offer", "framework", b.name, "task", task.ID, "error", err)
		return false
	default:
		b.fail(err)
		return false
	}
}

func (b *base) decline(offer types.Offer) {
	var err error
	if b.opts.RefuseTicks > 0 {
		err = b.driver.DeclineFor(b.name, offer, b.opts.RefuseTicks)
	} else {
		err = b.driver.Decline(b.name, offer)
	}
	if err != nil {
		b.fail(err)
		return
	}
	b.stats.Declined++
}

func (b *base) fail(err error) {
	if b.err == nil {
		b.err = fmt.Errorf("framework %s: %w", b.name, err)
	}
	log.Error("Framework call failed", "framework", b.name, "error", err)
}

// fits 任務是否放得進 offer；維度不符視為放不下
func fits(demand resource.Vector, offer types.Offer) bool {
	ok, err := demand.FitsWithin(offer.Resources)
	return err == nil && ok
}

var (
	_ allocator.Framework = (*Launcher)(nil)
	_ allocator.Framework = (*Decliner)(nil)
	_ allocator.Framework = (*Backlog)(nil)
)
