// ============================================================================
// DRF 佔比追蹤器 - Dominant Resource Fairness
// ============================================================================
//
// Package: internal/drf
// 文件: tracker.go
// 功能: 追蹤單一 agent 上每個框架的資源消耗與主導佔比 (dominant share)
//
// 資料結構:
//   total    - agent 的總容量，建立後不再改變
//   consumed - 所有框架消耗的總和，只由 Allocate / Recover 修改
//   users    - 每個框架的消耗向量
//   share    - 每個框架的主導佔比 = max_d(users[f][d] / total[d])
//
// 不變量:
//   - consumed == Σ users[f]
//   - 任何 users[f] 改變後立即重新計算 share[f]
//   - 新註冊的框架 share 為 0
//   - 回收後消耗量不可為負，否則代表上游協定錯誤
//
// 排序:
//   OrderedFrameworks() 以 share 遞增做穩定排序，相同 share 依註冊順序，
//   相同歷史的模擬會得到相同的 offer 順序。
//
// 並發:
//   單一寫入者模型，不加鎖；由呼叫端（allocator / controller）保證序列化。
//
// ============================================================================

package drf

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ChuLiYu/drf-sim/internal/resource"
	"github.com/ChuLiYu/drf-sim/pkg/types"
)

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	// 框架已註冊
	ErrAlreadyRegistered = errors.New("drf: framework already registered")
	// 框架未註冊
	ErrNotRegistered = errors.New("drf: framework not registered")
	// 回收後消耗量為負
	ErrConsistencyViolation = errors.New("drf: consistency violation")
	// 總容量必須每一維都 > 0
	ErrInvalidCapacity = errors.New("drf: capacity must be positive in every dimension")
)

// 浮點誤差容忍度，低於此值的負數視為 0
const negativeTolerance = 1e-9

// ============================================================================
// 資料結構定義
// ============================================================================

// Entry 排序結果中的一筆
type Entry struct {
	Framework types.FrameworkID `json:"framework"`
	Share     float64           `json:"share"`
}

// Tracker 單一 agent 的主導佔比追蹤器
type Tracker struct {
	total    resource.Vector
	consumed resource.Vector
	users    map[types.FrameworkID]resource.Vector
	share    map[types.FrameworkID]float64
	order    []types.FrameworkID // 註冊順序，作為排序的 tie-breaker
}

// NewTracker 以 agent 總容量建立追蹤器
func NewTracker(total resource.Vector) (*Tracker, error) {
	if !total.Positive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCapacity, total)
	}
	return &Tracker{
		total:    total,
		consumed: resource.Zero(total.Dimensions()),
		users:    make(map[types.FrameworkID]resource.Vector),
		share:    make(map[types.FrameworkID]float64),
		order:    make([]types.FrameworkID, 0),
	}, nil
}

// ============================================================================
// 核心方法實作
// ============================================================================

// RegisterFramework 註冊框架，消耗量與佔比皆為 0
func (t *Tracker) RegisterFramework(id types.FrameworkID) error {
	if _, exists := t.users[id]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}
	t.users[id] = resource.Zero(t.total.Dimensions())
	t.share[id] = 0
	t.order = append(t.order, id)
	return nil
}

// Registered 框架是否已註冊
func (t *Tracker) Registered(id types.FrameworkID) bool {
	_, ok := t.users[id]
	return ok
}

// Total 總容量
func (t *Tracker) Total() resource.Vector {
	return t.total
}

// Consumed 目前總消耗
func (t *Tracker) Consumed() resource.Vector {
	return t.consumed
}

// Available 剩餘容量 = total - consumed
func (t *Tracker) Available() resource.Vector {
	// consumed 與 total 維度在建構時就一致
	avail, _ := t.total.Subtract(t.consumed)
	return avail
}

// Usage 框架目前的消耗向量
func (t *Tracker) Usage(id types.FrameworkID) (resource.Vector, bool) {
	v, ok := t.users[id]
	return v, ok
}

// Share 框架目前的主導佔比
func (t *Tracker) Share(id types.FrameworkID) (float64, bool) {
	s, ok := t.share[id]
	return s, ok
}

// Frameworks 依註冊順序回傳所有框架
func (t *Tracker) Frameworks() []types.FrameworkID {
	out := make([]types.FrameworkID, len(t.order))
	copy(out, t.order)
	return out
}

// OrderedFrameworks 依主導佔比遞增排序，佔比相同時保持註冊順序
func (t *Tracker) OrderedFrameworks() []Entry {
	entries := make([]Entry, 0, len(t.order))
	for _, id := range t.order {
		entries = append(entries, Entry{Framework: id, Share: t.share[id]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Share < entries[j].Share
	})
	return entries
}

// Allocate 將資源記到框架名下
//
// 錯誤處理：
//   - ErrNotRegistered: 框架未註冊
//   - resource.ErrDimensionMismatch: 維度不符，狀態不變
func (t *Tracker) Allocate(id types.FrameworkID, r resource.Vector) error {
	user, ok := t.users[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}

	consumed, err := t.consumed.Add(r)
	if err != nil {
		return err
	}
	next, err := user.Add(r)
	if err != nil {
		return err
	}

	t.commit(id, consumed, next)
	return nil
}

// Recover 回收框架名下的資源，Allocate 的反向操作
//
// 錯誤處理：
//   - ErrNotRegistered: 框架未註冊
//   - resource.ErrDimensionMismatch: 維度不符，狀態不變
//   - ErrConsistencyViolation: 回收後消耗量為負，狀態不變
func (t *Tracker) Recover(id types.FrameworkID, r resource.Vector) error {
	user, ok := t.users[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}

	consumed, err := t.consumed.Subtract(r)
	if err != nil {
		return err
	}
	next, err := user.Subtract(r)
	if err != nil {
		return err
	}

	if d := next.Negative(negativeTolerance); d >= 0 {
		return fmt.Errorf("%w: framework %s would consume %s (dimension %d negative)",
			ErrConsistencyViolation, id, next, d)
	}
	if d := consumed.Negative(negativeTolerance); d >= 0 {
		return fmt.Errorf("%w: agent would consume %s (dimension %d negative)",
			ErrConsistencyViolation, consumed, d)
	}

	t.commit(id, snap(consumed), snap(next))
	return nil
}

// commit 寫入新的消耗量並重新計算佔比
func (t *Tracker) commit(id types.FrameworkID, consumed, user resource.Vector) {
	t.consumed = consumed
	t.users[id] = user

	ratio, _ := user.Divide(t.total)
	t.share[id] = ratio.Max()
}

// snap 把浮點誤差造成的極小負數歸零
func snap(v resource.Vector) resource.Vector {
	if v.Negative(0) < 0 {
		return v
	}
	values := v.Values()
	for i, x := range values {
		if x < 0 {
			values[i] = 0
		}
	}
	return resource.New(values...)
}
