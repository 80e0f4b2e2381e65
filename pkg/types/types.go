// Package types 定義了 drf-sim 系統中共用的領域模型
package types

import "github.com/ChuLiYu/drf-sim/internal/resource"

// FrameworkID 框架（排程器）唯一識別碼
type FrameworkID string

// TaskID 任務識別碼，在同一個框架內唯一
type TaskID string

// TaskStatus 任務狀態
type TaskStatus string

// 定義任務狀態常數
const (
	// StatusFinished 任務執行完畢（目前唯一的終止狀態）
	StatusFinished TaskStatus = "FINISHED"
)

// IsTerminal 回報狀態是否為終止狀態，終止狀態的任務資源會被回收
func (s TaskStatus) IsTerminal() bool {
	return s == StatusFinished
}

// Task 代表在某個 agent 上執行的任務
type Task struct {
	Framework FrameworkID     `json:"framework"`
	ID        TaskID          `json:"id"`
	Resources resource.Vector `json:"resources"`

	// Duration 剩餘 tick 數；nil 表示永不結束
	Duration *int `json:"duration,omitempty"`
}

// Bounded 回報任務是否有有限的執行時間
func (t Task) Bounded() bool {
	return t.Duration != nil
}

// Ticks 建立一個 duration 指標，方便 Task 字面量使用
func Ticks(n int) *int {
	return &n
}

// Offer 一次資源提供，只在發出它的 allocation round 內有效
type Offer struct {
	Agent     string          `json:"agent"`
	Framework FrameworkID     `json:"framework"`
	Resources resource.Vector `json:"resources"`
	Round     int64           `json:"round"`
}

// StatusUpdate 任務狀態更新，由 agent 回報給 allocator 再轉送給框架
type StatusUpdate struct {
	Agent     string      `json:"agent"`
	Framework FrameworkID `json:"framework"`
	Task      TaskID      `json:"task"`
	Status    TaskStatus  `json:"status"`
}

// Event 狀態轉換事件，依發生順序送出
type Event struct {
	Name   string `json:"name"`
	Data   any    `json:"data"`
	Source string `json:"source"`
	ID     string `json:"id"`
	Time   int64  `json:"time"`
}
