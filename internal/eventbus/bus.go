// ============================================================================
// Event Bus - 狀態轉換事件的扇出（fan-out）
// ============================================================================
//
// Package: internal/eventbus
// 文件: bus.go
// 功能: 將 allocator / agent / simulator 的每一次狀態轉換送到所有 sink
//
// 生命週期:
//   Bus 是一般物件，由 controller 建立後以參考傳入各元件（不是全域單例）。
//   1. New()   - 建立尚未初始化的 Bus
//   2. Init()  - 設定時鐘與 sink，只能呼叫一次（ErrAlreadyInitialized）
//   3. Publish - 初始化前呼叫回傳 ErrNotInitialized
//
//   nil *Bus 代表「沒有事件 sink」的簡化配置，Publish 為 no-op。
//
// Sink 錯誤:
//   單一 sink 失敗只記 Warn 日誌，不中斷其他 sink。
//
// ============================================================================

package eventbus

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/ChuLiYu/drf-sim/pkg/types"
)

var log = slog.Default()

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	ErrNotInitialized     = errors.New("eventbus: not initialized")
	ErrAlreadyInitialized = errors.New("eventbus: already initialized")
)

// ============================================================================
// 介面定義
// ============================================================================

// Source 發布事件的元件
type Source interface {
	// SourceName 用於分組，例如 "allocator"、"agent"
	SourceName() string
	// SourceID 用於區分同類元件，例如 agent 名稱
	SourceID() string
}

// Sink 事件輸出端，不可修改收到的事件
type Sink interface {
	Handle(event types.Event) error
}

// SinkFunc 讓一般函式實作 Sink
type SinkFunc func(event types.Event) error

// Handle 呼叫 f(event)
func (f SinkFunc) Handle(event types.Event) error {
	return f(event)
}

// Clock 回傳目前的模擬時間（tick）
type Clock func() int64

// ============================================================================
// Bus
// ============================================================================

// Bus 事件匯流排
type Bus struct {
	mu          sync.Mutex
	initialized bool
	clock       Clock
	sinks       []Sink
}

// New 建立尚未初始化的 Bus
func New() *Bus {
	return &Bus{}
}

// NewBus 建立並初始化 Bus
func NewBus(clock Clock, sinks ...Sink) *Bus {
	b := New()
	// 新建立的 Bus 不會重複初始化
	_ = b.Init(clock, sinks...)
	return b
}

// Init 設定時鐘與 sink，只能呼叫一次
func (b *Bus) Init(clock Clock, sinks ...Sink) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return ErrAlreadyInitialized
	}
	if clock == nil {
		clock = func() int64 { return 0 }
	}
	b.clock = clock
	b.sinks = append(b.sinks, sinks...)
	b.initialized = true
	return nil
}

// AddSink 追加一個 sink，依加入順序收到事件
func (b *Bus) AddSink(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Publish 建立事件並依序送給所有 sink
func (b *Bus) Publish(src Source, name string, data any) error {
	if b == nil {
		return nil
	}

	b.mu.Lock()
	if !b.initialized {
		b.mu.Unlock()
		return ErrNotInitialized
	}
	sinks := make([]Sink, len(b.sinks))
	copy(sinks, b.sinks)
	event := types.Event{
		Name:   name,
		Data:   data,
		Source: src.SourceName(),
		ID:     src.SourceID(),
		Time:   b.clock(),
	}
	b.mu.Unlock()

	for _, s := range sinks {
		if err := s.Handle(event); err != nil {
			log.Warn("Event sink failed", "event", name, "source", event.Source, "error", err)
		}
	}
	return nil
}
