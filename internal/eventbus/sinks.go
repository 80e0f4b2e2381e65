package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ChuLiYu/drf-sim/pkg/types"
)

// Recorder 把事件保存在記憶體中，供測試與檢視使用
type Recorder struct {
	mu     sync.Mutex
	events []types.Event
}

// NewRecorder 建立空的 Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Handle 追加事件
func (r *Recorder) Handle(event types.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events 回傳所有事件的副本
func (r *Recorder) Events() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Named 回傳指定名稱的事件
func (r *Recorder) Named(name string) []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.Event
	for _, e := range r.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Reset 清空
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// LogSink 以 slog 輸出人類可讀的事件
type LogSink struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogSink logger 為 nil 時使用 slog.Default()
func NewLogSink(logger *slog.Logger, level slog.Level) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger, level: level}
}

// Handle 寫出一筆日誌
func (s *LogSink) Handle(event types.Event) error {
	s.logger.Log(context.Background(), s.level, event.Name,
		"time", event.Time,
		"source", event.Source,
		"id", event.ID,
		"data", event.Data)
	return nil
}
