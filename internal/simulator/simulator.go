// ============================================================================
// Simulator - 離散 tick 驅動器
// ============================================================================
//
// Package: internal/simulator
// 文件: simulator.go
// 功能: 以邏輯時間驅動 agent、框架與 allocator
//
// 每個 tick 的順序:
//   1. 每個 agent.Tick()（過濾器倒數、任務倒數、完成回報 → allocator 回收資源）
//   2. 每個框架的 Tick() hook
//   3. allocator.Tick()（一輪分配）
//   4. 邏輯時鐘 +1
//
//   agent 的完成回報必須在同一 tick 的分配之前完成，釋放的容量才會出現在本輪 offer。
//
// 取消:
//   ctx 只在 tick 之間檢查；tick 一旦開始就會跑完。
//
// ============================================================================

package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ChuLiYu/drf-sim/internal/allocator"
	"github.com/ChuLiYu/drf-sim/internal/eventbus"
)

var log = slog.Default()

const tracerName = "github.com/ChuLiYu/drf-sim/internal/simulator"

// Simulator 模擬器
type Simulator struct {
	allocator *allocator.Allocator
	bus       *eventbus.Bus
	tracer    trace.Tracer
	now       atomic.Int64
}

// New 建立模擬器；bus 可為 nil
func New(alloc *allocator.Allocator, bus *eventbus.Bus) *Simulator {
	return &Simulator{
		allocator: alloc,
		bus:       bus,
		tracer:    otel.Tracer(tracerName),
	}
}

// SourceName 實作 eventbus.Source
func (s *Simulator) SourceName() string { return "simulator" }

// SourceID 實作 eventbus.Source
func (s *Simulator) SourceID() string { return "drf_simulator" }

// Now 目前的邏輯時間，可直接作為 eventbus.Clock
func (s *Simulator) Now() int64 {
	return s.now.Load()
}

// Allocator 回傳被驅動的 allocator
func (s *Simulator) Allocator() *allocator.Allocator {
	return s.allocator
}

// Tick 推進 n 個 tick
//
// 任何 agent 或 allocator 的錯誤都會中止模擬並回傳；
// 這些錯誤代表共享狀態不一致，不可忽略。
func (s *Simulator) Tick(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulator) step(ctx context.Context) (err error) {
	now := s.Now()
	_, span := s.tracer.Start(ctx, "simulator.tick",
		trace.WithAttributes(
			attribute.Int64("drfsim.tick", now),
			attribute.Int("drfsim.agents", len(s.allocator.Agents())),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := s.bus.Publish(s, "tick", map[string]any{"tick": now}); err != nil {
		return fmt.Errorf("simulator: publish tick: %w", err)
	}

	for _, ag := range s.allocator.Agents() {
		if err := ag.Tick(); err != nil {
			return fmt.Errorf("tick %d: %w", now, err)
		}
	}

	for _, fw := range s.allocator.Frameworks() {
		fw.Tick()
	}

	if err := s.allocator.Tick(); err != nil {
		return fmt.Errorf("tick %d: allocate: %w", now, err)
	}

	s.now.Add(1)
	log.Debug("Tick completed", "tick", now)
	return nil
}
