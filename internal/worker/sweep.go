package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ChuLiYu/drf-sim/internal/config"
)

// Sweep 以 workers 個 goroutine 執行所有任務，結果依輸入順序回傳
//
// 單一任務失敗只記錄在對應的 Result；ctx 取消時停止等待並回傳 ctx.Err()。
func Sweep(ctx context.Context, tasks []Task, workers int, run Runner) ([]Result, error) {
	index := make(map[string]int, len(tasks))
	for i, t := range tasks {
		if _, dup := index[t.ID]; dup {
			return nil, fmt.Errorf("sweep: duplicate task id %q", t.ID)
		}
		index[t.ID] = i
	}

	pool := NewPool(len(tasks), run)
	if err := pool.Start(workers); err != nil {
		return nil, err
	}
	defer pool.Stop()

	for _, t := range tasks {
		if err := pool.Submit(t); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	results := make([]Result, len(tasks))
	for received := 0; received < len(tasks); received++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r, ok := <-pool.resultCh:
			if !ok {
				return nil, ErrPoolClosed
			}
			results[index[r.TaskID]] = r
		}
	}

	log.Info("Sweep completed", "tasks", len(tasks), "workers", workers, "duration", time.Since(start))
	return results, nil
}

// FilterTicksSweep 以不同的 filter_ticks 複製情境
func FilterTicksSweep(base *config.Scenario, values []int, timeout time.Duration) []Task {
	tasks := make([]Task, 0, len(values))
	for _, v := range values {
		s := base.Clone()
		s.FilterTicks = v
		tasks = append(tasks, Task{
			ID:       fmt.Sprintf("%s/filter_ticks=%d", base.Name, v),
			Scenario: s,
			Timeout:  timeout,
		})
	}
	return tasks
}

// ScenarioTasks 每個情境一個任務，以情境名稱為 ID
func ScenarioTasks(scenarios []*config.Scenario, timeout time.Duration) []Task {
	tasks := make([]Task, 0, len(scenarios))
	for _, s := range scenarios {
		tasks = append(tasks, Task{ID: s.Name, Scenario: s, Timeout: timeout})
	}
	return tasks
}
