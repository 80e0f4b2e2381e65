// ============================================================================
// DRF Simulator Worker - Simulation Execution Unit
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Function: Each Worker runs in an independent goroutine and executes whole
//           simulations, one scenario at a time
//
// How it works:
//   1. Receive task from taskCh (blocking wait)
//   2. Run the scenario through a fresh controller (with timeout control)
//   3. Send result to resultCh
//   4. Repeat until taskCh is closed
//
// Simulations share no state: every task builds its own bus, allocator and
// frameworks, so workers never need to coordinate.
//
// ============================================================================

package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ChuLiYu/drf-sim/internal/config"
	"github.com/ChuLiYu/drf-sim/internal/controller"
	"github.com/ChuLiYu/drf-sim/internal/report"
)

// Runner executes one scenario and returns its final report
type Runner func(ctx context.Context, s *config.Scenario) (*report.Report, error)

// RunScenario is the default Runner: an in-memory controller without sinks
func RunScenario(ctx context.Context, s *config.Scenario) (*report.Report, error) {
	c, err := controller.New(s, controller.Options{})
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.Run(ctx)
}

// Worker represents a work execution unit
type Worker struct {
	id       int
	run      Runner
	taskCh   <-chan Task
	resultCh chan<- Result
	stopCh   <-chan struct{}
}

// newWorker creates a new Worker instance
func newWorker(id int, run Runner, taskCh <-chan Task, resultCh chan<- Result, stopCh <-chan struct{}) *Worker {
	return &Worker{
		id:       id,
		run:      run,
		taskCh:   taskCh,
		resultCh: resultCh,
		stopCh:   stopCh,
	}
}

// Run is the main loop of Worker
func (w *Worker) Run() {
	for task := range w.taskCh {
		// 停止後剩下的任務直接略過
		select {
		case <-w.stopCh:
			continue
		default:
		}

		result := w.execute(task)

		// Results are never dropped; only a stopped pool abandons them
		select {
		case w.resultCh <- result:
		case <-w.stopCh:
			log.Warn("Worker dropped result on stop", "worker", w.id, "task", task.ID)
		}
	}
}

// execute runs one task and recovers from panics inside the runner
func (w *Worker) execute(task Task) (result Result) {
	start := time.Now()
	result.TaskID = task.ID

	ctx := context.Background()
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			result.Report = nil
			result.Error = fmt.Errorf("worker %d: task %s panicked: %v", w.id, task.ID, r)
			log.Error("Worker recovered from panic", "worker", w.id, "task", task.ID, "panic", r)
		}
		result.Duration = time.Since(start)
	}()

	if task.Scenario == nil {
		result.Error = fmt.Errorf("task %s: no scenario", task.ID)
		return result
	}

	result.Report, result.Error = w.run(ctx, task.Scenario)
	log.Debug("Worker finished task", "worker", w.id, "task", task.ID, "error", result.Error)
	return result
}
