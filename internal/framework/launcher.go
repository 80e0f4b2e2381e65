package framework

import (
	"github.com/ChuLiYu/drf-sim/internal/resource"
	"github.com/ChuLiYu/drf-sim/pkg/types"
)

// Launcher 每次收到 offer 就啟動一個固定大小的任務
type Launcher struct {
	base
	task     resource.Vector
	duration int // 0 表示永不結束
	maxTasks int // 0 表示不限
}

// LauncherConfig Launcher 配置
type LauncherConfig struct {
	Task     resource.Vector
	Duration int
	MaxTasks int
	Options
}

// NewLauncher 建立 Launcher
func NewLauncher(name types.FrameworkID, driver Driver, cfg LauncherConfig) *Launcher {
	return &Launcher{
		base:     newBase(name, driver, cfg.Options),
		task:     cfg.Task,
		duration: cfg.Duration,
		maxTasks: cfg.MaxTasks,
	}
}

// Offer 任務放得下且未達上限就啟動，否則拒絕
func (l *Launcher) Offer(offers []types.Offer) {
	for _, offer := range offers {
		l.stats.Offers++
		if l.maxTasks > 0 && l.stats.Launched >= l.maxTasks {
			l.decline(offer)
			continue
		}
		if !fits(l.task, offer) {
			l.decline(offer)
			continue
		}

		task := types.Task{
			Framework: l.name,
			ID:        l.nextTaskID(),
			Resources: l.task,
		}
		if l.duration > 0 {
			task.Duration = types.Ticks(l.duration)
		}
		l.launch(task, offer)
	}
}
