package allocator

import (
	"github.com/ChuLiYu/drf-sim/internal/drf"
	"github.com/ChuLiYu/drf-sim/internal/resource"
	"github.com/ChuLiYu/drf-sim/pkg/types"
)

// AgentStatus 單一 agent 的分配狀態
type AgentStatus struct {
	Name      string                                `json:"name"`
	Total     resource.Vector                       `json:"total"`
	Consumed  resource.Vector                       `json:"consumed"`
	Available resource.Vector                       `json:"available"`
	Usage     map[types.FrameworkID]resource.Vector `json:"usage"`
	Shares    []drf.Entry                           `json:"shares"`
	Filters   map[types.FrameworkID]int             `json:"filters,omitempty"`
	Tasks     []types.Task                          `json:"tasks,omitempty"`
}

// Status 回傳所有 agent 的分配狀態
func (a *Allocator) Status() []AgentStatus {
	out := make([]AgentStatus, 0, len(a.agentOrder))
	for _, ag := range a.Agents() {
		tracker := ag.Tracker()
		usage := make(map[types.FrameworkID]resource.Vector)
		for _, id := range tracker.Frameworks() {
			usage[id], _ = tracker.Usage(id)
		}
		out = append(out, AgentStatus{
			Name:      ag.Name(),
			Total:     tracker.Total(),
			Consumed:  tracker.Consumed(),
			Available: tracker.Available(),
			Usage:     usage,
			Shares:    tracker.OrderedFrameworks(),
			Filters:   ag.Filters(),
			Tasks:     ag.Tasks(),
		})
	}
	return out
}
