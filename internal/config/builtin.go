package config

import (
	"fmt"
	"sort"
)

var builtins = map[string]func() *Scenario{
	// 兩個框架在同一個 agent 上收斂到相同的主導佔比
	"drf-share": func() *Scenario {
		return &Scenario{
			Name:  "drf-share",
			Ticks: 10,
			Agents: []AgentSpec{
				{Name: "default", Resources: []float64{9, 18}},
			},
			Frameworks: []FrameworkSpec{
				{Name: "A", Policy: PolicyLauncher, Task: []float64{3, 1}},
				{Name: "B", Policy: PolicyLauncher, Task: []float64{1, 4}},
			},
		}
	},
	// 五個只會拒絕的框架，加上一個等待資源的框架
	"filter-starvation": func() *Scenario {
		s := &Scenario{
			Name:  "filter-starvation",
			Ticks: 15,
			Agents: []AgentSpec{
				{Name: "default", Resources: []float64{9, 18}},
			},
		}
		for _, name := range []string{"A", "B", "C", "D", "E"} {
			s.Frameworks = append(s.Frameworks, FrameworkSpec{Name: name, Policy: PolicyDecliner})
		}
		s.Frameworks = append(s.Frameworks, FrameworkSpec{Name: "F", Policy: PolicyLauncher, Task: []float64{1, 3}})
		return s
	},
	// 短期任務：完成後資源回收並重新分配
	"short-lived": func() *Scenario {
		return &Scenario{
			Name:  "short-lived",
			Ticks: 15,
			Agents: []AgentSpec{
				{Name: "default", Resources: []float64{9, 18}},
			},
			Frameworks: []FrameworkSpec{
				{Name: "A", Policy: PolicyLauncher, Task: []float64{1, 3}, Duration: 3},
				{Name: "B", Policy: PolicyLauncher, Task: []float64{1, 3}, Duration: 3},
			},
		}
	},
}

// Builtin returns a fresh copy of a built-in scenario
func Builtin(name string) (*Scenario, error) {
	f, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown built-in scenario %q (available: %v)", name, BuiltinNames())
	}
	return f(), nil
}

// BuiltinNames lists built-in scenarios in sorted order
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
