package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "share.yaml", `
ticks: 12
filter_ticks: 3
agents:
  - name: default
    resources: [9, 18]
frameworks:
  - name: A
    policy: launcher
    task: [3, 1]
    duration: 4
  - name: B
    policy: backlog
    queue:
      - resources: [1, 4]
        duration: 2
      - resources: [1, 4]
  - name: C
    policy: decliner
    refuse_ticks: 2
`)

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "share", s.Name, "name defaults to file name")
	assert.Equal(t, 12, s.Ticks)
	assert.Equal(t, 3, s.FilterTicks)
	require.Len(t, s.Frameworks, 3)
	assert.Equal(t, []float64{3, 1}, s.Frameworks[0].Task)
	assert.Equal(t, 4, s.Frameworks[0].Duration)
	require.Len(t, s.Frameworks[1].Queue, 2)
	assert.Equal(t, 2, s.Frameworks[1].Queue[0].Duration)
	assert.Equal(t, 2, s.Frameworks[2].RefuseTicks)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "short.toml", `
name = "short"
ticks = 5

[[agents]]
name = "default"
resources = [9.0, 18.0]

[[frameworks]]
name = "A"
policy = "launcher"
task = [1.0, 3.0]
duration = 3
`)

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "short", s.Name)
	assert.Equal(t, []float64{9, 18}, s.Agents[0].Resources)
	assert.Equal(t, 3, s.Frameworks[0].Duration)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(writeFile(t, "scenario.json", `{}`))
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "broken.yaml", "agents: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Scenario {
		s, err := Builtin("drf-share")
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name   string
		mutate func(*Scenario)
	}{
		{"no agents", func(s *Scenario) { s.Agents = nil }},
		{"negative ticks", func(s *Scenario) { s.Ticks = -1 }},
		{"duplicate agent", func(s *Scenario) { s.Agents = append(s.Agents, s.Agents[0]) }},
		{"agent dimension mismatch", func(s *Scenario) {
			s.Agents = append(s.Agents, AgentSpec{Name: "other", Resources: []float64{1}})
		}},
		{"zero capacity", func(s *Scenario) { s.Agents[0].Resources = []float64{0, 1} }},
		{"duplicate framework", func(s *Scenario) { s.Frameworks[1].Name = "A" }},
		{"unknown policy", func(s *Scenario) { s.Frameworks[0].Policy = "greedy" }},
		{"task dimension mismatch", func(s *Scenario) { s.Frameworks[0].Task = []float64{1} }},
		{"queue dimension mismatch", func(s *Scenario) {
			s.Frameworks[0].Policy = PolicyBacklog
			s.Frameworks[0].Queue = []TaskSpec{{Resources: []float64{1, 2, 3}}}
		}},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			assert.ErrorIs(t, s.Validate(), ErrInvalidScenario)
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	for _, format := range []string{FormatYAML, FormatTOML} {
		t.Run(format, func(t *testing.T) {
			s, err := Builtin("filter-starvation")
			require.NoError(t, err)

			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, s, format))

			back, err := Decode(&buf, format)
			require.NoError(t, err)
			assert.Equal(t, s, back)
		})
	}
}

func TestClone(t *testing.T) {
	s := &Scenario{
		Name:   "clone",
		Ticks:  3,
		Agents: []AgentSpec{{Name: "default", Resources: []float64{9, 18}}},
		Frameworks: []FrameworkSpec{
			{Name: "A", Policy: PolicyLauncher, Task: []float64{3, 1}},
			{Name: "B", Policy: PolicyBacklog, Queue: []TaskSpec{{Resources: []float64{1, 4}}}},
		},
	}

	c := s.Clone()
	require.Equal(t, s, c)

	c.Agents[0].Resources[0] = 1
	c.Frameworks[0].Task[0] = 1
	c.Frameworks[1].Queue[0].Resources[0] = 1
	c.Frameworks = append(c.Frameworks, FrameworkSpec{Name: "C"})

	assert.Equal(t, []float64{9, 18}, s.Agents[0].Resources)
	assert.Equal(t, []float64{3, 1}, s.Frameworks[0].Task)
	assert.Equal(t, []float64{1, 4}, s.Frameworks[1].Queue[0].Resources)
	assert.Len(t, s.Frameworks, 2)
	assert.Nil(t, c.Frameworks[0].Queue, "nil slices stay nil")
}

func TestBuiltins(t *testing.T) {
	assert.Equal(t, []string{"drf-share", "filter-starvation", "short-lived"}, BuiltinNames())
	for _, name := range BuiltinNames() {
		s, err := Builtin(name)
		require.NoError(t, err)
		assert.NoError(t, s.Validate(), name)
	}

	_, err := Builtin("nope")
	assert.Error(t, err)

	// 每次回傳新的副本
	a, _ := Builtin("drf-share")
	a.Ticks = 99
	b, _ := Builtin("drf-share")
	assert.Equal(t, 10, b.Ticks)
}
