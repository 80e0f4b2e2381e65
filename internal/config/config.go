// ============================================================================
// Scenario Configuration
// ============================================================================
//
// Package: internal/config
// File: config.go
// Purpose: Scenario files describing agents, frameworks and run length
//
// Formats:
//   Chosen by file extension:
//   - .yaml / .yml -> gopkg.in/yaml.v3
//   - .toml        -> github.com/pelletier/go-toml/v2
//
// Example (YAML):
//   name: drf-share
//   ticks: 10
//   filter_ticks: 5
//   agents:
//     - name: default
//       resources: [9, 18]
//   frameworks:
//     - name: A
//       policy: launcher
//       task: [3, 1]
//     - name: B
//       policy: backlog
//       queue:
//         - resources: [1, 4]
//           duration: 3
//
// ============================================================================

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Framework policies
const (
	PolicyLauncher = "launcher"
	PolicyDecliner = "decliner"
	PolicyBacklog  = "backlog"
)

// Supported file formats
const (
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

var (
	// ErrInvalidScenario is returned by Validate
	ErrInvalidScenario = errors.New("config: invalid scenario")
	// ErrUnknownFormat is returned for unsupported file extensions
	ErrUnknownFormat = errors.New("config: unknown format")
)

// Scenario represents a complete simulation setup
type Scenario struct {
	Name        string          `yaml:"name" toml:"name" json:"name"`
	Ticks       int             `yaml:"ticks" toml:"ticks" json:"ticks"`
	FilterTicks int             `yaml:"filter_ticks,omitempty" toml:"filter_ticks,omitempty" json:"filter_ticks,omitempty"`
	Agents      []AgentSpec     `yaml:"agents" toml:"agents" json:"agents"`
	Frameworks  []FrameworkSpec `yaml:"frameworks" toml:"frameworks" json:"frameworks"`
}

// Clone returns a deep copy; sweeps hand each worker its own copy
func (s *Scenario) Clone() *Scenario {
	out := *s
	out.Agents = slices.Clone(s.Agents)
	for i := range out.Agents {
		out.Agents[i].Resources = slices.Clone(out.Agents[i].Resources)
	}
	out.Frameworks = slices.Clone(s.Frameworks)
	for i := range out.Frameworks {
		f := &out.Frameworks[i]
		f.Task = slices.Clone(f.Task)
		f.Queue = slices.Clone(f.Queue)
		for j := range f.Queue {
			f.Queue[j].Resources = slices.Clone(f.Queue[j].Resources)
		}
	}
	return &out
}

// AgentSpec describes one agent
type AgentSpec struct {
	Name      string    `yaml:"name" toml:"name" json:"name"`
	Resources []float64 `yaml:"resources" toml:"resources" json:"resources"`
}

// FrameworkSpec describes one framework and its policy
type FrameworkSpec struct {
	Name        string     `yaml:"name" toml:"name" json:"name"`
	Policy      string     `yaml:"policy" toml:"policy" json:"policy"`
	Task        []float64  `yaml:"task,omitempty" toml:"task,omitempty" json:"task,omitempty"`
	Duration    int        `yaml:"duration,omitempty" toml:"duration,omitempty" json:"duration,omitempty"`
	MaxTasks    int        `yaml:"max_tasks,omitempty" toml:"max_tasks,omitempty" json:"max_tasks,omitempty"`
	RefuseTicks int        `yaml:"refuse_ticks,omitempty" toml:"refuse_ticks,omitempty" json:"refuse_ticks,omitempty"`
	Queue       []TaskSpec `yaml:"queue,omitempty" toml:"queue,omitempty" json:"queue,omitempty"`
}

// TaskSpec is a single queued demand of a backlog framework
type TaskSpec struct {
	Resources []float64 `yaml:"resources" toml:"resources" json:"resources"`
	Duration  int       `yaml:"duration,omitempty" toml:"duration,omitempty" json:"duration,omitempty"`
}

// FormatOf maps a file path to a format by extension
func FormatOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
	}
}

// Load reads, decodes and validates a scenario file
func Load(path string) (*Scenario, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := Decode(bytes.NewReader(data), format)
	if err != nil {
		return nil, err
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Decode parses a scenario in the given format without validating it
func Decode(r io.Reader, format string) (*Scenario, error) {
	var s Scenario
	switch format {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&s); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
		}
	case FormatTOML:
		if err := toml.NewDecoder(r).Decode(&s); err != nil {
			return nil, fmt.Errorf("failed to parse scenario TOML: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return &s, nil
}

// Encode writes the scenario in the given format
func Encode(w io.Writer, s *Scenario, format string) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	case FormatTOML:
		return toml.NewEncoder(w).Encode(s)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Validate checks names, dimensions and policies
func (s *Scenario) Validate() error {
	if len(s.Agents) == 0 {
		return fmt.Errorf("%w: no agents", ErrInvalidScenario)
	}
	if s.Ticks < 0 || s.FilterTicks < 0 {
		return fmt.Errorf("%w: ticks and filter_ticks must not be negative", ErrInvalidScenario)
	}

	dims := len(s.Agents[0].Resources)
	agents := make(map[string]bool)
	for _, a := range s.Agents {
		if a.Name == "" {
			return fmt.Errorf("%w: agent without name", ErrInvalidScenario)
		}
		if agents[a.Name] {
			return fmt.Errorf("%w: duplicate agent %q", ErrInvalidScenario, a.Name)
		}
		agents[a.Name] = true
		if len(a.Resources) != dims || dims == 0 {
			return fmt.Errorf("%w: agent %q has %d dimensions, want %d", ErrInvalidScenario, a.Name, len(a.Resources), dims)
		}
		for _, x := range a.Resources {
			if x <= 0 {
				return fmt.Errorf("%w: agent %q capacity must be positive", ErrInvalidScenario, a.Name)
			}
		}
	}

	frameworks := make(map[string]bool)
	for _, f := range s.Frameworks {
		if f.Name == "" {
			return fmt.Errorf("%w: framework without name", ErrInvalidScenario)
		}
		if frameworks[f.Name] {
			return fmt.Errorf("%w: duplicate framework %q", ErrInvalidScenario, f.Name)
		}
		frameworks[f.Name] = true

		switch f.Policy {
		case PolicyLauncher:
			if len(f.Task) != dims {
				return fmt.Errorf("%w: framework %q task has %d dimensions, want %d", ErrInvalidScenario, f.Name, len(f.Task), dims)
			}
		case PolicyDecliner:
		case PolicyBacklog:
			for i, t := range f.Queue {
				if len(t.Resources) != dims {
					return fmt.Errorf("%w: framework %q queue[%d] has %d dimensions, want %d", ErrInvalidScenario, f.Name, i, len(t.Resources), dims)
				}
			}
		default:
			return fmt.Errorf("%w: framework %q has unknown policy %q", ErrInvalidScenario, f.Name, f.Policy)
		}
	}
	return nil
}
