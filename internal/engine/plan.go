package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/jobtrace/internal/config"
)

const maxPlanSize = 1024 * 1024 // 1MB

// Plan is a declarative tree of jobs to run. Durations and error counts are
// simulated; the plan exists to drive the lifecycle hooks.
type Plan struct {
	Project     string    `koanf:"project" toml:"project"`
	Environment string    `koanf:"environment" toml:"environment"`
	Jobs        []JobSpec `koanf:"jobs" toml:"jobs"`
}

// JobSpec describes a job and its ordered actions.
type JobSpec struct {
	Name             string       `koanf:"name" toml:"name"`
	Engine           string       `koanf:"engine" toml:"engine"`
	RunConfiguration string       `koanf:"run_configuration" toml:"run_configuration"`
	FilePath         string       `koanf:"file" toml:"file"`
	Version          string       `koanf:"version" toml:"version"`
	LogText          string       `koanf:"log" toml:"log"`
	Actions          []ActionSpec `koanf:"actions" toml:"actions"`
}

// DataFlowSpec describes a data flow and its steps.
type DataFlowSpec struct {
	Name     string `koanf:"name" toml:"name"`
	Engine   string `koanf:"engine" toml:"engine"`
	FilePath string `koanf:"file" toml:"file"`
	Version  string `koanf:"version" toml:"version"`
	LogText  string `koanf:"log" toml:"log"`
	// Parallelism caps concurrently running steps; 0 runs all at once.
	Parallelism int        `koanf:"parallelism" toml:"parallelism"`
	Steps       []StepSpec `koanf:"steps" toml:"steps"`
}

// Work is the simulated work of a step or action.
type Work struct {
	Name     string          `koanf:"name" toml:"name"`
	Plugin   string          `koanf:"plugin" toml:"plugin"`
	Duration config.Duration `koanf:"duration" toml:"duration"`
	Errors   int64           `koanf:"errors" toml:"errors"`
	// Job and DataFlow launch a nested unit from this step or action.
	Job      *JobSpec      `koanf:"job" toml:"job"`
	DataFlow *DataFlowSpec `koanf:"dataflow" toml:"dataflow"`
}

// ActionSpec is one action of a job.
type ActionSpec = Work

// StepSpec is one step of a data flow.
type StepSpec = Work

// LoadPlan reads a plan from a .yaml, .yml or .toml file.
func LoadPlan(path string) (*Plan, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat plan: %w", err)
	}
	if info.Size() > maxPlanSize {
		return nil, fmt.Errorf("plan file too large: %d bytes (max %d)", info.Size(), maxPlanSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".toml":
		return ParseTOML(data)
	default:
		return nil, fmt.Errorf("unsupported plan format %q (want .yaml, .yml or .toml)", ext)
	}
}

// ParseYAML decodes a YAML plan.
func ParseYAML(data []byte) (*Plan, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}

	var p Plan
	if err := k.Unmarshal("", &p); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseTOML decodes a TOML plan.
func ParseTOML(data []byte) (*Plan, error) {
	var p Plan
	if _, err := toml.Decode(string(data), &p); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks that every unit is named and nothing launches two units.
func (p *Plan) Validate() error {
	if len(p.Jobs) == 0 {
		return fmt.Errorf("plan has no jobs")
	}
	for i := range p.Jobs {
		if err := p.Jobs[i].validate(fmt.Sprintf("jobs[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

func (j *JobSpec) validate(path string) error {
	if j.Name == "" {
		return fmt.Errorf("%s: name is required", path)
	}
	for i := range j.Actions {
		if err := j.Actions[i].validate(fmt.Sprintf("%s.actions[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}

func (d *DataFlowSpec) validate(path string) error {
	if d.Name == "" {
		return fmt.Errorf("%s: name is required", path)
	}
	if d.Parallelism < 0 {
		return fmt.Errorf("%s: parallelism must be >= 0", path)
	}
	for i := range d.Steps {
		if err := d.Steps[i].validate(fmt.Sprintf("%s.steps[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}

func (w *Work) validate(path string) error {
	if w.Name == "" {
		return fmt.Errorf("%s: name is required", path)
	}
	if w.Errors < 0 {
		return fmt.Errorf("%s: errors must be >= 0", path)
	}
	if w.Job != nil && w.DataFlow != nil {
		return fmt.Errorf("%s: launches both a job and a data flow", path)
	}
	if w.Job != nil {
		return w.Job.validate(path + ".job")
	}
	if w.DataFlow != nil {
		return w.DataFlow.validate(path + ".dataflow")
	}
	return nil
}
