package pconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/flowmind-ai/pipeline/executor"
)

// StageSpec is one YAML-declared stage. The handler itself is never
// declared in YAML — Build resolves Name against a caller-supplied
// registry of executor.Handler values, since handlers are Go code.
type StageSpec struct {
	Name          string `yaml:"name"`
	Enabled       *bool  `yaml:"enabled,omitempty"`
	ShouldExecute string `yaml:"shouldExecute,omitempty"`
}

// EntrySpec is either a single Stage or a Parallel group of Stages.
type EntrySpec struct {
	Stage    *StageSpec  `yaml:"stage,omitempty"`
	Parallel []StageSpec `yaml:"parallel,omitempty"`
}

// PlanSpec is the on-disk shape of a Plan (spec.md §9b, grounded on
// the teacher's WorkflowDefinition / loadWorkflowFile).
type PlanSpec struct {
	Entries []EntrySpec `yaml:"entries"`
}

// LoadPlanSpec reads and parses a PlanSpec from path.
func LoadPlanSpec(path string) (*PlanSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pconfig: read plan %q: %w", path, err)
	}
	var spec PlanSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("pconfig: parse plan %q: %w", path, err)
	}
	return &spec, nil
}

// Build resolves a PlanSpec against a handler registry, compiling each
// stage's ShouldExecute gate expression, and constructs an
// executor.Plan. Every stage name in the spec must have a matching
// handler in handlers.
func (p *PlanSpec) Build(handlers map[string]executor.Handler) (*executor.Plan, error) {
	entries := make([]executor.PlanEntry, 0, len(p.Entries))

	for _, e := range p.Entries {
		switch {
		case e.Stage != nil:
			stage, err := buildStage(*e.Stage, handlers)
			if err != nil {
				return nil, err
			}
			entries = append(entries, stage)
		case len(e.Parallel) > 0:
			stages := make([]executor.Stage, 0, len(e.Parallel))
			for _, spec := range e.Parallel {
				stage, err := buildStage(spec, handlers)
				if err != nil {
					return nil, err
				}
				stages = append(stages, stage)
			}
			entries = append(entries, executor.NewParallelGroup(stages...))
		default:
			return nil, fmt.Errorf("pconfig: plan entry has neither stage nor parallel group")
		}
	}

	return executor.NewPlan(entries...)
}

func buildStage(spec StageSpec, handlers map[string]executor.Handler) (executor.Stage, error) {
	handler, ok := handlers[spec.Name]
	if !ok {
		return executor.Stage{}, fmt.Errorf("pconfig: no handler registered for stage %q", spec.Name)
	}

	stage := executor.NewStage(spec.Name, handler)
	if spec.Enabled != nil {
		stage.Enabled = *spec.Enabled
	}
	if spec.ShouldExecute != "" {
		pred, err := CompileGate(spec.ShouldExecute)
		if err != nil {
			return executor.Stage{}, fmt.Errorf("pconfig: stage %q: %w", spec.Name, err)
		}
		stage = stage.WithShouldExecute(pred)
	}
	return stage, nil
}
