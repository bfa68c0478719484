// Package executor implements the step executor (spec.md §4.1): the
// scheduler that drives an ordered Plan of stages and parallel groups
// over a state.State, honoring enablement, conditional gating,
// cancellation, and error propagation. Grounded on the teacher's
// orchestration.PlanExecutor, generalized from routing-step fan-out
// to arbitrary stage handlers.
package executor

import (
	"context"
	"fmt"

	"github.com/flowmind-ai/pipeline/condition"
	"github.com/flowmind-ai/pipeline/perr"
	"github.com/flowmind-ai/pipeline/state"
)

// Handler is a named processing step: a function from state to state.
// A handler that wants to stop the plan returns a state with Failure
// set. A handler must not mutate its input in place.
type Handler func(ctx context.Context, s state.State) state.State

// Stage is a single named plan-entry.
type Stage struct {
	Name          string
	Handler       Handler
	Enabled       bool
	ShouldExecute condition.Predicate
}

// NewStage builds an enabled Stage with no gating predicate.
func NewStage(name string, handler Handler) Stage {
	return Stage{Name: name, Handler: handler, Enabled: true}
}

// WithShouldExecute attaches a gating predicate, evaluated against the
// stage's input snapshot.
func (s Stage) WithShouldExecute(p condition.Predicate) Stage {
	s.ShouldExecute = p
	return s
}

// Disabled marks the stage as permanently skipped.
func (s Stage) Disabled() Stage {
	s.Enabled = false
	return s
}

func (Stage) planEntry() {}

// ParallelGroup is an unordered set of stages scheduled together; all
// active members run concurrently against the same input snapshot.
// Declaration order within Stages governs tie-breaking on error and
// merge precedence on success (spec.md §4.1).
type ParallelGroup struct {
	Stages []Stage
}

// NewParallelGroup builds a group from its member stages in
// declaration order.
func NewParallelGroup(stages ...Stage) ParallelGroup {
	return ParallelGroup{Stages: stages}
}

func (ParallelGroup) planEntry() {}

// PlanEntry is either a Stage or a ParallelGroup.
type PlanEntry interface {
	planEntry()
}

// Plan is the ordered configuration of processing stages and parallel
// groups for a single execution. Plans are long-lived and safe to
// share across concurrent executions.
type Plan struct {
	Entries []PlanEntry
}

// NewPlan validates and builds a Plan. Stage names must be unique
// across the whole plan (including names nested in parallel groups);
// handlers must be non-nil.
func NewPlan(entries ...PlanEntry) (*Plan, error) {
	if len(entries) == 0 {
		return nil, perr.ErrPlanEmpty
	}

	seen := make(map[string]struct{})
	checkStage := func(s Stage) error {
		if s.Handler == nil {
			return fmt.Errorf("stage %q: %w", s.Name, perr.ErrNilHandler)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("stage %q: %w", s.Name, perr.ErrDuplicateStageName)
		}
		seen[s.Name] = struct{}{}
		return nil
	}

	for _, e := range entries {
		switch v := e.(type) {
		case Stage:
			if err := checkStage(v); err != nil {
				return nil, err
			}
		case ParallelGroup:
			for _, s := range v.Stages {
				if err := checkStage(s); err != nil {
					return nil, err
				}
			}
		}
	}

	return &Plan{Entries: entries}, nil
}
