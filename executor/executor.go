package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flowmind-ai/pipeline/intent"
	"github.com/flowmind-ai/pipeline/perr"
	"github.com/flowmind-ai/pipeline/state"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Config configures one Execute call. All callbacks are optional.
// Execute invokes only OnStepComplete and OnError, under panic
// recovery: a callback fault is logged and never fails the plan
// (spec.md §9). Execute does not call OnIntentFallback or
// OnVariantUsed.
type Config struct {
	// IncludeErrorDetails controls whether panic text and upstream
	// fault text are attached to a Failure's Details field. Default
	// off in production; callers typically derive this from an
	// environment flag (see pconfig).
	IncludeErrorDetails bool

	Logger *slog.Logger
	Tracer trace.Tracer

	OnStepComplete   func(name string, duration time.Duration)
	OnError          func(view perr.ErrorView)
	OnIntentFallback func(event intent.FallbackEvent)
	OnVariantUsed    func(variant string)
}

func (c *Config) logger() *slog.Logger {
	if c == nil || c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

func (c *Config) tracer() trace.Tracer {
	if c != nil && c.Tracer != nil {
		return c.Tracer
	}
	return otel.Tracer("github.com/flowmind-ai/pipeline/executor")
}

// Result is the outcome of executing a Plan (spec.md §4.1).
type Result struct {
	OK      bool
	State   state.State
	Failure *state.Failure
}

// Execute drives plan to completion over initial, honoring
// enablement, conditional gating, parallel-group concurrency,
// cancellation, and first-failure-wins error propagation.
func Execute(ctx context.Context, initial state.State, plan *Plan, cfg *Config) Result {
	current := initial

	for _, entry := range plan.Entries {
		if err := ctx.Err(); err != nil {
			return cancelledResult(current, cfg)
		}

		switch e := entry.(type) {
		case Stage:
			next, failure, stop := executeStage(ctx, cfg, current, e)
			if stop {
				return Result{OK: false, State: next, Failure: failure}
			}
			current = next
		case ParallelGroup:
			next, failure, stop := executeGroup(ctx, cfg, current, e)
			if stop {
				return Result{OK: false, State: next, Failure: failure}
			}
			current = next
		}
	}

	return Result{OK: true, State: current}
}

func cancelledResult(current state.State, cfg *Config) Result {
	f := perr.Cancelled()
	next := current.WithFailure(f)
	fireError(cfg, f)
	return Result{OK: false, State: next, Failure: f}
}

// executeStage runs a single stage, returning the superseding state,
// the failure if the plan must stop, and whether it must stop.
func executeStage(ctx context.Context, cfg *Config, current state.State, s Stage) (state.State, *state.Failure, bool) {
	if !s.Enabled {
		return current, nil, false
	}
	if s.ShouldExecute != nil && !s.ShouldExecute(ctx, &current) {
		return current, nil, false
	}

	ctx, span := cfg.tracer().Start(ctx, "pipeline.stage."+s.Name, trace.WithAttributes(attribute.String("stage.name", s.Name)))
	defer span.End()

	start := time.Now()
	out, crashed, panicText := safeInvoke(ctx, s.Handler, current)
	duration := time.Since(start)
	fireStepComplete(cfg, s.Name, duration)

	if crashed {
		span.SetStatus(codes.Error, "stage panicked")
		f := perr.Internal(s.Name, panicText, cfg != nil && cfg.IncludeErrorDetails)
		next := current.WithFailure(f)
		fireError(cfg, f)
		return next, f, true
	}

	if out.Failure != nil {
		f := out.Failure.WithStep(s.Name)
		span.SetStatus(codes.Error, f.Message)
		next := out.WithFailure(f)
		fireError(cfg, f)
		return next, f, true
	}

	return out, nil, false
}

type groupOutcome struct {
	name    string
	out     state.State
	failure *state.Failure
}

// executeGroup runs the group's active members concurrently against a
// shared input snapshot, then scans for the first-by-declaration-order
// failure; on success it folds extensions left to right.
func executeGroup(ctx context.Context, cfg *Config, current state.State, g ParallelGroup) (state.State, *state.Failure, bool) {
	var active []Stage
	for _, s := range g.Stages {
		if !s.Enabled {
			continue
		}
		if s.ShouldExecute != nil && !s.ShouldExecute(ctx, &current) {
			continue
		}
		active = append(active, s)
	}
	if len(active) == 0 {
		return current, nil, false
	}

	ctx, span := cfg.tracer().Start(ctx, "pipeline.group")
	defer span.End()

	results := make([]groupOutcome, len(active))
	var wg sync.WaitGroup
	for i, s := range active {
		wg.Add(1)
		go func(i int, s Stage) {
			defer wg.Done()
			start := time.Now()
			out, crashed, panicText := safeInvoke(ctx, s.Handler, current)
			fireStepComplete(cfg, s.Name, time.Since(start))
			if crashed {
				results[i] = groupOutcome{name: s.Name, out: current, failure: perr.Internal(s.Name, panicText, cfg != nil && cfg.IncludeErrorDetails)}
				return
			}
			results[i] = groupOutcome{name: s.Name, out: out, failure: out.Failure}
		}(i, s)
	}
	wg.Wait()

	for _, r := range results {
		if r.failure != nil {
			f := r.failure.WithStep(r.name)
			span.SetStatus(codes.Error, f.Message)
			next := current.WithFailure(f)
			fireError(cfg, f)
			return next, f, true
		}
	}

	acc := current
	for _, r := range results {
		acc = state.MergeExtensions(acc, r.out)
	}
	return acc, nil, false
}

// safeInvoke runs h, recovering a panic into a crashed/panicText pair
// instead of letting it escape the executor (spec.md §4.1).
func safeInvoke(ctx context.Context, h Handler, in state.State) (out state.State, crashed bool, panicText string) {
	defer func() {
		if r := recover(); r != nil {
			crashed = true
			panicText = fmt.Sprintf("%v", r)
			out = in
		}
	}()
	out = h(ctx, in)
	return out, false, ""
}

func fireStepComplete(cfg *Config, name string, d time.Duration) {
	if cfg == nil || cfg.OnStepComplete == nil {
		return
	}
	defer recoverCallback(cfg, "onStepComplete")
	cfg.OnStepComplete(name, d)
}

func fireError(cfg *Config, f *state.Failure) {
	if cfg == nil || cfg.OnError == nil {
		return
	}
	defer recoverCallback(cfg, "onError")
	cfg.OnError(perr.ViewOf(f))
}

func recoverCallback(cfg *Config, name string) {
	if r := recover(); r != nil {
		cfg.logger().Warn("executor callback panicked", "callback", name, "panic", fmt.Sprintf("%v", r))
	}
}
