package executor

import (
	"context"
	"testing"
	"time"

	"github.com/flowmind-ai/pipeline/condition"
	"github.com/flowmind-ai/pipeline/perr"
	"github.com/flowmind-ai/pipeline/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newState() state.State {
	return state.New(state.Request{Messages: []state.Message{{Role: state.RoleUser, Text: "hi"}}})
}

func writeExt(key string, value any) Handler {
	return func(_ context.Context, s state.State) state.State {
		return s.WithExtension(key, value)
	}
}

func TestExecute_SequentialStagesRunInOrderAndSucceed(t *testing.T) {
	plan, err := NewPlan(
		NewStage("a", writeExt("a", 1)),
		NewStage("b", writeExt("b", 2)),
	)
	require.NoError(t, err)

	res := Execute(context.Background(), newState(), plan, nil)
	require.True(t, res.OK)
	av, _ := state.Extension[int](res.State, "a")
	bv, _ := state.Extension[int](res.State, "b")
	assert.Equal(t, 1, av)
	assert.Equal(t, 2, bv)
}

func TestExecute_DisabledStageIsSkipped(t *testing.T) {
	plan, err := NewPlan(NewStage("a", writeExt("a", 1)).Disabled())
	require.NoError(t, err)

	res := Execute(context.Background(), newState(), plan, nil)
	require.True(t, res.OK)
	_, ok := state.Extension[int](res.State, "a")
	assert.False(t, ok)
}

func TestExecute_ShouldExecuteGatesStage(t *testing.T) {
	plan, err := NewPlan(NewStage("a", writeExt("a", 1)).WithShouldExecute(condition.IsFirstMessage()))
	require.NoError(t, err)

	req := state.Request{Messages: []state.Message{{Role: state.RoleUser, Text: "hi"}, {Role: state.RoleAssistant, Text: "hey"}, {Role: state.RoleUser, Text: "again"}}}
	res := Execute(context.Background(), state.New(req), plan, nil)
	require.True(t, res.OK)
	_, ok := state.Extension[int](res.State, "a")
	assert.False(t, ok)
}

func TestExecute_StageFailureStopsPlanAndSetsStepFallback(t *testing.T) {
	failing := NewStage("b", func(_ context.Context, s state.State) state.State {
		return s.WithFailure(&state.Failure{Message: "nope", StatusCode: 400})
	})
	plan, err := NewPlan(
		NewStage("a", writeExt("a", 1)),
		failing,
		NewStage("c", writeExt("c", 3)),
	)
	require.NoError(t, err)

	res := Execute(context.Background(), newState(), plan, nil)
	require.False(t, res.OK)
	require.NotNil(t, res.Failure)
	assert.Equal(t, "b", res.Failure.Step)
	_, ok := state.Extension[int](res.State, "c")
	assert.False(t, ok)
}

func TestExecute_PanicIsCaughtAndConvertedToInternalFailure(t *testing.T) {
	plan, err := NewPlan(NewStage("boom", func(_ context.Context, s state.State) state.State {
		panic("kaboom")
	}))
	require.NoError(t, err)

	var seenView perr.ErrorView
	res := Execute(context.Background(), newState(), plan, &Config{
		IncludeErrorDetails: true,
		OnError:             func(v perr.ErrorView) { seenView = v },
	})
	require.False(t, res.OK)
	assert.Equal(t, "boom", seenView.Step)
	assert.Equal(t, 500, res.Failure.StatusCode)
	assert.Equal(t, "boom", res.Failure.Step)
	assert.Contains(t, res.Failure.Details, "kaboom")
}

func TestExecute_ParallelGroupMergesLaterWinsOnConflict(t *testing.T) {
	a := NewStage("A", writeExt("userProfile", "base"))
	b := NewStage("B", writeExt("preferences", "dark"))
	c := NewStage("C", func(_ context.Context, s state.State) state.State {
		s = s.WithExtension("permissions", "admin")
		return s.WithExtension("userProfile", "OVERRIDE")
	})
	plan, err := NewPlan(NewParallelGroup(a, b, c))
	require.NoError(t, err)

	res := Execute(context.Background(), newState(), plan, nil)
	require.True(t, res.OK)
	up, _ := state.Extension[string](res.State, "userProfile")
	pr, _ := state.Extension[string](res.State, "preferences")
	pe, _ := state.Extension[string](res.State, "permissions")
	assert.Equal(t, "OVERRIDE", up)
	assert.Equal(t, "dark", pr)
	assert.Equal(t, "admin", pe)
}

func TestExecute_ParallelGroupStopsOnFirstByDeclarationError(t *testing.T) {
	a := NewStage("A", writeExt("a", 1))
	b := NewStage("B", func(_ context.Context, s state.State) state.State {
		return s.WithFailure(&state.Failure{Message: "bad", StatusCode: 400})
	})
	c := NewStage("C", writeExt("c", 1))
	plan, err := NewPlan(NewParallelGroup(a, b, c))
	require.NoError(t, err)

	res := Execute(context.Background(), newState(), plan, nil)
	require.False(t, res.OK)
	assert.Equal(t, "B", res.Failure.Step)
	_, ok := state.Extension[int](res.State, "c")
	assert.False(t, ok)
}

func TestExecute_CancelledContextStopsBeforeNextEntry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	plan, err := NewPlan(NewStage("a", writeExt("a", 1)))
	require.NoError(t, err)

	res := Execute(ctx, newState(), plan, nil)
	require.False(t, res.OK)
	assert.Equal(t, 499, res.Failure.StatusCode)
	assert.Equal(t, "cancelled", res.Failure.Step)
}

func TestNewPlan_RejectsEmptyDuplicateAndNilHandler(t *testing.T) {
	_, err := NewPlan()
	assert.ErrorIs(t, err, perr.ErrPlanEmpty)

	_, err = NewPlan(NewStage("a", writeExt("a", 1)), NewStage("a", writeExt("b", 2)))
	assert.Error(t, err)

	_, err = NewPlan(NewStage("a", nil))
	assert.Error(t, err)
}

func TestExecute_CallbackPanicIsLoggedNotFatal(t *testing.T) {
	plan, err := NewPlan(NewStage("a", writeExt("a", 1)))
	require.NoError(t, err)

	res := Execute(context.Background(), newState(), plan, &Config{
		OnStepComplete: func(string, time.Duration) { panic("callback blew up") },
	})
	assert.True(t, res.OK)
}
