package executor

import (
	"context"
	"testing"
	"time"

	"github.com/flowmind-ai/pipeline/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_AccumulatesAcrossExecutions(t *testing.T) {
	plan, err := NewPlan(
		NewStage("a", writeExt("a", 1)),
		NewStage("b", writeExt("b", 2)),
	)
	require.NoError(t, err)

	m := NewMetrics()
	cfg := WithMetrics(nil, m)

	Execute(context.Background(), newState(), plan, cfg)
	Execute(context.Background(), newState(), plan, cfg)

	snap := m.Snapshot()
	assert.EqualValues(t, 4, snap.TotalStageCalls)
	assert.EqualValues(t, 0, snap.FailedStageCalls)
	assert.Len(t, snap.AverageLatency, 2)
}

func TestMetrics_RecordsFailures(t *testing.T) {
	failing := NewStage("bad", func(_ context.Context, s state.State) state.State {
		return s.WithFailure(&state.Failure{Message: "nope", StatusCode: 400})
	})
	plan, err := NewPlan(failing)
	require.NoError(t, err)

	m := NewMetrics()
	cfg := WithMetrics(nil, m)

	res := Execute(context.Background(), newState(), plan, cfg)
	require.False(t, res.OK)

	snap := m.Snapshot()
	assert.EqualValues(t, 1, snap.TotalStageCalls)
	assert.EqualValues(t, 1, snap.FailedStageCalls)
}

func TestMetrics_PreservesExistingCallbacks(t *testing.T) {
	plan, err := NewPlan(NewStage("a", writeExt("a", 1)))
	require.NoError(t, err)

	called := false
	cfg := &Config{OnStepComplete: func(string, time.Duration) { called = true }}

	m := NewMetrics()
	merged := WithMetrics(cfg, m)
	Execute(context.Background(), newState(), plan, merged)

	assert.True(t, called)
	assert.EqualValues(t, 1, m.Snapshot().TotalStageCalls)
}
