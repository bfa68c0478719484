package promptcontext

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowmind-ai/pipeline/cache"
	"github.com/flowmind-ai/pipeline/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLoader struct {
	sections []Section
	err      error
	calls    int32
}

func (s *stubLoader) Load(context.Context, LoadRequest) ([]Section, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	return s.sections, nil
}

func newState(meta map[string]any) state.State {
	s := state.New(state.Request{Messages: []state.Message{{Role: state.RoleUser, Text: "hi"}}, Metadata: meta})
	return s
}

func TestEngine_CacheKeyIsVariantOnly(t *testing.T) {
	loader := &stubLoader{sections: []Section{NewSection("core", "A", nil, true, 0)}}
	c := cache.New[[]Section](time.Minute)
	e := NewEngine(loader, c, Policy{FirstMessage: PolicyFull, FollowUp: PolicyFull}, nil)

	s1 := newState(map[string]any{"variant": "v1", "topics": []string{"x"}})
	s2 := newState(map[string]any{"variant": "v1", "topics": []string{"y"}})

	_, err := e.Build(context.Background(), &s1)
	require.NoError(t, err)
	_, err = e.Build(context.Background(), &s2)
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt32(&loader.calls))
}

func TestEngine_FallsBackOnLoaderErrorWhenFallbackOptimizerConfigured(t *testing.T) {
	loader := &stubLoader{err: errors.New("db unreachable")}
	c := cache.New[[]Section](time.Minute)
	fallback := NewOptimizer(
		[]Section{NewSection("fallback-core", "You are a helpful assistant.", nil, true, 0)},
		Policy{FirstMessage: PolicyFull, FollowUp: PolicyFull},
		nil,
	)
	e := NewEngine(loader, c, Policy{FirstMessage: PolicyFull, FollowUp: PolicyFull}, nil,
		WithFallbackOptimizer(fallback))

	s := newState(nil)
	res, err := e.Build(context.Background(), &s)
	require.NoError(t, err)
	assert.Contains(t, res.SystemPrompt, "helpful assistant")
	assert.Equal(t, defaultVariant, res.Variant)
}

func TestEngine_ErrorsOnLoaderFailureWithoutFallbackOptimizer(t *testing.T) {
	loader := &stubLoader{err: errors.New("db unreachable")}
	c := cache.New[[]Section](time.Minute)
	e := NewEngine(loader, c, Policy{FirstMessage: PolicyFull, FollowUp: PolicyFull}, nil)

	s := newState(nil)
	_, err := e.Build(context.Background(), &s)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoaderFailed)
}

func TestEngine_FallbackOptimizerUsesEngineToneMap(t *testing.T) {
	loader := &stubLoader{err: errors.New("db unreachable")}
	c := cache.New[[]Section](time.Minute)
	fallback := NewOptimizer(
		[]Section{NewSection("fallback-core", "Core.", nil, true, 0)},
		Policy{FirstMessage: PolicyFull, FollowUp: PolicyFull},
		map[string]string{"warm": "ignored tone map"},
	)
	e := NewEngine(loader, c, Policy{FirstMessage: PolicyFull, FollowUp: PolicyFull},
		map[string]string{"warm": "Be warm."}, WithFallbackOptimizer(fallback))

	s := newState(nil)
	s = s.WithExtension(state.KeyIntent, state.IntentResult{Metadata: &state.IntentMetadata{Tone: "warm"}})
	res, err := e.Build(context.Background(), &s)
	require.NoError(t, err)
	assert.Contains(t, res.SystemPrompt, "Be warm.")
	assert.NotContains(t, res.SystemPrompt, "ignored tone map")
}

func TestEngine_VariantHookFires(t *testing.T) {
	loader := &stubLoader{sections: []Section{NewSection("core", "A", nil, true, 0)}}
	c := cache.New[[]Section](time.Minute)
	var seen string
	e := NewEngine(loader, c, Policy{FirstMessage: PolicyFull, FollowUp: PolicyFull}, nil,
		WithOnVariantUsed(func(v string) { seen = v }))

	s := newState(map[string]any{"variant": "beta"})
	_, err := e.Build(context.Background(), &s)
	require.NoError(t, err)
	assert.Equal(t, "beta", seen)
}

func TestEngine_PropagatesToneFromIntentMetadata(t *testing.T) {
	loader := &stubLoader{sections: []Section{NewSection("core", "A", nil, true, 0)}}
	c := cache.New[[]Section](time.Minute)
	e := NewEngine(loader, c, Policy{FirstMessage: PolicyFull, FollowUp: PolicyFull}, map[string]string{"warm": "Be warm."})

	s := newState(nil)
	s = s.WithExtension(state.KeyIntent, state.IntentResult{Intent: "greeting", Metadata: &state.IntentMetadata{Tone: "warm"}})
	res, err := e.Build(context.Background(), &s)
	require.NoError(t, err)
	assert.Contains(t, res.SystemPrompt, "Be warm.")
}

func TestEngine_DefaultVariantWhenUnset(t *testing.T) {
	loader := &stubLoader{sections: []Section{NewSection("core", "A", nil, true, 0)}}
	c := cache.New[[]Section](time.Minute)
	e := NewEngine(loader, c, Policy{FirstMessage: PolicyFull, FollowUp: PolicyFull}, nil)

	s := newState(nil)
	res, err := e.Build(context.Background(), &s)
	require.NoError(t, err)
	assert.Equal(t, "", res.Variant)
	assert.Equal(t, 1, c.Size())
}
