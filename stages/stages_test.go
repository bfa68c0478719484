package stages

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowmind-ai/pipeline/cache"
	"github.com/flowmind-ai/pipeline/intent"
	"github.com/flowmind-ai/pipeline/moderation"
	"github.com/flowmind-ai/pipeline/promptcontext"
	"github.com/flowmind-ai/pipeline/ratelimit"
	"github.com/flowmind-ai/pipeline/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	sections []promptcontext.Section
	err      error
}

func (f fakeLoader) Load(context.Context, promptcontext.LoadRequest) ([]promptcontext.Section, error) {
	return f.sections, f.err
}

type fakeLimiter struct {
	decision ratelimit.Decision
	err      error
}

func (f fakeLimiter) Check(context.Context, string) (ratelimit.Decision, error) { return f.decision, f.err }

func newUserState(text string) state.State {
	return state.New(state.Request{Messages: []state.Message{{Role: state.RoleUser, Text: text}}})
}

func TestRateLimit_AllowsAndPublishesExtension(t *testing.T) {
	handler := RateLimit(fakeLimiter{decision: ratelimit.Decision{Allowed: true}}, nil)
	out := handler(context.Background(), newUserState("hi"))
	require.Nil(t, out.Failure)
	info, ok := state.RateLimit(out)
	require.True(t, ok)
	assert.True(t, info.Allowed)
}

func TestRateLimit_RejectsWithRetryAfter(t *testing.T) {
	handler := RateLimit(fakeLimiter{decision: ratelimit.Decision{Allowed: false, RetryAfter: 12}}, nil)
	out := handler(context.Background(), newUserState("hi"))
	require.NotNil(t, out.Failure)
	assert.Equal(t, 429, out.Failure.StatusCode)
	assert.Equal(t, 12, out.Failure.RetryAfter)
	assert.Equal(t, "rateLimit", out.Failure.Step)
}

func TestRateLimit_FailsOpenOnLimiterError(t *testing.T) {
	handler := RateLimit(fakeLimiter{err: errors.New("redis down")}, nil)
	out := handler(context.Background(), newUserState("hi"))
	require.Nil(t, out.Failure)
	info, ok := state.RateLimit(out)
	require.True(t, ok)
	assert.True(t, info.Allowed)
}

func TestIntent_ClassifiesLastMessage(t *testing.T) {
	kw := intent.NewKeywordClassifier([]intent.Pattern{{Category: "greeting", Keywords: []string{"hello"}}}, nil)
	resolver := intent.NewHybridResolver(kw, nil)
	handler := Intent(resolver)

	out := handler(context.Background(), newUserState("Hello there"))
	result, ok := state.Intent(out)
	require.True(t, ok)
	assert.Equal(t, "greeting", result.Intent)
}

func TestContext_PublishesSelection(t *testing.T) {
	loader := fakeLoader{sections: []promptcontext.Section{promptcontext.NewSection("core", "Be helpful.", nil, true, 0)}}
	engine := promptcontext.NewEngine(loader, cache.New[[]promptcontext.Section](time.Minute),
		promptcontext.Policy{FirstMessage: promptcontext.PolicyFull, FollowUp: promptcontext.PolicyFull}, nil)
	handler := Context(engine, false)

	out := handler(context.Background(), newUserState("hi"))
	require.Nil(t, out.Failure)
	pc, ok := state.PromptContext(out)
	require.True(t, ok)
	assert.Contains(t, pc.SystemPrompt, "Be helpful.")
}

func TestContext_SurfacesUpstreamFailureWithoutFallback(t *testing.T) {
	loader := fakeLoader{err: errors.New("loader down")}
	engine := promptcontext.NewEngine(loader, cache.New[[]promptcontext.Section](time.Minute),
		promptcontext.Policy{FirstMessage: promptcontext.PolicyFull, FollowUp: promptcontext.PolicyFull}, nil)
	handler := Context(engine, true)

	out := handler(context.Background(), newUserState("hi"))
	require.NotNil(t, out.Failure)
	assert.Equal(t, 500, out.Failure.StatusCode)
	assert.Equal(t, "dynamicContext", out.Failure.Step)
}

func TestModeration_WrapsModeratorStage(t *testing.T) {
	m, err := moderation.New(moderation.Config{ProfanityWords: []string{"badword"}}, nil)
	require.NoError(t, err)
	handler := Moderation(m, "contentModeration")

	out := handler(context.Background(), newUserState("this has a badword in it"))
	require.NotNil(t, out.Failure)
	assert.Equal(t, "contentModeration", out.Failure.Step)
}
