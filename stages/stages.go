// Package stages wires the core engine's external collaborators
// (spec.md §6: RateLimiter, ModelInvoker, LLMTier, ContextLoader, the
// content moderation config) into executor.Handler values that plug
// directly into a Plan. Nothing here is part of the core — per
// spec.md §1 these are the bundled, replaceable stage implementations
// a caller assembles a plan from, grounded on the teacher's
// orchestration.StandardOrchestrator.routeToAgent-style "capability
// wrapped as a pipeline step" pattern.
package stages

import (
	"context"
	"log/slog"

	"github.com/flowmind-ai/pipeline/intent"
	"github.com/flowmind-ai/pipeline/moderation"
	"github.com/flowmind-ai/pipeline/perr"
	"github.com/flowmind-ai/pipeline/promptcontext"
	"github.com/flowmind-ai/pipeline/ratelimit"
	"github.com/flowmind-ai/pipeline/state"
)

// Moderation returns the bundled content-moderation Handler under the
// given stage name, re-exported here so callers assemble every
// bundled stage from one package.
func Moderation(m *moderation.Moderator, name string) func(ctx context.Context, s state.State) state.State {
	return m.Stage(name)
}

// RateLimit returns a Handler implementing spec.md §6's bundled
// rate-limit stage: identifier is derived from request metadata
// (userId, falling back to sessionId, falling back to "anonymous").
func RateLimit(limiter ratelimit.RateLimiter, log *slog.Logger) func(ctx context.Context, s state.State) state.State {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return func(ctx context.Context, s state.State) state.State {
		id := identifierFromState(s)

		decision, err := limiter.Check(ctx, id)
		if err != nil {
			log.Warn("rate limiter check failed, allowing request through", "identifier", id, "error", err.Error())
			return state.SetRateLimit(s, state.RateLimitInfo{Allowed: true})
		}

		s = state.SetRateLimit(s, state.RateLimitInfo{Allowed: decision.Allowed, RetryAfter: decision.RetryAfter})
		if !decision.Allowed {
			return s.WithFailure(perr.RateLimited("rateLimit", decision.RetryAfter))
		}
		return s
	}
}

func identifierFromState(s state.State) string {
	if v, ok := s.Request.Metadata["userId"].(string); ok && v != "" {
		return v
	}
	if v, ok := s.Request.Metadata["sessionId"].(string); ok && v != "" {
		return v
	}
	return "anonymous"
}

// Intent returns a Handler running the hybrid keyword/LLM resolver
// against the conversation's last message (whatever its role) and publishing the
// result to state.KeyIntent.
func Intent(resolver *intent.HybridResolver) func(ctx context.Context, s state.State) state.State {
	return func(ctx context.Context, s state.State) state.State {
		msg, ok := s.Request.LastMessage()
		if !ok {
			return state.SetIntent(s, state.IntentResult{Intent: "general", Method: "keyword"})
		}
		result := resolver.Classify(ctx, msg.TextContent(), &s)
		return state.SetIntent(s, result)
	}
}

// Context returns a Handler running the dynamic context engine and
// publishing its selection to state.KeyPromptContext. A loader failure
// with no fallback optimizer configured surfaces as spec.md §7's
// "Upstream invocation" failure at step "dynamicContext".
func Context(engine *promptcontext.Engine, includeErrorDetails bool) func(ctx context.Context, s state.State) state.State {
	return func(ctx context.Context, s state.State) state.State {
		selection, err := engine.Build(ctx, &s)
		if err != nil {
			return s.WithFailure(promptcontext.UpstreamFailure("dynamicContext", err, includeErrorDetails))
		}
		return state.SetPromptContext(s, state.PromptContextResult{
			SystemPrompt:     selection.SystemPrompt,
			SectionsIncluded: selection.SectionsIncluded,
			TotalSections:    selection.TotalSections,
			TokenEstimate:    selection.TokenEstimate,
			MaxTokenEstimate: selection.MaxTokenEstimate,
			Variant:          selection.Variant,
		})
	}
}
