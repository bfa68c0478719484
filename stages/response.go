package stages

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/flowmind-ai/pipeline/aiclient"
	"github.com/flowmind-ai/pipeline/cache"
	"github.com/flowmind-ai/pipeline/perr"
	"github.com/flowmind-ai/pipeline/state"
)

// ModelResponseConfig configures the bundled model-invocation stage.
type ModelResponseConfig struct {
	Invoker     aiclient.ModelInvoker
	Breaker     *CircuitBreaker // optional; nil disables breaking
	Cache       *cache.Cache[aiclient.GenerateResult] // optional; nil disables response caching
	MaxTokens   int
	Temperature float64
	Logger      *slog.Logger

	// IncludeErrorDetails mirrors executor.Config's field: attach the
	// raw upstream fault text to the Failure's Details, off by default.
	IncludeErrorDetails bool
}

// ModelResponse is the bundled spec.md §6 ModelInvoker stage:
// renders the conversation plus the promptContext extension's system
// prompt into a GenerateRequest, runs it through an optional response
// cache (keyed by prompt hash, spec.md §9b) and an optional circuit
// breaker, and publishes the result to state.KeyAIResponse. Upstream
// failures surface per spec.md §7's "Upstream invocation" row; the
// circuit breaker tripping is itself an upstream failure from the
// plan's point of view.
func ModelResponse(cfg ModelResponseConfig) func(ctx context.Context, s state.State) state.State {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return func(ctx context.Context, s state.State) state.State {
		req := buildGenerateRequest(s, cfg.MaxTokens, cfg.Temperature)

		key := promptCacheKey(req)
		if cfg.Cache != nil {
			result, err := cfg.Cache.GetOrLoad(key, func() (aiclient.GenerateResult, error) {
				return invoke(ctx, cfg, req)
			})
			if err != nil {
				log.Warn("model invocation failed", "step", "aiResponse", "error", err.Error())
				return s.WithFailure(perr.Upstream("aiResponse", err.Error(), cfg.IncludeErrorDetails))
			}
			return state.SetAIResponse(s, state.AIResponseResult{Text: result.Text, FinishReason: result.FinishReason})
		}

		start := time.Now()
		result, err := invoke(ctx, cfg, req)
		duration := time.Since(start)
		if err != nil {
			log.Warn("model invocation failed", "step", "aiResponse", "error", err.Error())
			return s.WithFailure(perr.Upstream("aiResponse", err.Error(), cfg.IncludeErrorDetails))
		}
		return state.SetAIResponse(s, state.AIResponseResult{Text: result.Text, FinishReason: result.FinishReason, Duration: duration})
	}
}

func invoke(ctx context.Context, cfg ModelResponseConfig, req aiclient.GenerateRequest) (aiclient.GenerateResult, error) {
	if cfg.Breaker == nil {
		return cfg.Invoker.Generate(ctx, req)
	}

	var result aiclient.GenerateResult
	err := cfg.Breaker.Execute(func() error {
		var innerErr error
		result, innerErr = cfg.Invoker.Generate(ctx, req)
		return innerErr
	})
	return result, err
}

func buildGenerateRequest(s state.State, maxTokens int, temperature float64) aiclient.GenerateRequest {
	system := ""
	if pc, ok := state.PromptContext(s); ok {
		system = pc.SystemPrompt
	}

	messages := make([]aiclient.Message, 0, len(s.Request.Messages))
	for _, m := range s.Request.Messages {
		messages = append(messages, aiclient.Message{Role: string(m.Role), Content: m.TextContent()})
	}

	return aiclient.GenerateRequest{
		System:      system,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

// promptCacheKey hashes the rendered system prompt plus message
// transcript so identical conversations reuse a cached response
// (spec.md §9b's "second, independent use of the cache package").
func promptCacheKey(req aiclient.GenerateRequest) string {
	var b strings.Builder
	b.WriteString(req.System)
	b.WriteByte('\n')
	for _, m := range req.Messages {
		b.WriteString(m.Role)
		b.WriteByte(':')
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
