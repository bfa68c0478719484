package promptcontext

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flowmind-ai/pipeline/cache"
	"github.com/flowmind-ai/pipeline/perr"
	"github.com/flowmind-ai/pipeline/state"
)

// ErrLoaderFailed wraps a ContextLoader error when Build has no
// fallback optimizer configured to degrade to (spec.md §4.5 step 3,
// "otherwise"). Callers (the context stage) turn this into a
// state.Failure via UpstreamFailure.
var ErrLoaderFailed = errors.New("promptcontext: context loader failed")

// LoadRequest describes what a ContextLoader must fetch for a given
// request. Variant selects between wholly different section catalogs
// (e.g. per-tenant or per-experiment content); Topics and
// IsFirstMessage are passed through for loaders that shape their
// fetch around them, but the cache key below deliberately ignores both.
type LoadRequest struct {
	Topics         map[string]struct{}
	Variant        string
	IsFirstMessage bool
}

// ContextLoader fetches the section catalog for a variant. Loaders are
// free to hit a database, the filesystem, or a remote API; the engine
// only ever calls Load on a cache miss.
type ContextLoader interface {
	Load(ctx context.Context, req LoadRequest) ([]Section, error)
}

// Engine combines a ContextLoader, a TTL+single-flight cache of section
// catalogs, and an Optimizer's selection algorithm (spec.md §4.5).
type Engine struct {
	loader            ContextLoader
	catalogCache      *cache.Cache[[]Section]
	policy            Policy
	toneMap           map[string]string
	logger            *slog.Logger
	onVariantUsed     func(variant string)
	fallbackOptimizer *Optimizer
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

func WithOnVariantUsed(fn func(variant string)) EngineOption {
	return func(e *Engine) { e.onVariantUsed = fn }
}

// WithFallbackOptimizer configures the optimizer Build runs against
// when the loader fails (spec.md §4.5 step 3). Without one, a loader
// failure surfaces as an error instead of a silent degrade — see
// ErrLoaderFailed.
func WithFallbackOptimizer(opt *Optimizer) EngineOption {
	return func(e *Engine) { e.fallbackOptimizer = opt }
}

// NewEngine builds an Engine. toneMap is shared between the live
// catalog and the fallback path: a fallback Optimizer built here never
// reaches into its own separately configured tone source, it always
// uses this one (see DESIGN.md Open Questions).
func NewEngine(loader ContextLoader, catalogCache *cache.Cache[[]Section], policy Policy, toneMap map[string]string, opts ...EngineOption) *Engine {
	e := &Engine{
		loader:       loader,
		catalogCache: catalogCache,
		policy:       policy,
		toneMap:      toneMap,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

const defaultVariant = "default"

// Build derives the prompt-selection request from s, loads (or reuses
// a cached) section catalog for the resolved variant, and runs the
// optimizer's selection algorithm over it. The cache key is the
// variant alone: topics and isFirstMessage never participate in it,
// so two requests with the same variant but different topics still
// share one cached catalog load and diverge only at selection time.
func (e *Engine) Build(ctx context.Context, s *state.State) (SelectionResult, error) {
	topics := topicsFromState(s)
	isFirstMessage := s.Request.IsFirstMessage()
	tone := toneFromState(s)
	variant := variantFromState(s)

	if e.onVariantUsed != nil && variant != "" {
		e.onVariantUsed(variant)
	}

	cacheKey := variant
	if cacheKey == "" {
		cacheKey = defaultVariant
	}

	sections, err := e.catalogCache.GetOrLoad(cacheKey, func() ([]Section, error) {
		return e.loader.Load(ctx, LoadRequest{Topics: topics, Variant: variant, IsFirstMessage: isFirstMessage})
	})
	if err != nil {
		if e.fallbackOptimizer != nil {
			e.logger.Warn("context catalog load failed, using fallback optimizer", "variant", variant, "error", err.Error())
			result := e.fallbackOptimizer.WithToneMap(e.toneMap).Select(SelectionRequest{Topics: topics, IsFirstMessage: isFirstMessage, Tone: tone})
			result.Variant = defaultVariant
			return result, nil
		}
		e.logger.Warn("context catalog load failed, no fallback optimizer configured", "variant", variant, "error", err.Error())
		return SelectionResult{}, fmt.Errorf("%w: %v", ErrLoaderFailed, err)
	}

	opt := NewOptimizer(sections, e.policy, e.toneMap)
	result := opt.Select(SelectionRequest{Topics: topics, IsFirstMessage: isFirstMessage, Tone: tone})
	result.Variant = variant
	return result, nil
}

// UpstreamFailure converts a loader error into an executable plan
// failure, for callers that choose not to fall back silently.
func UpstreamFailure(step string, err error, includeDetails bool) *state.Failure {
	details := ""
	if includeDetails && err != nil {
		details = err.Error()
	}
	return perr.Upstream(step, details, includeDetails)
}

func topicsFromState(s *state.State) map[string]struct{} {
	if s == nil {
		return map[string]struct{}{}
	}
	if raw, ok := s.Request.Metadata["topics"]; ok {
		if list, ok := raw.([]string); ok {
			out := make(map[string]struct{}, len(list))
			for _, t := range list {
				out[t] = struct{}{}
			}
			return out
		}
	}
	return map[string]struct{}{}
}

func toneFromState(s *state.State) string {
	if s == nil {
		return ""
	}
	if intent, ok := state.Intent(*s); ok && intent.Metadata != nil {
		return intent.Metadata.Tone
	}
	return ""
}

func variantFromState(s *state.State) string {
	if s == nil {
		return ""
	}
	if raw, ok := s.Request.Metadata["variant"]; ok {
		if v, ok := raw.(string); ok {
			return v
		}
	}
	return ""
}
