// Package engine is the composition root: it wires the bundled stages,
// their external collaborators (Redis, an OpenAI-shaped HTTP endpoint,
// a section catalog source), and a Plan into a single runnable unit,
// grounded on the teacher's orchestration.NewOrchestrator — a
// constructor that assembles collaborators and conditionally
// initializes optional ones (cache, circuit breaker) from a config
// struct. cmd/pipelineserver and cmd/pipelinectl both build an engine
// this way instead of duplicating wiring.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/flowmind-ai/pipeline/aiclient"
	"github.com/flowmind-ai/pipeline/cache"
	"github.com/flowmind-ai/pipeline/contextsource"
	"github.com/flowmind-ai/pipeline/executor"
	"github.com/flowmind-ai/pipeline/intent"
	"github.com/flowmind-ai/pipeline/moderation"
	"github.com/flowmind-ai/pipeline/pconfig"
	"github.com/flowmind-ai/pipeline/promptcontext"
	"github.com/flowmind-ai/pipeline/ratelimit"
	"github.com/flowmind-ai/pipeline/stages"
	"github.com/flowmind-ai/pipeline/state"
	"github.com/flowmind-ai/pipeline/telemetry"
)

// Sources names the on-disk inputs Build reads beyond the scalar
// Config: a plan document, an intent-pattern catalog, a tone map, and
// a directory of context sections. Every field is optional; Build
// substitutes a small built-in default for anything left blank, so a
// caller can run the whole engine from Config alone.
type Sources struct {
	PlanPath     string
	PatternsPath string
	TonesPath    string
	SectionsDir  string
}

// Runtime is everything a caller needs to drive requests through the
// assembled engine and tear it down cleanly on exit.
type Runtime struct {
	Plan    *executor.Plan
	Config  *executor.Config
	Metrics *executor.Metrics
	Bridge  *telemetry.PrometheusBridge
	Logger  *slog.Logger

	telemetryProvider *telemetry.Provider
	redisClient       *redis.Client
}

// Run drives req through the assembled plan.
func (r *Runtime) Run(ctx context.Context, req state.Request) executor.Result {
	return executor.Execute(ctx, state.New(req), r.Plan, r.Config)
}

// Shutdown releases the engine's external connections and flushes
// pending telemetry. Safe to call once, after the caller is done
// issuing Run calls.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var firstErr error
	if r.telemetryProvider != nil {
		if err := r.telemetryProvider.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if r.redisClient != nil {
		if err := r.redisClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Build assembles a Runtime from cfg and src. log defaults to a
// stderr-writing text logger honoring cfg.LogLevel when nil.
func Build(ctx context.Context, cfg *pconfig.Config, src Sources, log *slog.Logger) (*Runtime, error) {
	if log == nil {
		log = newLogger(cfg.LogLevel)
	}

	provider, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:  "pipeline",
		Exporter:     telemetry.Exporter(cfg.OTelExporter),
		OTLPEndpoint: cfg.OTLPEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: telemetry setup: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("engine: parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	limiter := ratelimit.NewRedisRateLimiter(redisClient, int64(cfg.RateLimitPerWindow), cfg.RateLimitWindow)

	moderator, err := moderation.New(defaultModerationConfig(), log)
	if err != nil {
		return nil, fmt.Errorf("engine: build moderator: %w", err)
	}

	resolver, err := buildIntentResolver(cfg, src, log)
	if err != nil {
		return nil, fmt.Errorf("engine: build intent resolver: %w", err)
	}

	contextEngine, err := buildContextEngine(cfg, src, log)
	if err != nil {
		return nil, fmt.Errorf("engine: build context engine: %w", err)
	}

	invoker := aiclient.NewHTTPModelInvoker(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	breaker := stages.NewCircuitBreaker(cfg.CircuitBreakerFailureThreshold, cfg.CircuitBreakerResetTimeout)
	responseCache := cache.New[aiclient.GenerateResult](cfg.ResponseCacheTTL)

	handlers := map[string]executor.Handler{
		"contentModeration": stages.Moderation(moderator, "contentModeration"),
		"rateLimit":         stages.RateLimit(limiter, log),
		"intent":            stages.Intent(resolver),
		"context":           stages.Context(contextEngine, cfg.IncludeErrorDetails),
		"aiResponse": stages.ModelResponse(stages.ModelResponseConfig{
			Invoker:             invoker,
			Breaker:             breaker,
			Cache:               responseCache,
			MaxTokens:           800,
			Temperature:         0.7,
			Logger:              log,
			IncludeErrorDetails: cfg.IncludeErrorDetails,
		}),
	}

	plan, err := buildPlan(src.PlanPath, handlers)
	if err != nil {
		return nil, fmt.Errorf("engine: build plan: %w", err)
	}

	metrics := executor.NewMetrics()
	bridge := telemetry.NewPrometheusBridge()

	execCfg := &executor.Config{
		IncludeErrorDetails: cfg.IncludeErrorDetails,
		Logger:              log,
		Tracer:              provider.Tracer,
		OnIntentFallback: func(event intent.FallbackEvent) {
			log.Debug("intent fallback consulted llm tier", "keywordIntent", event.KeywordIntent, "llmIntent", event.LLMIntent)
		},
		OnVariantUsed: func(variant string) {
			log.Debug("context variant selected", "variant", variant)
		},
	}
	execCfg = executor.WithMetrics(execCfg, metrics)
	execCfg = bridge.Config(execCfg)

	return &Runtime{
		Plan:              plan,
		Config:            execCfg,
		Metrics:           metrics,
		Bridge:            bridge,
		Logger:            log,
		telemetryProvider: provider,
		redisClient:       redisClient,
	}, nil
}

// newLogger builds the default logger a caller gets by passing nil to
// Build: structured text lines to stderr, level set from levelStr
// ("debug", "info", "warn", "error"; unparseable or empty falls back
// to info).
func newLogger(levelStr string) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(levelStr))); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func defaultModerationConfig() moderation.Config {
	return moderation.Config{
		SpamPatterns:   []string{`\bfree money\b`, `\bclick here now\b`, `\bact now\b.*\bwinner\b`},
		ProfanityWords: []string{},
	}
}

func buildIntentResolver(cfg *pconfig.Config, src Sources, log *slog.Logger) (*intent.HybridResolver, error) {
	patterns, metadata, err := loadPatterns(src.PatternsPath)
	if err != nil {
		return nil, err
	}
	keyword := intent.NewKeywordClassifier(patterns, metadata)

	var llm intent.LLMTier
	if cfg.OpenAIAPIKey != "" {
		invoker := aiclient.NewHTTPModelInvoker(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
		llm = aiclient.NewStructuredTier(invoker, categoriesOf(patterns))
	}

	return intent.NewHybridResolver(keyword, llm,
		intent.WithThreshold(cfg.IntentConfidenceThreshold),
		intent.WithLLMFallback(llm != nil),
		intent.WithLogger(log),
	), nil
}

func loadPatterns(path string) ([]intent.Pattern, map[string]intent.Metadata, error) {
	if path == "" {
		return defaultPatterns(), nil, nil
	}
	return pconfig.LoadPatterns(path)
}

func defaultPatterns() []intent.Pattern {
	return []intent.Pattern{
		{Category: "greeting", Keywords: []string{"hello", "hi", "hey"}},
		{Category: "support", Keywords: []string{"help", "problem", "issue", "not working"}},
		{Category: "billing", Keywords: []string{"invoice", "charge", "refund", "payment"}},
	}
}

func categoriesOf(patterns []intent.Pattern) []string {
	categories := make([]string, 0, len(patterns))
	for _, p := range patterns {
		categories = append(categories, p.Category)
	}
	return categories
}

func buildContextEngine(cfg *pconfig.Config, src Sources, log *slog.Logger) (*promptcontext.Engine, error) {
	loader, err := loadContextLoader(src.SectionsDir, log)
	if err != nil {
		return nil, err
	}

	toneMap, err := loadToneMap(src.TonesPath)
	if err != nil {
		return nil, err
	}

	catalogCache := cache.New[[]promptcontext.Section](cfg.ContextCacheTTL)
	policy := promptcontext.Policy{FirstMessage: promptcontext.PolicyFull, FollowUp: promptcontext.PolicySelective}
	fallback := promptcontext.NewOptimizer(defaultSections(), policy, toneMap)

	return promptcontext.NewEngine(loader, catalogCache, policy, toneMap,
		promptcontext.WithEngineLogger(log),
		promptcontext.WithFallbackOptimizer(fallback),
	), nil
}

func loadContextLoader(dir string, log *slog.Logger) (promptcontext.ContextLoader, error) {
	if dir == "" {
		return staticLoader{sections: defaultSections()}, nil
	}
	return contextsource.NewFileLoader(dir, log)
}

func loadToneMap(path string) (map[string]string, error) {
	if path == "" {
		return defaultToneMap(), nil
	}
	return pconfig.LoadToneMap(path)
}

func defaultToneMap() map[string]string {
	return map[string]string{
		"friendly": "Be warm and conversational.",
		"formal":   "Be precise and professional.",
	}
}

func defaultSections() []promptcontext.Section {
	return []promptcontext.Section{
		promptcontext.NewSection("core-identity", "You are a helpful assistant for this product.", nil, true, 100),
	}
}

// staticLoader serves a fixed in-memory catalog. It exists only to give
// Build a working ContextLoader when the caller hasn't pointed it at a
// real source (file directory, Postgres table, or web pages).
type staticLoader struct {
	sections []promptcontext.Section
}

func (l staticLoader) Load(_ context.Context, _ promptcontext.LoadRequest) ([]promptcontext.Section, error) {
	return l.sections, nil
}

func buildPlan(planPath string, handlers map[string]executor.Handler) (*executor.Plan, error) {
	if planPath == "" {
		return defaultPlan(handlers)
	}
	spec, err := pconfig.LoadPlanSpec(planPath)
	if err != nil {
		return nil, err
	}
	return spec.Build(handlers)
}

// defaultPlan mirrors the shape a YAML-declared plan would typically
// take: moderation and rate limiting gate sequentially, then intent
// runs as its own stage ahead of context rather than alongside it in a
// group. Every stage in a ParallelGroup executes against the same
// pre-group state snapshot, so grouping them would leave context
// unable to see the intent its own group member just classified, and
// the tone-map personalization promptcontext.Engine derives from
// state.Intent would never fire. The model call runs last.
func defaultPlan(handlers map[string]executor.Handler) (*executor.Plan, error) {
	return executor.NewPlan(
		executor.NewStage("contentModeration", handlers["contentModeration"]),
		executor.NewStage("rateLimit", handlers["rateLimit"]),
		executor.NewStage("intent", handlers["intent"]),
		executor.NewStage("context", handlers["context"]),
		executor.NewStage("aiResponse", handlers["aiResponse"]),
	)
}
