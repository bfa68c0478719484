package intent

import (
	"context"
	"log/slog"

	"github.com/flowmind-ai/pipeline/state"
)

// FallbackEvent is passed to HybridResolver's OnFallback hook every time
// the LLM tier is consulted, whatever the outcome (spec.md §4.3 step 6).
type FallbackEvent struct {
	Message          string
	KeywordIntent    string
	KeywordConfidence float64
	LLMIntent        string
	LLMConfidence    float64
	LLMReasoning     string
}

// HybridResolver implements spec.md §4.3: keyword tier first, LLM tier
// only when the keyword result is low-confidence, metadata always
// looked up for the intent that actually wins.
type HybridResolver struct {
	keyword   *KeywordClassifier
	llm       LLMTier
	threshold float64
	enableLLM bool
	logger    *slog.Logger
	onFallback func(FallbackEvent)
}

// HybridOption configures a HybridResolver.
type HybridOption func(*HybridResolver)

func WithThreshold(t float64) HybridOption {
	return func(r *HybridResolver) { r.threshold = t }
}

func WithLLMFallback(enabled bool) HybridOption {
	return func(r *HybridResolver) { r.enableLLM = enabled }
}

func WithLogger(l *slog.Logger) HybridOption {
	return func(r *HybridResolver) { r.logger = l }
}

func WithOnFallback(fn func(FallbackEvent)) HybridOption {
	return func(r *HybridResolver) { r.onFallback = fn }
}

// NewHybridResolver wires a keyword classifier with an optional LLM
// tier. Default threshold is 0.5, strictly "<" counts as low confidence
// (spec.md §4.3).
func NewHybridResolver(keyword *KeywordClassifier, llm LLMTier, opts ...HybridOption) *HybridResolver {
	r := &HybridResolver{
		keyword:   keyword,
		llm:       llm,
		threshold: 0.5,
		enableLLM: true,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Classify implements spec.md §4.3's full contract.
func (r *HybridResolver) Classify(ctx context.Context, message string, s *state.State) Result {
	kw := r.keyword.Classify(message)

	if kw.Confidence >= r.threshold || !r.enableLLM || r.llm == nil {
		return kw
	}

	llmRes, err := r.llm.Classify(ctx, message)

	event := FallbackEvent{
		Message:           message,
		KeywordIntent:     kw.Intent,
		KeywordConfidence: kw.Confidence,
	}
	defer func() {
		if r.onFallback != nil {
			r.onFallback(event)
		}
	}()

	if err != nil {
		r.logger.Warn("llm intent tier failed, degrading to general", "error", err.Error())
		event.LLMIntent = generalIntent
		return Result{Intent: generalIntent, Confidence: 0, Method: "llm"}
	}

	event.LLMIntent = llmRes.Intent
	event.LLMConfidence = llmRes.Confidence
	event.LLMReasoning = llmRes.Reasoning

	merged := Metadata{ClassificationMethod: "llm", Reasoning: llmRes.Reasoning}
	if md := r.keyword.GetMetadataForIntent(llmRes.Intent); md != nil {
		merged.Tone = md.Tone
		merged.DeepLink = md.DeepLink
		merged.RequiresAuth = md.RequiresAuth
	}

	return Result{
		Intent:     llmRes.Intent,
		Confidence: llmRes.Confidence,
		Method:     "llm",
		Metadata:   &merged,
	}
}
