package aiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flowmind-ai/pipeline/intent"
)

// StructuredTier implements intent.LLMTier by instructing the model to
// return a JSON object matching a fixed schema (spec.md §6 style a).
type StructuredTier struct {
	invoker    ModelInvoker
	categories []string
}

// NewStructuredTier builds a structured-output LLM classification tier.
// categories is the closed set of intents the model may choose, beyond
// the always-valid "general".
func NewStructuredTier(invoker ModelInvoker, categories []string) *StructuredTier {
	return &StructuredTier{invoker: invoker, categories: categories}
}

type structuredPayload struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

func (t *StructuredTier) Classify(ctx context.Context, message string) (intent.LLMResult, error) {
	system := fmt.Sprintf(
		"Classify the user's message into exactly one of these categories: %s, or \"general\" if none fit. "+
			"Respond with ONLY a JSON object of the shape {\"intent\": string, \"confidence\": number between 0 and 1, \"reasoning\": string}.",
		strings.Join(t.categories, ", "),
	)

	result, err := t.invoker.Generate(ctx, GenerateRequest{
		System:      system,
		Messages:    []Message{{Role: "user", Content: message}},
		Temperature: 0,
		MaxTokens:   200,
	})
	if err != nil {
		return intent.LLMResult{}, fmt.Errorf("aiclient: structured classification request failed: %w", err)
	}

	var payload structuredPayload
	if err := json.Unmarshal([]byte(extractJSONObject(result.Text)), &payload); err != nil {
		return intent.LLMResult{}, fmt.Errorf("aiclient: unparseable structured response: %w", err)
	}

	return intent.LLMResult{
		Intent:     t.normalizeIntent(payload.Intent),
		Confidence: clamp01(payload.Confidence),
		Reasoning:  payload.Reasoning,
	}, nil
}

func (t *StructuredTier) normalizeIntent(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	for _, c := range t.categories {
		if strings.ToLower(c) == lower {
			return c
		}
	}
	return generalIntent
}

const generalIntent = "general"

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// extractJSONObject trims a model response down to its first top-level
// JSON object, tolerating surrounding prose or markdown code fences
// models sometimes add despite instructions.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
