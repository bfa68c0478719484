package aiclient

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/flowmind-ai/pipeline/intent"
)

// TextualTier implements intent.LLMTier against a model that returns
// free-form text with labelled lines, for providers or prompt styles
// that don't reliably honor JSON-only instructions (spec.md §6 style
// b). Parsing is deliberately forgiving: surrounding whitespace,
// case-insensitive labels, and missing fields never produce an error.
type TextualTier struct {
	invoker    ModelInvoker
	categories []string
}

// NewTextualTier builds a labelled-line LLM classification tier.
func NewTextualTier(invoker ModelInvoker, categories []string) *TextualTier {
	return &TextualTier{invoker: invoker, categories: categories}
}

func (t *TextualTier) Classify(ctx context.Context, message string) (intent.LLMResult, error) {
	system := fmt.Sprintf(
		"Classify the user's message into exactly one of these categories: %s, or \"general\" if none fit. "+
			"Respond with exactly three lines:\nINTENT: <category>\nCONFIDENCE: <number between 0 and 1>\nREASONING: <one sentence>",
		strings.Join(t.categories, ", "),
	)

	result, err := t.invoker.Generate(ctx, GenerateRequest{
		System:      system,
		Messages:    []Message{{Role: "user", Content: message}},
		Temperature: 0,
		MaxTokens:   150,
	})
	if err != nil {
		return intent.LLMResult{}, fmt.Errorf("aiclient: textual classification request failed: %w", err)
	}

	return t.parse(result.Text), nil
}

func (t *TextualTier) parse(text string) intent.LLMResult {
	fields := map[string]string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}

	res := intent.LLMResult{Intent: generalIntent, Confidence: 0.5}

	if raw, ok := fields["intent"]; ok {
		res.Intent = t.normalizeIntent(raw)
	}
	if raw, ok := fields["confidence"]; ok {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			res.Confidence = clamp01(v)
		}
	}
	if raw, ok := fields["reasoning"]; ok {
		res.Reasoning = raw
	}

	return res
}

func (t *TextualTier) normalizeIntent(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	for _, c := range t.categories {
		if strings.ToLower(c) == lower {
			return c
		}
	}
	return generalIntent
}
