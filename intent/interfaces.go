package intent

import "context"

// LLMResult is what an LLM intent tier hands back before metadata
// lookup is applied by the hybrid resolver.
type LLMResult struct {
	Intent     string
	Confidence float64
	Reasoning  string
}

// LLMTier is the external capability spec.md §6 calls out: given a
// message, classify it into one of the configured categories or the
// distinguished "general". Implementations (structured JSON, textual
// labelled-line) live in package aiclient.
type LLMTier interface {
	Classify(ctx context.Context, message string) (LLMResult, error)
}
