// Package intent implements the two-tier keyword/LLM intent classifier
// (spec.md §4.2, §4.3).
package intent

import (
	"sort"
	"strings"

	"github.com/flowmind-ai/pipeline/state"
)

// Pattern is one classification category and its keyword list.
// Keywords are matched case-insensitively as substrings; multi-word
// keywords intentionally outweigh single-word ones (spec.md §4.2 step 2).
type Pattern struct {
	Category string
	Keywords []string
}

// Metadata is attached to the winning intent when the caller configured
// a metadata table for that category.
type Metadata = state.IntentMetadata

// Result mirrors state.IntentResult; the two are kept structurally
// identical on purpose so a Result can be stored directly via
// state.SetIntent without a conversion step.
type Result = state.IntentResult

const generalIntent = "general"

// KeywordClassifier scores a message against a fixed set of Patterns
// and reports a margin-based confidence (spec.md §4.2).
type KeywordClassifier struct {
	patterns []Pattern
	metadata map[string]Metadata
}

// NewKeywordClassifier builds a classifier from patterns, with an
// optional per-category metadata table (tone/deepLink/requiresAuth).
func NewKeywordClassifier(patterns []Pattern, metadata map[string]Metadata) *KeywordClassifier {
	return &KeywordClassifier{patterns: patterns, metadata: metadata}
}

type scoredCategory struct {
	category string
	score    int
	matched  []string
}

// Classify implements spec.md §4.2 steps 1-5 exactly.
func (k *KeywordClassifier) Classify(message string) Result {
	lower := strings.ToLower(message)

	scores := make([]scoredCategory, 0, len(k.patterns))
	for _, p := range k.patterns {
		sc := scoredCategory{category: p.Category}
		for _, kw := range p.Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(lower, kw) {
				sc.score += wordCount(kw)
				sc.matched = append(sc.matched, kw)
			}
		}
		scores = append(scores, sc)
	}

	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	if len(scores) == 0 || scores[0].score == 0 {
		return Result{Intent: generalIntent, Confidence: 0, Method: "keyword"}
	}

	best := scores[0]
	second := 0
	if len(scores) > 1 {
		second = scores[1].score
	}

	denom := best.score
	if denom == 0 {
		denom = 1
	}
	confidence := float64(best.score-second) / float64(denom)
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}

	res := Result{
		Intent:          best.category,
		Confidence:      confidence,
		MatchedKeywords: best.matched,
		Method:          "keyword",
	}
	if md, ok := k.metadata[best.category]; ok {
		m := md
		res.Metadata = &m
	}
	return res
}

// GetMetadataForIntent returns the configured metadata for category
// without running classification, or nil if none is configured.
func (k *KeywordClassifier) GetMetadataForIntent(category string) *Metadata {
	if md, ok := k.metadata[category]; ok {
		m := md
		return &m
	}
	return nil
}

func wordCount(s string) int {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 1
	}
	return len(fields)
}
