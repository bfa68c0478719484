package state

import "time"

// ModerationVerdict is the contentModeration extension payload.
type ModerationVerdict struct {
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// RateLimitInfo is the rateLimit extension payload.
type RateLimitInfo struct {
	Allowed    bool `json:"allowed"`
	RetryAfter int  `json:"retryAfter,omitempty"`
}

// IntentMetadata is the optional metadata block on an intent result.
type IntentMetadata struct {
	Tone                 string `json:"tone,omitempty"`
	DeepLink             string `json:"deepLink,omitempty"`
	RequiresAuth         bool   `json:"requiresAuth,omitempty"`
	ClassificationMethod string `json:"classificationMethod,omitempty"`
	Reasoning            string `json:"reasoning,omitempty"`
}

// IntentResult is the intent extension payload (spec.md §3).
type IntentResult struct {
	Intent           string          `json:"intent"`
	Confidence       float64         `json:"confidence"`
	MatchedKeywords  []string        `json:"matchedKeywords,omitempty"`
	Method           string          `json:"method"` // "keyword" | "llm"
	Metadata         *IntentMetadata `json:"metadata,omitempty"`
}

// PromptContextResult is the promptContext extension payload, matching
// promptcontext.SelectionResult without importing that package here
// (state must stay a leaf dependency).
type PromptContextResult struct {
	SystemPrompt      string   `json:"systemPrompt"`
	SectionsIncluded  []string `json:"sectionsIncluded"`
	TotalSections     int      `json:"totalSections"`
	TokenEstimate     int      `json:"tokenEstimate"`
	MaxTokenEstimate  int      `json:"maxTokenEstimate"`
	Variant           string   `json:"variant,omitempty"`
}

// AIResponseResult is the aiResponse extension payload.
type AIResponseResult struct {
	Text         string        `json:"text"`
	FinishReason string        `json:"finishReason"`
	Duration     time.Duration `json:"duration"`
}

func Moderation(s State) (ModerationVerdict, bool) { return Extension[ModerationVerdict](s, KeyContentModeration) }
func SetModeration(s State, v ModerationVerdict) State { return s.WithExtension(KeyContentModeration, v) }

func RateLimit(s State) (RateLimitInfo, bool) { return Extension[RateLimitInfo](s, KeyRateLimit) }
func SetRateLimit(s State, v RateLimitInfo) State { return s.WithExtension(KeyRateLimit, v) }

func Intent(s State) (IntentResult, bool) { return Extension[IntentResult](s, KeyIntent) }
func SetIntent(s State, v IntentResult) State { return s.WithExtension(KeyIntent, v) }

func PromptContext(s State) (PromptContextResult, bool) {
	return Extension[PromptContextResult](s, KeyPromptContext)
}
func SetPromptContext(s State, v PromptContextResult) State {
	return s.WithExtension(KeyPromptContext, v)
}

func AIResponse(s State) (AIResponseResult, bool) { return Extension[AIResponseResult](s, KeyAIResponse) }
func SetAIResponse(s State, v AIResponseResult) State { return s.WithExtension(KeyAIResponse, v) }
