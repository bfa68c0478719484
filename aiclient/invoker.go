// Package aiclient implements the model-invocation and LLM
// intent-classification capabilities the core engine consumes as
// opaque interfaces (spec.md §6). Grounded on the teacher's
// ai.OpenAIClient: same request-shaping/HTTP-call/response-parsing
// structure, generalized from a single chat-completion call into the
// two capability shapes the engine needs (generation and
// classification) and instrumented with otelhttp instead of a bare
// http.Client.
package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Message is one turn of conversation sent to the model.
type Message struct {
	Role    string
	Content string
}

// GenerateRequest is the ModelInvoker capability's input (spec.md §6).
type GenerateRequest struct {
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Usage reports token accounting from the provider, when available.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// GenerateResult is the ModelInvoker capability's output.
type GenerateResult struct {
	Text         string
	FinishReason string
	Usage        Usage
}

// ModelInvoker is the opaque generation capability the executor's
// model-invocation stage depends on.
type ModelInvoker interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
}

// HTTPModelInvoker implements ModelInvoker against an OpenAI-chat-completions-shaped
// HTTP API. Any provider exposing the same wire shape (including
// self-hosted gateways) can be pointed at via baseURL.
type HTTPModelInvoker struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewHTTPModelInvoker builds an invoker. baseURL has no trailing
// slash, e.g. "https://api.openai.com/v1".
func NewHTTPModelInvoker(apiKey, baseURL, model string) *HTTPModelInvoker {
	return &HTTPModelInvoker{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout:   60 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *HTTPModelInvoker) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	messages := make([]map[string]string, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, map[string]string{"role": m.Role, "content": m.Content})
	}

	payload := map[string]any{
		"model":    c.model,
		"messages": messages,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}

	body, err := c.post(ctx, "/chat/completions", payload)
	if err != nil {
		return GenerateResult{}, err
	}

	choices, ok := body["choices"].([]any)
	if !ok || len(choices) == 0 {
		return GenerateResult{}, fmt.Errorf("aiclient: response has no choices")
	}
	choice, ok := choices[0].(map[string]any)
	if !ok {
		return GenerateResult{}, fmt.Errorf("aiclient: malformed choice")
	}
	message, _ := choice["message"].(map[string]any)
	content, _ := message["content"].(string)
	finishReason, _ := choice["finish_reason"].(string)

	result := GenerateResult{Text: content, FinishReason: finishReason}
	if usage, ok := body["usage"].(map[string]any); ok {
		result.Usage = Usage{
			PromptTokens:     intField(usage, "prompt_tokens"),
			CompletionTokens: intField(usage, "completion_tokens"),
			TotalTokens:      intField(usage, "total_tokens"),
		}
	}
	return result, nil
}

func (c *HTTPModelInvoker) post(ctx context.Context, path string, payload map[string]any) (map[string]any, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("aiclient: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("aiclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("aiclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("aiclient: upstream returned status %d: %s", resp.StatusCode, string(raw))
	}

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("aiclient: decode response: %w", err)
	}
	return decoded, nil
}

func intField(m map[string]any, key string) int {
	v, ok := m[key].(float64)
	if !ok {
		return 0
	}
	return int(v)
}
