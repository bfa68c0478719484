package aiclient

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubInvoker struct {
	text string
	err  error
}

func (s stubInvoker) Generate(context.Context, GenerateRequest) (GenerateResult, error) {
	if s.err != nil {
		return GenerateResult{}, s.err
	}
	return GenerateResult{Text: s.text}, nil
}

func TestStructuredTier_ParsesCleanJSON(t *testing.T) {
	tier := NewStructuredTier(stubInvoker{text: `{"intent":"question","confidence":0.9,"reasoning":"looks like a question"}`}, []string{"greeting", "question"})
	res, err := tier.Classify(context.Background(), "23 + 44")
	require.NoError(t, err)
	assert.Equal(t, "question", res.Intent)
	assert.Equal(t, 0.9, res.Confidence)
}

func TestStructuredTier_ToleratesSurroundingProse(t *testing.T) {
	tier := NewStructuredTier(stubInvoker{text: "Sure, here you go:\n```json\n{\"intent\":\"greeting\",\"confidence\":1.1}\n```"}, []string{"greeting"})
	res, err := tier.Classify(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "greeting", res.Intent)
	assert.Equal(t, 1.0, res.Confidence, "confidence must clamp to [0,1]")
}

func TestStructuredTier_UnknownIntentCoercesToGeneral(t *testing.T) {
	tier := NewStructuredTier(stubInvoker{text: `{"intent":"weather","confidence":0.4}`}, []string{"greeting", "question"})
	res, err := tier.Classify(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "general", res.Intent)
}

func TestStructuredTier_InvokerErrorPropagates(t *testing.T) {
	tier := NewStructuredTier(stubInvoker{err: errors.New("timeout")}, []string{"greeting"})
	_, err := tier.Classify(context.Background(), "hi")
	assert.Error(t, err)
}

func TestTextualTier_ParsesLabelledLines(t *testing.T) {
	tier := NewTextualTier(stubInvoker{text: "INTENT: Question\nCONFIDENCE: 0.8\nREASONING: arithmetic expression"}, []string{"greeting", "question"})
	res, err := tier.Classify(context.Background(), "23 + 44")
	require.NoError(t, err)
	assert.Equal(t, "question", res.Intent)
	assert.Equal(t, 0.8, res.Confidence)
	assert.Equal(t, "arithmetic expression", res.Reasoning)
}

func TestTextualTier_MissingFieldsDefaultSafely(t *testing.T) {
	tier := NewTextualTier(stubInvoker{text: "I am not sure what this means."}, []string{"greeting"})
	res, err := tier.Classify(context.Background(), "garbled")
	require.NoError(t, err)
	assert.Equal(t, "general", res.Intent)
	assert.Equal(t, 0.5, res.Confidence)
}

func TestTextualTier_UnknownIntentCoercesToGeneral(t *testing.T) {
	tier := NewTextualTier(stubInvoker{text: "INTENT: weather\nCONFIDENCE: 0.9"}, []string{"greeting", "question"})
	res, err := tier.Classify(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "general", res.Intent)
}

func TestTextualTier_ClampsOutOfRangeConfidence(t *testing.T) {
	tier := NewTextualTier(stubInvoker{text: "intent: greeting\nconfidence: 5"}, []string{"greeting"})
	res, err := tier.Classify(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Confidence)
}
