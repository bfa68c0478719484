package promptcontext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func topicSet(ts ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(ts))
	for _, t := range ts {
		m[t] = struct{}{}
	}
	return m
}

func TestOptimizer_ToneInjectionAndSavings(t *testing.T) {
	sections := []Section{
		NewSection("core", "A", nil, true, 0),
		NewSection("help", "B", []string{"help"}, false, 0),
		NewSection("tech", "C", []string{"tech"}, false, 0),
	}
	opt := NewOptimizer(sections, Policy{FirstMessage: PolicySelective, FollowUp: PolicySelective}, map[string]string{"friendly": "T"})

	res := opt.Select(SelectionRequest{Topics: topicSet("help"), IsFirstMessage: false, Tone: "friendly"})

	assert.Equal(t, "A\n\nB\n\nT", res.SystemPrompt)
	assert.Equal(t, []string{"core", "help"}, res.SectionsIncluded)
	assert.Equal(t, 3, res.TotalSections)
	assert.Equal(t, estimateTokens("A\n\nB\n\nC"), res.MaxTokenEstimate)
	assert.Equal(t, estimateTokens("A\n\nB\n\nT"), res.TokenEstimate)
}

func TestOptimizer_FullForFirstMessageUnlessSelective(t *testing.T) {
	sections := []Section{
		NewSection("a", "A", nil, false, 0),
		NewSection("b", "B", []string{"x"}, false, 0),
	}
	opt := NewOptimizer(sections, Policy{FirstMessage: PolicyFull, FollowUp: PolicySelective}, nil)

	res := opt.Select(SelectionRequest{Topics: topicSet(), IsFirstMessage: true})
	assert.Equal(t, []string{"a", "b"}, res.SectionsIncluded)
}

func TestOptimizer_AlwaysIncludePresentInSelectiveSelection(t *testing.T) {
	sections := []Section{
		NewSection("core", "A", nil, true, 0),
		NewSection("other", "B", []string{"x"}, false, 0),
	}
	opt := NewOptimizer(sections, Policy{FirstMessage: PolicySelective, FollowUp: PolicySelective}, nil)

	res := opt.Select(SelectionRequest{Topics: topicSet(), IsFirstMessage: false})
	assert.Contains(t, res.SectionsIncluded, "core")
	assert.NotContains(t, res.SectionsIncluded, "other")
}

func TestOptimizer_PrioritySortIsStableOnTies(t *testing.T) {
	sections := []Section{
		NewSection("low-a", "A", []string{"x"}, false, 1),
		NewSection("low-b", "B", []string{"x"}, false, 1),
		NewSection("high", "C", []string{"x"}, false, 5),
	}
	opt := NewOptimizer(sections, Policy{FirstMessage: PolicySelective, FollowUp: PolicySelective}, nil)

	res := opt.Select(SelectionRequest{Topics: topicSet("x"), IsFirstMessage: false})
	assert.Equal(t, []string{"high", "low-a", "low-b"}, res.SectionsIncluded)
}

func TestOptimizer_DeduplicatesByID(t *testing.T) {
	sections := []Section{
		NewSection("core", "A", nil, true, 0),
		NewSection("core", "A-duplicate", nil, true, 0),
	}
	opt := NewOptimizer(sections, Policy{FirstMessage: PolicyFull, FollowUp: PolicyFull}, nil)

	res := opt.Select(SelectionRequest{IsFirstMessage: true})
	assert.Equal(t, []string{"core"}, res.SectionsIncluded)
	assert.Equal(t, "A", res.SystemPrompt)
}

func TestOptimizer_IsDeterministic(t *testing.T) {
	sections := []Section{
		NewSection("core", "A", nil, true, 2),
		NewSection("help", "B", []string{"help"}, false, 1),
	}
	opt := NewOptimizer(sections, Policy{FirstMessage: PolicySelective, FollowUp: PolicySelective}, nil)
	req := SelectionRequest{Topics: topicSet("help"), IsFirstMessage: false}

	r1 := opt.Select(req)
	r2 := opt.Select(req)
	assert.Equal(t, r1, r2)
}
