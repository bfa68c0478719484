package promptcontext

import (
	"sort"
	"strings"
)

// InclusionPolicy chooses between the full catalog and a topic-filtered
// selection for a given message position (spec.md §4.4).
type InclusionPolicy string

const (
	PolicyFull      InclusionPolicy = "full"
	PolicySelective InclusionPolicy = "selective"
)

// Policy bundles the first-message and follow-up inclusion rules.
type Policy struct {
	FirstMessage InclusionPolicy
	FollowUp     InclusionPolicy
}

// SelectionRequest is the optimizer's input (spec.md §4.4).
type SelectionRequest struct {
	Topics        map[string]struct{}
	IsFirstMessage bool
	Tone          string
}

// Optimizer selects, orders, and budgets context sections from a fixed
// catalog. It is deterministic and side-effect free: identical inputs
// always yield byte-identical output (spec.md §8 idempotence property).
type Optimizer struct {
	sections []Section
	policy   Policy
	toneMap  map[string]string
}

// NewOptimizer builds an Optimizer over a catalog in its configured
// order. toneMap may be nil.
func NewOptimizer(sections []Section, policy Policy, toneMap map[string]string) *Optimizer {
	return &Optimizer{sections: sections, policy: policy, toneMap: toneMap}
}

// WithToneMap returns a shallow copy of o using toneMap instead of its
// own. Used by Engine to force its fallback optimizer onto the shared
// tone map rather than whatever tone source it was built with (see
// DESIGN.md Open Questions: the engine's tone map is canonical, a
// fallback optimizer never supplies its own).
func (o *Optimizer) WithToneMap(toneMap map[string]string) *Optimizer {
	cp := *o
	cp.toneMap = toneMap
	return &cp
}

// Select implements spec.md §4.4 steps 1-6.
func (o *Optimizer) Select(req SelectionRequest) SelectionResult {
	useFull := (req.IsFirstMessage && o.policy.FirstMessage != PolicySelective) ||
		(!req.IsFirstMessage && o.policy.FollowUp == PolicyFull)

	var selected []Section
	if useFull {
		selected = append(selected, o.sections...)
	} else {
		selected = o.selectiveSections(req.Topics)
	}

	selected = dedupeByID(selected)

	contents := make([]string, len(selected))
	ids := make([]string, len(selected))
	for i, s := range selected {
		contents[i] = s.Content
		ids[i] = s.ID
	}
	systemPrompt := strings.Join(contents, "\n\n")

	if req.Tone != "" {
		if instruction, ok := o.toneMap[req.Tone]; ok {
			systemPrompt += "\n\n" + instruction
		}
	}

	allContents := make([]string, len(o.sections))
	for i, s := range o.sections {
		allContents[i] = s.Content
	}
	maxPrompt := strings.Join(allContents, "\n\n")

	return SelectionResult{
		SystemPrompt:     systemPrompt,
		SectionsIncluded: ids,
		TotalSections:    len(o.sections),
		TokenEstimate:    estimateTokens(systemPrompt),
		MaxTokenEstimate: estimateTokens(maxPrompt),
	}
}

// selectiveSections applies the alwaysInclude-or-topic-match filter,
// then a stable sort by descending priority.
func (o *Optimizer) selectiveSections(topics map[string]struct{}) []Section {
	var out []Section
	for _, s := range o.sections {
		if s.AlwaysInclude || s.hasAnyTopic(topics) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

func dedupeByID(sections []Section) []Section {
	seen := make(map[string]struct{}, len(sections))
	out := make([]Section, 0, len(sections))
	for _, s := range sections {
		if _, ok := seen[s.ID]; ok {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	return out
}

// estimateTokens is the coarse character-count heuristic spec.md §1
// calls out explicitly as the accuracy ceiling: ceil(len/4).
func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}
