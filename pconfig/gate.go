package pconfig

import (
	"fmt"
	"strings"

	"github.com/flowmind-ai/pipeline/condition"
)

// CompileGate parses the small gate-expression vocabulary spec.md §4.7's
// predicates need to be expressible in outside of Go code (a YAML plan
// file's shouldExecute field). Grammar, informally:
//
//	expr      := "isFirstMessage" | "isAuthenticated"
//	           | "hasIntent:" category
//	           | "hasMetadata:" key ["=" value]
//	           | "hasExtension:" key ["=" value]
//	           | "matchesPattern:" regex
//	           | "not:" expr
//	           | "and:[" expr ("," expr)* "]"
//	           | "or:[" expr ("," expr)* "]"
//
// This is new relative to the teacher (it has no predicate DSL); it
// exists only because a YAML-declared plan needs some way to express
// []condition.Predicate without embedding Go.
func CompileGate(raw string) (condition.Predicate, error) {
	expr := strings.TrimSpace(raw)
	if expr == "" {
		return nil, nil
	}
	return parseGate(expr)
}

func parseGate(expr string) (condition.Predicate, error) {
	expr = strings.TrimSpace(expr)
	if expr == "isFirstMessage" {
		return condition.IsFirstMessage(), nil
	}
	if expr == "isAuthenticated" {
		return condition.IsAuthenticated(), nil
	}

	keyword, rest, ok := splitKeyword(expr)
	if !ok {
		return nil, fmt.Errorf("pconfig: unrecognized gate expression %q", expr)
	}

	switch keyword {
	case "hasIntent":
		return condition.HasIntent(rest), nil
	case "hasMetadata":
		key, val, hasVal := splitKeyValue(rest)
		if hasVal {
			return condition.HasMetadata(key, val), nil
		}
		return condition.HasMetadata(key), nil
	case "hasExtension":
		key, val, hasVal := splitKeyValue(rest)
		if hasVal {
			return condition.HasExtension(key, val), nil
		}
		return condition.HasExtension(key), nil
	case "matchesPattern":
		return condition.MatchesPattern(rest), nil
	case "not":
		inner, err := parseGate(rest)
		if err != nil {
			return nil, err
		}
		return condition.Not(inner), nil
	case "and":
		preds, err := parseList(rest)
		if err != nil {
			return nil, err
		}
		return condition.And(preds...), nil
	case "or":
		preds, err := parseList(rest)
		if err != nil {
			return nil, err
		}
		return condition.Or(preds...), nil
	default:
		return nil, fmt.Errorf("pconfig: unknown gate keyword %q", keyword)
	}
}

// splitKeyword splits "keyword:rest" on the first colon.
func splitKeyword(expr string) (keyword, rest string, ok bool) {
	idx := strings.Index(expr, ":")
	if idx < 0 {
		return "", "", false
	}
	return expr[:idx], expr[idx+1:], true
}

func splitKeyValue(s string) (key, value string, hasValue bool) {
	idx := strings.Index(s, "=")
	if idx < 0 {
		return s, "", false
	}
	return s[:idx], s[idx+1:], true
}

// parseList unwraps a "[...]" bracket and splits its contents on
// top-level commas, respecting nested brackets so "and:[a, or:[b,c]]"
// parses correctly.
func parseList(s string) ([]condition.Predicate, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("pconfig: expected bracketed list, got %q", s)
	}
	inner := s[1 : len(s)-1]

	parts := splitTopLevel(inner)
	preds := make([]condition.Predicate, 0, len(parts))
	for _, p := range parts {
		pred, err := parseGate(p)
		if err != nil {
			return nil, err
		}
		preds = append(preds, pred)
	}
	return preds, nil
}

func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if trimmed := strings.TrimSpace(s[start:]); trimmed != "" {
		parts = append(parts, trimmed)
	}
	return parts
}
