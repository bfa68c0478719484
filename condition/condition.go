// Package condition implements pure, async-aware predicates over a
// state.State, used to gate stage execution in a plan (spec.md §4.7).
package condition

import (
	"context"
	"regexp"
	"strings"

	"github.com/flowmind-ai/pipeline/state"
)

// Predicate is evaluated against the current state to decide whether a
// stage should run. It is always awaited, even when trivially
// synchronous, so a predicate backed by an external lookup (a feature
// flag service, say) fits the same shape as a pure in-memory check.
type Predicate func(ctx context.Context, s *state.State) bool

// And short-circuits on the first false predicate.
func And(preds ...Predicate) Predicate {
	return func(ctx context.Context, s *state.State) bool {
		for _, p := range preds {
			if !p(ctx, s) {
				return false
			}
		}
		return true
	}
}

// Or short-circuits on the first true predicate.
func Or(preds ...Predicate) Predicate {
	return func(ctx context.Context, s *state.State) bool {
		for _, p := range preds {
			if p(ctx, s) {
				return true
			}
		}
		return false
	}
}

// Not negates a predicate.
func Not(p Predicate) Predicate {
	return func(ctx context.Context, s *state.State) bool {
		return !p(ctx, s)
	}
}

// HasIntent reports whether the state's classified intent equals category.
func HasIntent(category string) Predicate {
	return func(_ context.Context, s *state.State) bool {
		res, ok := state.Intent(*s)
		return ok && res.Intent == category
	}
}

// HasMetadata reports whether the request metadata contains key, and
// optionally that its value equals want (when a want value is passed,
// nil included).
func HasMetadata(key string, want ...any) Predicate {
	return func(_ context.Context, s *state.State) bool {
		v, ok := s.Request.Metadata[key]
		if !ok {
			return false
		}
		if len(want) == 0 {
			return true
		}
		return v == want[0]
	}
}

// HasExtension reports whether the state carries extension key, and
// optionally that its value equals want (when a want value is passed,
// nil included).
func HasExtension(key string, want ...any) Predicate {
	return func(_ context.Context, s *state.State) bool {
		v, ok := s.Extensions[key]
		if !ok {
			return false
		}
		if len(want) == 0 {
			return true
		}
		return v == want[0]
	}
}

// IsFirstMessage reports whether the request's conversation has at
// most one message.
func IsFirstMessage() Predicate {
	return func(_ context.Context, s *state.State) bool {
		return s.Request.IsFirstMessage()
	}
}

// IsAuthenticated reports whether metadata carries a userId, or an
// explicit authenticated=true flag.
func IsAuthenticated() Predicate {
	return func(_ context.Context, s *state.State) bool {
		if _, ok := s.Request.Metadata["userId"]; ok {
			return true
		}
		auth, ok := s.Request.Metadata["authenticated"].(bool)
		return ok && auth
	}
}

// MatchesPattern reports whether the last message's text content
// matches the given regular expression. An invalid pattern never
// matches rather than panicking at gate-evaluation time.
func MatchesPattern(pattern string) Predicate {
	re, err := regexp.Compile(pattern)
	return func(_ context.Context, s *state.State) bool {
		if err != nil {
			return false
		}
		msg, ok := s.Request.LastMessage()
		if !ok {
			return false
		}
		return re.MatchString(msg.TextContent())
	}
}

// ContentContains is a lightweight, non-regex sibling of MatchesPattern
// for plans that just need a case-insensitive substring check on the
// last message.
func ContentContains(substr string) Predicate {
	lower := strings.ToLower(substr)
	return func(_ context.Context, s *state.State) bool {
		msg, ok := s.Request.LastMessage()
		if !ok {
			return false
		}
		return strings.Contains(strings.ToLower(msg.TextContent()), lower)
	}
}
