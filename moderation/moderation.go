// Package moderation implements the content moderation stage input
// contract of spec.md §6: spam/profanity/custom-rule matching against
// the last user message, case-insensitive, fail-open on internal
// errors.
package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/flowmind-ai/pipeline/perr"
	"github.com/flowmind-ai/pipeline/state"
)

// CustomRule is a named pattern with its own rejection reason.
type CustomRule struct {
	Pattern string
	Reason  string
}

// Config is the moderation stage's input configuration (spec.md §6).
// String patterns are compiled as case-insensitive regular
// expressions.
type Config struct {
	SpamPatterns   []string
	ProfanityWords []string
	CustomRules    []CustomRule
}

type compiledRule struct {
	re     *regexp.Regexp
	reason string
}

// Moderator evaluates a Config's rules against incoming messages.
type Moderator struct {
	spam       []*regexp.Regexp
	profanity  []*regexp.Regexp
	custom     []compiledRule
	logger     *slog.Logger
}

// New compiles cfg's patterns once for reuse across requests.
func New(cfg Config, log *slog.Logger) (*Moderator, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	m := &Moderator{logger: log}

	for _, p := range cfg.SpamPatterns {
		re, err := compileCaseInsensitive(p)
		if err != nil {
			return nil, fmt.Errorf("moderation: invalid spam pattern %q: %w", p, err)
		}
		m.spam = append(m.spam, re)
	}
	for _, w := range cfg.ProfanityWords {
		re, err := compileCaseInsensitive(regexp.QuoteMeta(w))
		if err != nil {
			return nil, fmt.Errorf("moderation: invalid profanity word %q: %w", w, err)
		}
		m.profanity = append(m.profanity, re)
	}
	for _, r := range cfg.CustomRules {
		re, err := compileCaseInsensitive(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("moderation: invalid custom rule pattern %q: %w", r.Pattern, err)
		}
		m.custom = append(m.custom, compiledRule{re: re, reason: r.Reason})
	}
	return m, nil
}

func compileCaseInsensitive(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}

// Stage wraps m into an executor-compatible handler. Non-user-role
// last messages pass unconditionally. An internal error during
// evaluation must not fail the request (spec.md §6): it logs and
// allows the message through with passed=true, error set.
func (m *Moderator) Stage(name string) func(ctx context.Context, s state.State) state.State {
	return func(ctx context.Context, s state.State) state.State {
		msg, ok := s.Request.LastMessage()
		if !ok || msg.Role != state.RoleUser {
			return state.SetModeration(s, state.ModerationVerdict{Passed: true})
		}

		verdict, reason, failed, evalErr := m.safeEvaluate(msg.TextContent())
		if evalErr != nil {
			m.logger.Warn("moderation evaluation failed, allowing message through", "step", name, "error", evalErr.Error())
			return state.SetModeration(s, state.ModerationVerdict{Passed: true, Error: evalErr.Error()})
		}
		if failed {
			s = state.SetModeration(s, state.ModerationVerdict{Passed: false, Reason: reason})
			return s.WithFailure(perr.Validation(name, verdict, reason))
		}
		return state.SetModeration(s, state.ModerationVerdict{Passed: true})
	}
}

// safeEvaluate recovers a panic from rule evaluation (a pathological
// custom-rule regexp on attacker-controlled input) into an error
// rather than letting it escape as a crash.
func (m *Moderator) safeEvaluate(content string) (message, reason string, failed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("moderation: rule evaluation panicked: %v", r)
		}
	}()
	message, reason, failed = m.evaluate(content)
	return
}

func (m *Moderator) evaluate(content string) (message, reason string, failed bool) {
	if content == "" {
		return "", "", false
	}

	for _, re := range m.spam {
		if re.MatchString(content) {
			return "This message was flagged as inappropriate.", "matched spam pattern: " + re.String(), true
		}
	}
	for _, re := range m.profanity {
		if re.MatchString(content) {
			return "This message contains inappropriate language.", "matched profanity word", true
		}
	}
	for _, rule := range m.custom {
		if rule.re.MatchString(content) {
			return "This message was flagged as inappropriate.", rule.reason, true
		}
	}
	return "", "", false
}
