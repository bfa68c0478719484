// Package perr centralizes the pipeline's error taxonomy: constructors
// for request-level state.Failure descriptors (spec.md §7) plus a
// structured error type and sentinel errors for library-level misuse,
// grounded on the teacher's core/errors.go FrameworkError pattern.
package perr

import (
	"errors"
	"fmt"

	"github.com/flowmind-ai/pipeline/state"
)

// Sentinel errors for configuration/wiring mistakes, distinct from
// per-request failures — compared with errors.Is, never surfaced to a
// caller as a state.Failure.
var (
	ErrPlanEmpty           = errors.New("pipeline: plan has no entries")
	ErrDuplicateStageName  = errors.New("pipeline: duplicate stage name in plan")
	ErrNilHandler          = errors.New("pipeline: stage handler is nil")
	ErrNoLLMTierConfigured = errors.New("pipeline: no LLM intent tier configured")
)

// Error wraps an underlying error with the operation and component that
// produced it, mirroring core.FrameworkError (Op/Kind/Message/Err).
type Error struct {
	Op      string
	Kind    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Op != "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func New(op, kind string, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Validation builds a spec.md §7 "Validation (moderation)" failure.
func Validation(step, message, reason string) *state.Failure {
	return &state.Failure{Message: message, StatusCode: state.StatusValidation, Step: step, Details: reason}
}

// RateLimited builds a spec.md §7 "Authorization (rate)" failure.
func RateLimited(step string, retryAfter int) *state.Failure {
	return &state.Failure{
		Message:    "Too many requests. Please try again later.",
		StatusCode: state.StatusRateLimit,
		RetryAfter: retryAfter,
		Step:       step,
	}
}

// Cancelled builds the distinguished cancellation failure.
func Cancelled() *state.Failure {
	return &state.Failure{
		Message:    "Request was cancelled.",
		StatusCode: state.StatusCancelled,
		Step:       "cancelled",
	}
}

// Upstream builds a spec.md §7 "Upstream invocation" failure. details is
// attached to the Failure only when includeDetails is true.
func Upstream(step, details string, includeDetails bool) *state.Failure {
	f := &state.Failure{
		Message:    "We hit a problem reaching an upstream service. Please try again shortly.",
		StatusCode: state.StatusUpstream,
		Step:       step,
	}
	if includeDetails {
		f.Details = details
	}
	return f
}

// Internal builds the spec.md §7 "Unexpected (exception)" failure the
// executor attaches when a handler panics.
func Internal(step, details string, includeDetails bool) *state.Failure {
	f := &state.Failure{
		Message:    "Something went wrong while processing your request.",
		StatusCode: state.StatusUpstream,
		Step:       step,
	}
	if includeDetails {
		f.Details = details
	}
	return f
}

// ErrorView is the observability-facing shape of a failure (spec.md §6).
type ErrorView struct {
	Step       string `json:"step"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
	RetryAfter int    `json:"retryAfter,omitempty"`
	Details    string `json:"details,omitempty"`
}

// ViewOf converts a state.Failure into its observability view.
func ViewOf(f *state.Failure) ErrorView {
	if f == nil {
		return ErrorView{}
	}
	return ErrorView{
		Step:       f.Step,
		Message:    f.Message,
		StatusCode: f.StatusCode,
		RetryAfter: f.RetryAfter,
		Details:    f.Details,
	}
}
