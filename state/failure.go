package state

import "fmt"

// Failure is the terminal descriptor a stage attaches to a State to
// stop plan execution. Its presence is checked by the executor after
// every stage and parallel group.
type Failure struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
	RetryAfter int     `json:"retryAfter,omitempty"` // seconds
	Step       string `json:"step,omitempty"`
	Details    string `json:"details,omitempty"`
}

func (f *Failure) Error() string {
	if f == nil {
		return ""
	}
	if f.Step != "" {
		return fmt.Sprintf("%s (step=%s, status=%d)", f.Message, f.Step, f.StatusCode)
	}
	return fmt.Sprintf("%s (status=%d)", f.Message, f.StatusCode)
}

// WithStep returns a copy of the failure with Step set, unless the
// failure already names a step — per spec.md §4.1, the originating
// stage's name is a fallback only, never an override.
func (f *Failure) WithStep(step string) *Failure {
	if f == nil {
		return nil
	}
	cp := *f
	if cp.Step == "" {
		cp.Step = step
	}
	return &cp
}

// Distinguished status codes used by the taxonomy in spec.md §7.
const (
	StatusValidation = 400
	StatusRateLimit  = 429
	StatusCancelled  = 499
	StatusUpstream   = 500
)
