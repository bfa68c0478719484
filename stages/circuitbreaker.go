package stages

import (
	"errors"
	"sync"
	"time"
)

// CircuitState is one of closed/open/half-open, grounded on the
// teacher's resilience.CircuitBreaker. This is a deliberately smaller
// fixed-threshold/fixed-timeout breaker: the teacher's sliding-window
// bucketed version is built for per-agent traffic shaping across a
// fleet of downstream services, which this single ModelInvoker stage
// doesn't need.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// ErrCircuitOpen is returned by Execute when the breaker is open and
// the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("stages: circuit breaker is open")

// CircuitBreaker guards a flaky downstream call (the model invoker):
// after failureThreshold consecutive failures it opens and rejects
// calls for resetTimeout, then allows one half-open probe before
// deciding whether to close again or re-open.
type CircuitBreaker struct {
	failureThreshold int
	resetTimeout     time.Duration

	mu          sync.Mutex
	state       CircuitState
	failures    int
	openedAt    time.Time
	halfOpenTry bool
}

// NewCircuitBreaker builds a closed breaker.
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	return &CircuitBreaker{failureThreshold: failureThreshold, resetTimeout: resetTimeout, state: StateClosed}
}

// Execute runs fn if the breaker allows it, recording the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.openedAt) < cb.resetTimeout {
			return false
		}
		cb.state = StateHalfOpen
		cb.halfOpenTry = true
		return true
	case StateHalfOpen:
		if cb.halfOpenTry {
			return false
		}
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.failures = 0
		cb.state = StateClosed
		cb.halfOpenTry = false
		return
	}

	cb.halfOpenTry = false
	if cb.state == StateHalfOpen {
		cb.state = StateOpen
		cb.openedAt = time.Now()
		return
	}

	cb.failures++
	if cb.failures >= cb.failureThreshold {
		cb.state = StateOpen
		cb.openedAt = time.Now()
	}
}

// State reports the breaker's current state, for observability.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
