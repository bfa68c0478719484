package executor

import (
	"sync"
	"time"

	"github.com/flowmind-ai/pipeline/perr"
)

// Metrics accumulates plan-level counters across repeated Execute
// calls sharing the same Metrics instance: total and failed stage
// invocations plus a running per-stage latency total, grounded on the
// teacher's PlanExecutor.GetMetrics/StandardOrchestrator.GetMetrics
// (spec.md §9b). This is supplemental to the executor's per-call
// Result — Metrics is an optional collaborator a caller wires in via
// Config to observe a Plan across many executions.
type Metrics struct {
	mu sync.Mutex

	totalStageCalls  int64
	failedStageCalls int64
	stageLatency     map[string]time.Duration
	stageCount       map[string]int64
}

// NewMetrics builds an empty Metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		stageLatency: make(map[string]time.Duration),
		stageCount:   make(map[string]int64),
	}
}

func (m *Metrics) recordStage(name string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalStageCalls++
	m.stageLatency[name] += d
	m.stageCount[name]++
}

func (m *Metrics) recordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failedStageCalls++
}

// Snapshot is a point-in-time copy of the accumulated counters.
type Snapshot struct {
	TotalStageCalls  int64
	FailedStageCalls int64
	// AverageLatency is the mean recorded duration per stage name.
	AverageLatency map[string]time.Duration
}

// Snapshot returns a copy of the current metrics, safe to read
// concurrently with further Execute calls.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	avg := make(map[string]time.Duration, len(m.stageLatency))
	for name, total := range m.stageLatency {
		count := m.stageCount[name]
		if count == 0 {
			continue
		}
		avg[name] = total / time.Duration(count)
	}

	return Snapshot{
		TotalStageCalls:  m.totalStageCalls,
		FailedStageCalls: m.failedStageCalls,
		AverageLatency:   avg,
	}
}

// WithMetrics returns a Config whose OnStepComplete/OnError chain into
// m's counters ahead of any callbacks already set on cfg. Use this to
// attach a shared Metrics instance without losing caller-supplied
// observability hooks.
func WithMetrics(cfg *Config, m *Metrics) *Config {
	if cfg == nil {
		cfg = &Config{}
	}
	next := *cfg

	prevStepComplete := cfg.OnStepComplete
	next.OnStepComplete = func(name string, d time.Duration) {
		m.recordStage(name, d)
		if prevStepComplete != nil {
			prevStepComplete(name, d)
		}
	}

	prevError := cfg.OnError
	next.OnError = func(view perr.ErrorView) {
		m.recordFailure()
		if prevError != nil {
			prevError(view)
		}
	}

	return &next
}
