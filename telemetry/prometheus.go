package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowmind-ai/pipeline/executor"
	"github.com/flowmind-ai/pipeline/perr"
)

// PrometheusBridge exposes the executor's per-stage counters and
// latency as Prometheus metrics on a /metrics endpoint, observing the
// executor.Config OnStepComplete and OnError callbacks directly (it
// does not read executor.Metrics). cmd/pipelineserver
// registers this alongside its gin routes.
type PrometheusBridge struct {
	registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
	stageTotal    *prometheus.CounterVec
}

// NewPrometheusBridge builds a bridge with its own registry, so the
// caller controls exactly what /metrics serves rather than polluting
// the global default registry.
func NewPrometheusBridge() *PrometheusBridge {
	b := &PrometheusBridge{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Stage execution latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "stage_failures_total",
			Help:      "Failed stage invocations.",
		}, []string{"stage"}),
		stageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "stage_invocations_total",
			Help:      "Total stage invocations.",
		}, []string{"stage"}),
	}
	b.registry.MustRegister(b.stageDuration, b.stageFailures, b.stageTotal)
	return b
}

// Config returns an executor.Config whose OnStepComplete/OnError
// observe into the bridge's metrics, composable with any existing
// callbacks on cfg exactly like executor.WithMetrics.
func (b *PrometheusBridge) Config(cfg *executor.Config) *executor.Config {
	if cfg == nil {
		cfg = &executor.Config{}
	}
	next := *cfg

	prevStepComplete := cfg.OnStepComplete
	next.OnStepComplete = func(name string, d time.Duration) {
		b.observeStage(name, d)
		if prevStepComplete != nil {
			prevStepComplete(name, d)
		}
	}

	prevError := cfg.OnError
	next.OnError = func(view perr.ErrorView) {
		b.observeFailure(view.Step)
		if prevError != nil {
			prevError(view)
		}
	}

	return &next
}

// Handler returns the http.Handler serving this bridge's registry in
// Prometheus exposition format.
func (b *PrometheusBridge) Handler() http.Handler {
	return promhttp.HandlerFor(b.registry, promhttp.HandlerOpts{})
}

func (b *PrometheusBridge) observeStage(stage string, d time.Duration) {
	b.stageTotal.WithLabelValues(stage).Inc()
	b.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (b *PrometheusBridge) observeFailure(stage string) {
	if stage == "" {
		stage = "unknown"
	}
	b.stageFailures.WithLabelValues(stage).Inc()
}
