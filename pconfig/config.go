// Package pconfig loads engine configuration, grounded on the
// teacher's core.Config: a three-layer priority (defaults → env vars →
// functional options) for scalar settings, plus a YAML loader
// (gopkg.in/yaml.v3, mirroring pkg/routing/workflow.go's
// loadWorkflowFile) for the larger declarative documents a plan needs
// — the Plan itself, intent patterns, and the tone map.
package pconfig

import (
	"os"
	"strconv"
	"time"
)

// Config holds the scalar settings a running pipeline service needs.
// Unlike the teacher's Config, this has no HTTP/discovery/Kubernetes
// surface of its own — cmd/pipelineserver owns that — it only carries
// what the executor and its bundled stages consume directly.
type Config struct {
	// IncludeErrorDetails mirrors spec.md §7's production/non-production
	// switch: whether a Failure's Details field is populated.
	IncludeErrorDetails bool `env:"PIPELINE_INCLUDE_ERROR_DETAILS" default:"false"`

	LogLevel string `env:"PIPELINE_LOG_LEVEL" default:"info"`

	// OTelExporter selects the telemetry package's trace exporter:
	// stdout|otlp|none.
	OTelExporter string `env:"PIPELINE_OTEL_EXPORTER" default:"none"`
	OTLPEndpoint string `env:"PIPELINE_OTLP_ENDPOINT" default:"localhost:4317"`

	RedisURL string `env:"PIPELINE_REDIS_URL" default:"redis://localhost:6379/0"`

	RateLimitPerWindow int           `env:"PIPELINE_RATE_LIMIT_PER_WINDOW" default:"60"`
	RateLimitWindow    time.Duration `env:"PIPELINE_RATE_LIMIT_WINDOW" default:"1m"`

	ContextCacheTTL  time.Duration `env:"PIPELINE_CONTEXT_CACHE_TTL" default:"5m"`
	ResponseCacheTTL time.Duration `env:"PIPELINE_RESPONSE_CACHE_TTL" default:"2m"`

	IntentConfidenceThreshold float64 `env:"PIPELINE_INTENT_THRESHOLD" default:"0.5"`

	CircuitBreakerFailureThreshold int           `env:"PIPELINE_CB_FAILURE_THRESHOLD" default:"5"`
	CircuitBreakerResetTimeout     time.Duration `env:"PIPELINE_CB_RESET_TIMEOUT" default:"30s"`

	HTTPPort int `env:"PIPELINE_HTTP_PORT" default:"8080"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"PIPELINE_OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	OpenAIModel   string `env:"PIPELINE_OPENAI_MODEL" default:"gpt-4o-mini"`
}

// Option applies a functional override after defaults and environment
// variables have been loaded — the teacher's third, highest-priority
// layer.
type Option func(*Config)

func WithIncludeErrorDetails(v bool) Option { return func(c *Config) { c.IncludeErrorDetails = v } }
func WithHTTPPort(port int) Option          { return func(c *Config) { c.HTTPPort = port } }
func WithLogLevel(level string) Option      { return func(c *Config) { c.LogLevel = level } }

// Load builds a Config from defaults, then environment variables, then
// opts, in that priority order (spec.md §9 ambient stack / teacher's
// three-layer config).
func Load(opts ...Option) *Config {
	cfg := &Config{
		IncludeErrorDetails:            false,
		LogLevel:                       "info",
		OTelExporter:                   "none",
		OTLPEndpoint:                   "localhost:4317",
		RedisURL:                       "redis://localhost:6379/0",
		RateLimitPerWindow:             60,
		RateLimitWindow:                time.Minute,
		ContextCacheTTL:                5 * time.Minute,
		ResponseCacheTTL:               2 * time.Minute,
		IntentConfidenceThreshold:      0.5,
		CircuitBreakerFailureThreshold: 5,
		CircuitBreakerResetTimeout:     30 * time.Second,
		HTTPPort:                       8080,
		OpenAIBaseURL:                  "https://api.openai.com/v1",
		OpenAIModel:                    "gpt-4o-mini",
	}

	cfg.loadFromEnv()

	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("PIPELINE_INCLUDE_ERROR_DETAILS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.IncludeErrorDetails = b
		}
	}
	if v := os.Getenv("PIPELINE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("PIPELINE_OTEL_EXPORTER"); v != "" {
		c.OTelExporter = v
	}
	if v := os.Getenv("PIPELINE_OTLP_ENDPOINT"); v != "" {
		c.OTLPEndpoint = v
	}
	if v := os.Getenv("PIPELINE_REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("PIPELINE_RATE_LIMIT_PER_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimitPerWindow = n
		}
	}
	if v := os.Getenv("PIPELINE_RATE_LIMIT_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RateLimitWindow = d
		}
	}
	if v := os.Getenv("PIPELINE_CONTEXT_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ContextCacheTTL = d
		}
	}
	if v := os.Getenv("PIPELINE_RESPONSE_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ResponseCacheTTL = d
		}
	}
	if v := os.Getenv("PIPELINE_INTENT_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.IntentConfidenceThreshold = f
		}
	}
	if v := os.Getenv("PIPELINE_CB_FAILURE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CircuitBreakerFailureThreshold = n
		}
	}
	if v := os.Getenv("PIPELINE_CB_RESET_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.CircuitBreakerResetTimeout = d
		}
	}
	if v := os.Getenv("PIPELINE_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HTTPPort = n
		}
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAIAPIKey = v
	}
	if v := os.Getenv("PIPELINE_OPENAI_BASE_URL"); v != "" {
		c.OpenAIBaseURL = v
	}
	if v := os.Getenv("PIPELINE_OPENAI_MODEL"); v != "" {
		c.OpenAIModel = v
	}
}
