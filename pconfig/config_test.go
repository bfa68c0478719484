package pconfig

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	assert.False(t, cfg.IncludeErrorDetails)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("PIPELINE_LOG_LEVEL", "debug")
	t.Setenv("PIPELINE_HTTP_PORT", "9090")
	cfg := Load()
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9090, cfg.HTTPPort)
}

func TestLoad_OptionsOverrideEnv(t *testing.T) {
	t.Setenv("PIPELINE_HTTP_PORT", "9090")
	cfg := Load(WithHTTPPort(7070))
	assert.Equal(t, 7070, cfg.HTTPPort)
}

func TestLoad_BlankEnvValueKeepsDefault(t *testing.T) {
	t.Setenv("PIPELINE_LOG_LEVEL", "")
	cfg := Load()
	assert.Equal(t, "info", cfg.LogLevel)
}
