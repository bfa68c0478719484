package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_NoneExporterProducesUsableTracer(t *testing.T) {
	p, err := Setup(context.Background(), Config{ServiceName: "pipeline-test", Exporter: ExporterNone})
	require.NoError(t, err)
	require.NotNil(t, p.Tracer)

	_, span := p.Tracer.Start(context.Background(), "test-span")
	span.End()

	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestSetup_StdoutExporter(t *testing.T) {
	p, err := Setup(context.Background(), Config{ServiceName: "pipeline-test", Exporter: ExporterStdout})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	_, span := p.Tracer.Start(context.Background(), "test-span")
	span.End()
}

func TestSetup_UnknownExporterFails(t *testing.T) {
	_, err := Setup(context.Background(), Config{ServiceName: "pipeline-test", Exporter: "bogus"})
	assert.Error(t, err)
}

func TestProvider_ShutdownNilTracerProviderIsNoop(t *testing.T) {
	var p Provider
	assert.NoError(t, p.Shutdown(context.Background()))
}
