package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.False(t, cfg.Enabled, "tracing should be disabled by default")
	require.Equal(t, ExporterOTLP, cfg.Exporter)
	require.Equal(t, "localhost:4317", cfg.Endpoint)
	require.Equal(t, 1.0, cfg.SampleRate)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Exporter = "file"
	require.ErrorContains(t, cfg.Validate(), "unsupported exporter")

	cfg = DefaultConfig()
	cfg.SampleRate = 1.5
	require.ErrorContains(t, cfg.Validate(), "sample rate")
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{})
	require.NoError(t, err)
	require.False(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), "arm.command")
	require.False(t, span.IsRecording())
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderEnabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{
		Enabled:    true,
		Exporter:   ExporterNone,
		SampleRate: 1.0,
	})
	require.NoError(t, err)
	require.True(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), "arm.command")
	require.True(t, span.IsRecording())
	require.True(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderRejectsUnknownExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, Exporter: "jaeger"})
	require.Error(t, err)
}
