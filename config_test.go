package spanz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	def := DefaultConfig()
	assert.Equal(t, def.AgentURL, cfg.AgentURL)
	assert.Equal(t, def.ProtocolVersion, cfg.ProtocolVersion)
	assert.Equal(t, def.PropagationStyleInject, cfg.PropagationStyleInject)
	assert.Equal(t, def.PropagationStyleExtract, cfg.PropagationStyleExtract)
	assert.Equal(t, def.FlushInterval, cfg.FlushInterval)
	assert.Equal(t, def.FlushMinSpans, cfg.FlushMinSpans)
	assert.Equal(t, def.RateLimit, cfg.RateLimit)
	assert.Equal(t, def.TagsHeaderMaxLength, cfg.TagsHeaderMaxLength)
	assert.Equal(t, def.MaxInFlight, cfg.MaxInFlight)
	assert.Equal(t, def.EncoderSoftLimit, cfg.EncoderSoftLimit)
	assert.True(t, cfg.TraceID128BitGeneration)
	assert.Nil(t, cfg.SampleRate)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DD_SERVICE", "checkout")
	t.Setenv("DD_ENV", "prod")
	t.Setenv("DD_TRACE_AGENT_URL", "http://agent:8126")
	t.Setenv("DD_TRACE_AGENT_PROTOCOL_VERSION", "0.5")
	t.Setenv("DD_TRACE_SAMPLE_RATE", "0.25")
	t.Setenv("DD_TRACE_FLUSH_INTERVAL", "500ms")
	t.Setenv("DD_TRACE_PARTIAL_FLUSH_MIN_SPANS", "10")
	t.Setenv("DD_TRACE_PROPAGATION_STYLE_INJECT", "b3,tracecontext")
	t.Setenv("DD_TRACE_PROPAGATION_EXTRACT_FIRST", "true")
	t.Setenv("DD_TRACE_SAMPLING_RULES", `[{"service":"checkout","sample_rate":0.5}]`)
	t.Setenv("DD_TRACE_DIAGNOSTICS", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "checkout", cfg.Service)
	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, "http://agent:8126", cfg.AgentURL)
	assert.Equal(t, "0.5", cfg.ProtocolVersion)
	require.NotNil(t, cfg.SampleRate)
	assert.Equal(t, 0.25, *cfg.SampleRate)
	assert.Equal(t, 500*time.Millisecond, cfg.FlushInterval)
	assert.Equal(t, 10, cfg.FlushMinSpans)
	assert.Equal(t, []string{"b3", "tracecontext"}, cfg.PropagationStyleInject)
	assert.True(t, cfg.PropagationExtractFirst)
	assert.True(t, cfg.Diagnostics)
	assert.Equal(t, `[{"service":"checkout","sample_rate":0.5}]`, cfg.SamplingRules)

	tracer, err := New(cfg)
	require.NoError(t, err)
	defer tracer.Close()
	assert.Len(t, tracer.priority.rules, 2, "configured rule plus the global rate")
}

func TestLoadConfigInvalid(t *testing.T) {
	t.Setenv("DD_TRACE_RATE_LIMIT", "fast")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{FlushInterval: -time.Second}.withDefaults()

	assert.NotNil(t, cfg.Logger)
	assert.NotNil(t, cfg.Registerer)
	assert.NotNil(t, cfg.Clock)
	assert.NotNil(t, cfg.HTTPClient)
	assert.Equal(t, "http://localhost:8126", cfg.AgentURL)
	assert.Equal(t, "0.4", cfg.ProtocolVersion)
	assert.Equal(t, 1000, cfg.FlushMinSpans)
	assert.Equal(t, 8, cfg.MaxInFlight)
	assert.Zero(t, cfg.FlushInterval)
}
