package spanz

import (
	"fmt"
	"net/http"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"

	"github.com/zoobzio/spanz/internal/encoding"
)

// Config holds tracer configuration. It is read once when the tracer is
// created; nothing reads the environment afterwards.
type Config struct {
	// Collaborators.
	Logger     *zap.Logger           `ignored:"true"`
	Registerer prometheus.Registerer `ignored:"true"`
	Clock      clockz.Clock          `ignored:"true"`
	HTTPClient *http.Client          `ignored:"true"`

	SampleRate *float64 `envconfig:"DD_TRACE_SAMPLE_RATE"`

	Service         string `envconfig:"DD_SERVICE"`
	Env             string `envconfig:"DD_ENV"`
	Version         string `envconfig:"DD_VERSION"`
	AgentURL        string `envconfig:"DD_TRACE_AGENT_URL" default:"http://localhost:8126"`
	ProtocolVersion string `envconfig:"DD_TRACE_AGENT_PROTOCOL_VERSION" default:"0.4"`

	// SamplingRules and SpanSamplingRules are JSON arrays of rule objects
	// with service, name, resource, tags, sample_rate and max_per_second.
	SamplingRules     string `envconfig:"DD_TRACE_SAMPLING_RULES"`
	SpanSamplingRules string `envconfig:"DD_SPAN_SAMPLING_RULES"`

	PropagationStyleInject  []string `envconfig:"DD_TRACE_PROPAGATION_STYLE_INJECT" default:"datadog,tracecontext"`
	PropagationStyleExtract []string `envconfig:"DD_TRACE_PROPAGATION_STYLE_EXTRACT" default:"datadog,tracecontext"`

	FlushInterval    time.Duration `envconfig:"DD_TRACE_FLUSH_INTERVAL" default:"2s"`
	TransportTimeout time.Duration `envconfig:"DD_TRACE_AGENT_TIMEOUT" default:"2s"`

	RateLimit           float64 `envconfig:"DD_TRACE_RATE_LIMIT" default:"100"`
	FlushMinSpans       int     `envconfig:"DD_TRACE_PARTIAL_FLUSH_MIN_SPANS" default:"1000"`
	TagsHeaderMaxLength int     `envconfig:"DD_TRACE_X_DATADOG_TAGS_MAX_LENGTH" default:"512"`
	MaxInFlight         int     `envconfig:"DD_TRACE_MAX_IN_FLIGHT" default:"8"`
	EncoderSoftLimit    int     `envconfig:"DD_TRACE_ENCODER_SOFT_LIMIT" default:"8388608"`

	PropagationExtractFirst bool `envconfig:"DD_TRACE_PROPAGATION_EXTRACT_FIRST"`
	TraceID128BitGeneration bool `envconfig:"DD_TRACE_128_BIT_TRACEID_GENERATION_ENABLED" default:"true"`
	TraceID128BitLogging    bool `envconfig:"DD_TRACE_128_BIT_TRACEID_LOGGING_ENABLED"`
	ReportHostname          bool `envconfig:"DD_TRACE_REPORT_HOSTNAME"`
	Diagnostics             bool `envconfig:"DD_TRACE_DIAGNOSTICS"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		AgentURL:                "http://localhost:8126",
		ProtocolVersion:         encoding.Version04,
		PropagationStyleInject:  []string{"datadog", "tracecontext"},
		PropagationStyleExtract: []string{"datadog", "tracecontext"},
		FlushInterval:           2 * time.Second,
		TransportTimeout:        2 * time.Second,
		RateLimit:               100,
		FlushMinSpans:           1000,
		TagsHeaderMaxLength:     512,
		MaxInFlight:             8,
		EncoderSoftLimit:        encoding.DefaultSoftLimit,
		TraceID128BitGeneration: true,
	}
}

// withDefaults fills in collaborators and limits left unset.
func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Registerer == nil {
		c.Registerer = prometheus.NewRegistry()
	}
	if c.Clock == nil {
		c.Clock = clockz.RealClock
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.TransportTimeout}
	}
	if c.AgentURL == "" {
		c.AgentURL = "http://localhost:8126"
	}
	if c.ProtocolVersion == "" {
		c.ProtocolVersion = encoding.Version04
	}
	if c.FlushMinSpans <= 0 {
		c.FlushMinSpans = 1000
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 8
	}
	if c.FlushInterval < 0 {
		c.FlushInterval = 0
	}
	return c
}
