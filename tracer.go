package spanz

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"

	"github.com/zoobzio/spanz/internal/encoding"
	"github.com/zoobzio/spanz/internal/id"
	"github.com/zoobzio/spanz/internal/sampling"
)

// Tracer manages span lifecycle, sampling, propagation and export.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	config     Config
	clock      clockz.Clock
	logger     *zap.Logger
	metrics    *metrics
	priority   *prioritySampler
	spans      *spanSampler
	processor  *processor
	collector  *Collector
	propagator *textMapPropagator
	logs       logPropagator
}

// New creates a tracer from cfg. Unset collaborators get defaults: a no-op
// logger, a private metrics registry, the real clock and an HTTP client
// with the transport timeout.
func New(cfg Config) (*Tracer, error) {
	cfg = cfg.withDefaults()

	traceRules, err := sampling.ParseRules(cfg.SamplingRules)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sampling rules: %w", err)
	}
	spanRules, err := sampling.ParseRules(cfg.SpanSamplingRules)
	if err != nil {
		return nil, fmt.Errorf("failed to parse span sampling rules: %w", err)
	}
	enc, err := encoding.New(cfg.ProtocolVersion, cfg.EncoderSoftLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	logger := cfg.Logger
	m := newMetrics(cfg.Registerer)

	t := &Tracer{
		config:  cfg,
		clock:   cfg.Clock,
		logger:  logger,
		metrics: m,
		logs:    logPropagator{traceID128: cfg.TraceID128BitLogging},
	}
	t.priority = newPrioritySampler(cfg.Env, traceRules, cfg.SampleRate, cfg.RateLimit, cfg.Clock, logger.Named("sampler"))
	t.spans = newSpanSampler(spanRules, cfg.Clock)

	transport := newAgentTransport(cfg, logger.Named("transport"), t.priority.update)
	t.collector = newCollector(enc, transport, cfg.MaxInFlight, cfg.FlushInterval, cfg.Clock, logger.Named("collector"), m)

	f := &formatter{
		service:   cfg.Service,
		runtimeID: uuid.NewString(),
		pid:       os.Getpid(),
	}
	if cfg.ReportHostname {
		if host, err := os.Hostname(); err == nil {
			f.hostname = host
		} else {
			logger.Warn("failed to resolve hostname", zap.Error(err))
		}
	}

	t.processor = &processor{
		exporter:      t.collector,
		priority:      t.priority,
		spans:         t.spans,
		formatter:     f,
		logger:        logger.Named("processor"),
		metrics:       m,
		live:          make(map[*trace]struct{}),
		flushMinSpans: cfg.FlushMinSpans,
		diagnostics:   cfg.Diagnostics,
	}
	t.propagator = newTextMapPropagator(
		ParseStyles(cfg.PropagationStyleInject),
		ParseStyles(cfg.PropagationStyleExtract),
		cfg.PropagationExtractFirst,
		cfg.TagsHeaderMaxLength,
		logger.Named("propagator"),
	)

	logger.Debug("tracer started",
		zap.String("service", cfg.Service),
		zap.String("env", cfg.Env),
		zap.String("agent_url", cfg.AgentURL),
		zap.String("protocol_version", enc.Version()))
	return t, nil
}

// StartOption configures a span at creation.
type StartOption func(*startConfig)

type startConfig struct {
	parent   *SpanContext
	tags     map[string]any
	start    time.Time
	service  string
	resource string
	spanType string
}

// ChildOf makes the span a child of parent instead of the span in ctx.
// parent is typically a context returned by Extract.
func ChildOf(parent *SpanContext) StartOption {
	return func(c *startConfig) {
		c.parent = parent
	}
}

// WithService sets the span service, overriding the tracer service.
func WithService(service string) StartOption {
	return func(c *startConfig) {
		c.service = service
	}
}

// WithResource sets the span resource.
func WithResource(resource string) StartOption {
	return func(c *startConfig) {
		c.resource = resource
	}
}

// WithSpanType sets the span type.
func WithSpanType(spanType string) StartOption {
	return func(c *startConfig) {
		c.spanType = spanType
	}
}

// WithTag sets a tag at creation.
func WithTag(key string, value any) StartOption {
	return func(c *startConfig) {
		if c.tags == nil {
			c.tags = make(map[string]any)
		}
		c.tags[key] = value
	}
}

// WithTags sets several tags at creation.
func WithTags(tags map[string]any) StartOption {
	return func(c *startConfig) {
		for k, v := range tags {
			WithTag(k, v)(c)
		}
	}
}

// WithStartTime sets the span start time.
func WithStartTime(start time.Time) StartOption {
	return func(c *startConfig) {
		c.start = start
	}
}

// StartSpan creates a new span. If ctx holds a span and ChildOf is not
// given, the new span is its child; otherwise it starts a new trace.
// The returned context carries the new span.
func (t *Tracer) StartSpan(ctx context.Context, operation string, opts ...StartOption) (context.Context, *Span) {
	// Handle nil context by creating a new one.
	if ctx == nil {
		ctx = context.Background()
	}

	var cfg startConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.parent == nil {
		if parent, ok := SpanFromContext(ctx); ok {
			cfg.parent = parent.context
		}
	}
	if cfg.start.IsZero() {
		cfg.start = t.clock.Now()
	}
	if cfg.service == "" {
		cfg.service = t.config.Service
	}

	sc := t.newContext(cfg.parent, cfg.start)
	span := &Span{
		tracer:    t,
		context:   sc,
		start:     cfg.start,
		name:      operation,
		service:   cfg.service,
		resource:  cfg.resource,
		spanType:  cfg.spanType,
		duration:  unfinished,
		localRoot: cfg.parent == nil || cfg.parent.remote,
	}

	manual := false
	for k, v := range cfg.tags {
		if span.setTagLocked(k, v) {
			manual = true
		}
	}

	tr := sc.trace
	tr.mu.Lock()
	tr.started = append(tr.started, span)
	if len(tr.started) == 1 {
		t.processor.register(tr)
	}
	tr.mu.Unlock()

	t.metrics.spansStarted.Inc()
	t.metrics.spansOpen.Inc()

	if manual {
		t.priority.sample(span, false)
	}
	return ContextWithSpan(ctx, span), span
}

// newContext creates the context of a new span. Children share the
// parent's trace and copy its baggage.
func (t *Tracer) newContext(parent *SpanContext, start time.Time) *SpanContext {
	spanID := id.Random()

	if parent == nil {
		traceID := id.Random()
		if t.config.TraceID128BitGeneration {
			traceID = id.New128(uint64(start.Unix())<<32, traceID.Lower())
		}
		sc := &SpanContext{
			trace:   newTrace(start),
			traceID: traceID,
			spanID:  spanID,
		}
		sc.syncTraceIDHigh()
		return sc
	}

	return &SpanContext{
		trace:      parent.trace,
		baggage:    parent.baggageCopy(),
		tracestate: parent.TraceState(),
		traceID:    parent.traceID,
		spanID:     spanID,
		parentID:   parent.spanID,
	}
}

// SetPriority overrides the sampling decision of span's trace.
func (t *Tracer) SetPriority(span *Span, p Priority, m Mechanism) {
	if span == nil || !p.Valid() {
		return
	}
	tr := span.context.trace
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.setPriority(p, m)
}

// Inject writes sc into carrier with the configured inject styles. The
// trace is sampled first so a decision is always propagated.
func (t *Tracer) Inject(sc *SpanContext, carrier TextMapWriter) error {
	if sc == nil || sc.trace == nil {
		return ErrInvalidSpanContext
	}
	t.priority.sampleContext(sc)
	return t.propagator.Inject(sc, carrier)
}

// Extract reads a span context from carrier with the configured extract
// styles.
func (t *Tracer) Extract(carrier TextMapReader) (*SpanContext, error) {
	return t.propagator.Extract(carrier)
}

// InjectLog writes the log correlation fields of sc into carrier.
func (t *Tracer) InjectLog(sc *SpanContext, carrier TextMapWriter) error {
	if sc == nil || sc.trace == nil {
		return ErrInvalidSpanContext
	}
	if carrier == nil {
		return ErrInvalidCarrier
	}
	t.logs.inject(sc, carrier)
	return nil
}

// ExtractLog reads a span context from log correlation fields.
func (t *Tracer) ExtractLog(carrier TextMapReader) (*SpanContext, error) {
	if carrier == nil {
		return nil, ErrInvalidCarrier
	}
	fields, err := readCarrier(carrier)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCarrier, err)
	}
	return t.logs.extract(fields)
}

// LogFields returns zap fields correlating a log line with sc.
func (t *Tracer) LogFields(sc *SpanContext) []zap.Field {
	if sc == nil {
		return nil
	}
	return t.logs.fields(sc)
}

// Collector returns the tracer's payload writer.
func (t *Tracer) Collector() *Collector {
	return t.collector
}

// Flush sends buffered traces now.
func (t *Tracer) Flush() {
	t.collector.Flush()
}

// KillAll finishes every open span. Traces flush as their last span
// finishes.
func (t *Tracer) KillAll() {
	t.processor.killAll()
}

// OpenTraces returns the number of traces with unfinished spans.
func (t *Tracer) OpenTraces() int {
	return t.processor.liveTraces()
}

// DroppedPayloads returns the number of payloads dropped under
// backpressure or after close.
func (t *Tracer) DroppedPayloads() int64 {
	return t.collector.DroppedCount()
}

// Close flushes buffered traces and waits for in-flight sends.
// Spans finished after Close are dropped.
func (t *Tracer) Close() {
	t.collector.close()
}
