package spanz

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/cast"
)

// spanKeyType is a private type for context keys to avoid collisions.
type spanKeyType string

const (
	spanKey spanKeyType = "spanz"

	// unfinished marks a span whose duration is not yet known.
	unfinished time.Duration = -1
)

// spanSamplingDecision is set on spans kept by a span sampling rule while
// their trace is dropped.
type spanSamplingDecision struct {
	rate         float64
	maxPerSecond float64
	limited      bool
}

// Span represents a single unit of work in a distributed trace.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order groups the span's identity before its state
type Span struct {
	tracer       *Tracer
	context      *SpanContext
	tags         map[string]any
	spanSampling *spanSamplingDecision
	start        time.Time
	name         string
	service      string
	resource     string
	spanType     string
	duration     time.Duration
	localRoot    bool
	mu           sync.Mutex
}

// SetTag adds a key-value pair to the span.
// The service.name, resource.name and span.type keys set the matching span
// fields. Setting manual.keep, manual.drop or sampling.priority asks the
// priority sampler for a manual decision.
// No-op if span is already finished.
func (s *Span) SetTag(key string, value any) {
	s.mu.Lock()
	if s.duration != unfinished {
		s.mu.Unlock()
		return
	}
	manual := s.setTagLocked(key, value)
	s.mu.Unlock()

	if manual {
		s.tracer.priority.sample(s, false)
	}
}

// setTagLocked stores a tag and reports whether it carries a manual
// sampling decision. Must be called with mu held.
func (s *Span) setTagLocked(key string, value any) bool {
	switch key {
	case TagServiceName:
		s.service = cast.ToString(value)
		return false
	case TagResourceName:
		s.resource = cast.ToString(value)
		return false
	case TagSpanType:
		s.spanType = cast.ToString(value)
		return false
	}

	if s.tags == nil {
		s.tags = make(map[string]any)
	}
	s.tags[key] = value

	return key == TagManualKeep || key == TagManualDrop || key == TagSamplingPriority
}

// Tag retrieves a tag value by key.
func (s *Span) Tag(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.tags[key]
	return value, ok
}

// SetOperationName replaces the span name.
// No-op if span is already finished.
func (s *Span) SetOperationName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.duration != unfinished {
		return
	}
	s.name = name
}

// OperationName returns the span name.
func (s *Span) OperationName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// SetBaggageItem sets a baggage item, propagated to children and to
// downstream services.
func (s *Span) SetBaggageItem(key, value string) {
	s.context.setBaggageItem(key, value)
}

// BaggageItem returns a baggage item.
func (s *Span) BaggageItem(key string) string {
	return s.context.BaggageItem(key)
}

// Context returns the span's context.
func (s *Span) Context() *SpanContext {
	return s.context
}

// StartTime returns when the span started.
func (s *Span) StartTime() time.Time {
	return s.start
}

// Duration returns the span duration once finished.
func (s *Span) Duration() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.duration == unfinished {
		return 0, false
	}
	return s.duration, true
}

// IsFinished reports whether Finish was called.
func (s *Span) IsFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration != unfinished
}

// KeepTrace forces the trace to be kept, overriding any earlier decision.
func (s *Span) KeepTrace() {
	s.manualOverride(TagManualKeep, PriorityUserKeep)
}

// DropTrace forces the trace to be dropped, overriding any earlier decision.
func (s *Span) DropTrace() {
	s.manualOverride(TagManualDrop, PriorityUserReject)
}

func (s *Span) manualOverride(tag string, p Priority) {
	if s.IsFinished() {
		return
	}
	s.SetTag(tag, true)
	s.tracer.SetPriority(s, p, MechanismManual)
}

// Finish completes the span and hands it to the processor.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *Span) Finish() {
	s.finish(s.tracer.clock.Since(s.start))
}

// FinishAt completes the span at the given time.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *Span) FinishAt(end time.Time) {
	s.finish(end.Sub(s.start))
}

func (s *Span) finish(d time.Duration) {
	s.mu.Lock()
	// Prevent double-finishing.
	if s.duration != unfinished {
		s.mu.Unlock()
		return
	}
	if d < 0 {
		d = 0
	}
	s.duration = d
	s.mu.Unlock()

	s.tracer.metrics.spansFinished.Inc()
	s.tracer.metrics.spansOpen.Dec()
	s.tracer.processor.process(s)
}

// release drops the tag map once the span has been exported.
func (s *Span) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags = nil
}

// ContextWithSpan returns a new context with the span embedded.
// The returned context can be used to start child spans.
func ContextWithSpan(parent context.Context, span *Span) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, spanKey, span)
}

// SpanFromContext extracts the current span from a context.
func SpanFromContext(ctx context.Context) (*Span, bool) {
	if ctx == nil {
		return nil, false
	}
	span, ok := ctx.Value(spanKey).(*Span)
	return span, ok && span != nil
}

// tagStringLocked renders a tag as a string for rule matching.
// Must be called with mu held.
func (s *Span) tagStringLocked(key string) (string, bool) {
	v, ok := s.tags[key]
	if !ok {
		return "", false
	}
	str, err := cast.ToStringE(v)
	return str, err == nil
}
