package spanz

import (
	"sync"
	"time"

	"github.com/zoobzio/spanz/internal/id"
)

// SpanContext identifies a span within a trace and carries the state that
// is propagated across process boundaries. Every SpanContext of one trace
// in this process shares the same trace buffer.
type SpanContext struct {
	trace      *trace
	baggage    map[string]string
	tracestate TraceState
	traceID    id.ID
	spanID     id.ID
	parentID   id.ID
	remote     bool
	mu         sync.RWMutex
}

// newRemoteContext builds a context for ids received from another process.
func newRemoteContext(traceID, spanID id.ID) *SpanContext {
	sc := &SpanContext{
		trace:   newTrace(time.Time{}),
		traceID: traceID,
		spanID:  spanID,
		remote:  true,
	}
	sc.syncTraceIDHigh()
	return sc
}

// syncTraceIDHigh records the upper half of a 128-bit trace id as a
// propagated tag.
func (sc *SpanContext) syncTraceIDHigh() {
	if sc.traceID.Is128() && sc.traceID.Upper() != 0 {
		sc.trace.setTag(keyTraceIDHigh, id.Hex16(sc.traceID.Upper()))
	}
}

// TraceID returns the lower 64 bits of the trace id.
func (sc *SpanContext) TraceID() uint64 {
	return sc.traceID.Lower()
}

// TraceIDHex returns the full trace id as 32 hex digits.
func (sc *SpanContext) TraceIDHex() string {
	return id.Hex16(sc.traceID.Upper()) + id.Hex16(sc.traceID.Lower())
}

// SpanID returns the span id.
func (sc *SpanContext) SpanID() uint64 {
	return sc.spanID.Lower()
}

// ParentID returns the parent span id, zero for a root.
func (sc *SpanContext) ParentID() uint64 {
	return sc.parentID.Lower()
}

// IsRemote reports whether the context was extracted from a carrier.
func (sc *SpanContext) IsRemote() bool {
	return sc.remote
}

// SamplingPriority returns the trace's sampling decision, if one was made.
func (sc *SpanContext) SamplingPriority() (Priority, bool) {
	return sc.trace.priority()
}

// Origin returns where the trace started, e.g. "synthetics".
func (sc *SpanContext) Origin() string {
	return sc.trace.getOrigin()
}

// TraceState returns the W3C tracestate received with the context.
func (sc *SpanContext) TraceState() TraceState {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.tracestate
}

// BaggageItem returns a baggage value.
func (sc *SpanContext) BaggageItem(key string) string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.baggage[key]
}

// ForeachBaggageItem calls handler for each baggage item until it returns false.
func (sc *SpanContext) ForeachBaggageItem(handler func(key, value string) bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	for k, v := range sc.baggage {
		if !handler(k, v) {
			return
		}
	}
}

func (sc *SpanContext) setBaggageItem(key, value string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.baggage == nil {
		sc.baggage = make(map[string]string, 1)
	}
	sc.baggage[key] = value
}

func (sc *SpanContext) setTraceState(ts TraceState) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.tracestate = ts
}

// baggageCopy returns a copy of the baggage for a child context.
func (sc *SpanContext) baggageCopy() map[string]string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	if len(sc.baggage) == 0 {
		return nil
	}
	out := make(map[string]string, len(sc.baggage))
	for k, v := range sc.baggage {
		out[k] = v
	}
	return out
}
