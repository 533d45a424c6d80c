package spanz

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/zoobzio/spanz/internal/id"
)

// Structured log fields correlating log lines with traces.
const (
	LogTraceIDKey = "dd.trace_id"
	LogSpanIDKey  = "dd.span_id"
)

// logPropagator writes trace and span ids as structured log fields.
type logPropagator struct {
	traceID128 bool
}

// ids returns the trace and span id fields. A 128-bit trace id is written
// as 32 hex digits when enabled, otherwise the lower 64 bits in decimal.
func (l logPropagator) ids(sc *SpanContext) (string, string) {
	traceID := strconv.FormatUint(sc.traceID.Lower(), 10)
	if l.traceID128 && sc.traceID.Upper() != 0 {
		traceID = sc.TraceIDHex()
	}
	return traceID, strconv.FormatUint(sc.spanID.Lower(), 10)
}

func (l logPropagator) inject(sc *SpanContext, carrier TextMapWriter) {
	traceID, spanID := l.ids(sc)
	carrier.Set(LogTraceIDKey, traceID)
	carrier.Set(LogSpanIDKey, spanID)
}

// extract reads the fields back. A 32 digit trace id is split into its
// upper half, kept as _dd.p.tid, and its lower half.
func (l logPropagator) extract(fields map[string]string) (*SpanContext, error) {
	rawTrace, hasTrace := fields[LogTraceIDKey]
	rawSpan, hasSpan := fields[LogSpanIDKey]
	if !hasTrace || !hasSpan {
		return nil, ErrSpanContextNotFound
	}

	var (
		traceID id.ID
		err     error
	)
	if len(rawTrace) == 32 {
		traceID, err = id.Parse(rawTrace, 16)
	} else {
		traceID, err = id.Parse(rawTrace, 10)
	}
	if err != nil || traceID.IsZero() {
		return nil, corrupted("log trace id %q", rawTrace)
	}

	spanID, err := id.Parse(rawSpan, 10)
	if err != nil {
		return nil, corrupted("log span id %q", rawSpan)
	}
	return newRemoteContext(traceID, spanID), nil
}

// fields returns the ids as zap fields.
func (l logPropagator) fields(sc *SpanContext) []zap.Field {
	traceID, spanID := l.ids(sc)
	return []zap.Field{
		zap.String(LogTraceIDKey, traceID),
		zap.String(LogSpanIDKey, spanID),
	}
}
