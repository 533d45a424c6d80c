package spanz

import (
	"strings"

	"github.com/zoobzio/spanz/internal/id"
)

const (
	headerB3TraceID      = "x-b3-traceid"
	headerB3SpanID       = "x-b3-spanid"
	headerB3ParentSpanID = "x-b3-parentspanid"
	headerB3Sampled      = "x-b3-sampled"
	headerB3Flags        = "x-b3-flags"
	headerB3Single       = "b3"
)

// b3MultiPropagator carries hex ids in one header each.
type b3MultiPropagator struct{}

func (b3MultiPropagator) inject(sc *SpanContext, carrier TextMapWriter) {
	carrier.Set(headerB3TraceID, sc.traceID.String(16))
	carrier.Set(headerB3SpanID, id.Hex16(sc.spanID.Lower()))
	if !sc.parentID.IsZero() {
		carrier.Set(headerB3ParentSpanID, id.Hex16(sc.parentID.Lower()))
	}

	if p, ok := sc.SamplingPriority(); ok {
		if p >= PriorityUserKeep {
			carrier.Set(headerB3Flags, "1")
		} else if p.Keep() {
			carrier.Set(headerB3Sampled, "1")
		} else {
			carrier.Set(headerB3Sampled, "0")
		}
	}
}

func (b3MultiPropagator) extract(headers map[string]string) (*SpanContext, error) {
	rawTrace, hasTrace := headers[headerB3TraceID]
	rawSpan, hasSpan := headers[headerB3SpanID]
	priority, hasPriority := b3Priority(headers[headerB3Sampled], headers[headerB3Flags])

	if !hasTrace || !hasSpan {
		if !hasPriority {
			return nil, ErrSpanContextNotFound
		}
		return b3DecisionOnly(priority), nil
	}

	traceID, spanID, err := parseB3IDs(strings.TrimSpace(rawTrace), strings.TrimSpace(rawSpan))
	if err != nil {
		return nil, err
	}

	sc := newRemoteContext(traceID, spanID)
	if hasPriority {
		sc.trace.sampling = samplingDecision{priority: priority, decided: true}
	}
	return sc, nil
}

// b3SinglePropagator carries traceid-spanid[-sampled[-parentid]] in one
// header, or only a sampling decision.
type b3SinglePropagator struct{}

func (b3SinglePropagator) inject(sc *SpanContext, carrier TextMapWriter) {
	parts := []string{sc.traceID.String(16), id.Hex16(sc.spanID.Lower())}

	if p, ok := sc.SamplingPriority(); ok {
		switch {
		case p >= PriorityUserKeep:
			parts = append(parts, "d")
		case p.Keep():
			parts = append(parts, "1")
		default:
			parts = append(parts, "0")
		}
		if !sc.parentID.IsZero() {
			parts = append(parts, id.Hex16(sc.parentID.Lower()))
		}
	}

	carrier.Set(headerB3Single, strings.Join(parts, "-"))
}

func (b3SinglePropagator) extract(headers map[string]string) (*SpanContext, error) {
	raw, ok := headers[headerB3Single]
	if !ok {
		return nil, ErrSpanContextNotFound
	}
	raw = strings.TrimSpace(raw)

	if p, ok := b3SingleSampled(raw); ok {
		return b3DecisionOnly(p), nil
	}

	parts := strings.Split(raw, "-")
	if len(parts) < 2 || len(parts) > 4 {
		return nil, corrupted("b3 header %q", raw)
	}

	traceID, spanID, err := parseB3IDs(parts[0], parts[1])
	if err != nil {
		return nil, err
	}

	sc := newRemoteContext(traceID, spanID)
	if len(parts) >= 3 {
		p, ok := b3SingleSampled(parts[2])
		if !ok {
			return nil, corrupted("b3 sampling state %q", parts[2])
		}
		sc.trace.sampling = samplingDecision{priority: p, decided: true}
	}
	if len(parts) == 4 && (len(parts[3]) != 16 || !isLowerHex(parts[3])) {
		return nil, corrupted("b3 parent id %q", parts[3])
	}
	return sc, nil
}

// parseB3IDs parses a 16 or 32 digit trace id and a 16 digit span id.
func parseB3IDs(rawTrace, rawSpan string) (id.ID, id.ID, error) {
	if (len(rawTrace) != 16 && len(rawTrace) != 32) || !isLowerHex(rawTrace) {
		return id.Zero, id.Zero, corrupted("b3 trace id %q", rawTrace)
	}
	if len(rawSpan) != 16 || !isLowerHex(rawSpan) {
		return id.Zero, id.Zero, corrupted("b3 span id %q", rawSpan)
	}

	traceID, err := id.Parse(rawTrace, 16)
	if err != nil || traceID.IsZero() {
		return id.Zero, id.Zero, corrupted("b3 trace id %q", rawTrace)
	}
	spanID, err := id.Parse(rawSpan, 16)
	if err != nil {
		return id.Zero, id.Zero, corrupted("b3 span id %q", rawSpan)
	}
	return traceID, spanID, nil
}

// b3Priority maps the multi header sampling state.
func b3Priority(sampled, flags string) (Priority, bool) {
	if strings.TrimSpace(flags) == "1" {
		return PriorityUserKeep, true
	}
	switch strings.ToLower(strings.TrimSpace(sampled)) {
	case "1", "true", "d":
		return PriorityAutoKeep, true
	case "0", "false":
		return PriorityAutoReject, true
	default:
		return 0, false
	}
}

// b3SingleSampled maps the single header sampling state.
func b3SingleSampled(s string) (Priority, bool) {
	switch s {
	case "d":
		return PriorityUserKeep, true
	case "1":
		return PriorityAutoKeep, true
	case "0":
		return PriorityAutoReject, true
	default:
		return 0, false
	}
}

// b3DecisionOnly creates a context for a sampling decision received
// without ids. The trace id is new; there is no parent span.
func b3DecisionOnly(p Priority) *SpanContext {
	sc := newRemoteContext(id.Random(), id.Zero)
	sc.trace.sampling = samplingDecision{priority: p, decided: true}
	return sc
}
