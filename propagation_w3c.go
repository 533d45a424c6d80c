package spanz

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/zoobzio/spanz/internal/id"
)

const (
	headerTraceparent = "traceparent"
	headerTracestate  = "tracestate"

	// traceStateVendor is the tracestate member owned by this tracer.
	traceStateVendor = "dd"

	// maxVendorLength caps the dd member value.
	maxVendorLength = 256
)

var traceparentPattern = regexp.MustCompile(`^([a-f0-9]{2})-([a-f0-9]{32})-([a-f0-9]{16})-([a-f0-9]{2})(-.*)?$`)

// w3cPropagator carries ids in traceparent and Datadog state in the dd
// member of tracestate.
type w3cPropagator struct{}

func (w3cPropagator) inject(sc *SpanContext, carrier TextMapWriter) {
	p, decided := sc.SamplingPriority()

	flags := "00"
	if decided && p.Keep() {
		flags = "01"
	}
	carrier.Set(headerTraceparent, "00-"+sc.TraceIDHex()+"-"+id.Hex16(sc.spanID.Lower())+"-"+flags)

	parts := make([]string, 0, 4)
	if decided {
		parts = append(parts, "s:"+p.String())
	}
	if origin := sc.Origin(); origin != "" {
		parts = append(parts, "o:"+encodeTraceStateValue(origin))
	}
	parts = append(parts, "p:"+id.Hex16(sc.spanID.Lower()))

	tags := sc.trace.propagatedTags()
	keys := make([]string, 0, len(tags))
	for k := range tags {
		if k != keyTraceIDHigh {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	length := len(strings.Join(parts, ";"))
	for _, k := range keys {
		part := "t." + encodeTraceStateKey(k[len(keyPropagatedPrefix):]) + ":" + encodeTraceStateValue(tags[k])
		if length+1+len(part) > maxVendorLength {
			continue
		}
		parts = append(parts, part)
		length += 1 + len(part)
	}

	ts := sc.TraceState().With(traceStateVendor, strings.Join(parts, ";"))
	carrier.Set(headerTracestate, ts.String())
}

func (w3cPropagator) extract(headers map[string]string) (*SpanContext, error) {
	raw, ok := headers[headerTraceparent]
	if !ok {
		return nil, ErrSpanContextNotFound
	}
	raw = strings.TrimSpace(raw)

	m := traceparentPattern.FindStringSubmatch(raw)
	if m == nil {
		return nil, corrupted("traceparent %q", raw)
	}
	version, rawTrace, rawSpan, rawFlags, tail := m[1], m[2], m[3], m[4], m[5]
	if version == "ff" {
		return nil, corrupted("traceparent version %q", version)
	}
	if version == "00" && tail != "" {
		return nil, corrupted("traceparent %q has trailing data", raw)
	}

	traceID, err := id.Parse(rawTrace, 16)
	if err != nil || traceID.IsZero() {
		return nil, corrupted("traceparent trace id %q", rawTrace)
	}
	spanID, err := id.Parse(rawSpan, 16)
	if err != nil || spanID.IsZero() {
		return nil, corrupted("traceparent span id %q", rawSpan)
	}
	flags, err := strconv.ParseUint(rawFlags, 16, 8)
	if err != nil {
		return nil, corrupted("traceparent flags %q", rawFlags)
	}
	sampled := flags&1 == 1

	sc := newRemoteContext(traceID, spanID)
	ts := ParseTraceState(headers[headerTracestate])
	sc.tracestate = ts

	priority := PriorityAutoReject
	if sampled {
		priority = PriorityAutoKeep
	}
	adopted := false

	tr := sc.trace
	if dd, ok := ts.Get(traceStateVendor); ok {
		for _, part := range strings.Split(dd, ";") {
			key, value, ok := strings.Cut(part, ":")
			if !ok {
				continue
			}
			switch {
			case key == "s":
				n, err := strconv.Atoi(value)
				if err == nil && (sampled && n > 0 || !sampled && n <= 0) {
					priority = Priority(n)
					adopted = true
				}
			case key == "o":
				tr.origin = decodeTraceStateValue(value)
			case key == "p":
				tr.tags[keyParentID] = value
			case strings.HasPrefix(key, "t."):
				tr.tags[keyPropagatedPrefix+key[2:]] = decodeTraceStateValue(value)
			}
		}
	}

	if !adopted {
		if sampled {
			tr.tags[keyDecisionMaker] = MechanismDefault.decisionMaker()
		} else {
			delete(tr.tags, keyDecisionMaker)
		}
	}
	tr.sampling = samplingDecision{priority: priority, decided: true}

	return sc, nil
}

// encodeTraceStateValue replaces characters tracestate values cannot hold.
// '=' maps to '~' and is restored on extraction.
func encodeTraceStateValue(s string) string {
	b := []byte(s)
	for i, c := range b {
		switch {
		case c == '=':
			b[i] = '~'
		case c < 0x20 || c > 0x7d || c == ',' || c == ';' || c == '~':
			b[i] = '_'
		}
	}
	return string(b)
}

// encodeTraceStateKey replaces characters tracestate keys cannot hold.
func encodeTraceStateKey(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c < 0x21 || c > 0x7e || c == ',' || c == '=' {
			b[i] = '_'
		}
	}
	return string(b)
}

func decodeTraceStateValue(s string) string {
	return strings.ReplaceAll(s, "~", "=")
}
