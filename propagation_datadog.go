package spanz

import (
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/zoobzio/spanz/internal/id"
)

const (
	headerTraceID  = "x-datadog-trace-id"
	headerParentID = "x-datadog-parent-id"
	headerOrigin   = "x-datadog-origin"
	headerPriority = "x-datadog-sampling-priority"
	headerTags     = "x-datadog-tags"
)

// datadogPropagator carries ids as decimal headers and the propagated
// _dd.p.* tags in a single size-capped header.
type datadogPropagator struct {
	logger        *zap.Logger
	maxTagsLength int
}

func (d *datadogPropagator) inject(sc *SpanContext, carrier TextMapWriter) {
	carrier.Set(headerTraceID, strconv.FormatUint(sc.traceID.Lower(), 10))
	carrier.Set(headerParentID, strconv.FormatUint(sc.spanID.Lower(), 10))

	if origin := sc.Origin(); origin != "" {
		carrier.Set(headerOrigin, origin)
	}
	if p, ok := sc.SamplingPriority(); ok {
		carrier.Set(headerPriority, p.String())
	}

	d.injectTags(sc, carrier)
}

func (d *datadogPropagator) injectTags(sc *SpanContext, carrier TextMapWriter) {
	tags := sc.trace.propagatedTags()
	if len(tags) == 0 {
		return
	}
	if d.maxTagsLength <= 0 {
		sc.trace.setTag(keyPropagationError, "disabled")
		return
	}

	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		v := tags[k]
		if !validTagKey(k) || !validTagValue(v) {
			sc.trace.setTag(keyPropagationError, "encoding_error")
			d.logger.Warn("skipping trace tags header with invalid tag", zap.String("key", k))
			return
		}
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
	}

	if b.Len() > d.maxTagsLength {
		sc.trace.setTag(keyPropagationError, "inject_max_size")
		d.logger.Warn("skipping oversized trace tags header",
			zap.Int("length", b.Len()),
			zap.Int("max", d.maxTagsLength))
		return
	}
	carrier.Set(headerTags, b.String())
}

func (d *datadogPropagator) extract(headers map[string]string) (*SpanContext, error) {
	rawTrace, hasTrace := headers[headerTraceID]
	rawParent, hasParent := headers[headerParentID]
	if !hasTrace || !hasParent {
		return nil, ErrSpanContextNotFound
	}

	traceID, err := id.Parse(strings.TrimSpace(rawTrace), 10)
	if err != nil || traceID.IsZero() {
		return nil, corrupted("trace id %q", rawTrace)
	}
	spanID, err := id.Parse(strings.TrimSpace(rawParent), 10)
	if err != nil {
		return nil, corrupted("parent id %q", rawParent)
	}

	sc := newRemoteContext(traceID, spanID)
	sc.trace.origin = headers[headerOrigin]

	if raw, ok := headers[headerPriority]; ok {
		if p, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			sc.trace.sampling = samplingDecision{priority: Priority(p), decided: true}
		}
	}

	d.extractTags(sc, headers)
	return sc, nil
}

// extractTags reads the tags header into a context that is not shared yet.
func (d *datadogPropagator) extractTags(sc *SpanContext, headers map[string]string) {
	raw, ok := headers[headerTags]
	if !ok || raw == "" {
		return
	}
	tr := sc.trace

	if d.maxTagsLength <= 0 {
		tr.tags[keyPropagationError] = "disabled"
		return
	}
	if len(raw) > d.maxTagsLength {
		tr.tags[keyPropagationError] = "extract_max_size"
		d.logger.Warn("ignoring oversized trace tags header",
			zap.Int("length", len(raw)),
			zap.Int("max", d.maxTagsLength))
		return
	}

	tags := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || !validTagKey(k) || !validTagValue(v) {
			tr.tags[keyPropagationError] = "decoding_error"
			d.logger.Warn("ignoring malformed trace tags header", zap.String("header", raw))
			return
		}
		tags[k] = v
	}

	if tid, ok := tags[keyTraceIDHigh]; ok {
		hi, err := strconv.ParseUint(tid, 16, 64)
		if len(tid) != 16 || !isLowerHex(tid) || err != nil {
			delete(tags, keyTraceIDHigh)
			tr.tags[keyPropagationError] = "malformed_tid " + tid
		} else {
			sc.traceID = id.New128(hi, sc.traceID.Lower())
		}
	}

	for k, v := range tags {
		tr.tags[k] = v
	}
}
