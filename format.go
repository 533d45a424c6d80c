package spanz

import (
	"fmt"
	"net/url"
	"unicode/utf8"

	"github.com/spf13/cast"

	"github.com/zoobzio/spanz/internal/encoding"
)

// Limits applied to formatted spans.
const (
	maxResourceLength  = 5000
	maxMetaKeyLength   = 200
	maxMetaValueLength = 25000
	maxNameLength      = 100

	defaultOperationName = "unnamed_operation"
	defaultServiceName   = "unnamed-service"
)

// formatter turns finished spans into wire records.
type formatter struct {
	service   string
	hostname  string
	runtimeID string
	pid       int
}

// stackTracer is implemented by errors that carry a stack trace.
type stackTracer interface {
	StackTrace() string
}

// format builds the wire record of a finished span. chunkRoot marks the
// first started span of the chunk being flushed, which carries the
// trace-wide tags. Must be called with tr.mu held.
func (f *formatter) format(tr *trace, span *Span, chunkRoot bool) *encoding.Span {
	span.mu.Lock()
	defer span.mu.Unlock()

	sc := span.context
	out := &encoding.Span{
		TraceID:  sc.traceID.Lower(),
		SpanID:   sc.spanID.Lower(),
		ParentID: sc.parentID.Lower(),
		Name:     clip(span.name, maxNameLength),
		Service:  clip(span.service, maxNameLength),
		Resource: truncate(span.resource, maxResourceLength),
		Type:     clip(span.spanType, maxNameLength),
		Start:    span.start.UnixNano(),
		Duration: int64(span.duration),
		Meta:     make(map[string]string, len(span.tags)+4),
		Metrics:  make(map[string]float64, 4),
	}
	if out.Name == "" {
		out.Name = defaultOperationName
	}
	if out.Service == "" {
		out.Service = defaultServiceName
	}
	if out.Resource == "" {
		out.Resource = out.Name
	}

	hasError := false
	for key, value := range span.tags {
		switch key {
		case TagManualKeep, TagManualDrop, TagSamplingPriority:
			continue
		case TagError:
			hasError = addError(out, value) || hasError
			continue
		}
		addTag(out, key, value, true)
	}

	if !hasError && span.name != internalErrorOperation {
		_, hasType := out.Meta[TagErrorType]
		_, hasMsg := out.Meta[TagErrorMsg]
		_, hasStack := out.Meta[TagErrorStack]
		hasError = hasType || hasMsg || hasStack
	}
	if hasError {
		out.Error = 1
	}

	out.Meta[keyLanguage] = "go"
	if tr.origin != "" {
		out.Meta[keyOrigin] = tr.origin
	}
	if f.service != "" && span.service != f.service {
		out.Meta[keyBaseService] = f.service
	}
	if tr.sampling.decided {
		out.Metrics[keySamplingPriorityV1] = float64(tr.sampling.priority)
	}

	if ss := span.spanSampling; ss != nil {
		out.Metrics[keySpanSamplingMech] = float64(MechanismSpan)
		out.Metrics[keySpanSamplingRate] = ss.rate
		if ss.limited {
			out.Metrics[keySpanSamplingLimit] = ss.maxPerSecond
		}
	}

	if span.localRoot {
		for key, value := range tr.metrics {
			out.Metrics[key] = value
		}
		out.Metrics[keyTopLevel] = 1
		out.Metrics[keyProcessID] = float64(f.pid)
		if f.runtimeID != "" {
			out.Meta[keyRuntimeID] = f.runtimeID
		}
	}

	if chunkRoot {
		for key, value := range tr.tags {
			out.Meta[key] = value
		}
		if f.hostname != "" {
			out.Meta[keyHostname] = f.hostname
		}
	}

	return out
}

// addError records the error tag and reports whether it flags the span.
func addError(out *encoding.Span, value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case error:
		out.Meta[TagErrorMsg] = truncate(v.Error(), maxMetaValueLength)
		out.Meta[TagErrorType] = fmt.Sprintf("%T", v)
		if st, ok := v.(stackTracer); ok {
			out.Meta[TagErrorStack] = truncate(st.StackTrace(), maxMetaValueLength)
		}
		return true
	case bool:
		return v
	default:
		b, err := cast.ToBoolE(v)
		return err != nil || b
	}
}

// addTag classifies a tag value into meta or metrics. Plain maps are
// flattened one level when nested is true. Unsupported values are skipped.
func addTag(out *encoding.Span, key string, value any, nested bool) {
	key = truncate(key, maxMetaKeyLength)

	switch v := value.(type) {
	case nil:
	case string:
		out.Meta[key] = truncate(v, maxMetaValueLength)
	case bool:
		if v {
			out.Metrics[key] = 1
		} else {
			out.Metrics[key] = 0
		}
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		out.Metrics[key] = cast.ToFloat64(v)
	case []byte:
		out.Meta[key] = truncate(string(v), maxMetaValueLength)
	case *url.URL:
		out.Meta[key] = truncate(v.String(), maxMetaValueLength)
	case error:
		out.Meta[key] = truncate(v.Error(), maxMetaValueLength)
	case fmt.Stringer:
		out.Meta[key] = truncate(v.String(), maxMetaValueLength)
	case map[string]string:
		if nested {
			for k, sub := range v {
				addTag(out, key+"."+k, sub, false)
			}
		}
	case map[string]any:
		if nested {
			for k, sub := range v {
				addTag(out, key+"."+k, sub, false)
			}
		}
	}
}

// truncate shortens s to at most max bytes, cut on a rune boundary, and
// appends an ellipsis when it had to cut.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return clip(s, max) + "..."
}

// clip shortens s to at most max bytes without splitting a rune.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
