package encoding

import "github.com/tinylib/msgp/msgp"

// V04 encodes traces as an array of arrays of span maps.
type V04 struct {
	traces    *Buffer
	cache     map[string][]byte
	count     int
	softLimit int
}

// NewV04 creates a 0.4 encoder.
func NewV04(softLimit int) *V04 {
	return &V04{
		traces:    NewBuffer(DefaultMinSize),
		cache:     make(map[string][]byte),
		softLimit: softLimit,
	}
}

// Version implements Encoder.
func (e *V04) Version() string {
	return Version04
}

// Count implements Encoder.
func (e *V04) Count() int {
	return e.count
}

// Size implements Encoder.
func (e *V04) Size() int {
	return msgp.ArrayHeaderSize + e.traces.Len()
}

// Encode implements Encoder.
func (e *V04) Encode(trace []*Span) bool {
	// Cached string encodings are only reused within one chunk.
	clear(e.cache)

	e.traces.writeArrayHeader(uint32(len(trace)))
	for _, span := range trace {
		e.encodeSpan(span)
	}
	e.count++

	return e.traces.Len() > e.softLimit
}

func (e *V04) encodeSpan(span *Span) {
	fields := uint32(11)
	if span.Type != "" {
		fields++
	}
	e.traces.writeMapHeader(fields)

	if span.Type != "" {
		e.str("type")
		e.str(span.Type)
	}
	e.str("trace_id")
	e.traces.writeUint64(span.TraceID)
	e.str("span_id")
	e.traces.writeUint64(span.SpanID)
	e.str("parent_id")
	e.traces.writeUint64(span.ParentID)
	e.str("name")
	e.str(span.Name)
	e.str("resource")
	e.str(span.Resource)
	e.str("service")
	e.str(span.Service)
	e.str("error")
	e.traces.writeInt32(span.Error)
	e.str("start")
	e.traces.writeInt64(span.Start)
	e.str("duration")
	e.traces.writeInt64(span.Duration)

	e.str("meta")
	e.traces.writeMapHeader(uint32(len(span.Meta)))
	for k, v := range span.Meta {
		e.str(k)
		e.str(v)
	}

	e.str("metrics")
	e.traces.writeMapHeader(uint32(len(span.Metrics)))
	for k, v := range span.Metrics {
		e.str(k)
		e.traces.writeFloat64(v)
	}
}

func (e *V04) str(s string) {
	encoded, ok := e.cache[s]
	if !ok {
		encoded = msgp.AppendString(make([]byte, 0, msgp.StringPrefixSize+len(s)), s)
		e.cache[s] = encoded
	}
	_, _ = e.traces.Write(encoded)
}

// Payload implements Encoder. The result is a single array holding every
// chunk encoded since the previous call.
func (e *V04) Payload() []byte {
	out := make([]byte, 0, msgp.ArrayHeaderSize+e.traces.Len())
	out = appendArrayHeader(out, uint32(e.count))
	out = append(out, e.traces.Bytes()...)

	e.reset()
	return out
}

func (e *V04) reset() {
	e.traces.Reset()
	clear(e.cache)
	e.count = 0
}
