package encoding

import "github.com/tinylib/msgp/msgp"

// v05SpanFields is the number of positional fields of a 0.5 span.
const v05SpanFields = 12

// V05 encodes traces as positional span arrays whose strings are indices
// into a string table sent alongside the traces.
type V05 struct {
	traces    *Buffer
	strings   *Buffer
	table     map[string]uint32
	count     int
	softLimit int
}

// NewV05 creates a 0.5 encoder.
func NewV05(softLimit int) *V05 {
	e := &V05{
		traces:    NewBuffer(DefaultMinSize),
		strings:   NewBuffer(DefaultMinSize),
		table:     make(map[string]uint32),
		softLimit: softLimit,
	}
	e.reset()
	return e
}

// Version implements Encoder.
func (e *V05) Version() string {
	return Version05
}

// Count implements Encoder.
func (e *V05) Count() int {
	return e.count
}

// Size implements Encoder.
func (e *V05) Size() int {
	return 1 + 2*msgp.ArrayHeaderSize + e.strings.Len() + e.traces.Len()
}

// Encode implements Encoder. Either the string table or the trace buffer
// crossing the soft limit asks for a flush.
func (e *V05) Encode(trace []*Span) bool {
	e.traces.writeArrayHeader(uint32(len(trace)))
	for _, span := range trace {
		e.encodeSpan(span)
	}
	e.count++

	return e.traces.Len() > e.softLimit || e.strings.Len() > e.softLimit
}

func (e *V05) encodeSpan(span *Span) {
	e.traces.writeArrayHeader(v05SpanFields)

	e.ref(span.Service)
	e.ref(span.Name)
	e.ref(span.Resource)
	e.traces.writeUint64(span.TraceID)
	e.traces.writeUint64(span.SpanID)
	e.traces.writeUint64(span.ParentID)
	e.traces.writeInt64(span.Start)
	e.traces.writeInt64(span.Duration)
	e.traces.writeInt32(span.Error)

	e.traces.writeMapHeader(uint32(len(span.Meta)))
	for k, v := range span.Meta {
		e.ref(k)
		e.ref(v)
	}

	e.traces.writeMapHeader(uint32(len(span.Metrics)))
	for k, v := range span.Metrics {
		e.ref(k)
		e.traces.writeFloat64(v)
	}

	e.ref(span.Type)
}

// ref writes the string table index of s, adding s to the table on first use.
func (e *V05) ref(s string) {
	idx, ok := e.table[s]
	if !ok {
		idx = uint32(len(e.table))
		e.table[s] = idx
		e.strings.writeString(s)
	}
	e.traces.writeUint32(idx)
}

// Payload implements Encoder. The result is [strings, traces].
func (e *V05) Payload() []byte {
	out := make([]byte, 0, e.Size())
	out = append(out, markerFixArray2)
	out = appendArrayHeader(out, uint32(len(e.table)))
	out = append(out, e.strings.Bytes()...)
	out = appendArrayHeader(out, uint32(e.count))
	out = append(out, e.traces.Bytes()...)

	e.reset()
	return out
}

// reset clears both buffers. The empty string always sits at index 0.
func (e *V05) reset() {
	e.traces.Reset()
	e.strings.Reset()
	clear(e.table)
	e.count = 0

	e.table[""] = 0
	e.strings.writeString("")
}
