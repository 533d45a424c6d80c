package encoding

// Span is the flat wire record of one finished span. Records are built
// fresh for every flush and not retained after encoding.
type Span struct {
	Meta     map[string]string
	Metrics  map[string]float64
	Name     string
	Resource string
	Service  string
	Type     string
	TraceID  uint64
	SpanID   uint64
	ParentID uint64
	Start    int64
	Duration int64
	Error    int32
}
