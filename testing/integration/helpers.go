// Package integration runs the tracer end to end against a fake agent.
package integration

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/tinylib/msgp/msgp"

	"github.com/zoobzio/spanz"
	"github.com/zoobzio/spanz/internal/encoding"
)

// Payload is one decoded request received by the fake agent.
type Payload struct {
	Version    string
	TraceCount string
	Traces     [][]*encoding.Span
}

// FakeAgent is an httptest server speaking the agent trace endpoints.
// Payloads are decoded on arrival.
//
//nolint:govet // Field alignment optimized for test helper readability
type FakeAgent struct {
	*httptest.Server
	t        *testing.T
	payloads []Payload
	rates    map[string]float64
	release  chan struct{}
	status   int
	requests int
	mu       sync.Mutex
}

// NewFakeAgent starts a fake agent that is closed with the test.
func NewFakeAgent(t *testing.T) *FakeAgent {
	t.Helper()
	a := &FakeAgent{t: t, status: http.StatusOK}
	a.Server = httptest.NewServer(http.HandlerFunc(a.handle))
	t.Cleanup(a.Close)
	return a
}

func (a *FakeAgent) handle(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.requests++
	release := a.release
	status := a.status
	rates := a.rates
	a.mu.Unlock()

	if release != nil {
		<-release
	}

	if r.Method != http.MethodPut || !strings.HasSuffix(r.URL.Path, "/traces") {
		http.NotFound(w, r)
		return
	}
	version := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v"), "/traces")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		a.t.Errorf("failed to read payload: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var traces [][]*encoding.Span
	switch version {
	case encoding.Version04:
		traces, err = DecodeV04(body)
	case encoding.Version05:
		traces, err = DecodeV05(body)
	default:
		err = fmt.Errorf("unknown version %q", version)
	}
	if err != nil {
		a.t.Errorf("failed to decode payload: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	a.mu.Lock()
	a.payloads = append(a.payloads, Payload{
		Version:    version,
		TraceCount: r.Header.Get("X-Datadog-Trace-Count"),
		Traces:     traces,
	})
	a.mu.Unlock()

	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	resp, _ := sonic.Marshal(map[string]any{"rate_by_service": rates})
	_, _ = w.Write(resp)
}

// SetRates sets the rate_by_service returned with every response.
func (a *FakeAgent) SetRates(rates map[string]float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rates = rates
}

// SetStatus sets the response status code.
func (a *FakeAgent) SetStatus(status int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = status
}

// Block holds every request until the returned function is called.
func (a *FakeAgent) Block() func() {
	ch := make(chan struct{})
	a.mu.Lock()
	a.release = ch
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			a.release = nil
			a.mu.Unlock()
			close(ch)
		})
	}
}

// Requests returns the number of requests received.
func (a *FakeAgent) Requests() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requests
}

// Payloads returns the decoded payloads received so far.
func (a *FakeAgent) Payloads() []Payload {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Payload, len(a.payloads))
	copy(out, a.payloads)
	return out
}

// Spans returns every span received so far.
func (a *FakeAgent) Spans() []*encoding.Span {
	var spans []*encoding.Span
	for _, p := range a.Payloads() {
		for _, trace := range p.Traces {
			spans = append(spans, trace...)
		}
	}
	return spans
}

// WaitForSpans polls until at least n spans arrived.
func (a *FakeAgent) WaitForSpans(t *testing.T, n int) []*encoding.Span {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if spans := a.Spans(); len(spans) >= n {
			return spans
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected %d spans, got %d", n, len(a.Spans()))
	return nil
}

// NewTracer creates a tracer reporting to agent with immediate,
// synchronous flushing.
func NewTracer(t *testing.T, agent *FakeAgent, configure func(*spanz.Config)) *spanz.Tracer {
	t.Helper()
	cfg := spanz.DefaultConfig()
	cfg.Service = "integration"
	cfg.AgentURL = agent.URL
	cfg.FlushInterval = 0
	if configure != nil {
		configure(&cfg)
	}

	tracer, err := spanz.New(cfg)
	if err != nil {
		t.Fatalf("failed to create tracer: %v", err)
	}
	tracer.Collector().SetSyncMode(true)
	t.Cleanup(tracer.Close)
	return tracer
}

// FindSpan returns the first span with the given name.
func FindSpan(spans []*encoding.Span, name string) *encoding.Span {
	for _, s := range spans {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// DecodeV04 decodes a 0.4 payload: an array of traces of span maps.
func DecodeV04(b []byte) ([][]*encoding.Span, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, err
	}
	traces := make([][]*encoding.Span, 0, n)
	for i := uint32(0); i < n; i++ {
		var spans uint32
		if spans, b, err = msgp.ReadArrayHeaderBytes(b); err != nil {
			return nil, err
		}
		trace := make([]*encoding.Span, 0, spans)
		for j := uint32(0); j < spans; j++ {
			var span *encoding.Span
			if span, b, err = decodeV04Span(b); err != nil {
				return nil, err
			}
			trace = append(trace, span)
		}
		traces = append(traces, trace)
	}
	return traces, nil
}

func decodeV04Span(b []byte) (*encoding.Span, []byte, error) {
	fields, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return nil, b, err
	}

	span := &encoding.Span{}
	for i := uint32(0); i < fields; i++ {
		var key string
		if key, b, err = msgp.ReadStringBytes(b); err != nil {
			return nil, b, err
		}
		switch key {
		case "trace_id":
			span.TraceID, b, err = msgp.ReadUint64Bytes(b)
		case "span_id":
			span.SpanID, b, err = msgp.ReadUint64Bytes(b)
		case "parent_id":
			span.ParentID, b, err = msgp.ReadUint64Bytes(b)
		case "start":
			span.Start, b, err = msgp.ReadInt64Bytes(b)
		case "duration":
			span.Duration, b, err = msgp.ReadInt64Bytes(b)
		case "error":
			span.Error, b, err = msgp.ReadInt32Bytes(b)
		case "name":
			span.Name, b, err = msgp.ReadStringBytes(b)
		case "resource":
			span.Resource, b, err = msgp.ReadStringBytes(b)
		case "service":
			span.Service, b, err = msgp.ReadStringBytes(b)
		case "type":
			span.Type, b, err = msgp.ReadStringBytes(b)
		case "meta":
			span.Meta, b, err = readStringMap(b, msgp.ReadStringBytes)
		case "metrics":
			span.Metrics, b, err = readFloatMap(b, msgp.ReadStringBytes)
		default:
			err = fmt.Errorf("unexpected span field %q", key)
		}
		if err != nil {
			return nil, b, err
		}
	}
	return span, b, nil
}

// DecodeV05 decodes a 0.5 payload: [string table, traces of span arrays].
func DecodeV05(b []byte) ([][]*encoding.Span, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, err
	}
	if n != 2 {
		return nil, fmt.Errorf("expected 2 elements, got %d", n)
	}

	if n, b, err = msgp.ReadArrayHeaderBytes(b); err != nil {
		return nil, err
	}
	table := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		var s string
		if s, b, err = msgp.ReadStringBytes(b); err != nil {
			return nil, err
		}
		table = append(table, s)
	}
	ref := func(b []byte) (string, []byte, error) {
		idx, rest, err := msgp.ReadUint32Bytes(b)
		if err != nil {
			return "", rest, err
		}
		if int(idx) >= len(table) {
			return "", rest, fmt.Errorf("string index %d out of range", idx)
		}
		return table[idx], rest, nil
	}

	if n, b, err = msgp.ReadArrayHeaderBytes(b); err != nil {
		return nil, err
	}
	traces := make([][]*encoding.Span, 0, n)
	for i := uint32(0); i < n; i++ {
		var spans uint32
		if spans, b, err = msgp.ReadArrayHeaderBytes(b); err != nil {
			return nil, err
		}
		trace := make([]*encoding.Span, 0, spans)
		for j := uint32(0); j < spans; j++ {
			var span *encoding.Span
			if span, b, err = decodeV05Span(b, ref); err != nil {
				return nil, err
			}
			trace = append(trace, span)
		}
		traces = append(traces, trace)
	}
	return traces, nil
}

type readFunc func([]byte) (string, []byte, error)

func decodeV05Span(b []byte, ref readFunc) (*encoding.Span, []byte, error) {
	fields, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, b, err
	}
	if fields != 12 {
		return nil, b, fmt.Errorf("expected 12 span fields, got %d", fields)
	}

	span := &encoding.Span{}
	if span.Service, b, err = ref(b); err != nil {
		return nil, b, err
	}
	if span.Name, b, err = ref(b); err != nil {
		return nil, b, err
	}
	if span.Resource, b, err = ref(b); err != nil {
		return nil, b, err
	}
	if span.TraceID, b, err = msgp.ReadUint64Bytes(b); err != nil {
		return nil, b, err
	}
	if span.SpanID, b, err = msgp.ReadUint64Bytes(b); err != nil {
		return nil, b, err
	}
	if span.ParentID, b, err = msgp.ReadUint64Bytes(b); err != nil {
		return nil, b, err
	}
	if span.Start, b, err = msgp.ReadInt64Bytes(b); err != nil {
		return nil, b, err
	}
	if span.Duration, b, err = msgp.ReadInt64Bytes(b); err != nil {
		return nil, b, err
	}
	if span.Error, b, err = msgp.ReadInt32Bytes(b); err != nil {
		return nil, b, err
	}
	if span.Meta, b, err = readStringMap(b, ref); err != nil {
		return nil, b, err
	}
	if span.Metrics, b, err = readFloatMap(b, ref); err != nil {
		return nil, b, err
	}
	if span.Type, b, err = ref(b); err != nil {
		return nil, b, err
	}
	return span, b, nil
}

func readStringMap(b []byte, str readFunc) (map[string]string, []byte, error) {
	n, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return nil, b, err
	}
	m := make(map[string]string, n)
	for i := uint32(0); i < n; i++ {
		var k, v string
		if k, b, err = str(b); err != nil {
			return nil, b, err
		}
		if v, b, err = str(b); err != nil {
			return nil, b, err
		}
		m[k] = v
	}
	return m, b, nil
}

func readFloatMap(b []byte, str readFunc) (map[string]float64, []byte, error) {
	n, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return nil, b, err
	}
	m := make(map[string]float64, n)
	for i := uint32(0); i < n; i++ {
		var k string
		var v float64
		if k, b, err = str(b); err != nil {
			return nil, b, err
		}
		if v, b, err = msgp.ReadFloat64Bytes(b); err != nil {
			return nil, b, err
		}
		m[k] = v
	}
	return m, b, nil
}
