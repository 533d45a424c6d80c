package spanz

import (
	"sync"
	"testing"

	"github.com/zoobzio/clockz"

	"github.com/zoobzio/spanz/internal/encoding"
)

// recordingExporter captures exported chunks in memory.
type recordingExporter struct {
	chunks [][]*encoding.Span
	mu     sync.Mutex
}

func (r *recordingExporter) Export(chunk []*encoding.Span) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, chunk)
}

func (r *recordingExporter) Chunks() [][]*encoding.Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]*encoding.Span, len(r.chunks))
	copy(out, r.chunks)
	return out
}

// newTestTracer builds a tracer on a fake clock whose flushed chunks are
// recorded instead of sent.
func newTestTracer(t *testing.T, configure func(*Config)) (*Tracer, *recordingExporter, *clockz.FakeClock) {
	t.Helper()

	clock := clockz.NewFakeClock()
	cfg := DefaultConfig()
	cfg.Service = "test-service"
	cfg.FlushInterval = 0
	cfg.Clock = clock
	if configure != nil {
		configure(&cfg)
	}

	tracer, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create tracer: %v", err)
	}
	rec := &recordingExporter{}
	tracer.processor.exporter = rec
	t.Cleanup(tracer.Close)

	return tracer, rec, clock
}

// spanByName finds a wire record in a chunk.
func spanByName(chunk []*encoding.Span, name string) *encoding.Span {
	for _, s := range chunk {
		if s.Name == name {
			return s
		}
	}
	return nil
}
