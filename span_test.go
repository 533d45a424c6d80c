package spanz

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSpanSetTag(t *testing.T) {
	tracer, _, _ := newTestTracer(t, nil)
	_, span := tracer.StartSpan(context.Background(), "test")

	span.SetTag("key1", "value1")
	span.SetTag("key2", 42)

	if v, ok := span.Tag("key1"); !ok || v != "value1" {
		t.Errorf("Expected tag key1=value1, got %v", v)
	}
	if v, ok := span.Tag("key2"); !ok || v != 42 {
		t.Errorf("Expected tag key2=42, got %v", v)
	}
	if _, ok := span.Tag("missing"); ok {
		t.Error("Expected missing tag to be absent")
	}
}

func TestSpanSetTagSpecialKeys(t *testing.T) {
	tracer, rec, _ := newTestTracer(t, nil)
	_, span := tracer.StartSpan(context.Background(), "test")

	span.SetTag(TagServiceName, "billing")
	span.SetTag(TagResourceName, "GET /invoices")
	span.SetTag(TagSpanType, "web")

	if _, ok := span.Tag(TagServiceName); ok {
		t.Error("Expected service.name to be lifted out of the tags")
	}
	span.Finish()

	chunks := rec.Chunks()
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}
	out := chunks[0][0]
	if out.Service != "billing" {
		t.Errorf("Expected service billing, got %s", out.Service)
	}
	if out.Resource != "GET /invoices" {
		t.Errorf("Expected resource 'GET /invoices', got %s", out.Resource)
	}
	if out.Type != "web" {
		t.Errorf("Expected type web, got %s", out.Type)
	}
}

func TestSpanSetTagAfterFinish(t *testing.T) {
	tracer, _, _ := newTestTracer(t, nil)
	_, span := tracer.StartSpan(context.Background(), "test")
	span.SetTag("before", "yes")
	span.Finish()

	// Exported spans release their tags; late tags must not resurrect them.
	span.SetTag("after", "yes")
	if _, ok := span.Tag("after"); ok {
		t.Error("Expected tag set after finish to be ignored")
	}
}

func TestSpanFinishIdempotent(t *testing.T) {
	tracer, rec, clock := newTestTracer(t, nil)
	_, span := tracer.StartSpan(context.Background(), "test")

	clock.Advance(50 * time.Millisecond)
	span.Finish()

	first, ok := span.Duration()
	if !ok {
		t.Fatal("Expected span to be finished")
	}
	if first != 50*time.Millisecond {
		t.Errorf("Expected duration 50ms, got %v", first)
	}

	clock.Advance(100 * time.Millisecond)
	span.Finish()

	second, _ := span.Duration()
	if second != first {
		t.Errorf("Expected duration unchanged after second finish, got %v want %v", second, first)
	}
	if n := len(rec.Chunks()); n != 1 {
		t.Errorf("Expected 1 export, got %d", n)
	}
}

func TestSpanFinishConcurrent(t *testing.T) {
	tracer, rec, _ := newTestTracer(t, nil)
	_, span := tracer.StartSpan(context.Background(), "test")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			span.Finish()
		}()
	}
	wg.Wait()

	if n := len(rec.Chunks()); n != 1 {
		t.Errorf("Expected exactly 1 export, got %d", n)
	}
}

func TestSpanFinishAt(t *testing.T) {
	tracer, _, clock := newTestTracer(t, nil)
	_, span := tracer.StartSpan(context.Background(), "test")

	span.FinishAt(clock.Now().Add(3 * time.Second))
	if d, _ := span.Duration(); d != 3*time.Second {
		t.Errorf("Expected duration 3s, got %v", d)
	}
}

func TestSpanFinishAtBeforeStart(t *testing.T) {
	tracer, _, clock := newTestTracer(t, nil)
	_, span := tracer.StartSpan(context.Background(), "test")

	span.FinishAt(clock.Now().Add(-time.Second))
	if d, _ := span.Duration(); d != 0 {
		t.Errorf("Expected negative duration to clamp to 0, got %v", d)
	}
}

func TestSpanOperationName(t *testing.T) {
	tracer, _, _ := newTestTracer(t, nil)
	_, span := tracer.StartSpan(context.Background(), "before")

	span.SetOperationName("after")
	if span.OperationName() != "after" {
		t.Errorf("Expected name after, got %s", span.OperationName())
	}
	span.Finish()
	span.SetOperationName("late")
	if span.OperationName() != "after" {
		t.Errorf("Expected name unchanged after finish, got %s", span.OperationName())
	}
}

func TestSpanBaggage(t *testing.T) {
	tracer, _, _ := newTestTracer(t, nil)
	ctx, parent := tracer.StartSpan(context.Background(), "parent")
	parent.SetBaggageItem("user", "42")

	_, child := tracer.StartSpan(ctx, "child")
	if child.BaggageItem("user") != "42" {
		t.Errorf("Expected child to inherit baggage, got %q", child.BaggageItem("user"))
	}

	child.SetBaggageItem("user", "43")
	if parent.BaggageItem("user") != "42" {
		t.Error("Expected child baggage to be a copy")
	}
}

func TestSpanKeepAndDropTrace(t *testing.T) {
	tracer, _, _ := newTestTracer(t, nil)

	_, kept := tracer.StartSpan(context.Background(), "kept")
	kept.KeepTrace()
	if p, ok := kept.Context().SamplingPriority(); !ok || p != PriorityUserKeep {
		t.Errorf("Expected USER_KEEP, got %v", p)
	}

	// Drop overrides the earlier keep.
	kept.DropTrace()
	if p, _ := kept.Context().SamplingPriority(); p != PriorityUserReject {
		t.Errorf("Expected USER_REJECT after DropTrace, got %v", p)
	}
}

func TestSpanFromContext(t *testing.T) {
	if _, ok := SpanFromContext(context.Background()); ok {
		t.Error("Expected no span in empty context")
	}
	//nolint:staticcheck // nil context is handled.
	if _, ok := SpanFromContext(nil); ok {
		t.Error("Expected no span in nil context")
	}

	tracer, _, _ := newTestTracer(t, nil)
	ctx, span := tracer.StartSpan(context.Background(), "test")
	got, ok := SpanFromContext(ctx)
	if !ok || got != span {
		t.Error("Expected span to be retrievable from its context")
	}
}
