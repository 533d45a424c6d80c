// Package spanz is a distributed tracing client for the Datadog agent.
//
// spanz creates spans, decides which traces to keep, propagates trace
// context across process boundaries and ships finished traces to the agent
// as msgpack payloads. Export is best effort: under backpressure payloads
// are dropped rather than queued.
//
// Core Components:
//   - Tracer: Creates spans and owns the pipeline below.
//   - Span: A single timed unit of work.
//   - SpanContext: The propagated identity of a span.
//   - Collector: Encodes flushed traces and sends them to the agent.
//
// Basic Usage:
//
//	cfg, err := spanz.LoadConfig()
//	if err != nil {
//		return err
//	}
//	tracer, err := spanz.New(cfg)
//	if err != nil {
//		return err
//	}
//	defer tracer.Close()
//
//	// Start a new span.
//	ctx, span := tracer.StartSpan(ctx, "web.request", spanz.WithResource("GET /users"))
//	defer span.Finish()
//
//	// Add metadata.
//	span.SetTag("user.id", "123")
//
//	// Pass context to child operations.
//	childCtx, child := tracer.StartSpan(ctx, "db.query")
//	defer child.Finish()
//
// Sampling:
//
// Each trace gets one priority. A manual decision (KeepTrace, DropTrace or
// the manual.keep, manual.drop and sampling.priority tags) wins; otherwise
// the first matching sampling rule decides, subject to a shared rate limit;
// otherwise the per-service rates returned by the agent apply. Spans of a
// dropped trace may still be kept individually by span sampling rules.
//
// Propagation:
//
// Inject and Extract support the Datadog, B3 (multi and single header) and
// W3C tracecontext formats, in the order configured. InjectLog, ExtractLog
// and LogFields handle the dd.trace_id and dd.span_id log fields.
//
// Flushing:
//
// A trace is flushed when its last open span finishes, or partially once
// FlushMinSpans of its spans have finished. Flushed traces are buffered in
// the Collector and sent every FlushInterval, immediately when the interval
// is zero, or when the payload reaches its size limit.
//
// Thread Safety:
//
// Tracer, Span and SpanContext are safe for concurrent use by multiple
// goroutines.
//
// Resource Cleanup:
//
// Call tracer.Close() to flush buffered traces and wait for in-flight sends.
// Call tracer.KillAll() first to force open spans into the final flush.
package spanz
