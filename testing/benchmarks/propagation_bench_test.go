package benchmarks

import (
	"context"
	"testing"

	"github.com/zoobzio/spanz"
)

// BenchmarkInject measures writing a context with each propagation style.
func BenchmarkInject(b *testing.B) {
	for _, style := range []string{"datadog", "tracecontext", "b3multi", "b3 single header"} {
		b.Run(style, func(b *testing.B) {
			tracer := newBenchTracer(b, func(c *spanz.Config) {
				c.PropagationStyleInject = []string{style}
			})
			_, span := tracer.StartSpan(context.Background(), "client")
			defer span.Finish()

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				carrier := spanz.TextMapCarrier{}
				if err := tracer.Inject(span.Context(), carrier); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkExtract measures reading a context with each propagation style.
func BenchmarkExtract(b *testing.B) {
	for _, style := range []string{"datadog", "tracecontext", "b3multi", "b3 single header"} {
		b.Run(style, func(b *testing.B) {
			tracer := newBenchTracer(b, func(c *spanz.Config) {
				c.PropagationStyleInject = []string{style}
				c.PropagationStyleExtract = []string{style}
			})
			_, span := tracer.StartSpan(context.Background(), "client")
			defer span.Finish()
			carrier := spanz.TextMapCarrier{}
			if err := tracer.Inject(span.Context(), carrier); err != nil {
				b.Fatal(err)
			}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := tracer.Extract(carrier); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
