package integration

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoobzio/spanz"
)

// tracingMiddleware continues the caller's trace for every request.
func tracingMiddleware(tracer *spanz.Tracer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var opts []spanz.StartOption
		if parent, err := tracer.Extract(spanz.HTTPHeadersCarrier(r.Header)); err == nil {
			opts = append(opts, spanz.ChildOf(parent))
		}
		opts = append(opts, spanz.WithResource(r.Method+" "+r.URL.Path), spanz.WithSpanType("web"))

		ctx, span := tracer.StartSpan(r.Context(), "http.request", opts...)
		defer span.Finish()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// call makes an outgoing request from the span in ctx.
func call(ctx context.Context, t *testing.T, tracer *spanz.Tracer, url string) {
	t.Helper()
	ctx, span := tracer.StartSpan(ctx, "http.client")
	defer span.Finish()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	require.NoError(t, tracer.Inject(span.Context(), spanz.HTTPHeadersCarrier(req.Header)))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func TestServiceMesh(t *testing.T) {
	styles := [][]string{
		{"datadog"},
		{"tracecontext"},
		{"b3multi"},
		{"b3 single header"},
		{"datadog", "tracecontext"},
	}

	for _, style := range styles {
		t.Run(style[len(style)-1], func(t *testing.T) {
			agent := NewFakeAgent(t)
			configure := func(service string) func(*spanz.Config) {
				return func(c *spanz.Config) {
					c.Service = service
					c.PropagationStyleInject = style
					c.PropagationStyleExtract = style
				}
			}
			frontend := NewTracer(t, agent, configure("frontend"))
			backend := NewTracer(t, agent, configure("backend"))

			var baggage string
			srv := httptest.NewServer(tracingMiddleware(backend, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				span, ok := spanz.SpanFromContext(r.Context())
				if ok {
					baggage = span.BaggageItem("tenant")
				}
				w.WriteHeader(http.StatusOK)
			})))
			defer srv.Close()

			ctx, root := frontend.StartSpan(context.Background(), "checkout")
			root.SetBaggageItem("tenant", "acme")
			call(ctx, t, frontend, srv.URL+"/inventory")
			root.Finish()

			spans := agent.WaitForSpans(t, 3)
			server := FindSpan(spans, "http.request")
			client := FindSpan(spans, "http.client")
			require.NotNil(t, server)
			require.NotNil(t, client)

			assert.Equal(t, client.TraceID, server.TraceID)
			assert.Equal(t, client.SpanID, server.ParentID)
			assert.Equal(t, "backend", server.Service)
			assert.Equal(t, "GET /inventory", server.Resource)
			assert.Equal(t, 1.0, server.Metrics["_sampling_priority_v1"])
			assert.Equal(t, 1.0, server.Metrics["_dd.top_level"], "a remote child is a local root")
			assert.Equal(t, "acme", baggage)
		})
	}
}
