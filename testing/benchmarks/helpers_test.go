package benchmarks

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/zoobzio/spanz"
)

// newBenchTracer returns a tracer reporting to a discarding agent.
func newBenchTracer(b *testing.B, configure func(*spanz.Config)) *spanz.Tracer {
	b.Helper()
	agent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = w.Write([]byte(`{"rate_by_service":{}}`))
	}))
	b.Cleanup(agent.Close)

	cfg := spanz.DefaultConfig()
	cfg.Service = "bench"
	cfg.AgentURL = agent.URL
	cfg.FlushInterval = time.Hour
	cfg.Logger = zap.NewNop()
	if configure != nil {
		configure(&cfg)
	}

	tracer, err := spanz.New(cfg)
	if err != nil {
		b.Fatalf("failed to create tracer: %v", err)
	}
	b.Cleanup(tracer.Close)
	return tracer
}
