package spanz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finishedPriority(t *testing.T, tracer *Tracer, rec *recordingExporter, opts ...StartOption) (Priority, map[string]float64, map[string]string) {
	t.Helper()
	before := len(rec.Chunks())
	_, span := tracer.StartSpan(context.Background(), "web.request", opts...)
	span.Finish()

	chunks := rec.Chunks()
	require.Len(t, chunks, before+1)
	out := chunks[before][0]
	return Priority(out.Metrics[keySamplingPriorityV1]), out.Metrics, out.Meta
}

func TestPrioritySamplerDefault(t *testing.T) {
	tracer, rec, _ := newTestTracer(t, nil)

	p, metrics, meta := finishedPriority(t, tracer, rec)
	assert.Equal(t, PriorityAutoKeep, p)
	assert.Equal(t, 1.0, metrics[keyAgentPSR])
	assert.Equal(t, "-0", meta[keyDecisionMaker])
}

func TestPrioritySamplerAgentRates(t *testing.T) {
	tracer, rec, _ := newTestTracer(t, func(c *Config) {
		c.Env = "prod"
	})

	tracer.priority.update(map[string]float64{
		"service:test-service,env:prod": 0,
		defaultSamplerKey:               1,
	})

	p, metrics, meta := finishedPriority(t, tracer, rec)
	assert.Equal(t, PriorityAutoReject, p)
	assert.Equal(t, 0.0, metrics[keyAgentPSR])
	assert.NotContains(t, meta, keyDecisionMaker)

	// Services without their own rate use the agent default.
	p, _, meta = finishedPriority(t, tracer, rec, WithService("other"))
	assert.Equal(t, PriorityAutoKeep, p)
	assert.Equal(t, "-1", meta[keyDecisionMaker])

	// Updates replace the table wholesale.
	tracer.priority.update(map[string]float64{})
	_, _, meta = finishedPriority(t, tracer, rec)
	assert.Equal(t, "-0", meta[keyDecisionMaker])
}

func TestPrioritySamplerRules(t *testing.T) {
	tracer, rec, _ := newTestTracer(t, func(c *Config) {
		c.SamplingRules = `[
			{"service": "test-*", "name": "db.*", "sample_rate": 1},
			{"name": "web.request", "sample_rate": 0},
			{"name": "remote.*", "sample_rate": 1, "provenance": "customer"}
		]`
	})

	p, metrics, meta := finishedPriority(t, tracer, rec)
	assert.Equal(t, PriorityUserReject, p)
	assert.Equal(t, 0.0, metrics[keyRulePSR])
	assert.NotContains(t, metrics, keyLimitPSR, "limiter is only consulted for kept traces")
	assert.NotContains(t, meta, keyDecisionMaker)

	before := len(rec.Chunks())
	_, span := tracer.StartSpan(context.Background(), "db.query")
	span.Finish()
	out := rec.Chunks()[before][0]
	assert.Equal(t, float64(PriorityUserKeep), out.Metrics[keySamplingPriorityV1])
	assert.Equal(t, "-3", out.Meta[keyDecisionMaker])
	assert.Equal(t, 1.0, out.Metrics[keyLimitPSR])

	before = len(rec.Chunks())
	_, span = tracer.StartSpan(context.Background(), "remote.call")
	span.Finish()
	out = rec.Chunks()[before][0]
	assert.Equal(t, "-11", out.Meta[keyDecisionMaker])
}

func TestPrioritySamplerGlobalRate(t *testing.T) {
	rate := 0.0
	tracer, rec, _ := newTestTracer(t, func(c *Config) {
		c.SampleRate = &rate
	})

	p, metrics, _ := finishedPriority(t, tracer, rec)
	assert.Equal(t, PriorityUserReject, p)
	assert.Equal(t, 0.0, metrics[keyRulePSR])
}

func TestPrioritySamplerRateLimit(t *testing.T) {
	rate := 1.0
	tracer, rec, _ := newTestTracer(t, func(c *Config) {
		c.SampleRate = &rate
		c.RateLimit = 2
	})

	var kept, rejected int
	for i := 0; i < 5; i++ {
		p, _, _ := finishedPriority(t, tracer, rec)
		if p == PriorityUserKeep {
			kept++
		} else {
			rejected++
		}
	}
	assert.Equal(t, 2, kept)
	assert.Equal(t, 3, rejected)
}

func TestPrioritySamplerManualTags(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
		want  Priority
	}{
		{"manual keep", TagManualKeep, true, PriorityUserKeep},
		{"manual drop", TagManualDrop, true, PriorityUserReject},
		{"priority 1", TagSamplingPriority, 1, PriorityUserKeep},
		{"priority 2 string", TagSamplingPriority, "2", PriorityUserKeep},
		{"priority 0", TagSamplingPriority, 0, PriorityUserReject},
		{"priority -1", TagSamplingPriority, -1, PriorityUserReject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, rec, _ := newTestTracer(t, nil)
			p, _, meta := finishedPriority(t, tracer, rec, WithTag(tt.key, tt.value))
			assert.Equal(t, tt.want, p)
			if tt.want.Keep() {
				assert.Equal(t, "-4", meta[keyDecisionMaker])
			}
		})
	}
}

func TestPrioritySamplerDecidesOnce(t *testing.T) {
	tracer, _, _ := newTestTracer(t, nil)
	ctx, root := tracer.StartSpan(context.Background(), "root")

	require.NoError(t, tracer.Inject(root.Context(), TextMapCarrier{}))
	p, ok := root.Context().SamplingPriority()
	require.True(t, ok)
	assert.Equal(t, PriorityAutoKeep, p)

	// A later manual tag does not replace an existing decision.
	_, child := tracer.StartSpan(ctx, "child")
	child.SetTag(TagManualDrop, true)
	p, _ = root.Context().SamplingPriority()
	assert.Equal(t, PriorityAutoKeep, p)

	// An explicit override does, and keeps the decision maker.
	tracer.SetPriority(child, PriorityUserKeep, MechanismManual)
	p, _ = root.Context().SamplingPriority()
	assert.Equal(t, PriorityUserKeep, p)
	dm, _ := root.Context().trace.tag(keyDecisionMaker)
	assert.Equal(t, "-0", dm)
}

func TestPrioritySamplerRemoteDecisionKept(t *testing.T) {
	tracer, rec, _ := newTestTracer(t, func(c *Config) {
		c.SamplingRules = `[{"sample_rate": 1}]`
	})

	remote, err := tracer.Extract(TextMapCarrier{
		headerTraceID:  "1",
		headerParentID: "2",
		headerPriority: "0",
	})
	require.NoError(t, err)

	p, _, _ := finishedPriority(t, tracer, rec, ChildOf(remote))
	assert.Equal(t, PriorityAutoReject, p)
}

func TestSpanSampler(t *testing.T) {
	tracer, rec, _ := newTestTracer(t, func(c *Config) {
		rate := 0.0
		c.SampleRate = &rate
		c.SpanSamplingRules = `[
			{"service": "test-service", "name": "db.*", "sample_rate": 1, "max_per_second": 50},
			{"name": "cache.*"}
		]`
	})

	ctx, root := tracer.StartSpan(context.Background(), "web.request")
	_, db := tracer.StartSpan(ctx, "db.query")
	_, cache := tracer.StartSpan(ctx, "cache.get")
	_, other := tracer.StartSpan(ctx, "other")
	db.Finish()
	cache.Finish()
	other.Finish()
	root.Finish()

	chunk := rec.Chunks()[0]
	dbOut := spanByName(chunk, "db.query")
	assert.Equal(t, float64(MechanismSpan), dbOut.Metrics[keySpanSamplingMech])
	assert.Equal(t, 1.0, dbOut.Metrics[keySpanSamplingRate])
	assert.Equal(t, 50.0, dbOut.Metrics[keySpanSamplingLimit])

	cacheOut := spanByName(chunk, "cache.get")
	assert.Equal(t, float64(MechanismSpan), cacheOut.Metrics[keySpanSamplingMech])
	assert.NotContains(t, cacheOut.Metrics, keySpanSamplingLimit)

	assert.NotContains(t, spanByName(chunk, "other").Metrics, keySpanSamplingMech)
	assert.NotContains(t, spanByName(chunk, "web.request").Metrics, keySpanSamplingMech)
}

func TestSpanSamplerSkipsKeptTraces(t *testing.T) {
	tracer, rec, _ := newTestTracer(t, func(c *Config) {
		c.SpanSamplingRules = `[{"name": "*"}]`
	})

	_, span := tracer.StartSpan(context.Background(), "op")
	span.Finish()

	out := rec.Chunks()[0][0]
	assert.Equal(t, float64(PriorityAutoKeep), out.Metrics[keySamplingPriorityV1])
	assert.NotContains(t, out.Metrics, keySpanSamplingMech)
}
