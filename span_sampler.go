package spanz

import (
	"github.com/zoobzio/clockz"

	"github.com/zoobzio/spanz/internal/sampling"
)

// spanSampler keeps individual spans of dropped traces that match a span
// sampling rule.
type spanSampler struct {
	rules []*sampling.Rule
}

func newSpanSampler(rules []sampling.RuleConfig, clock clockz.Clock) *spanSampler {
	compiled := make([]*sampling.Rule, 0, len(rules))
	for _, r := range rules {
		compiled = append(compiled, sampling.NewRule(r, clock))
	}
	return &spanSampler{rules: compiled}
}

// sampleLocked runs over the finished spans of a trace whose priority does
// not keep it. Only the first matching rule of each span is tried.
// Must be called with tr.mu held.
func (ss *spanSampler) sampleLocked(tr *trace) {
	if len(ss.rules) == 0 {
		return
	}
	if tr.sampling.decided && tr.sampling.priority.Keep() {
		return
	}

	for _, span := range tr.finished {
		span.mu.Lock()
		for _, rule := range ss.rules {
			if !rule.Match(span.service, span.name, span.resource, span.tagStringLocked) {
				continue
			}
			if rule.Sample() {
				limit, limited := rule.MaxPerSecond()
				span.spanSampling = &spanSamplingDecision{
					rate:         rule.SampleRate(),
					maxPerSecond: limit,
					limited:      limited,
				}
			}
			break
		}
		span.mu.Unlock()
	}
}
