package spanz

import (
	"sync"

	"github.com/spf13/cast"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"

	"github.com/zoobzio/spanz/internal/sampling"
)

// defaultSamplerKey is the agent's rate for services it has no rate for.
const defaultSamplerKey = "service:,env:"

// prioritySampler decides whether a trace is kept. Manual tags win; then
// the first matching rule, gated by a shared rate limiter; then the rate the
// agent returned for the root span's service and env.
type prioritySampler struct {
	samplers map[string]*sampling.Sampler
	fallback *sampling.Sampler
	limiter  *sampling.RateLimiter
	logger   *zap.Logger
	env      string
	rules    []*sampling.Rule
	mu       sync.RWMutex
}

func newPrioritySampler(env string, rules []sampling.RuleConfig, sampleRate *float64, rateLimit float64, clock clockz.Clock, logger *zap.Logger) *prioritySampler {
	compiled := make([]*sampling.Rule, 0, len(rules)+1)
	for _, r := range rules {
		compiled = append(compiled, sampling.NewRule(r, clock))
	}
	if sampleRate != nil {
		compiled = append(compiled, sampling.NewRule(sampling.RuleConfig{SampleRate: *sampleRate}, clock))
	}

	return &prioritySampler{
		samplers: make(map[string]*sampling.Sampler),
		fallback: sampling.NewSampler(1),
		limiter:  sampling.NewRateLimiter(rateLimit, clock),
		logger:   logger,
		env:      env,
		rules:    compiled,
	}
}

// sample decides the priority of span's trace unless one is already set.
// With auto false only manual tags are considered.
func (ps *prioritySampler) sample(span *Span, auto bool) {
	tr := span.context.trace

	tr.mu.Lock()
	defer tr.mu.Unlock()

	ps.sampleLocked(tr, span, auto)
}

// sampleContext samples the trace of a context through its local root.
// Contexts without local spans are left undecided.
func (ps *prioritySampler) sampleContext(sc *SpanContext) {
	tr := sc.trace

	tr.mu.Lock()
	defer tr.mu.Unlock()

	if len(tr.started) == 0 {
		return
	}
	ps.sampleLocked(tr, tr.started[0], true)
}

// sampleLocked must be called with tr.mu held.
func (ps *prioritySampler) sampleLocked(tr *trace, span *Span, auto bool) {
	if tr.sampling.decided || len(tr.started) == 0 {
		return
	}

	if p, ok := manualPriority(span); ok {
		tr.setPriority(p, MechanismManual)
		return
	}
	if !auto {
		return
	}

	root := tr.started[0]
	root.mu.Lock()
	rule := ps.findRule(root)
	service := root.service
	root.mu.Unlock()

	if rule != nil {
		ps.sampleByRule(tr, rule)
		return
	}
	ps.sampleByAgent(tr, service)
}

// findRule must be called with root.mu held.
func (ps *prioritySampler) findRule(root *Span) *sampling.Rule {
	for _, rule := range ps.rules {
		if rule.Match(root.service, root.name, root.resource, root.tagStringLocked) {
			return rule
		}
	}
	return nil
}

func (ps *prioritySampler) sampleByRule(tr *trace, rule *sampling.Rule) {
	kept := rule.Sample()
	tr.metrics[keyRulePSR] = rule.SampleRate()

	if kept {
		kept = ps.limiter.IsAllowed()
		tr.metrics[keyLimitPSR] = ps.limiter.EffectiveRate()
	}

	p := PriorityUserReject
	if kept {
		p = PriorityUserKeep
	}
	tr.setPriority(p, ruleMechanism(rule))
}

func (ps *prioritySampler) sampleByAgent(tr *trace, service string) {
	sampler, mechanism := ps.agentSampler(service)
	tr.metrics[keyAgentPSR] = sampler.Rate()

	p := PriorityAutoReject
	if sampler.IsSampled() {
		p = PriorityAutoKeep
	}
	tr.setPriority(p, mechanism)
}

func (ps *prioritySampler) agentSampler(service string) (*sampling.Sampler, Mechanism) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	if s, ok := ps.samplers["service:"+service+",env:"+ps.env]; ok {
		return s, MechanismAgent
	}
	if s, ok := ps.samplers[defaultSamplerKey]; ok {
		return s, MechanismAgent
	}
	return ps.fallback, MechanismDefault
}

// update replaces the agent rates wholesale.
func (ps *prioritySampler) update(rates map[string]float64) {
	samplers := make(map[string]*sampling.Sampler, len(rates))
	for key, rate := range rates {
		samplers[key] = sampling.NewSampler(rate)
	}

	ps.mu.Lock()
	ps.samplers = samplers
	ps.mu.Unlock()

	ps.logger.Debug("updated agent sampling rates", zap.Int("services", len(rates)))
}

func ruleMechanism(rule *sampling.Rule) Mechanism {
	switch rule.Provenance() {
	case "customer":
		return MechanismRemoteUser
	case "dynamic":
		return MechanismRemoteDynamic
	default:
		return MechanismRule
	}
}

// manualPriority reads a decision from the span's manual tags.
func manualPriority(span *Span) (Priority, bool) {
	span.mu.Lock()
	defer span.mu.Unlock()

	if v, ok := span.tags[TagManualKeep]; ok && v != false {
		return PriorityUserKeep, true
	}
	if v, ok := span.tags[TagManualDrop]; ok && v != false {
		return PriorityUserReject, true
	}
	if v, ok := span.tags[TagSamplingPriority]; ok {
		p, err := cast.ToIntE(v)
		if err != nil {
			return 0, false
		}
		switch Priority(p) {
		case PriorityAutoKeep, PriorityUserKeep:
			return PriorityUserKeep, true
		case PriorityAutoReject, PriorityUserReject:
			return PriorityUserReject, true
		}
	}
	return 0, false
}
