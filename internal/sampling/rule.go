package sampling

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/spf13/cast"
	"github.com/zoobzio/clockz"
)

// ErrInvalidRules is returned when a rules document cannot be decoded.
var ErrInvalidRules = errors.New("invalid sampling rules")

// RuleConfig describes a sampling rule as it appears in configuration.
// Empty patterns match anything.
type RuleConfig struct {
	Service      string
	Name         string
	Resource     string
	Tags         map[string]string
	SampleRate   float64
	MaxPerSecond *float64
	Provenance   string
}

// TagFunc looks up a tag value, already rendered as a string.
type TagFunc func(key string) (string, bool)

// Rule is a compiled sampling rule with its own sampler and, when a
// max-per-second is configured, its own rate limiter.
type Rule struct {
	service    string
	name       string
	resource   string
	tags       map[string]string
	provenance string
	sampler    *Sampler
	limiter    *RateLimiter
}

// NewRule compiles a rule configuration.
func NewRule(cfg RuleConfig, clock clockz.Clock) *Rule {
	r := &Rule{
		service:    cfg.Service,
		name:       cfg.Name,
		resource:   cfg.Resource,
		tags:       cfg.Tags,
		provenance: cfg.Provenance,
		sampler:    NewSampler(cfg.SampleRate),
	}
	if cfg.MaxPerSecond != nil {
		r.limiter = NewRateLimiter(*cfg.MaxPerSecond, clock)
	}
	return r
}

// Provenance returns where the rule came from: "customer", "dynamic" or
// empty for locally configured rules.
func (r *Rule) Provenance() string {
	return r.provenance
}

// SampleRate returns the rule's sample rate.
func (r *Rule) SampleRate() float64 {
	return r.sampler.Rate()
}

// MaxPerSecond returns the rule's limit and whether one is configured.
func (r *Rule) MaxPerSecond() (float64, bool) {
	if r.limiter == nil {
		return 0, false
	}
	return r.limiter.Limit(), true
}

// Limiter returns the rule's own rate limiter, if any.
func (r *Rule) Limiter() *RateLimiter {
	return r.limiter
}

// Match reports whether every pattern of the rule matches. Tag patterns
// require the tag to be present.
func (r *Rule) Match(service, name, resource string, tag TagFunc) bool {
	if r.service != "" && !GlobMatch(r.service, service) {
		return false
	}
	if r.name != "" && !GlobMatch(r.name, name) {
		return false
	}
	if r.resource != "" && !GlobMatch(r.resource, resource) {
		return false
	}
	for key, pattern := range r.tags {
		if tag == nil {
			return false
		}
		value, ok := tag(key)
		if !ok || !GlobMatch(pattern, value) {
			return false
		}
	}
	return true
}

// Sample runs the rule's sampler. Only when the sampler keeps the item is
// the limiter consulted.
func (r *Rule) Sample() bool {
	if !r.sampler.IsSampled() {
		return false
	}
	if r.limiter != nil {
		return r.limiter.IsAllowed()
	}
	return true
}

// ParseRules decodes a JSON array of rule objects. Keys follow the agent's
// snake_case naming. Rules whose sample_rate is present but not numeric are
// skipped; a missing sample_rate means 1.
func ParseRules(raw string) ([]RuleConfig, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var docs []map[string]any
	if err := sonic.UnmarshalString(raw, &docs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRules, err)
	}

	rules := make([]RuleConfig, 0, len(docs))
	for _, doc := range docs {
		cfg := RuleConfig{
			Service:    cast.ToString(doc["service"]),
			Name:       cast.ToString(doc["name"]),
			Resource:   cast.ToString(doc["resource"]),
			Provenance: cast.ToString(doc["provenance"]),
			SampleRate: 1,
		}

		if v, ok := doc["sample_rate"]; ok {
			rate, err := cast.ToFloat64E(v)
			if err != nil {
				continue
			}
			cfg.SampleRate = rate
		}

		if v, ok := doc["max_per_second"]; ok && v != nil {
			limit, err := cast.ToFloat64E(v)
			if err == nil {
				cfg.MaxPerSecond = &limit
			}
		}

		if tags, ok := doc["tags"].(map[string]any); ok {
			cfg.Tags = make(map[string]string, len(tags))
			for k, v := range tags {
				cfg.Tags[k] = cast.ToString(v)
			}
		}

		rules = append(rules, cfg)
	}
	return rules, nil
}
