package spanz

import (
	"strings"
	"sync"
	"time"
)

// samplingDecision is the trace-wide sampling state. It is set once and
// only replaced by an explicit override.
type samplingDecision struct {
	priority  Priority
	mechanism Mechanism
	decided   bool
}

// trace is the buffer shared by every span of one trace in this process.
// Spans are appended to started when opened and to finished when closed;
// a flush exports the finished spans and keeps only the open ones.
//
// Lock order: trace.mu may be held while taking Span.mu, never the reverse.
type trace struct {
	started  []*Span
	finished []*Span
	tags     map[string]string
	metrics  map[string]float64
	origin   string
	start    time.Time
	sampling samplingDecision
	mu       sync.Mutex
}

func newTrace(start time.Time) *trace {
	return &trace{
		tags:    make(map[string]string),
		metrics: make(map[string]float64),
		start:   start,
	}
}

// setPriority records a decision and keeps the decision maker tag in sync.
// Must be called with mu held.
func (t *trace) setPriority(p Priority, m Mechanism) {
	t.sampling = samplingDecision{priority: p, mechanism: m, decided: true}

	if p.Keep() {
		if _, ok := t.tags[keyDecisionMaker]; !ok {
			t.tags[keyDecisionMaker] = m.decisionMaker()
		}
		return
	}
	delete(t.tags, keyDecisionMaker)
}

// priority returns the decision, if any.
func (t *trace) priority() (Priority, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sampling.priority, t.sampling.decided
}

// propagatedTags returns a copy of the _dd.p.* tags.
func (t *trace) propagatedTags() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]string, len(t.tags))
	for k, v := range t.tags {
		if strings.HasPrefix(k, keyPropagatedPrefix) {
			out[k] = v
		}
	}
	return out
}

// setTag sets a trace-wide tag.
func (t *trace) setTag(key, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tags[key] = value
}

// tag returns a trace-wide tag.
func (t *trace) tag(key string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.tags[key]
	return v, ok
}

// getOrigin returns the trace origin.
func (t *trace) getOrigin() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.origin
}
