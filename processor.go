package spanz

import (
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/zoobzio/spanz/internal/encoding"
)

// exporter receives formatted trace chunks.
type exporter interface {
	Export(chunk []*encoding.Span)
}

// processor decides when a trace is flushed. A trace is flushed when all
// of its started spans have finished, or earlier once flushMinSpans spans
// have finished (a partial flush).
//
//nolint:govet // Field order groups collaborators before state
type processor struct {
	exporter      exporter
	priority      *prioritySampler
	spans         *spanSampler
	formatter     *formatter
	logger        *zap.Logger
	metrics       *metrics
	live          map[*trace]struct{}
	flushMinSpans int
	diagnostics   bool
	mu            sync.Mutex
}

// register tracks a trace with open spans so killAll can reach it.
// register and unregister are called with tr.mu held.
func (p *processor) register(tr *trace) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.live[tr] = struct{}{}
}

func (p *processor) unregister(tr *trace) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.live, tr)
}

// liveTraces returns the number of traces with open spans.
func (p *processor) liveTraces() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live)
}

// process records a finished span and flushes its trace when due.
func (p *processor) process(span *Span) {
	tr := span.context.trace

	tr.mu.Lock()
	if p.diagnostics {
		p.checkLocked(tr, span)
	}
	tr.finished = append(tr.finished, span)

	complete := len(tr.started) == len(tr.finished)
	if !complete && len(tr.finished) < p.flushMinSpans {
		tr.mu.Unlock()
		return
	}

	p.priority.sampleLocked(tr, span, true)
	p.spans.sampleLocked(tr)

	done := make(map[*Span]struct{}, len(tr.finished))
	for _, s := range tr.finished {
		done[s] = struct{}{}
	}

	// The first started span of the chunk carries the trace-wide tags.
	var chunkRoot *Span
	open := make([]*Span, 0, len(tr.started))
	for _, s := range tr.started {
		if _, ok := done[s]; !ok {
			open = append(open, s)
		} else if chunkRoot == nil {
			chunkRoot = s
		}
	}
	if chunkRoot == nil {
		chunkRoot = tr.finished[0]
	}

	chunk := make([]*encoding.Span, 0, len(tr.finished))
	for _, s := range tr.finished {
		chunk = append(chunk, p.formatter.format(tr, s, s == chunkRoot))
	}

	finished := tr.finished
	tr.started = open
	tr.finished = nil
	if len(open) == 0 {
		p.unregister(tr)
	}
	tr.mu.Unlock()

	for _, s := range finished {
		s.release()
	}

	p.metrics.tracesFlushed.WithLabelValues(strconv.FormatBool(!complete)).Inc()
	if len(chunk) > 0 {
		p.export(chunk)
	}
}

// export hands a chunk to the exporter, recovering exporter panics.
func (p *processor) export(chunk []*encoding.Span) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.apiErrors.WithLabelValues("panic").Inc()
			p.logger.Error("exporter panicked", zap.Any("panic", r), zap.Int("spans", len(chunk)))
		}
	}()
	p.exporter.Export(chunk)
}

// killAll finishes every open span of every live trace.
func (p *processor) killAll() {
	p.mu.Lock()
	traces := make([]*trace, 0, len(p.live))
	for tr := range p.live {
		traces = append(traces, tr)
	}
	p.mu.Unlock()

	for _, tr := range traces {
		tr.mu.Lock()
		open := make([]*Span, len(tr.started))
		copy(open, tr.started)
		tr.mu.Unlock()

		for _, s := range open {
			s.Finish()
		}
	}
}

// checkLocked logs lifecycle violations. Must be called with tr.mu held.
func (p *processor) checkLocked(tr *trace, span *Span) {
	fields := spanFields(span)

	for _, s := range tr.finished {
		if s == span {
			p.logger.Warn("span finished twice", fields...)
			break
		}
	}

	started := false
	for _, s := range tr.started {
		if s == span {
			started = true
		}
		if s.context.trace != tr {
			p.logger.Warn("span started in a different trace", spanFields(s)...)
		}
	}
	if !started {
		p.logger.Warn("span finished in a trace it was not started in", fields...)
	}
}
