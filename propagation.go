package spanz

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/zoobzio/spanz/internal/id"
)

// Style names a propagation format.
type Style string

// Propagation styles.
const (
	StyleDatadog      Style = "datadog"
	StyleB3Multi      Style = "b3multi"
	StyleB3Single     Style = "b3 single header"
	StyleTraceContext Style = "tracecontext"
)

const (
	headerBaggagePrefix = "ot-baggage-"
	headerSQSDatadog    = "x-aws-sqsd-attr-_datadog"
)

// ParseStyles parses configured style names. "b3" selects the multi header
// variant and "none" disables propagation. Unknown names are skipped.
func ParseStyles(names []string) []Style {
	styles := make([]Style, 0, len(names))
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "datadog":
			styles = append(styles, StyleDatadog)
		case "b3", "b3multi":
			styles = append(styles, StyleB3Multi)
		case "b3 single header", "b3single":
			styles = append(styles, StyleB3Single)
		case "tracecontext":
			styles = append(styles, StyleTraceContext)
		case "none":
			return nil
		}
	}
	return styles
}

// propagator is implemented by every style.
type propagator interface {
	inject(sc *SpanContext, carrier TextMapWriter)
	extract(headers map[string]string) (*SpanContext, error)
}

// textMapPropagator runs the configured styles in order.
type textMapPropagator struct {
	styles       map[Style]propagator
	logger       *zap.Logger
	inject       []Style
	extract      []Style
	extractFirst bool
}

func newTextMapPropagator(inject, extract []Style, extractFirst bool, tagsMaxLength int, logger *zap.Logger) *textMapPropagator {
	return &textMapPropagator{
		styles: map[Style]propagator{
			StyleDatadog:      &datadogPropagator{maxTagsLength: tagsMaxLength, logger: logger},
			StyleB3Multi:      b3MultiPropagator{},
			StyleB3Single:     b3SinglePropagator{},
			StyleTraceContext: w3cPropagator{},
		},
		logger:       logger,
		inject:       inject,
		extract:      extract,
		extractFirst: extractFirst,
	}
}

// Inject writes the context with every inject style, then the baggage.
func (p *textMapPropagator) Inject(sc *SpanContext, carrier TextMapWriter) error {
	if sc == nil || sc.trace == nil {
		return ErrInvalidSpanContext
	}
	if carrier == nil {
		return ErrInvalidCarrier
	}
	if len(p.inject) == 0 {
		return nil
	}

	for _, style := range p.inject {
		p.styles[style].inject(sc, carrier)
	}
	sc.ForeachBaggageItem(func(key, value string) bool {
		carrier.Set(headerBaggagePrefix+key, value)
		return true
	})
	return nil
}

// Extract reads a context with the first extract style that finds one.
// Unless extractFirst is set, a later tracecontext match for the same trace
// contributes its tracestate and span id.
func (p *textMapPropagator) Extract(carrier TextMapReader) (*SpanContext, error) {
	if carrier == nil {
		return nil, ErrInvalidCarrier
	}
	headers, err := readCarrier(carrier)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCarrier, err)
	}

	var (
		sc      *SpanContext
		corrupt error
	)
	for _, style := range p.extract {
		extracted, err := p.styles[style].extract(headers)
		if err != nil {
			if !errors.Is(err, ErrSpanContextNotFound) {
				p.logger.Debug("ignoring malformed trace context", zap.String("style", string(style)), zap.Error(err))
				if corrupt == nil {
					corrupt = err
				}
			}
			continue
		}

		if sc == nil {
			sc = extracted
			if p.extractFirst {
				break
			}
			continue
		}
		if style == StyleTraceContext {
			p.resolveTraceContext(sc, extracted, headers)
		}
	}

	if sc == nil {
		sc = p.extractSQS(headers)
	}
	if sc == nil {
		if corrupt != nil {
			return nil, corrupt
		}
		return nil, ErrSpanContextNotFound
	}

	for key, value := range headers {
		if strings.HasPrefix(key, headerBaggagePrefix) {
			sc.setBaggageItem(key[len(headerBaggagePrefix):], value)
		}
	}
	return sc, nil
}

// resolveTraceContext merges a tracecontext extraction into the context
// found first when both describe the same trace. The tracecontext span id
// wins; the Datadog parent is kept in _dd.parent_id.
func (p *textMapPropagator) resolveTraceContext(first, w3c *SpanContext, headers map[string]string) {
	if first.TraceIDHex() != w3c.TraceIDHex() {
		return
	}
	first.setTraceState(w3c.TraceState())

	if first.spanID.Equal(w3c.spanID) {
		return
	}
	if parent, ok := w3c.trace.tag(keyParentID); ok {
		first.trace.setTag(keyParentID, parent)
	} else if raw, ok := headers[headerParentID]; ok && p.extracts(StyleDatadog) {
		if parent, err := strconv.ParseUint(raw, 10, 64); err == nil {
			first.trace.setTag(keyParentID, id.Hex16(parent))
		}
	}
	first.spanID = w3c.spanID
}

func (p *textMapPropagator) extracts(style Style) bool {
	for _, s := range p.extract {
		if s == style {
			return true
		}
	}
	return false
}

// extractSQS reads Datadog headers wrapped as JSON in a single queue
// message attribute.
func (p *textMapPropagator) extractSQS(headers map[string]string) *SpanContext {
	raw, ok := headers[headerSQSDatadog]
	if !ok {
		return nil
	}

	var wrapped map[string]string
	if err := sonic.UnmarshalString(raw, &wrapped); err != nil {
		p.logger.Debug("ignoring malformed queue attribute", zap.Error(err))
		return nil
	}

	inner := make(map[string]string, len(wrapped))
	for k, v := range wrapped {
		inner[strings.ToLower(k)] = v
	}
	sc, err := p.styles[StyleDatadog].extract(inner)
	if err != nil {
		return nil
	}
	return sc
}

// validTagKey reports whether key is a propagated tag key.
func validTagKey(key string) bool {
	if len(key) <= len(keyPropagatedPrefix) || !strings.HasPrefix(key, keyPropagatedPrefix) {
		return false
	}
	for i := len(keyPropagatedPrefix); i < len(key); i++ {
		if c := key[i]; c < 0x21 || c > 0x7e || c == ',' {
			return false
		}
	}
	return true
}

// validTagValue reports whether value can be carried in the tags header.
func validTagValue(value string) bool {
	for i := 0; i < len(value); i++ {
		if c := value[i]; c < 0x20 || c > 0x7e || c == ',' {
			return false
		}
	}
	return true
}

// isLowerHex reports whether s is made of lowercase hex digits only.
func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return len(s) > 0
}

// corrupted wraps ErrSpanContextCorrupted with the offending detail.
func corrupted(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSpanContextCorrupted, fmt.Sprintf(format, args...))
}
