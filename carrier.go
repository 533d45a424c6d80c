package spanz

import (
	"net/http"
	"strings"
)

// TextMapWriter is a carrier propagated context can be written to.
type TextMapWriter interface {
	Set(key, value string)
}

// TextMapReader is a carrier propagated context can be read from.
type TextMapReader interface {
	// ForeachKey calls handler for each key/value pair, stopping at the
	// first error.
	ForeachKey(handler func(key, value string) error) error
}

// TextMapCarrier is a map based carrier.
type TextMapCarrier map[string]string

// Set implements TextMapWriter.
func (c TextMapCarrier) Set(key, value string) {
	c[key] = value
}

// ForeachKey implements TextMapReader.
func (c TextMapCarrier) ForeachKey(handler func(key, value string) error) error {
	for k, v := range c {
		if err := handler(k, v); err != nil {
			return err
		}
	}
	return nil
}

// HTTPHeadersCarrier wraps http.Header as a carrier.
type HTTPHeadersCarrier http.Header

// Set implements TextMapWriter.
func (c HTTPHeadersCarrier) Set(key, value string) {
	http.Header(c).Set(key, value)
}

// ForeachKey implements TextMapReader.
func (c HTTPHeadersCarrier) ForeachKey(handler func(key, value string) error) error {
	for k, values := range c {
		for _, v := range values {
			if err := handler(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// readCarrier copies a carrier into a map with lowercased keys. Repeated
// keys are joined with commas, as HTTP list headers are.
func readCarrier(reader TextMapReader) (map[string]string, error) {
	headers := make(map[string]string)
	err := reader.ForeachKey(func(key, value string) error {
		key = strings.ToLower(key)
		if prev, ok := headers[key]; ok {
			headers[key] = prev + "," + value
			return nil
		}
		headers[key] = value
		return nil
	})
	return headers, err
}
