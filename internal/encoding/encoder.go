// Package encoding serializes formatted trace chunks into the msgpack
// payloads accepted by the trace agent. Two wire versions are supported:
// 0.4 (maps of named fields) and 0.5 (positional arrays over a string table).
package encoding

import (
	"errors"
	"fmt"
)

// Supported wire versions.
const (
	Version04 = "0.4"
	Version05 = "0.5"
)

// DefaultSoftLimit is the payload size past which encoders ask for a flush.
const DefaultSoftLimit = 8 * 1024 * 1024

// ErrUnsupportedVersion is returned for unknown wire versions.
var ErrUnsupportedVersion = errors.New("unsupported protocol version")

// Encoder accumulates trace chunks into a single payload. Encoders are not
// safe for concurrent use.
type Encoder interface {
	// Encode appends one trace chunk and reports whether the soft size
	// limit has been reached, in which case the payload should be flushed.
	Encode(trace []*Span) bool

	// Count returns the number of chunks encoded since the last payload.
	Count() int

	// Size returns the approximate payload size in bytes.
	Size() int

	// Payload finalizes the accumulated chunks and resets the encoder.
	Payload() []byte

	// Version returns the wire version, used to build the agent endpoint.
	Version() string
}

// New returns an encoder for the given wire version. A non-positive soft
// limit selects DefaultSoftLimit.
func New(version string, softLimit int) (Encoder, error) {
	if softLimit <= 0 {
		softLimit = DefaultSoftLimit
	}
	switch version {
	case Version04, "":
		return NewV04(softLimit), nil
	case Version05:
		return NewV05(softLimit), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, version)
	}
}
