package spanz

import "errors"

var (
	// ErrSpanContextNotFound is returned when a carrier holds no trace context.
	ErrSpanContextNotFound = errors.New("span context not found")

	// ErrSpanContextCorrupted is returned when a carrier holds a malformed
	// trace context.
	ErrSpanContextCorrupted = errors.New("span context corrupted")

	// ErrInvalidCarrier is returned for nil carriers.
	ErrInvalidCarrier = errors.New("invalid carrier")

	// ErrInvalidSpanContext is returned when injecting a nil context.
	ErrInvalidSpanContext = errors.New("invalid span context")

	// ErrPayloadDropped is returned when a payload is dropped because the
	// maximum number of in-flight requests was reached.
	ErrPayloadDropped = errors.New("payload dropped")
)
