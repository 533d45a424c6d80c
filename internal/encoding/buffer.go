package encoding

// DefaultMinSize is the initial capacity of encoder buffers.
const DefaultMinSize = 64 * 1024

// Buffer is an append-only byte buffer. It grows by doubling its capacity,
// which always stays a multiple of the minimum size, and never shrinks.
// Reset keeps the allocation for the next encode cycle.
type Buffer struct {
	data []byte
	min  int
}

// NewBuffer creates a buffer with the given minimum size.
func NewBuffer(minSize int) *Buffer {
	if minSize <= 0 {
		minSize = DefaultMinSize
	}
	return &Buffer{
		data: make([]byte, 0, minSize),
		min:  minSize,
	}
}

// Len returns the number of bytes written.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Cap returns the current capacity.
func (b *Buffer) Cap() int {
	return cap(b.data)
}

// Bytes returns the written bytes. The slice is only valid until the next
// write or Reset.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Reserve makes room for n more bytes.
func (b *Buffer) Reserve(n int) {
	need := len(b.data) + n
	if need <= cap(b.data) {
		return
	}

	size := cap(b.data)
	if size < b.min {
		size = b.min
	}
	for size < need {
		size *= 2
	}

	grown := make([]byte, len(b.data), size)
	copy(grown, b.data)
	b.data = grown
}

// Write appends p. It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	b.Reserve(len(p))
	b.data = append(b.data, p...)
	return len(p), nil
}

// WriteByte appends a single byte. It never fails.
func (b *Buffer) WriteByte(c byte) error {
	b.Reserve(1)
	b.data = append(b.data, c)
	return nil
}

// Reset empties the buffer.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
}
