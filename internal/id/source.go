package id

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand/v2"
	"sync"
)

// batchSize is the number of identifiers produced per refill.
const batchSize = 128

var defaultSource = NewSource()

// Source hands out random identifiers from a buffer of cryptographically
// random bytes that is refilled in batches to amortize crypto/rand overhead.
// Safe for concurrent use.
type Source struct {
	read func([]byte) (int, error)
	buf  [batchSize * 8]byte
	off  int
	mu   sync.Mutex
}

// NewSource creates a source backed by crypto/rand.
func NewSource() *Source {
	return newSource(rand.Read)
}

func newSource(read func([]byte) (int, error)) *Source {
	s := &Source{read: read}
	s.off = len(s.buf)
	return s
}

// Uint64 returns the next random value. The high bit is always cleared so
// the value stays non-negative when read as a signed 64-bit integer.
func (s *Source) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.off >= len(s.buf) {
			s.refill()
		}
		s.buf[s.off] &= 0x7f
		v := binary.BigEndian.Uint64(s.buf[s.off:])
		s.off += 8
		if v != 0 {
			return v
		}
	}
}

// refill reloads the whole batch. Must be called with mu held.
func (s *Source) refill() {
	if _, err := s.read(s.buf[:]); err != nil {
		// Fall back to the runtime PRNG if crypto/rand fails.
		for n := 0; n < len(s.buf); n += 8 {
			binary.BigEndian.PutUint64(s.buf[n:], mrand.Uint64())
		}
	}
	s.off = 0
}
