// Package id implements the 64-bit trace and span identifiers carried by
// spans, optionally widened to 128 bits for trace ids.
//
// Identifiers have a fixed 8-byte big-endian wire form (the lower 64 bits)
// and decimal or hexadecimal string forms. Equal identifiers always produce
// equal bytes and strings.
package id

import (
	"encoding/binary"
	"errors"
	"strconv"
)

var (
	// ErrEmpty is returned when parsing an empty string.
	ErrEmpty = errors.New("id: empty value")
	// ErrRadix is returned for radixes other than 10 and 16.
	ErrRadix = errors.New("id: unsupported radix")
	// ErrTooLong is returned when a hex value exceeds 128 bits.
	ErrTooLong = errors.New("id: value exceeds 128 bits")
)

// ID is a 64-bit identifier, optionally extended with 64 upper bits.
type ID struct {
	hi   uint64
	lo   uint64
	wide bool
}

// Zero is the empty identifier, used for missing parent ids.
var Zero ID

// New returns a 64-bit identifier.
func New(lo uint64) ID {
	return ID{lo: lo}
}

// New128 returns a 128-bit identifier.
func New128(hi, lo uint64) ID {
	return ID{hi: hi, lo: lo, wide: true}
}

// Random returns a random non-negative 64-bit identifier.
func Random() ID {
	return ID{lo: defaultSource.Uint64()}
}

// FromString parses value in the given radix. Invalid input degrades to a
// random identifier.
func FromString(value string, radix int) ID {
	parsed, err := Parse(value, radix)
	if err != nil {
		return Random()
	}
	return parsed
}

// Parse parses value in radix 10 or 16. Hex values longer than 16 digits
// produce a 128-bit identifier.
func Parse(value string, radix int) (ID, error) {
	if value == "" {
		return Zero, ErrEmpty
	}

	switch radix {
	case 10:
		lo, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return Zero, err
		}
		return ID{lo: lo}, nil
	case 16:
		if len(value) > 32 {
			return Zero, ErrTooLong
		}
		if len(value) <= 16 {
			lo, err := strconv.ParseUint(value, 16, 64)
			if err != nil {
				return Zero, err
			}
			return ID{lo: lo}, nil
		}
		split := len(value) - 16
		hi, err := strconv.ParseUint(value[:split], 16, 64)
		if err != nil {
			return Zero, err
		}
		lo, err := strconv.ParseUint(value[split:], 16, 64)
		if err != nil {
			return Zero, err
		}
		return ID{hi: hi, lo: lo, wide: true}, nil
	default:
		return Zero, ErrRadix
	}
}

// String formats the identifier. Radix 16 yields the zero-padded hex of the
// full width (16 or 32 digits); any other radix yields the decimal form of
// the lower 64 bits.
func (i ID) String(radix int) string {
	if radix == 16 {
		if i.wide {
			return Hex16(i.hi) + Hex16(i.lo)
		}
		return Hex16(i.lo)
	}
	return strconv.FormatUint(i.lo, 10)
}

// Bytes returns the 8-byte big-endian wire form of the lower 64 bits.
func (i ID) Bytes() [8]byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], i.lo)
	return b
}

// Lower returns the lower 64 bits.
func (i ID) Lower() uint64 { return i.lo }

// Upper returns the upper 64 bits, zero for 64-bit identifiers.
func (i ID) Upper() uint64 { return i.hi }

// Is128 reports whether the identifier carries upper bits.
func (i ID) Is128() bool { return i.wide }

// IsZero reports whether all bits are zero.
func (i ID) IsZero() bool { return i.hi == 0 && i.lo == 0 }

// Equal compares the numeric value of both identifiers.
func (i ID) Equal(o ID) bool { return i.hi == o.hi && i.lo == o.lo }

// Hex16 formats v as exactly 16 lowercase hex digits.
func Hex16(v uint64) string {
	const digits = "0123456789abcdef"
	var b [16]byte
	for n := 15; n >= 0; n-- {
		b[n] = digits[v&0xf]
		v >>= 4
	}
	return string(b[:])
}
