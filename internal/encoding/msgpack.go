package encoding

import (
	"encoding/binary"

	"github.com/tinylib/msgp/msgp"
)

// Header markers written with explicit widths so that lengths and ids
// always occupy the same number of bytes on the wire.
const (
	markerFixArray2 = 0x92
	markerUint32    = 0xce
	markerUint64    = 0xcf
	markerInt32     = 0xd2
	markerInt64     = 0xd3
	markerArray32   = 0xdd
	markerMap32     = 0xdf
)

func (b *Buffer) writeArrayHeader(n uint32) {
	b.Reserve(msgp.ArrayHeaderSize)
	b.data = append(b.data, markerArray32)
	b.data = binary.BigEndian.AppendUint32(b.data, n)
}

func (b *Buffer) writeMapHeader(n uint32) {
	b.Reserve(msgp.MapHeaderSize)
	b.data = append(b.data, markerMap32)
	b.data = binary.BigEndian.AppendUint32(b.data, n)
}

func (b *Buffer) writeUint32(v uint32) {
	b.Reserve(msgp.Uint32Size)
	b.data = append(b.data, markerUint32)
	b.data = binary.BigEndian.AppendUint32(b.data, v)
}

func (b *Buffer) writeUint64(v uint64) {
	b.Reserve(msgp.Uint64Size)
	b.data = append(b.data, markerUint64)
	b.data = binary.BigEndian.AppendUint64(b.data, v)
}

func (b *Buffer) writeInt32(v int32) {
	b.Reserve(msgp.Int32Size)
	b.data = append(b.data, markerInt32)
	b.data = binary.BigEndian.AppendUint32(b.data, uint32(v))
}

func (b *Buffer) writeInt64(v int64) {
	b.Reserve(msgp.Int64Size)
	b.data = append(b.data, markerInt64)
	b.data = binary.BigEndian.AppendUint64(b.data, uint64(v))
}

func (b *Buffer) writeFloat64(v float64) {
	b.Reserve(msgp.Float64Size)
	b.data = msgp.AppendFloat64(b.data, v)
}

func (b *Buffer) writeString(s string) {
	b.Reserve(msgp.StringPrefixSize + len(s))
	b.data = msgp.AppendString(b.data, s)
}

func appendArrayHeader(dst []byte, n uint32) []byte {
	dst = append(dst, markerArray32)
	return binary.BigEndian.AppendUint32(dst, n)
}
