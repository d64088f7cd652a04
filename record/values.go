package record

import (
	"fmt"
	"math/big"

	"github.com/vmaark/storesync/schema"
	"github.com/vmaark/storesync/types"
)

// abiWordSize is the width of a key tuple entry as emitted on chain.
const abiWordSize = 32

// decodeStatic interprets b, which must be exactly t.StaticByteLength() bytes.
func decodeStatic(t schema.Type, b []byte) any {
	switch {
	case t.IsUnsigned():
		return decodeUnsigned(b)
	case t.IsSigned():
		return decodeSigned(b)
	case t.IsFixedBytes():
		return cloneBytes(b)
	case t == schema.Bool:
		return b[0] != 0
	case t == schema.Address:
		var a types.Address
		copy(a[:], b)
		return a
	default:
		panic(fmt.Sprintf("decodeStatic called with dynamic type %s", t))
	}
}

func decodeUnsigned(b []byte) any {
	switch n := len(b); {
	case n == 1:
		return b[0]
	case n == 2:
		return uint16(readUint(b))
	case n <= 4:
		return uint32(readUint(b))
	case n <= 8:
		return readUint(b)
	default:
		return new(big.Int).SetBytes(b)
	}
}

func decodeSigned(b []byte) any {
	n := len(b)
	if n > 8 {
		v := new(big.Int).SetBytes(b)
		if b[0]&0x80 != 0 {
			v.Sub(v, new(big.Int).Lsh(big.NewInt(1), uint(8*n)))
		}
		return v
	}

	shift := uint(64 - 8*n)
	v := int64(readUint(b)<<shift) >> shift
	switch {
	case n == 1:
		return int8(v)
	case n == 2:
		return int16(v)
	case n <= 4:
		return int32(v)
	default:
		return v
	}
}

func decodeDynamic(table string, f schema.Field, b []byte) (any, error) {
	switch {
	case f.Type == schema.Bytes:
		return cloneBytes(b), nil
	case f.Type == schema.String:
		return string(b), nil
	case f.Type.IsArray():
		elem := f.Type.ElementType()
		width := elem.StaticByteLength()
		if len(b)%width != 0 {
			return nil, decodeErrorf(table, f.Name, "%d bytes is not a multiple of %s width %d", len(b), elem, width)
		}
		out := make([]any, 0, len(b)/width)
		for off := 0; off < len(b); off += width {
			out = append(out, decodeStatic(elem, b[off:off+width]))
		}
		return out, nil
	default:
		return nil, decodeErrorf(table, f.Name, "type %s is not dynamic", f.Type)
	}
}

// keyBytes narrows a key tuple entry to the field's width. Entries arrive
// either at the field width or as 32-byte words, where fixed bytes are
// left-aligned and everything else is right-aligned.
func keyBytes(table string, f schema.Field, entry []byte) ([]byte, error) {
	width := f.Type.StaticByteLength()
	switch len(entry) {
	case width:
		return entry, nil
	case abiWordSize:
		if f.Type.IsFixedBytes() {
			return entry[:width], nil
		}
		return entry[abiWordSize-width:], nil
	default:
		return nil, decodeErrorf(table, f.Name, "key entry is %d bytes, want %d or %d", len(entry), width, abiWordSize)
	}
}

func cloneBytes(value []byte) []byte {
	cloned := make([]byte, len(value))
	copy(cloned, value)
	return cloned
}
