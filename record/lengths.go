package record

import (
	"encoding/binary"
	"fmt"
)

const (
	// EncodedLengthsSize is the width of an encoded length table.
	EncodedLengthsSize = 32

	totalLengthBytes = 7
	fieldLengthBytes = 5
	maxLengthFields  = 5

	maxTotalLength = 1<<(8*totalLengthBytes) - 1
	maxFieldLength = 1<<(8*fieldLengthBytes) - 1
)

// EncodedLengths is the decoded form of a row's dynamic length table.
type EncodedLengths struct {
	Total  uint64
	Fields [maxLengthFields]uint64
}

// ParseEncodedLengths decodes a 32-byte length table. The total occupies the
// last 7 bytes; field i occupies the 5 bytes ending 5*i bytes before it. An
// empty input is the all-zero table of a row that has no dynamic data yet.
func ParseEncodedLengths(b []byte) (EncodedLengths, error) {
	var out EncodedLengths
	if len(b) == 0 {
		return out, nil
	}
	if len(b) != EncodedLengthsSize {
		return out, fmt.Errorf("encoded lengths must be %d bytes, got %d", EncodedLengthsSize, len(b))
	}

	out.Total = readUint(b[EncodedLengthsSize-totalLengthBytes:])
	var sum uint64
	for i := range out.Fields {
		start := EncodedLengthsSize - totalLengthBytes - (i+1)*fieldLengthBytes
		out.Fields[i] = readUint(b[start : start+fieldLengthBytes])
		sum += out.Fields[i]
	}
	if sum != out.Total {
		return out, fmt.Errorf("encoded field lengths sum to %d but total is %d", sum, out.Total)
	}
	return out, nil
}

// EncodeLengths builds the 32-byte length table for up to five dynamic fields.
func EncodeLengths(lengths ...uint64) ([]byte, error) {
	if len(lengths) > maxLengthFields {
		return nil, fmt.Errorf("at most %d dynamic lengths, got %d", maxLengthFields, len(lengths))
	}
	out := make([]byte, EncodedLengthsSize)
	var total uint64
	for i, l := range lengths {
		if l > maxFieldLength {
			return nil, fmt.Errorf("dynamic length %d exceeds %d", l, uint64(maxFieldLength))
		}
		total += l
		start := EncodedLengthsSize - totalLengthBytes - (i+1)*fieldLengthBytes
		writeUint(out[start:start+fieldLengthBytes], l)
	}
	if total > maxTotalLength {
		return nil, fmt.Errorf("total dynamic length %d exceeds %d", total, uint64(maxTotalLength))
	}
	writeUint(out[EncodedLengthsSize-totalLengthBytes:], total)
	return out, nil
}

// readUint reads a big-endian unsigned integer of at most 8 bytes.
func readUint(b []byte) uint64 {
	var buf [8]byte
	copy(buf[8-len(b):], b)
	return binary.BigEndian.Uint64(buf[:])
}

func writeUint(dst []byte, v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	copy(dst, buf[8-len(dst):])
}
