// Package record decodes raw rows into field maps according to their table schema.
package record

import (
	"github.com/vmaark/storesync/schema"
	"github.com/vmaark/storesync/types"
)

// Record is the decoded form of a raw row. It is derived from the row and its
// schema and never modified on its own.
type Record struct {
	ID       types.RowID
	Table    *schema.Table
	KeyTuple types.KeyTuple
	Key      map[string]any
	Value    map[string]any
}

// Decode decodes row against table.
func Decode(row types.RawRow, table *schema.Table) (*Record, error) {
	if row.TableID != table.ID {
		return nil, decodeErrorf(table.Label(), "", "row belongs to table %s", row.TableID)
	}
	key, err := DecodeKey(table, row.KeyTuple)
	if err != nil {
		return nil, err
	}
	value, err := DecodeValue(table, row.StaticData, row.EncodedLengths, row.DynamicData)
	if err != nil {
		return nil, err
	}
	return &Record{
		ID:       row.ID,
		Table:    table,
		KeyTuple: row.KeyTuple.Clone(),
		Key:      key,
		Value:    value,
	}, nil
}

// DecodeKey decodes one key tuple entry per key field.
func DecodeKey(table *schema.Table, keyTuple types.KeyTuple) (map[string]any, error) {
	label := table.Label()
	if len(keyTuple) != len(table.Key) {
		return nil, decodeErrorf(label, "", "key tuple has %d entries, schema has %d key fields", len(keyTuple), len(table.Key))
	}
	out := make(map[string]any, len(table.Key))
	for i, f := range table.Key {
		b, err := keyBytes(label, f, keyTuple[i])
		if err != nil {
			return nil, err
		}
		out[f.Name] = decodeStatic(f.Type, b)
	}
	return out, nil
}

// DecodeValue decodes static fields from staticData and dynamic fields from
// dynamicData, split by the lengths in encodedLengths.
//
// Static data shorter than the schema's static width is read as if padded with
// zeros, which is how a row looks after a partial splice with no prior
// SetRecord. Longer static data is an error.
func DecodeValue(table *schema.Table, staticData, encodedLengths, dynamicData []byte) (map[string]any, error) {
	label := table.Label()
	out := make(map[string]any, len(table.Value))

	staticLen := table.StaticByteLength()
	if len(staticData) > staticLen {
		return nil, decodeErrorf(label, "", "static data is %d bytes, schema allows %d", len(staticData), staticLen)
	}
	padded := staticData
	if len(padded) < staticLen {
		padded = make([]byte, staticLen)
		copy(padded, staticData)
	}
	offset := 0
	for _, f := range table.StaticFields() {
		width := f.Type.StaticByteLength()
		out[f.Name] = decodeStatic(f.Type, padded[offset:offset+width])
		offset += width
	}

	dynamicFields := table.DynamicFields()
	if len(dynamicFields) == 0 {
		if len(dynamicData) > 0 {
			return nil, decodeErrorf(label, "", "%d bytes of dynamic data but schema has no dynamic fields", len(dynamicData))
		}
		return out, nil
	}

	lengths, err := ParseEncodedLengths(encodedLengths)
	if err != nil {
		return nil, decodeErrorf(label, "", "%v", err)
	}
	if lengths.Total != uint64(len(dynamicData)) {
		return nil, decodeErrorf(label, "", "encoded lengths total %d but dynamic data is %d bytes", lengths.Total, len(dynamicData))
	}
	for i := len(dynamicFields); i < len(lengths.Fields); i++ {
		if lengths.Fields[i] != 0 {
			return nil, decodeErrorf(label, "", "encoded length %d set for undeclared dynamic field %d", lengths.Fields[i], i)
		}
	}

	var pos uint64
	for i, f := range dynamicFields {
		end := pos + lengths.Fields[i]
		v, err := decodeDynamic(label, f, dynamicData[pos:end])
		if err != nil {
			return nil, err
		}
		out[f.Name] = v
		pos = end
	}
	return out, nil
}
