package types

import (
	"fmt"
	"strings"
)

// KeyTuple is the ordered list of encoded key fields of a row.
type KeyTuple [][]byte

func (k KeyTuple) Clone() KeyTuple {
	if k == nil {
		return nil
	}
	out := make(KeyTuple, len(k))
	for i, entry := range k {
		out[i] = cloneBytes(entry)
	}
	return out
}

// RowID is the stable identity of a row, derived from its table and key tuple.
type RowID string

// NewRowID renders 0x<table>:0x<key0>:0x<key1>... Key entries are separated so
// tuples of variable-width entries cannot collide.
func NewRowID(table TableID, key KeyTuple) RowID {
	var sb strings.Builder
	sb.WriteString(table.String())
	sb.WriteByte(':')
	for i, entry := range key {
		if i > 0 {
			sb.WriteByte(':')
		}
		sb.WriteString(EncodeHex(entry))
	}
	return RowID(sb.String())
}

// TableID recovers the table part of the id.
func (id RowID) TableID() (TableID, error) {
	table, _, ok := strings.Cut(string(id), ":")
	if !ok {
		return TableID{}, fmt.Errorf("malformed row id %q", string(id))
	}
	return ParseTableID(table)
}

// RawRow is the current byte state of one row as reconstructed from the log.
// A published RawRow is never modified; updates replace it.
type RawRow struct {
	ID             RowID
	TableID        TableID
	KeyTuple       KeyTuple
	StaticData     []byte
	EncodedLengths []byte
	DynamicData    []byte
}

// PlaceholderRow is the row a splice starts from when no SetRecord has been seen
// for the id: all byte segments empty.
func PlaceholderRow(table TableID, key KeyTuple) RawRow {
	return RawRow{
		ID:             NewRowID(table, key),
		TableID:        table,
		KeyTuple:       key.Clone(),
		StaticData:     []byte{},
		EncodedLengths: []byte{},
		DynamicData:    []byte{},
	}
}

func (r RawRow) Clone() RawRow {
	return RawRow{
		ID:             r.ID,
		TableID:        r.TableID,
		KeyTuple:       r.KeyTuple.Clone(),
		StaticData:     cloneBytes(r.StaticData),
		EncodedLengths: cloneBytes(r.EncodedLengths),
		DynamicData:    cloneBytes(r.DynamicData),
	}
}

func cloneBytes(value []byte) []byte {
	if value == nil {
		return nil
	}
	cloned := make([]byte, len(value))
	copy(cloned, value)
	return cloned
}
