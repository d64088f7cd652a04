package types

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// ResourceKind is the two-byte type prefix of a resource id.
type ResourceKind [2]byte

var (
	KindTable         = ResourceKind{'t', 'b'}
	KindOffchainTable = ResourceKind{'o', 't'}
)

func (k ResourceKind) String() string {
	switch k {
	case KindTable:
		return "table"
	case KindOffchainTable:
		return "offchainTable"
	default:
		return hex.EncodeToString(k[:])
	}
}

const (
	namespaceBytes = 14
	nameBytes      = 16
)

// TableID identifies a table: kind[0:2] | namespace[2:16] | name[16:32].
type TableID [32]byte

// NewTableID packs a table id. Namespace and name are truncated to their slots.
func NewTableID(kind ResourceKind, namespace, name string) TableID {
	var id TableID
	copy(id[0:2], kind[:])
	copy(id[2:2+namespaceBytes], namespace)
	copy(id[2+namespaceBytes:], name)
	return id
}

// ParseTableID parses a 0x-prefixed (or bare) 32-byte hex table id.
func ParseTableID(raw string) (TableID, error) {
	b, err := DecodeHex(raw)
	if err != nil {
		return TableID{}, fmt.Errorf("parse table id: %w", err)
	}
	if len(b) != len(TableID{}) {
		return TableID{}, fmt.Errorf("parse table id: got %d bytes want 32", len(b))
	}
	var id TableID
	copy(id[:], b)
	return id, nil
}

func (id TableID) Kind() ResourceKind {
	return ResourceKind{id[0], id[1]}
}

func (id TableID) Namespace() string {
	return trimZero(id[2 : 2+namespaceBytes])
}

func (id TableID) Name() string {
	return trimZero(id[2+namespaceBytes:])
}

// Label renders namespace__name, or just name for the root namespace.
func (id TableID) Label() string {
	if ns := id.Namespace(); ns != "" {
		return ns + "__" + id.Name()
	}
	return id.Name()
}

func (id TableID) String() string {
	return EncodeHex(id[:])
}

func trimZero(b []byte) string {
	return string(bytes.TrimRight(b, "\x00"))
}

// EncodeHex renders b as lowercase 0x-prefixed hex.
func EncodeHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// DecodeHex accepts 0x-prefixed or bare hex. "0x" and "" decode to an empty slice.
func DecodeHex(raw string) ([]byte, error) {
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")
	if len(raw)%2 == 1 {
		return nil, fmt.Errorf("odd length hex string %q", raw)
	}
	out, err := hex.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}
