package schema

import (
	"fmt"
	"strconv"
)

// Type is a field type, numbered the way the on-chain store numbers them.
type Type uint8

const (
	Uint8   Type = 0
	Uint256 Type = 31
	Int8    Type = 32
	Int256  Type = 63
	Bytes1  Type = 64
	Bytes32 Type = 95
	Bool    Type = 96
	Address Type = 97

	// Uint8Array through AddressArray mirror the static types, offset by 98.
	Uint8Array   Type = 98
	AddressArray Type = 195

	Bytes  Type = 196
	String Type = 197
)

const arrayOffset = Uint8Array - Uint8

var typesByName = func() map[string]Type {
	out := make(map[string]Type, int(String)+1)
	for t := Uint8; t <= String; t++ {
		out[t.String()] = t
	}
	return out
}()

// ParseType resolves a type name such as "uint32", "bytes20", "int8[]" or "string".
func ParseType(name string) (Type, error) {
	t, ok := typesByName[name]
	if !ok {
		return 0, fmt.Errorf("unknown field type %q", name)
	}
	return t, nil
}

func (t Type) String() string {
	switch {
	case t <= Uint256:
		return "uint" + strconv.Itoa(8*(int(t)+1))
	case t <= Int256:
		return "int" + strconv.Itoa(8*(int(t-Int8)+1))
	case t <= Bytes32:
		return "bytes" + strconv.Itoa(int(t-Bytes1)+1)
	case t == Bool:
		return "bool"
	case t == Address:
		return "address"
	case t <= AddressArray:
		return t.ElementType().String() + "[]"
	case t == Bytes:
		return "bytes"
	case t == String:
		return "string"
	default:
		return "invalid(" + strconv.Itoa(int(t)) + ")"
	}
}

func (t Type) Valid() bool {
	return t <= String
}

func (t Type) IsStatic() bool {
	return t <= Address
}

func (t Type) IsArray() bool {
	return t >= Uint8Array && t <= AddressArray
}

func (t Type) IsUnsigned() bool {
	return t <= Uint256
}

func (t Type) IsSigned() bool {
	return t >= Int8 && t <= Int256
}

func (t Type) IsFixedBytes() bool {
	return t >= Bytes1 && t <= Bytes32
}

// ElementType returns the static element type of an array type, or t itself.
func (t Type) ElementType() Type {
	if t.IsArray() {
		return t - arrayOffset
	}
	return t
}

// StaticByteLength is the encoded width of a static type; 0 for dynamic types.
func (t Type) StaticByteLength() int {
	switch {
	case t <= Uint256:
		return int(t) + 1
	case t <= Int256:
		return int(t-Int8) + 1
	case t <= Bytes32:
		return int(t-Bytes1) + 1
	case t == Bool:
		return 1
	case t == Address:
		return 20
	default:
		return 0
	}
}
