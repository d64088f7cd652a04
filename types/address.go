package types

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// Address is a 20-byte account address.
type Address [20]byte

// ParseAddress parses a 0x-prefixed (or bare) 20-byte hex address. The
// checksum casing is not verified.
func ParseAddress(raw string) (Address, error) {
	b, err := DecodeHex(raw)
	if err != nil {
		return Address{}, fmt.Errorf("parse address: %w", err)
	}
	if len(b) != len(Address{}) {
		return Address{}, fmt.Errorf("parse address: got %d bytes want 20", len(b))
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// Hex renders the lowercase 0x-prefixed form.
func (a Address) Hex() string {
	return EncodeHex(a[:])
}

// String renders the EIP-55 mixed-case checksum form.
func (a Address) String() string {
	lower := hex.EncodeToString(a[:])

	hasher := sha3.NewLegacyKeccak256()
	_, _ = hasher.Write([]byte(lower))
	digest := hasher.Sum(nil)

	out := []byte(lower)
	for i, c := range out {
		if c < 'a' || c > 'f' {
			continue
		}
		nibble := digest[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if nibble&0x0f >= 8 {
			out[i] = c - 'a' + 'A'
		}
	}
	return "0x" + string(out)
}
