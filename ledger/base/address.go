package base

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// AddressSize is the byte length of an account address
const AddressSize = 20

var (
	ErrInvalidAddress = errors.New("invalid address")
)

// Address is the fixed size identity of an account or a contract
type Address [AddressSize]byte

// AddressFromPublicKey derives the address from the last 20 bytes
// of the sha3-256 digest over the raw public key
func AddressFromPublicKey(pubKey []byte) (Address, error) {
	var addr Address
	if len(pubKey) == 0 {
		return addr, ErrInvalidAddress
	}
	digest := sha3.Sum256(pubKey)
	copy(addr[:], digest[len(digest)-AddressSize:])
	return addr, nil
}

// AddressFromHex parses a 40 char hex string, with or without the 0x prefix
func AddressFromHex(s string) (Address, error) {
	var addr Address
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != AddressSize {
		return addr, fmt.Errorf("%w: %s", ErrInvalidAddress, s)
	}
	copy(addr[:], raw)
	return addr, nil
}

// AddressFromBytes converts a 20 byte slice into an Address
func AddressFromBytes(raw []byte) (Address, error) {
	var addr Address
	if len(raw) != AddressSize {
		return addr, fmt.Errorf("%w: length %d", ErrInvalidAddress, len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}

func (a Address) Bytes() []byte {
	return a[:]
}

func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

func (a Address) String() string {
	return "0x" + a.Hex()
}

func (a Address) Equal(other Address) bool {
	return bytes.Equal(a[:], other[:])
}

// IsEmpty reports whether the address is all zero
func (a Address) IsEmpty() bool {
	var zero Address
	return a == zero
}
