// Package idcodec converts between store keys and ledger keys.
//
// Store keys are 32-character lowercase hex strings (a UUID's 16 bytes).
// The ledger addresses the same records by a uint256 whose value is the key
// read as a big-endian hex number, and carries it on the wire as a decimal
// string. Every conversion fails closed with domain.ErrInvalidIdentifier.
package idcodec

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"bounty-qa/internal/domain"
)

// KeyLen is the length of a store key in hex characters.
const KeyLen = 32

// keyBytes is the number of bytes a store key encodes.
const keyBytes = KeyLen / 2

// NewKey returns a fresh random store key.
func NewKey() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// ValidateKey checks that key is a canonical store key.
func ValidateKey(key string) error {
	if len(key) != KeyLen {
		return fmt.Errorf("%w: key %q must be %d hex characters", domain.ErrInvalidIdentifier, key, KeyLen)
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("%w: key %q must be lowercase hex", domain.ErrInvalidIdentifier, key)
		}
	}
	return nil
}

// ToLedgerKey converts a store key to its uint256 ledger key.
func ToLedgerKey(key string) (*uint256.Int, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	b, err := hex.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidIdentifier, err)
	}
	return new(uint256.Int).SetBytes(b), nil
}

// FromLedgerKey converts a ledger key back to a store key.
// Values wider than a store key are rejected rather than truncated.
func FromLedgerKey(v *uint256.Int) (string, error) {
	if v == nil {
		return "", fmt.Errorf("%w: nil ledger key", domain.ErrInvalidIdentifier)
	}
	if v.BitLen() > keyBytes*8 {
		return "", fmt.Errorf("%w: ledger key %s exceeds %d bits", domain.ErrInvalidIdentifier, v.Dec(), keyBytes*8)
	}
	full := v.Bytes32()
	return hex.EncodeToString(full[32-keyBytes:]), nil
}

// ParseLedgerKey parses the decimal wire form of a ledger key.
func ParseLedgerKey(dec string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: ledger key %q: %v", domain.ErrInvalidIdentifier, dec, err)
	}
	return v, nil
}

// FormatLedgerKey renders a ledger key in its decimal wire form.
func FormatLedgerKey(v *uint256.Int) string {
	return v.Dec()
}

// StoreKeyToWire converts a store key straight to the ledger's decimal form.
func StoreKeyToWire(key string) (string, error) {
	v, err := ToLedgerKey(key)
	if err != nil {
		return "", err
	}
	return FormatLedgerKey(v), nil
}

// WireToStoreKey converts the ledger's decimal form straight to a store key.
func WireToStoreKey(dec string) (string, error) {
	v, err := ParseLedgerKey(dec)
	if err != nil {
		return "", err
	}
	return FromLedgerKey(v)
}
