// Package roundid mints sortable identifiers for rounds and accounts.
package roundid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Crockford's base32, as used by TypeID
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// Length of an encoded identifier.
const Length = 26

// New returns a UUIDv7 encoded as a 26-character base32 string. Identifiers
// sort by creation time, which keeps round history queries index friendly.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the system entropy source fails.
		panic("roundid: " + err.Error())
	}
	return Encode(id)
}

// Encode encodes a UUID as 26 base32 characters (two leading zero bits).
func Encode(id uuid.UUID) string {
	result := make([]byte, Length)

	// Process the 128 bits as a 130-bit big-endian value, 5 bits per character.
	var bitBuf uint64
	bits := 2
	pos := 0
	for _, b := range id {
		bitBuf = bitBuf<<8 | uint64(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			result[pos] = alphabet[(bitBuf>>uint(bits))&0x1f]
			pos++
		}
	}
	return string(result)
}

// Validate checks that id is 26 characters of the base32 alphabet and fits in 128 bits.
func Validate(id string) error {
	if len(id) != Length {
		return fmt.Errorf("id must be exactly %d characters, got %d", Length, len(id))
	}
	if id[0] > '7' {
		return fmt.Errorf("id first character must be 0-7, got %c", id[0])
	}
	for i, char := range id {
		if !strings.ContainsRune(alphabet, char) {
			return fmt.Errorf("invalid character %c at position %d", char, i)
		}
	}
	return nil
}
