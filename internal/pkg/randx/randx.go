/*
Package randx provides functions for generating cryptographically secure random room codes and unique identifiers.

Room codes are short, upper-case alphanumeric strings typed by humans, so comparisons go through
NormalizeRoomCode. Opaque identifiers are UUID v4 strings.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// RoomCodeChars is the alphabet for room codes. Ambiguous glyphs (0, O, 1, I) are excluded.
	RoomCodeChars = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

	// RoomCodeLength is the fixed length of a generated room code.
	RoomCodeLength = 6

	// LocalIDPrefix marks identifiers synthesized client-side while offline.
	LocalIDPrefix = "local-"
)

// RoomCode generates a room code using crypto/rand.
func RoomCode() (string, error) {
	result := make([]byte, RoomCodeLength)
	max := big.NewInt(int64(len(RoomCodeChars)))

	for i := 0; i < RoomCodeLength; i++ {
		num, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random number for room code: %v", err)
		}
		result[i] = RoomCodeChars[num.Int64()]
	}

	return string(result), nil
}

// NormalizeRoomCode trims and upper-cases a user-entered room code.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValidRoomCode checks that code, once normalized, is non-empty and alphanumeric.
// Codes from other servers may be longer or use the full alphabet, so only the
// character class is enforced.
func IsValidRoomCode(code string) bool {
	code = NormalizeRoomCode(code)
	if code == "" || len(code) > 32 {
		return false
	}

	for _, char := range code {
		isDigit := char >= '0' && char <= '9'
		isUpper := char >= 'A' && char <= 'Z'
		if !isDigit && !isUpper {
			return false
		}
	}

	return true
}

// ID generates a UUID v4 string.
func ID() string {
	return uuid.New().String()
}

// LocalID generates an identifier for a locally synthesized entity.
func LocalID() string {
	return LocalIDPrefix + uuid.New().String()
}

// IsLocalID reports whether id was produced by LocalID.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}
