package common

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// MakeRandHexString returns a hex string built from size random bytes
// (so the result is size*2 characters long). Used for instance API secrets.
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand read: %w", err)
	}
	return hex.EncodeToString(b), nil
}
