package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns a row identifier. Every table keys on UUID.
func NewID() string {
	return uuid.NewString()
}

// NewToken returns an opaque random token, optionally prefixed.
func NewToken(prefix string) string {
	bytes := make([]byte, 24)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// IsID reports whether value parses as a UUID. Path parameters are checked
// before they reach a UUID column.
func IsID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}
